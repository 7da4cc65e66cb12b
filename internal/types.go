package internal

import (
	"time"
)

// Params is a flat query-parameter map for a data API endpoint
type Params map[string]interface{}

// AuthMode is the authentication strategy chosen once when a client is built.
// It is either CredentialAuth or BearerTokenAuth.
type AuthMode interface {
	authMode()
}

// CredentialAuth logs in with a username and the encoded login secret
type CredentialAuth struct {
	Username    string
	LoginSecret string
}

// BearerTokenAuth sends a pre-issued token on every primary request
type BearerTokenAuth struct {
	Token string
}

func (CredentialAuth) authMode()  {}
func (BearerTokenAuth) authMode() {}

// RateLimitState is a snapshot of the quota reported by the service
type RateLimitState struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"` // epoch seconds
	HasData   bool  `json:"has_data"`
}

// ResetTime returns the reset epoch as a UTC instant
func (s RateLimitState) ResetTime() time.Time {
	return time.Unix(s.Reset, 0).UTC()
}

// IsRateLimited reports whether the quota is known to be exhausted
func (s RateLimitState) IsRateLimited() bool {
	return s.HasData && s.Remaining == 0
}

// ResourceDescriptor is the outcome of one resolution step: inline data or a link to it
type ResourceDescriptor struct {
	Payload interface{}
	Link    string
	IsLink  bool
}

// ChunkManifest lists the chunk files that together hold one result set
type ChunkManifest struct {
	BaseDownloadURL string   `json:"base_download_url"`
	ChunkFileNames  []string `json:"chunk_file_names"`
}

// URLs returns the chunk download URLs in manifest order
func (m *ChunkManifest) URLs() []string {
	urls := make([]string, 0, len(m.ChunkFileNames))
	for _, name := range m.ChunkFileNames {
		urls = append(urls, m.BaseDownloadURL+name)
	}
	return urls
}

// AssetTable maps a stringified entity id to its extra fields
type AssetTable map[string]interface{}
