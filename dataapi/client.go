package dataapi

import (
	"context"
	"time"

	"irfetch/internal"
	"irfetch/utils"
)

var (
	_ internal.Authenticator = (*SessionAuthenticator)(nil)
	_ internal.Resolver      = (*ResourceResolver)(nil)
	_ internal.Assembler     = (*ChunkAssembler)(nil)
)

// ClientOptions overrides collaborators of a Client, mostly for tests
type ClientOptions struct {
	HTTPClient *utils.HTTPClient
	Logger     *internal.SecureLogger
	Now        func() time.Time
	Sleep      SleepFunc
}

// Client is the data API access layer for one session. It is not safe for
// concurrent use; create one Client per goroutine.
type Client struct {
	config     *internal.Config
	httpClient *utils.HTTPClient
	tracker    *utils.RateLimitTracker
	auth       *SessionAuthenticator
	resolver   *ResourceResolver
	chunks     *ChunkAssembler
}

// NewClient builds a client from configuration
func NewClient(config *internal.Config) (*Client, error) {
	return NewClientWithOptions(config, ClientOptions{})
}

// NewClientWithOptions builds a client from configuration and explicit collaborators
func NewClientWithOptions(config *internal.Config, opts ClientOptions) (*Client, error) {
	if config == nil {
		config = internal.DefaultConfig()
	}
	if err := config.ValidateConfig(); err != nil {
		return nil, err
	}

	mode, err := NewAuthMode(config.Username, config.Password, config.AccessToken)
	if err != nil {
		return nil, err
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		retry := utils.DefaultRetryConfig()
		retry.MaxAttempts = config.MaxRetries

		httpClient, err = utils.NewHTTPClientWithConfig(&utils.HTTPClientConfig{
			Timeout:     config.RequestTimeout,
			ProxyURL:    config.ProxyURL,
			UserAgent:   config.UserAgent,
			RetryConfig: retry,
			Logger:      opts.Logger,
		})
		if err != nil {
			return nil, err
		}
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	tracker := utils.NewRateLimitTrackerWithClock(now)
	auth := NewSessionAuthenticator(mode, config.AuthURL, config.LoginTimeout, httpClient, tracker)
	auth.backoff = newBackoff(httpClient.RetryConfig(), opts.Sleep, now, opts.Logger)

	return &Client{
		config:     config,
		httpClient: httpClient,
		tracker:    tracker,
		auth:       auth,
		resolver:   NewResourceResolver(config.BaseURL, httpClient, auth, tracker),
		chunks:     NewChunkAssembler(httpClient, config.ChunkConcurrency),
	}, nil
}

// RateLimit returns the quota tracker fed by every successful response
func (c *Client) RateLimit() *utils.RateLimitTracker {
	return c.tracker
}

// Authenticator returns the session authenticator
func (c *Client) Authenticator() *SessionAuthenticator {
	return c.auth
}

// Resolver returns the resource resolver
func (c *Client) Resolver() *ResourceResolver {
	return c.resolver
}

// Chunks returns the chunk assembler
func (c *Client) Chunks() *ChunkAssembler {
	return c.chunks
}

// Login logs in eagerly instead of on the first request
func (c *Client) Login(ctx context.Context) error {
	return c.auth.Login(ctx)
}
