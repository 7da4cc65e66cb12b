package dataapi

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"irfetch/internal"
	"irfetch/utils"
)

// ResourceResolver turns an endpoint call into decoded data, following at most
// one level of link indirection.
type ResourceResolver struct {
	baseURL    string
	httpClient *utils.HTTPClient
	auth       *SessionAuthenticator
	tracker    *utils.RateLimitTracker
	backoff    *backoff
}

// NewResourceResolver creates a resolver for endpoints under baseURL
func NewResourceResolver(baseURL string, httpClient *utils.HTTPClient, auth *SessionAuthenticator,
	tracker *utils.RateLimitTracker) *ResourceResolver {
	return &ResourceResolver{
		baseURL:    baseURL,
		httpClient: httpClient,
		auth:       auth,
		tracker:    tracker,
		backoff:    auth.backoff,
	}
}

// retrySignal tells the resolve loop to start over after a 401 or 429
type retrySignal struct {
	status int
	header http.Header
}

// Resolve fetches endpoint with params and returns the decoded payload.
// 401 responses trigger a fresh login (credential mode) and 429 responses a
// wait for the quota reset; both count against the retry budget.
func (r *ResourceResolver) Resolve(ctx context.Context, endpoint string, params internal.Params) (interface{}, error) {
	if err := utils.ValidateEndpoint(endpoint); err != nil {
		return nil, err
	}
	target := utils.BuildURL(r.baseURL, endpoint, params)

	maxAttempts := r.backoff.maxAttempts()
	for attempt := 1; ; attempt++ {
		if !r.auth.Authenticated() {
			if err := r.auth.Login(ctx); err != nil {
				return nil, err
			}
		}

		payload, retry, err := r.resolveOnce(ctx, target)
		if err != nil {
			return nil, err
		}
		if retry == nil {
			return payload, nil
		}

		if attempt >= maxAttempts {
			return nil, r.exhausted(retry, attempt, endpoint)
		}
		if retry.status == http.StatusTooManyRequests {
			if err := r.backoff.waitRateLimit(ctx, retry.header, attempt); err != nil {
				return nil, err
			}
		} else {
			r.backoff.log().Info("Session expired, logging in again")
		}
	}
}

func (r *ResourceResolver) resolveOnce(ctx context.Context, target string) (interface{}, *retrySignal, error) {
	resp, body, err := r.get(ctx, target, r.auth.AuthHeaders())
	if err != nil {
		return nil, nil, err
	}

	if retry, err := r.checkStatus(resp, body, target); retry != nil || err != nil {
		return nil, retry, err
	}

	r.tracker.Update(resp.Header)
	decoded, err := decodeBody(resp.Header.Get("Content-Type"), body, target)
	if err != nil {
		return nil, nil, err
	}

	descriptor, err := classify(decoded)
	if err != nil {
		return nil, nil, err
	}
	if !descriptor.IsLink {
		return descriptor.Payload, nil, nil
	}
	return r.followLink(ctx, descriptor.Link)
}

// followLink fetches a pre-signed link target. It never sends the session's
// Authorization header; the link carries its own authorization.
func (r *ResourceResolver) followLink(ctx context.Context, link string) (interface{}, *retrySignal, error) {
	if err := utils.ValidateLinkURL(link); err != nil {
		return nil, nil, err
	}

	resp, body, err := r.get(ctx, link, nil)
	if err != nil {
		return nil, nil, err
	}

	// A rejected or throttled link cannot be retried itself; the endpoint must issue a new one
	if retry, err := r.checkStatus(resp, body, link); retry != nil || err != nil {
		return nil, retry, err
	}

	r.tracker.Update(resp.Header)
	decoded, err := decodeBody(resp.Header.Get("Content-Type"), body, link)
	if err != nil {
		return nil, nil, err
	}
	return decoded, nil, nil
}

// FetchLink dereferences an auxiliary pre-signed URL, such as a data_url field
func (r *ResourceResolver) FetchLink(ctx context.Context, link string) (interface{}, error) {
	if err := utils.ValidateLinkURL(link); err != nil {
		return nil, err
	}

	resp, body, err := r.get(ctx, link, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, internal.NewUnhandledStatusError(resp.StatusCode, link, body)
	}

	r.tracker.Update(resp.Header)
	return decodeBody(resp.Header.Get("Content-Type"), body, link)
}

func (r *ResourceResolver) get(ctx context.Context, target string, headers map[string]string) (*http.Response, []byte, error) {
	resp, err := r.httpClient.Get(ctx, target, headers)
	if err != nil {
		return nil, nil, err
	}
	body, err := utils.ReadBody(resp)
	if err != nil {
		return nil, nil, err
	}
	return resp, body, nil
}

// checkStatus maps a response status onto retry, fatal error, or success (nil, nil)
func (r *ResourceResolver) checkStatus(resp *http.Response, body []byte, target string) (*retrySignal, error) {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil, nil
	case http.StatusUnauthorized:
		if r.auth.IsBearer() {
			return nil, internal.NewTokenInvalidError(target).WithBody(body)
		}
		r.auth.Invalidate()
		return &retrySignal{status: resp.StatusCode, header: resp.Header}, nil
	case http.StatusTooManyRequests:
		return &retrySignal{status: resp.StatusCode, header: resp.Header}, nil
	default:
		return nil, internal.NewUnhandledStatusError(resp.StatusCode, target, body)
	}
}

func (r *ResourceResolver) exhausted(retry *retrySignal, attempts int, endpoint string) error {
	if retry.status == http.StatusTooManyRequests {
		return internal.NewRateLimitedError(attempts, r.backoff.retryAfterSeconds(retry.header)).
			WithContext("endpoint", endpoint)
	}
	return internal.NewAPIError(http.StatusUnauthorized,
		fmt.Sprintf("still unauthorized after %d attempts", attempts), internal.ErrAuthentication).
		WithContext("endpoint", endpoint)
}

// classify reports whether a decoded body is a link descriptor: an object
// with a "link" key. Lists are never link descriptors.
func classify(decoded interface{}) (internal.ResourceDescriptor, error) {
	inline := internal.ResourceDescriptor{Payload: decoded}

	obj, ok := decoded.(map[string]interface{})
	if !ok {
		return inline, nil
	}
	raw, ok := obj["link"]
	if !ok {
		return inline, nil
	}
	link, ok := raw.(string)
	if !ok {
		return inline, internal.NewAPIError(0, fmt.Sprintf("link field is %T, not a string", raw), internal.ErrInvalidResponse)
	}
	return internal.ResourceDescriptor{Link: link, IsLink: true}, nil
}

// decodeBody decodes JSON or CSV by declared content type. A missing content
// type is read as JSON; any other type is an error.
func decodeBody(contentType string, body []byte, target string) (interface{}, error) {
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))

	switch {
	case mediaType == "", mediaType == "application/json", mediaType == "application/octet-stream",
		strings.HasSuffix(mediaType, "+json"):
		return decodeJSON(body, target)
	case mediaType == "text/csv", mediaType == "text/plain":
		return parseCSV(body, target)
	default:
		return nil, internal.NewUnsupportedContentTypeError(contentType, target)
	}
}

func decodeJSON(body []byte, target string) (interface{}, error) {
	var decoded interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return nil, internal.WrapAPIError(err, "response is not valid JSON", internal.ErrInvalidResponse).
			WithURL(target).
			WithBody(body)
	}
	return decoded, nil
}

// parseCSV returns one record per row keyed by the lower-cased header.
// Rows whose field count differs from the header are dropped with a warning.
func parseCSV(body []byte, target string) (interface{}, error) {
	reader := csv.NewReader(bytes.NewReader(body))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records := []interface{}{}

	header, err := reader.Read()
	if err == io.EOF {
		return records, nil
	}
	if err != nil {
		return nil, internal.WrapAPIError(err, "response is not valid CSV", internal.ErrInvalidResponse).WithURL(target)
	}
	for i := range header {
		header[i] = strings.ToLower(header[i])
	}

	for row := 2; ; row++ {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, internal.WrapAPIError(err, "response is not valid CSV", internal.ErrInvalidResponse).WithURL(target)
		}
		if len(fields) != len(header) {
			internal.LogWarn("CSV row %d has %d fields, header has %d; dropping row", row, len(fields), len(header))
			continue
		}

		record := make(map[string]interface{}, len(header))
		for i, name := range header {
			record[name] = fields[i]
		}
		records = append(records, record)
	}

	return records, nil
}
