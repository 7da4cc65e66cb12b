package utils

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/net/publicsuffix"

	"irfetch/internal"
)

// RetryConfig defines retry behavior configuration
type RetryConfig struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	JitterPercent float64
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   5,
		BaseDelay:     1 * time.Second,
		MaxDelay:      60 * time.Second,
		Multiplier:    2.0,
		JitterPercent: 0.1,
	}
}

// CalculateDelay returns the backoff before retry number attempt (1-based)
func (rc *RetryConfig) CalculateDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Exponential backoff: baseDelay * multiplier^(attempt-1)
	delay := float64(rc.BaseDelay) * math.Pow(rc.Multiplier, float64(attempt-1))

	// -jitterPercent to +jitterPercent
	jitter := delay * rc.JitterPercent * (rand.Float64()*2 - 1)
	delay += jitter

	if delay > float64(rc.MaxDelay) {
		delay = float64(rc.MaxDelay)
	}
	if delay < 0 {
		delay = float64(rc.BaseDelay)
	}

	return time.Duration(delay)
}

// HTTPClientConfig contains configuration for the HTTP client
type HTTPClientConfig struct {
	Timeout     time.Duration
	ProxyURL    string
	UserAgent   string
	RetryConfig *RetryConfig
	Logger      *internal.SecureLogger
}

// HTTPClient is the session shared by login, resource and link requests.
// It owns the cookie jar that carries the login session.
type HTTPClient struct {
	client      *http.Client
	jar         *sessionJar
	userAgent   string
	retryConfig *RetryConfig
	logger      *internal.SecureLogger
}

// NewHTTPClient creates a new HTTP client with default configuration
func NewHTTPClient() *HTTPClient {
	client, _ := NewHTTPClientWithConfig(&HTTPClientConfig{})
	return client
}

// NewHTTPClientWithConfig creates a new HTTP client with custom configuration
func NewHTTPClientWithConfig(config *HTTPClientConfig) (*HTTPClient, error) {
	if config.RetryConfig == nil {
		config.RetryConfig = DefaultRetryConfig()
	}
	if config.UserAgent == "" {
		config.UserAgent = "irfetch/1.0"
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	if config.ProxyURL != "" {
		if err := configureProxy(transport, config.ProxyURL); err != nil {
			return nil, internal.NewValidationErrorWithValue("proxy", err.Error(), config.ProxyURL).
				WithSuggestion("Use an http://, https:// or socks5:// proxy URL")
		}
	}

	jar := newSessionJar()
	client := &http.Client{
		Transport: transport,
		Jar:       jar,
		Timeout:   config.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	return &HTTPClient{
		client:      client,
		jar:         jar,
		userAgent:   config.UserAgent,
		retryConfig: config.RetryConfig,
		logger:      config.Logger,
	}, nil
}

// sessionJar is a cookie jar that can be emptied while requests are in flight
type sessionJar struct {
	mutex sync.RWMutex
	jar   *cookiejar.Jar
}

func newSessionJar() *sessionJar {
	j := &sessionJar{}
	j.reset()
	return j
}

func (j *sessionJar) reset() {
	// cookiejar.New only fails on invalid options
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	j.mutex.Lock()
	j.jar = jar
	j.mutex.Unlock()
}

func (j *sessionJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mutex.RLock()
	defer j.mutex.RUnlock()
	j.jar.SetCookies(u, cookies)
}

func (j *sessionJar) Cookies(u *url.URL) []*http.Cookie {
	j.mutex.RLock()
	defer j.mutex.RUnlock()
	return j.jar.Cookies(u)
}

// configureProxy sets up proxy configuration for the transport
func configureProxy(transport *http.Transport, proxyURL string) error {
	parsedURL, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL: %w", err)
	}

	switch parsedURL.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(parsedURL)
	case "socks5", "socks5h":
		var auth *proxy.Auth
		if parsedURL.User != nil {
			password, _ := parsedURL.User.Password()
			auth = &proxy.Auth{User: parsedURL.User.Username(), Password: password}
		}
		dialer, err := proxy.SOCKS5("tcp", parsedURL.Host, auth, proxy.Direct)
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 proxy: %w", err)
		}
		transport.Proxy = nil
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	default:
		return fmt.Errorf("unsupported proxy scheme: %s", parsedURL.Scheme)
	}

	return nil
}

// Do sends req once. Transport failures come back as *internal.APIError of type
// ErrTransportTimeout or ErrConnection; cancellation of the caller's context is
// returned as the context error. Any HTTP status is returned as a response.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)

	c.log().LogHTTPRequest(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(req, err)
	}

	c.log().LogHTTPResponse(resp)
	return resp, nil
}

// Get performs a single GET request with the given extra headers
func (c *HTTPClient) Get(ctx context.Context, rawURL string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, internal.WrapAPIError(err, "failed to create request", internal.ErrConfiguration).WithURL(rawURL)
	}

	req.Header.Set("Accept", "application/json, text/csv, */*")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return c.Do(req)
}

// PostJSON marshals body and POSTs it with a JSON content type
func (c *HTTPClient) PostJSON(ctx context.Context, rawURL string, body interface{}, headers map[string]string) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return nil, internal.WrapAPIError(err, "failed to create request", internal.ErrConfiguration).WithURL(rawURL)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return c.Do(req)
}

// ReadBody drains and closes a response body
func ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(resp.Request, err)
	}
	return body, nil
}

// HasCookies reports whether the session jar holds cookies for rawURL
func (c *HTTPClient) HasCookies(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return len(c.jar.Cookies(u)) > 0
}

// ResetSession drops every cookie held by the session
func (c *HTTPClient) ResetSession() {
	c.jar.reset()
}

// RetryConfig returns the retry policy the client was built with
func (c *HTTPClient) RetryConfig() *RetryConfig {
	return c.retryConfig
}

func (c *HTTPClient) log() *internal.SecureLogger {
	if c.logger != nil {
		return c.logger
	}
	return internal.GetLogger()
}

// classifyTransportError maps a failed round trip onto the transport error kinds
func classifyTransportError(req *http.Request, err error) error {
	target := ""
	method := ""
	if req != nil {
		target = req.URL.String()
		method = req.Method

		// The caller gave up; that is not a transport failure
		if ctxErr := req.Context().Err(); errors.Is(ctxErr, context.Canceled) {
			return fmt.Errorf("%s %s: %w", method, req.URL.Path, ctxErr)
		}
	}

	if isTimeout(err) {
		return internal.WrapAPIError(err, fmt.Sprintf("%s request timed out", method), internal.ErrTransportTimeout).
			WithURL(target)
	}
	return internal.WrapAPIError(err, fmt.Sprintf("%s request failed", method), internal.ErrConnection).
		WithURL(target)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
