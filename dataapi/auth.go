package dataapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"irfetch/internal"
	"irfetch/utils"
)

// EncodePassword derives the login secret sent instead of the plaintext password:
// base64(sha256(password + lower(username))).
func EncodePassword(username, password string) string {
	sum := sha256.Sum256([]byte(password + strings.ToLower(username)))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// NewAuthMode picks the authentication strategy for a client. Exactly one of
// a username/password pair or an access token must be supplied.
func NewAuthMode(username, password, token string) (internal.AuthMode, error) {
	hasCredentials := username != "" || password != ""

	switch {
	case token != "" && hasCredentials:
		return nil, internal.NewConfigurationError("supply either an access token or account credentials, not both")
	case token != "":
		return internal.BearerTokenAuth{Token: token}, nil
	case username != "" && password != "":
		return internal.CredentialAuth{
			Username:    username,
			LoginSecret: EncodePassword(username, password),
		}, nil
	case hasCredentials:
		return nil, internal.NewConfigurationError("both a username and a password are required")
	default:
		return nil, internal.NewConfigurationError("no credentials supplied")
	}
}

// SessionAuthenticator owns the login state of one client session.
// In credential mode it logs in with a JSON POST and relies on the session
// cookies; in bearer mode it only supplies the Authorization header.
type SessionAuthenticator struct {
	mode          internal.AuthMode
	authURL       string
	loginTimeout  time.Duration
	httpClient    *utils.HTTPClient
	tracker       *utils.RateLimitTracker
	backoff       *backoff
	authenticated bool
}

// NewSessionAuthenticator creates an authenticator. Bearer mode starts authenticated.
func NewSessionAuthenticator(mode internal.AuthMode, authURL string, loginTimeout time.Duration,
	httpClient *utils.HTTPClient, tracker *utils.RateLimitTracker) *SessionAuthenticator {
	_, bearer := mode.(internal.BearerTokenAuth)
	return &SessionAuthenticator{
		mode:          mode,
		authURL:       authURL,
		loginTimeout:  loginTimeout,
		httpClient:    httpClient,
		tracker:       tracker,
		backoff:       newBackoff(httpClient.RetryConfig(), nil, nil, nil),
		authenticated: bearer,
	}
}

// Login establishes a session. It is a no-op in bearer mode.
func (a *SessionAuthenticator) Login(ctx context.Context) error {
	creds, ok := a.mode.(internal.CredentialAuth)
	if !ok {
		a.authenticated = true
		return nil
	}

	payload := map[string]string{
		"email":    creds.Username,
		"password": creds.LoginSecret,
	}

	maxAttempts := a.backoff.maxAttempts()
	for attempt := 1; ; attempt++ {
		resp, body, err := a.post(ctx, payload)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			if attempt >= maxAttempts {
				return internal.NewRateLimitedError(attempt, a.backoff.retryAfterSeconds(resp.Header)).
					WithURL(a.authURL)
			}
			if err := a.backoff.waitRateLimit(ctx, resp.Header, attempt); err != nil {
				return err
			}
			continue
		}

		return a.finishLogin(resp, body)
	}
}

func (a *SessionAuthenticator) post(ctx context.Context, payload interface{}) (*http.Response, []byte, error) {
	if a.loginTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.loginTimeout)
		defer cancel()
	}

	resp, err := a.httpClient.PostJSON(ctx, a.authURL, payload, nil)
	if err != nil {
		return nil, nil, err
	}
	body, err := utils.ReadBody(resp)
	if err != nil {
		return nil, nil, err
	}
	return resp, body, nil
}

func (a *SessionAuthenticator) finishLogin(resp *http.Response, body []byte) error {
	var result map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&result); err != nil {
		return internal.WrapAPIError(err, "login response is not a JSON object", internal.ErrAuthentication).
			WithURL(a.authURL).
			WithBody(body)
	}

	if resp.StatusCode != http.StatusOK || !truthy(result["authcode"]) {
		message := "login rejected"
		if msg, ok := result["message"].(string); ok && msg != "" {
			message = "login rejected: " + msg
		}
		return internal.NewAPIError(resp.StatusCode, message, internal.ErrAuthentication).
			WithURL(a.authURL).
			WithBody(body)
	}

	a.tracker.Update(resp.Header)
	a.authenticated = true

	if !a.httpClient.HasCookies(a.authURL) {
		a.backoff.log().Warn("Login succeeded but the server set no session cookies")
	}
	a.backoff.log().Info("Logged in")
	return nil
}

// Authenticated reports whether requests can be sent without logging in first
func (a *SessionAuthenticator) Authenticated() bool {
	return a.authenticated
}

// Invalidate marks the session as expired after an authorization failure.
// Stale session cookies are dropped so the next login starts clean.
func (a *SessionAuthenticator) Invalidate() {
	a.authenticated = false
	if _, ok := a.mode.(internal.CredentialAuth); ok {
		a.httpClient.ResetSession()
	}
}

// AuthHeaders returns the headers for primary requests. Link targets must never receive them.
func (a *SessionAuthenticator) AuthHeaders() map[string]string {
	if bearer, ok := a.mode.(internal.BearerTokenAuth); ok {
		return map[string]string{"Authorization": "Bearer " + bearer.Token}
	}
	return nil
}

// Mode returns the authentication strategy chosen at construction
func (a *SessionAuthenticator) Mode() internal.AuthMode {
	return a.mode
}

// IsBearer reports whether the session uses a caller-supplied token
func (a *SessionAuthenticator) IsBearer() bool {
	_, ok := a.mode.(internal.BearerTokenAuth)
	return ok
}

// truthy follows the loose JSON notion of a present, non-empty value
func truthy(v interface{}) bool {
	switch value := v.(type) {
	case nil:
		return false
	case bool:
		return value
	case string:
		return value != ""
	case json.Number:
		f, err := value.Float64()
		return err != nil || f != 0
	case float64:
		return value != 0
	case []interface{}:
		return len(value) > 0
	case map[string]interface{}:
		return len(value) > 0
	default:
		return true
	}
}
