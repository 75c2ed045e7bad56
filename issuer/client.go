// Package issuer talks to the issuing service: token issue and refresh, store assignment
// lookups, and the public account endpoints used before sign-in.
package issuer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/retail-session/stores"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single call when no HTTP client is supplied.
const DefaultTimeout = 30 * time.Second

var _ stores.Lookup = (*Client)(nil)

// Client is the unauthenticated side of the issuing service wire contract.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

func New(baseURL string, options ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("[issuer.New] baseURL is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, errors.Wrap(err, "[issuer.New] invalid baseURL")
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		log:        zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the service root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient returns the HTTP client used for every call, so authenticated requests share
// its transport.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// URL joins path and query onto the base URL.
func (c *Client) URL(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// ObtainToken exchanges username and password for a token pair and the signed-in profile.
// Any non-2xx answer is ErrInvalidCredentials wrapping the *APIError with the service's message.
func (c *Client) ObtainToken(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	resp, err := c.send(ctx, http.MethodPost, PathToken, nil, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := ReadAPIError(resp)
		c.log.Info().Str("username", req.Username).Int("status", apiErr.Status).Msg("token request rejected")
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, apiErr)
	}

	var out TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding token response: %v", ErrMalformedResponse, err)
	}
	if strings.TrimSpace(out.Access) == "" || strings.TrimSpace(out.Refresh) == "" {
		return nil, fmt.Errorf("%w: token response is missing a token", ErrMalformedResponse)
	}
	if err := out.User.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &out, nil
}

// RefreshToken exchanges a refresh token for a new access token. The refresh token itself
// is not rotated.
func (c *Client) RefreshToken(ctx context.Context, refresh string) (string, error) {
	resp, err := c.send(ctx, http.MethodPost, PathTokenRefresh, nil, refreshRequest{Refresh: refresh})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", ReadAPIError(resp)
	}

	var out refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decoding refresh response: %v", ErrMalformedResponse, err)
	}
	if strings.TrimSpace(out.Access) == "" {
		return "", fmt.Errorf("%w: refresh response has no access token", ErrMalformedResponse)
	}
	return out.Access, nil
}

// StaffStores returns the stores a STAFF user is assigned to. The service answers 404 for
// usernames that are not staff, which is reported as an unassigned result.
func (c *Client) StaffStores(ctx context.Context, username string) (*stores.Assignment, error) {
	resp, err := c.send(ctx, http.MethodGet, PathStaffStores, url.Values{"username": {username}}, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &stores.Assignment{Username: username, Assigned: false}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, ReadAPIError(resp)
	}

	var out staffStoresResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding staff stores: %v", ErrMalformedResponse, err)
	}
	return &stores.Assignment{Username: username, Assigned: out.Assigned, Stores: out.Stores}, nil
}

// CheckAdmin reports whether an admin account exists.
func (c *Client) CheckAdmin(ctx context.Context) (*AdminStatus, error) {
	var out AdminStatus
	if err := c.getJSON(ctx, PathCheckAdmin, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListStores returns every store, for the store picker shown to multi-store staff.
func (c *Client) ListStores(ctx context.Context) ([]stores.Ref, error) {
	var out []stores.Ref
	if err := c.getJSON(ctx, PathStores, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := c.send(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ReadAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s: %v", ErrMalformedResponse, path, err)
	}
	return nil
}

// send issues one request. Transport failures are reported as ErrNetwork; the caller owns
// the response body.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrapf(err, "[issuer] encoding %s body", path)
		}
		reader = bytes.NewReader(raw)
	}

	var req *http.Request
	var err error
	if reader != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.URL(path, query), reader)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.URL(path, query), nil)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[issuer] building %s request", path)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("method", method).Str("path", path).Str("request_id", requestID).Msg("issuing service request failed")
		return nil, fmt.Errorf("%w: %s %s: %w", ErrNetwork, method, path, err)
	}
	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Str("request_id", requestID).
		Dur("took", time.Since(start)).
		Msg("issuing service call")
	return resp, nil
}
