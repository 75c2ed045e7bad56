// Package authclient sends requests to the issuing service on behalf of the signed-in
// session. A 401 answer triggers one refresh of the access token and one retry.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/retail-session/internal/metrics"
	"github.com/jrsteele09/retail-session/issuer"
	"github.com/jrsteele09/retail-session/token"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

var (
	ErrNotSignedIn    = errors.New("not signed in")
	ErrSessionExpired = errors.New("session expired")
)

// drainLimit bounds how much of a discarded 401 body is read so the connection can be reused.
const drainLimit = 4 << 10

// Session is the credential holder requests are authenticated with.
type Session interface {
	// AccessToken returns the current access token, or ErrNotSignedIn.
	AccessToken(ctx context.Context) (string, error)

	// RefreshAccessToken replaces stale with a fresh access token. Concurrent callers
	// holding the same stale token share one refresh.
	RefreshAccessToken(ctx context.Context, stale string) (string, error)

	// Expire ends the session after a failed refresh.
	Expire(ctx context.Context, cause error)
}

// Request describes one call. Body is held as bytes so a retry can resend it.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	session    Session
	log        zerolog.Logger
	metrics    *metrics.Metrics
	skew       time.Duration
	nowFunc    func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithRefreshSkew refreshes before sending when the access token expires within d.
// Zero disables it and leaves refresh to the 401 path.
func WithRefreshSkew(d time.Duration) Option {
	return func(c *Client) {
		c.skew = d
	}
}

// WithNowFunc sets the clock the refresh skew is measured against.
func WithNowFunc(nowFunc func() time.Time) Option {
	return func(c *Client) {
		if nowFunc != nil {
			c.nowFunc = nowFunc
		}
	}
}

// New builds a client for baseURL that authenticates as session.
func New(baseURL string, session Session, options ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("[authclient.New] baseURL is required")
	}
	if session == nil {
		return nil, errors.New("[authclient.New] session is required")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: issuer.DefaultTimeout},
		session:    session,
		log:        zerolog.Nop(),
		nowFunc:    time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Do sends req with the session's access token. On 401 it refreshes once and resends once;
// the second response is returned whatever its status. When the refresh fails the session
// is expired and ErrSessionExpired is returned.
func (c *Client) Do(ctx context.Context, req *Request) (*http.Response, error) {
	access, err := c.session.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(access) == "" {
		return nil, ErrNotSignedIn
	}

	requestID := req.Header.Get(issuer.RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	log := c.log.With().Str("request_id", requestID).Str("path", req.Path).Logger()

	refreshed := false
	if c.skew > 0 && token.ExpiresBy(access, c.nowFunc().Add(c.skew)) {
		log.Debug().Dur("skew", c.skew).Msg("access token close to expiry, refreshing before send")
		if access, err = c.refresh(ctx, access); err != nil {
			return nil, err
		}
		refreshed = true
	}

	resp, err := c.send(ctx, req, access, requestID)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || refreshed {
		return resp, nil
	}

	_, _ = io.CopyN(io.Discard, resp.Body, drainLimit)
	_ = resp.Body.Close()

	log.Debug().Msg("access token rejected, refreshing and retrying once")
	c.metrics.Retry()
	if access, err = c.refresh(ctx, access); err != nil {
		return nil, err
	}
	return c.send(ctx, req, access, requestID)
}

// GetJSON decodes a 2xx answer from path into out. Other statuses are returned as *issuer.APIError.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.doJSON(ctx, &Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// PostJSON encodes in as the body, then behaves like GetJSON.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding %s body: %w", path, err)
	}
	return c.doJSON(ctx, &Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

func (c *Client) doJSON(ctx context.Context, req *Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return issuer.ReadAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s: %v", issuer.ErrMalformedResponse, req.Path, err)
	}
	return nil
}

func (c *Client) refresh(ctx context.Context, stale string) (string, error) {
	access, err := c.session.RefreshAccessToken(ctx, stale)
	if err == nil {
		return access, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if errors.Is(err, ErrNotSignedIn) {
		return "", err
	}
	c.log.Info().Err(err).Msg("refresh failed, expiring session")
	c.session.Expire(ctx, err)
	return "", fmt.Errorf("%w: %w", ErrSessionExpired, err)
}

func (c *Client) send(ctx context.Context, req *Request, access, requestID string) (*http.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", req.Path, err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set(issuer.RequestIDHeader, requestID)
	for name, values := range req.Header {
		if strings.EqualFold(name, "Authorization") {
			continue
		}
		httpReq.Header.Del(name)
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}
	(&oauth2.Token{AccessToken: access, TokenType: token.TokenTypeBearer}).SetAuthHeader(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", issuer.ErrNetwork, method, req.Path, err)
	}
	return resp, nil
}
