// Package issuerfake is an in-process issuing service for tests. It signs real JWTs so
// expiry inspection works, and exposes switches to reject refreshes or expire access tokens.
package issuerfake

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/retail-session/issuer"
	"github.com/jrsteele09/retail-session/stores"
	"github.com/jrsteele09/retail-session/users"
	"github.com/rs/zerolog"
)

// PathEcho is a protected route that echoes the request back, for exercising authenticated clients.
const PathEcho = "/api/test/echo/"

// Account is a user known to the fake service.
type Account struct {
	Password string
	Identity users.Identity
	Stores   []stores.Ref
}

// Echo is the body returned by PathEcho.
type Echo struct {
	Method        string `json:"method"`
	Body          string `json:"body"`
	Authorization string `json:"authorization"`
	RequestID     string `json:"request_id"`
	Custom        string `json:"custom"`
}

type Server struct {
	srv    *httptest.Server
	secret []byte
	log    zerolog.Logger

	lock          sync.RWMutex
	accounts      map[string]*Account
	storeList     []stores.Ref
	validAccess   map[string]string // access token -> username
	validRefresh  map[string]string // refresh token -> username
	rejectRefresh bool
	refreshDelay  time.Duration
	accessTTL     time.Duration
	requestIDs    []string

	tokenCalls       atomic.Int64
	refreshCalls     atomic.Int64
	profileCalls     atomic.Int64
	staffStoreCalls  atomic.Int64
	echoCalls        atomic.Int64
	unauthorizedHits atomic.Int64
}

type Option func(*Server)

func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithAccessTTL sets the lifetime written into issued access tokens.
func WithAccessTTL(d time.Duration) Option {
	return func(s *Server) {
		s.accessTTL = d
	}
}

// WithAccount registers an account.
func WithAccount(a Account) Option {
	return func(s *Server) {
		cp := a
		s.accounts[a.Identity.Username] = &cp
	}
}

// WithStores sets the public store list.
func WithStores(refs ...stores.Ref) Option {
	return func(s *Server) {
		s.storeList = append([]stores.Ref(nil), refs...)
	}
}

// New starts the fake service. Close it when done.
func New(options ...Option) *Server {
	s := &Server{
		secret:       []byte(uuid.NewString()),
		log:          zerolog.Nop(),
		accounts:     make(map[string]*Account),
		validAccess:  make(map[string]string),
		validRefresh: make(map[string]string),
		accessTTL:    5 * time.Minute,
	}
	for _, opt := range options {
		opt(s)
	}
	s.srv = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)

	r.Post(issuer.PathToken, s.handleToken)
	r.Post(issuer.PathTokenRefresh, s.handleRefresh)
	r.Get(issuer.PathStaffStores, s.handleStaffStores)
	r.Get(issuer.PathCheckAdmin, s.handleCheckAdmin)
	r.Get(issuer.PathStores, s.handleStores)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get(issuer.PathProfile, s.handleProfile)
		r.Get(issuer.PathMyStore, s.handleMyStore)
		r.HandleFunc(PathEcho, s.handleEcho)
	})
	return r
}

func (s *Server) URL() string { return s.srv.URL }

func (s *Server) Close() { s.srv.Close() }

// RejectRefresh makes every refresh request fail with 401.
func (s *Server) RejectRefresh(reject bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.rejectRefresh = reject
}

// SetRefreshDelay holds each refresh response for d, widening the window for concurrent callers.
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.refreshDelay = d
}

// ExpireAccessTokens invalidates every issued access token while keeping refresh tokens valid.
func (s *Server) ExpireAccessTokens() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.validAccess = make(map[string]string)
}

// RevokeRefreshToken invalidates one refresh token.
func (s *Server) RevokeRefreshToken(refresh string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.validRefresh, refresh)
}

// UpdateIdentity changes the profile served for a user.
func (s *Server) UpdateIdentity(identity users.Identity) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if a, ok := s.accounts[identity.Username]; ok {
		a.Identity = identity
	}
}

// IssueAccessToken mints a valid access token for username without a sign-in.
func (s *Server) IssueAccessToken(username string) string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.issueLocked(username, "access", s.accessTTL, s.validAccess)
}

// IssueRefreshToken mints a valid refresh token for username without a sign-in.
func (s *Server) IssueRefreshToken(username string) string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.issueLocked(username, "refresh", 24*time.Hour, s.validRefresh)
}

// RequestIDs returns the X-Request-ID of every protected request, in arrival order.
func (s *Server) RequestIDs() []string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return append([]string(nil), s.requestIDs...)
}

func (s *Server) TokenCalls() int       { return int(s.tokenCalls.Load()) }
func (s *Server) RefreshCalls() int     { return int(s.refreshCalls.Load()) }
func (s *Server) ProfileCalls() int     { return int(s.profileCalls.Load()) }
func (s *Server) StaffStoreCalls() int  { return int(s.staffStoreCalls.Load()) }
func (s *Server) EchoCalls() int        { return int(s.echoCalls.Load()) }
func (s *Server) UnauthorizedHits() int { return int(s.unauthorizedHits.Load()) }

func (s *Server) issueLocked(username, tokenType string, ttl time.Duration, into map[string]string) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"token_type": tokenType,
		"jti":        uuid.NewString(),
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
	}
	if a, ok := s.accounts[username]; ok {
		claims["user_id"] = strconv.FormatInt(a.Identity.ID, 10)
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		panic(err)
	}
	into[signed] = username
	return signed
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeDetail(w http.ResponseWriter, status int, detail any) {
	writeJSON(w, status, map[string]any{"detail": detail})
}
