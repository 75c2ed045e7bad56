// Package session owns the signed-in session: sign-in with store validation, cold start
// restore, sign-out, profile refresh, and single-flight access token refresh.
package session

import (
	"context"
	"crypto/rand"
	"net/http"
	"sync"
	"time"

	"github.com/jrsteele09/retail-session/authclient"
	"github.com/jrsteele09/retail-session/credentials"
	"github.com/jrsteele09/retail-session/internal/metrics"
	"github.com/jrsteele09/retail-session/issuer"
	"github.com/jrsteele09/retail-session/stores"
	"github.com/jrsteele09/retail-session/token"
	"github.com/jrsteele09/retail-session/users"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshTimeout bounds a shared refresh when no timeout is configured.
const DefaultRefreshTimeout = 15 * time.Second

// Issuer is the part of the issuing service the manager calls directly.
type Issuer interface {
	ObtainToken(ctx context.Context, req issuer.TokenRequest) (*issuer.TokenResponse, error)
	RefreshToken(ctx context.Context, refresh string) (string, error)
	BaseURL() string
}

// Deps are the collaborators a Manager is built from.
type Deps struct {
	Store  *credentials.Store // Durable mirror of the session
	Issuer Issuer             // Token issue and refresh
	Stores stores.Lookup      // Staff store assignments; defaults to Issuer when it implements stores.Lookup
}

var (
	_ authclient.Session = (*Manager)(nil)
	_ oauth2.TokenSource = (*Manager)(nil)
)

// Manager is the single owner of session state for a process.
type Manager struct {
	store     *credentials.Store
	issuer    Issuer
	validator *stores.Validator
	client    *authclient.Client

	log             zerolog.Logger
	metrics         *metrics.Metrics
	httpClient      *http.Client
	refreshTimeout  time.Duration
	refreshSkew     time.Duration
	onStoreSelected func(stores.Ref)
	nowFunc         func() time.Time

	lock       sync.RWMutex
	state      State
	creds      token.Credentials
	identity   *users.Identity
	selected   *stores.Ref
	sessionID  string
	signedInAt time.Time
	attempt    uint64
	listeners  map[int]func(Reason)
	nextListen int

	// persistLock orders store writes for a session against new sessions being saved.
	persistLock  sync.Mutex
	refreshGroup singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger; the default discards output.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

// WithMetrics registers the session counters with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(m *Manager) {
		m.metrics = metrics.New(reg)
	}
}

// WithHTTPClient sets the HTTP client used for authenticated requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(m *Manager) {
		m.httpClient = hc
	}
}

// WithRefreshTimeout bounds each shared access token refresh.
func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.refreshTimeout = d
		}
	}
}

// WithRefreshSkew refreshes an access token before use when it expires within d.
func WithRefreshSkew(d time.Duration) Option {
	return func(m *Manager) {
		m.refreshSkew = d
	}
}

// WithStoreSelected is called when a staff sign-in picked the user's only store for them.
func WithStoreSelected(fn func(stores.Ref)) Option {
	return func(m *Manager) {
		m.onStoreSelected = fn
	}
}

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(nowFunc func() time.Time) Option {
	return func(m *Manager) {
		m.nowFunc = nowFunc
	}
}

// New builds a signed-out Manager. Call Restore to pick up a stored session.
func New(deps Deps, options ...Option) (*Manager, error) {
	if deps.Store == nil {
		return nil, errors.New("[session.New] Store is required")
	}
	if deps.Issuer == nil {
		return nil, errors.New("[session.New] Issuer is required")
	}
	lookup := deps.Stores
	if lookup == nil {
		l, ok := deps.Issuer.(stores.Lookup)
		if !ok {
			return nil, errors.New("[session.New] Stores lookup is required")
		}
		lookup = l
	}

	m := &Manager{
		store:          deps.Store,
		issuer:         deps.Issuer,
		log:            zerolog.Nop(),
		refreshTimeout: DefaultRefreshTimeout,
		nowFunc:        time.Now,
		state:          StateSignedOut,
		listeners:      make(map[int]func(Reason)),
	}
	for _, opt := range options {
		opt(m)
	}

	validator, err := stores.NewValidator(lookup, stores.WithLogger(m.log))
	if err != nil {
		return nil, errors.Wrap(err, "[session.New]")
	}
	m.validator = validator

	if m.httpClient == nil {
		if hc, ok := deps.Issuer.(interface{ HTTPClient() *http.Client }); ok {
			m.httpClient = hc.HTTPClient()
		}
	}
	client, err := authclient.New(deps.Issuer.BaseURL(), m,
		authclient.WithHTTPClient(m.httpClient),
		authclient.WithLogger(m.log),
		authclient.WithMetrics(m.metrics),
		authclient.WithRefreshSkew(m.refreshSkew),
		authclient.WithNowFunc(m.nowFunc),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[session.New]")
	}
	m.client = client
	return m, nil
}

// Client returns the authenticated request client bound to this session.
func (m *Manager) Client() *authclient.Client {
	return m.client
}

func (m *Manager) State() State {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.state
}

// Identity returns a copy of the signed-in profile, or nil.
func (m *Manager) Identity() *users.Identity {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.identity.Clone()
}

// Credentials returns the in-memory token pair.
func (m *Manager) Credentials() token.Credentials {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.creds
}

// SessionID returns the local ID of the current session, or "" when signed out.
func (m *Manager) SessionID() string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.sessionID
}

// SignedInAt returns when the current session was opened or restored.
func (m *Manager) SignedInAt() time.Time {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.signedInAt
}

// Token implements oauth2.TokenSource over the in-memory credentials.
func (m *Manager) Token() (*oauth2.Token, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if !m.state.Active() || m.creds.AccessToken == "" {
		return nil, authclient.ErrNotSignedIn
	}
	return m.creds.OAuth2(), nil
}

// Authorize checks perm against the signed-in role.
func (m *Manager) Authorize(perm users.Permission) error {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if !m.state.Active() || m.identity == nil {
		return authclient.ErrNotSignedIn
	}
	if !m.identity.Can(perm) {
		return errors.Wrapf(users.ErrForbidden, "%s cannot %s", m.identity.Role, perm)
	}
	return nil
}

// OnSignOut registers fn to run after a session ends. It runs exactly once per ended
// session. The returned func removes the listener.
func (m *Manager) OnSignOut(fn func(Reason)) func() {
	m.lock.Lock()
	defer m.lock.Unlock()
	id := m.nextListen
	m.nextListen++
	m.listeners[id] = fn
	return func() {
		m.lock.Lock()
		defer m.lock.Unlock()
		delete(m.listeners, id)
	}
}

// newSessionID must be called with the lock held.
func (m *Manager) newSessionID() string {
	return ulid.MustNew(ulid.Timestamp(m.nowFunc()), rand.Reader).String()
}

// commitLocked moves to SignedIn with a fresh session ID. Callers hold the write lock.
func (m *Manager) commitLocked(snap credentials.Snapshot, store *stores.Ref) string {
	m.state = StateSignedIn
	m.creds = snap.Credentials
	m.identity = snap.Identity.Clone()
	m.selected = store
	m.sessionID = m.newSessionID()
	m.signedInAt = m.nowFunc()
	return m.sessionID
}

// endLocked clears memory and returns the listeners to notify. Callers hold the write lock.
func (m *Manager) endLocked() []func(Reason) {
	m.state = StateSignedOut
	m.creds = token.Credentials{}
	m.identity = nil
	m.selected = nil
	m.sessionID = ""
	m.signedInAt = time.Time{}

	out := make([]func(Reason), 0, len(m.listeners))
	for _, fn := range m.listeners {
		out = append(out, fn)
	}
	return out
}

// persist runs write on behalf of sessionID. Nothing is written once that session has
// ended, and when it ends while write runs the store is cleared again so nothing outlives
// the sign-out. It returns authclient.ErrNotSignedIn in both cases.
func (m *Manager) persist(ctx context.Context, sessionID string, write func(context.Context) error) error {
	m.persistLock.Lock()
	defer m.persistLock.Unlock()

	if !m.isCurrent(sessionID) {
		return authclient.ErrNotSignedIn
	}
	err := write(ctx)
	if !m.isCurrent(sessionID) {
		if clearErr := m.store.Clear(context.WithoutCancel(ctx)); clearErr != nil {
			m.log.Error().Err(clearErr).Str("session_id", sessionID).Msg("clearing credentials written after sign-out")
		}
		return authclient.ErrNotSignedIn
	}
	return err
}

func (m *Manager) isCurrent(sessionID string) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.state.Active() && m.sessionID == sessionID
}

// release drops sessionID from memory without touching the store or the listeners.
func (m *Manager) release(sessionID string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.sessionID == sessionID && m.state.Active() {
		m.endLocked()
	}
}

func notify(listeners []func(Reason), reason Reason) {
	for _, fn := range listeners {
		fn(reason)
	}
}
