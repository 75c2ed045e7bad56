package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/jrsteele09/retail-session/credentials"
	ierrors "github.com/jrsteele09/retail-session/internal/errors"
	"github.com/jrsteele09/retail-session/issuer"
	"github.com/jrsteele09/retail-session/stores"
	"github.com/jrsteele09/retail-session/token"
	"github.com/jrsteele09/retail-session/users"
)

// SignInRequest is what the sign-in screen submits.
type SignInRequest struct {
	Username string
	Password string
	Role     users.Role
	StoreID  stores.ID // Required for staff with several stores, ignored for admins
}

// SignInResult describes the opened session.
type SignInResult struct {
	Identity          *users.Identity
	Store             *stores.Ref // Store the staff session is bound to, nil for admins
	AutoSelectedStore bool        // The only assigned store was picked for the user
	SessionID         string
}

// SignIn authenticates against the issuing service and opens a session. It is only
// accepted from SignedOut. Staff sign-ins are checked against their store assignment
// before any credentials are sent. Nothing is persisted unless the whole sign-in succeeds.
func (m *Manager) SignIn(ctx context.Context, req SignInRequest) (*SignInResult, error) {
	req.Username = strings.TrimSpace(req.Username)
	role, err := users.ParseRole(string(req.Role))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, req.Role)
	}
	if req.Username == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", issuer.ErrInvalidCredentials)
	}

	attempt, err := m.beginAuth()
	if err != nil {
		return nil, err
	}
	log := m.log.With().Str("username", req.Username).Str("role", role.String()).Logger()

	result, err := m.signIn(ctx, attempt, req, role)
	if err != nil {
		m.abortAuth(attempt)
		m.metrics.SignIn(role.String(), outcomeOf(err))
		log.Info().Err(err).Msg("sign-in failed")
		return nil, err
	}

	m.metrics.SignIn(role.String(), "ok")
	log.Info().Str("session_id", result.SessionID).Msg("signed in")
	return result, nil
}

// beginAuth moves SignedOut to Authenticating and returns the attempt number that must
// still be current when the attempt commits.
func (m *Manager) beginAuth() (uint64, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	switch m.state {
	case StateSignedIn, StateRefreshing:
		return 0, ErrAlreadySignedIn
	case StateAuthenticating:
		return 0, ErrSignInInProgress
	}
	m.attempt++
	m.state = StateAuthenticating
	return m.attempt, nil
}

// abortAuth returns to SignedOut if attempt is still the one in progress.
func (m *Manager) abortAuth(attempt uint64) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.state == StateAuthenticating && m.attempt == attempt {
		m.state = StateSignedOut
	}
}

// cancelAuth abandons whatever attempt is in progress.
func (m *Manager) cancelAuth() {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.state == StateAuthenticating {
		m.attempt++
		m.state = StateSignedOut
	}
}

// currentAttemptLocked reports whether attempt may still commit. Callers hold the lock.
func (m *Manager) currentAttemptLocked(attempt uint64) bool {
	return m.state == StateAuthenticating && m.attempt == attempt
}

func (m *Manager) signIn(ctx context.Context, attempt uint64, req SignInRequest, role users.Role) (*SignInResult, error) {
	result := &SignInResult{}
	storeID := stores.NoStore

	if users.IsStoreScoped(role) {
		res, err := m.validator.Validate(ctx, req.Username, req.StoreID)
		if err != nil {
			m.metrics.StoreAssignment(outcomeOf(err))
			return nil, err
		}
		m.metrics.StoreAssignment("ok")
		storeID = res.StoreID
		store := res.Store
		result.Store = &store
		result.AutoSelectedStore = res.AutoSelected
		if res.AutoSelected && m.onStoreSelected != nil {
			m.onStoreSelected(store)
		}
	}

	resp, err := m.issuer.ObtainToken(ctx, issuer.TokenRequest{
		Username: req.Username,
		Password: req.Password,
		Role:     role,
		StoreID:  storeID,
	})
	if err != nil {
		return nil, err
	}

	identity := resp.User.Clone()
	if identity.Role != role {
		return nil, fmt.Errorf("%w: account role is %s", ErrInvalidRole, identity.Role)
	}
	if identity.StoreID.IsZero() {
		identity.StoreID = storeID
	}

	snap := credentials.Snapshot{
		Credentials: token.Credentials{AccessToken: resp.Access, RefreshToken: resp.Refresh},
		Identity:    identity,
	}
	m.persistLock.Lock()
	defer m.persistLock.Unlock()
	if err := m.store.Save(ctx, snap); err != nil {
		return nil, ierrors.Wrapf(err, "persisting session")
	}

	m.lock.Lock()
	if !m.currentAttemptLocked(attempt) {
		// SignOut ran while the request was in flight.
		m.lock.Unlock()
		if err := m.store.Clear(context.WithoutCancel(ctx)); err != nil {
			m.log.Error().Err(err).Msg("clearing credentials of aborted sign-in")
		}
		return nil, ErrSignInAborted
	}
	result.SessionID = m.commitLocked(snap, result.Store)
	m.lock.Unlock()

	result.Identity = identity.Clone()
	return result, nil
}

// Restore rebuilds the session from the credential store at cold start. A complete stored
// session is trusted straight away, then confirmed with a profile fetch. A failed check
// ends the session; an unreachable service leaves it open. When ctx is cancelled first the
// manager returns to SignedOut and the store is left as it was.
func (m *Manager) Restore(ctx context.Context) error {
	attempt, err := m.beginAuth()
	if err != nil {
		return err
	}

	restored, err := m.hydrate(ctx, attempt)
	if err != nil {
		m.abortAuth(attempt)
		m.metrics.Restore("error")
		return err
	}
	if !restored {
		m.abortAuth(attempt)
		m.metrics.Restore("none")
		return nil
	}

	sessionID := m.SessionID()
	if _, err := m.RefreshUser(ctx); err != nil {
		switch {
		case ctx.Err() != nil:
			// The stored session is still good, it just was not confirmed.
			m.release(sessionID)
			m.metrics.Restore("cancelled")
		case ierrors.Is(err, issuer.ErrNetwork) && m.State().Active():
			m.metrics.Restore("offline")
			m.log.Warn().Err(err).Msg("profile check unreachable, keeping restored session")
			return nil
		default:
			m.metrics.Restore("rejected")
		}
		return ierrors.Wrapf(err, "restoring session")
	}
	m.metrics.Restore("ok")
	return nil
}

// hydrate loads a stored session into memory for attempt. Leftovers of a partial or
// unreadable session are cleared.
func (m *Manager) hydrate(ctx context.Context, attempt uint64) (bool, error) {
	snap, err := m.store.Load(ctx)
	switch {
	case err == nil:
	case ierrors.IsAny(err, credentials.ErrPartial, credentials.ErrCorrupt, credentials.ErrUnsealable):
		m.log.Warn().Err(err).Msg("discarding unusable stored session")
		if clearErr := m.store.Clear(ctx); clearErr != nil {
			m.log.Error().Err(clearErr).Msg("clearing unusable stored session")
		}
		return false, nil
	case ierrors.Is(err, credentials.ErrNotFound):
		return false, nil
	default:
		return false, err
	}

	var selected *stores.Ref
	if !snap.Identity.StoreID.IsZero() {
		selected = &stores.Ref{ID: snap.Identity.StoreID}
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	if !m.currentAttemptLocked(attempt) {
		return false, nil
	}
	id := m.commitLocked(*snap, selected)
	m.log.Info().Str("session_id", id).Str("username", snap.Identity.Username).Msg("session restored from store")
	return true, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case ierrors.Is(err, stores.ErrNotAssigned):
		return "not_assigned"
	case ierrors.Is(err, stores.ErrStoreMismatch):
		return "store_mismatch"
	case ierrors.Is(err, stores.ErrStoreSelectionRequired):
		return "selection_required"
	case ierrors.Is(err, issuer.ErrInvalidCredentials):
		return "invalid_credentials"
	case ierrors.Is(err, issuer.ErrNetwork):
		return "network"
	case ierrors.Is(err, issuer.ErrMalformedResponse):
		return "malformed"
	case ierrors.Is(err, ErrInvalidRole):
		return "invalid_role"
	default:
		return "error"
	}
}
