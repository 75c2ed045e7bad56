package session

import (
	"context"
	"errors"
	"strings"

	"github.com/jrsteele09/retail-session/authclient"
)

const refreshKey = "access"

// AccessToken returns the in-memory access token. When memory is empty but the store holds
// a complete session, the session is loaded first.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.lock.RLock()
	state, access := m.state, m.creds.AccessToken
	m.lock.RUnlock()

	if state.Active() && access != "" {
		return access, nil
	}
	if state == StateAuthenticating {
		return "", authclient.ErrNotSignedIn
	}

	if err := m.hydrateSignedOut(ctx); err != nil {
		return "", err
	}

	m.lock.RLock()
	defer m.lock.RUnlock()
	if !m.state.Active() || m.creds.AccessToken == "" {
		return "", authclient.ErrNotSignedIn
	}
	return m.creds.AccessToken, nil
}

// hydrateSignedOut loads a stored session when the manager is signed out.
func (m *Manager) hydrateSignedOut(ctx context.Context) error {
	attempt, err := m.beginAuth()
	if err != nil {
		// Already signed in, or another attempt is running.
		return nil
	}
	restored, err := m.hydrate(ctx, attempt)
	if err != nil || !restored {
		m.abortAuth(attempt)
	}
	return err
}

// RefreshAccessToken exchanges the refresh token for a new access token. Concurrent callers
// share one in-flight refresh. A caller whose stale token was already replaced gets the
// current token without a network call. The shared refresh is not cancelled by any single
// caller and is bounded by the refresh timeout.
func (m *Manager) RefreshAccessToken(ctx context.Context, stale string) (string, error) {
	if err := m.hydrateSignedOut(ctx); err != nil {
		return "", err
	}

	m.lock.RLock()
	state, current, refresh := m.state, m.creds.AccessToken, m.creds.RefreshToken
	m.lock.RUnlock()

	if !state.Active() || strings.TrimSpace(refresh) == "" {
		return "", ErrNoRefreshToken
	}
	if stale != "" && current != "" && current != stale {
		return current, nil
	}

	ch := m.refreshGroup.DoChan(refreshKey, func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
		defer cancel()
		return m.refresh(refreshCtx, stale)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *Manager) refresh(ctx context.Context, stale string) (string, error) {
	m.lock.Lock()
	if !m.state.Active() || m.creds.RefreshToken == "" {
		m.lock.Unlock()
		return "", ErrNoRefreshToken
	}
	// Another flight may have finished between the caller's check and this one starting.
	if stale != "" && m.creds.AccessToken != stale {
		current := m.creds.AccessToken
		m.lock.Unlock()
		return current, nil
	}
	sessionID, refresh := m.sessionID, m.creds.RefreshToken
	m.state = StateRefreshing
	m.lock.Unlock()

	log := m.log.With().Str("session_id", sessionID).Logger()
	access, err := m.issuer.RefreshToken(ctx, refresh)
	if err != nil {
		m.settleRefresh(sessionID, "")
		m.metrics.Refresh("rejected")
		log.Info().Err(err).Msg("access token refresh rejected")
		return "", &refreshFailure{sessionID: sessionID, cause: err}
	}

	if !m.settleRefresh(sessionID, access) {
		m.metrics.Refresh("abandoned")
		return "", authclient.ErrNotSignedIn
	}
	err = m.persist(ctx, sessionID, func(ctx context.Context) error {
		return m.store.SaveAccessToken(ctx, access)
	})
	switch {
	case errors.Is(err, authclient.ErrNotSignedIn):
		m.metrics.Refresh("abandoned")
		return "", err
	case err != nil:
		log.Error().Err(err).Msg("persisting refreshed access token")
	}
	m.metrics.Refresh("ok")
	log.Debug().Msg("access token refreshed")
	return access, nil
}

// settleRefresh leaves Refreshing for the session that started it, installing access when
// set. It reports false when that session has ended meanwhile.
func (m *Manager) settleRefresh(sessionID, access string) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.sessionID != sessionID || !m.state.Active() {
		return false
	}
	m.state = StateSignedIn
	if access != "" {
		m.creds = m.creds.WithAccess(access)
	}
	return true
}

// Expire ends the session after a failed refresh. It is idempotent: the session ends and
// listeners run once, and a failure raised for an older session leaves a newer one alone.
func (m *Manager) Expire(ctx context.Context, cause error) {
	var rf *refreshFailure
	sessionID := ""
	if errors.As(cause, &rf) {
		sessionID = rf.sessionID
	}
	m.end(ctx, sessionID, ReasonExpired, cause)
}

// end closes the session identified by sessionID ("" means whichever is current), clears
// the store and notifies listeners. It does nothing when that session is already gone.
func (m *Manager) end(ctx context.Context, sessionID string, reason Reason, cause error) bool {
	m.lock.Lock()
	if !m.state.Active() || (sessionID != "" && sessionID != m.sessionID) {
		m.lock.Unlock()
		return false
	}
	ended := m.sessionID
	listeners := m.endLocked()
	m.lock.Unlock()

	if err := m.store.Clear(context.WithoutCancel(ctx)); err != nil {
		m.log.Error().Err(err).Str("session_id", ended).Msg("clearing credentials")
	}
	m.metrics.SignOut(string(reason))
	evt := m.log.Info().Str("session_id", ended).Str("reason", string(reason))
	if cause != nil {
		evt = evt.Err(cause)
	}
	evt.Msg("session ended")

	notify(listeners, reason)
	return true
}
