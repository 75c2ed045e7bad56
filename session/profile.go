package session

import (
	"context"
	"fmt"

	"github.com/jrsteele09/retail-session/authclient"
	ierrors "github.com/jrsteele09/retail-session/internal/errors"
	"github.com/jrsteele09/retail-session/issuer"
	"github.com/jrsteele09/retail-session/stores"
	"github.com/jrsteele09/retail-session/users"
)

// SignOut ends the session locally. Stored credentials are cleared even if a write fails;
// such failures are logged and never block the transition. The issuing service is not called.
func (m *Manager) SignOut(ctx context.Context) {
	if m.end(ctx, "", ReasonSignedOut, nil) {
		return
	}

	// No active session: cancel an in-flight sign-in and clear any leftovers.
	m.cancelAuth()
	if err := m.store.Clear(context.WithoutCancel(ctx)); err != nil {
		m.log.Error().Err(err).Msg("clearing credentials")
	}
}

// RefreshUser fetches the profile and replaces the cached identity. Any failure ends the
// session except a network failure or a cancelled ctx.
func (m *Manager) RefreshUser(ctx context.Context) (*users.Identity, error) {
	m.lock.RLock()
	active, sessionID := m.state.Active(), m.sessionID
	m.lock.RUnlock()
	if !active {
		return nil, authclient.ErrNotSignedIn
	}

	var fetched users.Identity
	err := m.client.GetJSON(ctx, issuer.PathProfile, nil, &fetched)
	if err == nil {
		if vErr := fetched.Validate(); vErr != nil {
			err = fmt.Errorf("%w: %v", issuer.ErrMalformedResponse, vErr)
		}
	}
	if err != nil {
		// The session survives only an unreachable service or the caller giving up.
		if !ierrors.Is(err, issuer.ErrNetwork) && ctx.Err() == nil {
			m.end(ctx, sessionID, ReasonProfileRejected, err)
		}
		return nil, err
	}

	m.lock.Lock()
	if m.sessionID != sessionID || !m.state.Active() {
		m.lock.Unlock()
		return nil, authclient.ErrNotSignedIn
	}
	if fetched.StoreID.IsZero() && m.identity != nil {
		fetched.StoreID = m.identity.StoreID
	}
	changed := !fetched.Equal(m.identity)
	if changed {
		m.identity = fetched.Clone()
	}
	m.lock.Unlock()

	if changed {
		err := m.persist(ctx, sessionID, func(ctx context.Context) error {
			return m.store.SaveIdentity(ctx, &fetched)
		})
		switch {
		case ierrors.Is(err, authclient.ErrNotSignedIn):
			return nil, err
		case err != nil:
			m.log.Error().Err(err).Str("session_id", sessionID).Msg("persisting refreshed profile")
		}
	}
	return fetched.Clone(), nil
}

// MyStore returns the store the signed-in staff member is assigned to.
func (m *Manager) MyStore(ctx context.Context) (*stores.Ref, error) {
	if err := m.Authorize(users.PermStoreMine); err != nil {
		return nil, err
	}
	var ref stores.Ref
	if err := m.client.GetJSON(ctx, issuer.PathMyStore, nil, &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

// SelectedStore returns the store the session is bound to, or nil for admins.
func (m *Manager) SelectedStore() *stores.Ref {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.selected == nil {
		return nil
	}
	ref := *m.selected
	return &ref
}
