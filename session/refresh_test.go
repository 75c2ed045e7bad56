package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/retail-session/authclient"
	"github.com/jrsteele09/retail-session/credentials"
	credentialsrepofake "github.com/jrsteele09/retail-session/credentials/repofake"
	"github.com/jrsteele09/retail-session/issuer"
	"github.com/jrsteele09/retail-session/issuer/issuerfake"
	"github.com/jrsteele09/retail-session/session"
	"github.com/jrsteele09/retail-session/users"
	"github.com/stretchr/testify/require"
)

func TestClient_StaleAccessRefreshedOnce(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, issuerfake.StaffUser, users.RoleStaff)
	before := f.manager.Credentials()
	f.fake.ExpireAccessTokens()

	var echo issuerfake.Echo
	require.NoError(t, f.manager.Client().PostJSON(context.Background(), issuerfake.PathEcho, map[string]string{"sku": "A1"}, &echo))

	require.Equal(t, 1, f.fake.RefreshCalls())
	require.Equal(t, 1, f.fake.EchoCalls())
	require.Equal(t, 1, f.fake.UnauthorizedHits())
	require.JSONEq(t, `{"sku":"A1"}`, echo.Body)

	after := f.manager.Credentials()
	require.NotEqual(t, before.AccessToken, after.AccessToken)
	require.Equal(t, before.RefreshToken, after.RefreshToken)
	require.Equal(t, "Bearer "+after.AccessToken, echo.Authorization)

	raw := f.repo.Raw()
	require.Equal(t, after.AccessToken, raw[credentials.KeyAuthToken])
	require.Equal(t, before.RefreshToken, raw[credentials.KeyRefreshToken])
	require.Equal(t, session.StateSignedIn, f.manager.State())
}

func TestClient_InvalidRefreshExpiresSession(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, issuerfake.StaffUser, users.RoleStaff)
	f.fake.ExpireAccessTokens()
	f.fake.RejectRefresh(true)

	_, err := f.manager.Client().Do(context.Background(), &authclient.Request{Method: http.MethodGet, Path: issuerfake.PathEcho})
	require.ErrorIs(t, err, authclient.ErrSessionExpired)
	require.ErrorIs(t, err, session.ErrRefreshRejected)

	require.Equal(t, session.StateSignedOut, f.manager.State())
	require.Empty(t, f.repo.Raw())
	require.Empty(t, f.manager.Credentials().AccessToken)
	require.Equal(t, []session.Reason{session.ReasonExpired}, f.reasons.all())

	// A second expiry for the same failure is ignored.
	f.manager.Expire(context.Background(), err)
	require.Len(t, f.reasons.all(), 1)
}

func TestClient_ConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, issuerfake.AdminUser, users.RoleAdmin)
	f.fake.SetRefreshDelay(100 * time.Millisecond)
	f.fake.ExpireAccessTokens()

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var echo issuerfake.Echo
			errs <- f.manager.Client().GetJSON(context.Background(), issuerfake.PathEcho, nil, &echo)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, f.fake.RefreshCalls())
	require.Equal(t, callers, f.fake.EchoCalls())
	require.Equal(t, session.StateSignedIn, f.manager.State())
}

func TestRefreshAccessToken(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	_, err := f.manager.RefreshAccessToken(ctx, "")
	require.ErrorIs(t, err, session.ErrNoRefreshToken)

	f.signIn(t, issuerfake.AdminUser, users.RoleAdmin)
	current := f.manager.Credentials().AccessToken

	// A caller holding an already replaced token gets the current one without a network call.
	got, err := f.manager.RefreshAccessToken(ctx, "an-older-token")
	require.NoError(t, err)
	require.Equal(t, current, got)
	require.Zero(t, f.fake.RefreshCalls())

	got, err = f.manager.RefreshAccessToken(ctx, current)
	require.NoError(t, err)
	require.NotEqual(t, current, got)
	require.Equal(t, 1, f.fake.RefreshCalls())
}

func TestRefreshAccessToken_SurvivesCallerCancel(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, issuerfake.AdminUser, users.RoleAdmin)
	f.fake.SetRefreshDelay(150 * time.Millisecond)
	stale := f.manager.Credentials().AccessToken

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.manager.RefreshAccessToken(ctx, stale)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The shared refresh carries on and installs the new token.
	require.Eventually(t, func() bool {
		return f.manager.Credentials().AccessToken != stale
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, session.StateSignedIn, f.manager.State())
}

func TestProactiveRefresh(t *testing.T) {
	fake := issuerfake.NewWithFixtures(issuerfake.WithAccessTTL(5 * time.Second))
	defer fake.Close()
	f := newFixture(t, fake, newRepo(), fake.URL(), session.WithRefreshSkew(time.Minute))
	f.signIn(t, issuerfake.AdminUser, users.RoleAdmin)

	_, err := f.manager.RefreshUser(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, fake.RefreshCalls())
	require.Zero(t, fake.UnauthorizedHits())
}

func TestSignOut_ThenCallsShortCircuit(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.signIn(t, issuerfake.StaffUser, users.RoleStaff)

	f.manager.SignOut(ctx)
	require.Equal(t, session.StateSignedOut, f.manager.State())
	require.Empty(t, f.repo.Raw())
	require.Equal(t, []session.Reason{session.ReasonSignedOut}, f.reasons.all())

	_, err := f.manager.Client().Do(ctx, &authclient.Request{Path: issuerfake.PathEcho})
	require.ErrorIs(t, err, authclient.ErrNotSignedIn)
	require.Zero(t, f.fake.EchoCalls())

	_, err = f.manager.RefreshUser(ctx)
	require.ErrorIs(t, err, authclient.ErrNotSignedIn)

	// Signing out again is harmless and does not notify.
	f.manager.SignOut(ctx)
	require.Len(t, f.reasons.all(), 1)
}

func TestSignOut_StorageErrorDoesNotBlock(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, issuerfake.AdminUser, users.RoleAdmin)
	f.repo.FailDelete = context.DeadlineExceeded

	f.manager.SignOut(context.Background())
	require.Equal(t, session.StateSignedOut, f.manager.State())
	require.Nil(t, f.manager.Identity())
	require.Equal(t, []session.Reason{session.ReasonSignedOut}, f.reasons.all())
}

func TestRefreshUser_Idempotent(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.signIn(t, issuerfake.StaffUser, users.RoleStaff)
	puts := f.repo.Puts()

	first, err := f.manager.RefreshUser(ctx)
	require.NoError(t, err)
	second, err := f.manager.RefreshUser(ctx)
	require.NoError(t, err)

	require.True(t, first.Equal(second))
	require.True(t, first.Equal(f.manager.Identity()))
	require.Equal(t, puts, f.repo.Puts())
	require.Equal(t, 2, f.fake.ProfileCalls())
}

func TestRefreshUser_PersistsChanges(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	res := f.signIn(t, issuerfake.StaffUser, users.RoleStaff)

	updated := *res.Identity
	updated.FirstName = "Samantha"
	f.fake.UpdateIdentity(updated)

	got, err := f.manager.RefreshUser(ctx)
	require.NoError(t, err)
	require.Equal(t, "Samantha", got.FirstName)

	snap, err := f.store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "Samantha", snap.Identity.FirstName)
}

func TestRefreshUser_MalformedProfileSignsOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 9}`))
	}))
	defer srv.Close()

	fake := issuerfake.NewWithFixtures()
	defer fake.Close()
	repo := newRepo()
	setupSeed(t, fake, repo)

	f := newFixture(t, fake, repo, srv.URL)
	err := f.manager.Restore(context.Background())
	require.ErrorIs(t, err, issuer.ErrMalformedResponse)
	require.Equal(t, session.StateSignedOut, f.manager.State())
	require.Empty(t, repo.Raw())
	require.Equal(t, []session.Reason{session.ReasonProfileRejected}, f.reasons.all())
}

func TestRestore(t *testing.T) {
	fake := issuerfake.NewWithFixtures()
	defer fake.Close()
	repo := newRepo()
	seed := setupSeed(t, fake, repo)

	f := newFixture(t, fake, repo, fake.URL())
	require.NoError(t, f.manager.Restore(context.Background()))
	require.Equal(t, session.StateSignedIn, f.manager.State())
	require.True(t, seed.Identity.Equal(f.manager.Identity()))
	require.Equal(t, seed.Credentials, f.manager.Credentials())
	require.Equal(t, 1, fake.ProfileCalls())

	require.ErrorIs(t, f.manager.Restore(context.Background()), session.ErrAlreadySignedIn)
}

func TestRestore_NothingStored(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.manager.Restore(context.Background()))
	require.Equal(t, session.StateSignedOut, f.manager.State())
	require.Zero(t, f.fake.ProfileCalls())
}

func TestRestore_PartialIsSignedOut(t *testing.T) {
	f := setupTestFixture(t)
	f.repo.Set(credentials.KeyAuthToken, "orphan")
	f.repo.Set(credentials.KeyUserData, `{"username":"sam","role":"STAFF"}`)

	require.NoError(t, f.manager.Restore(context.Background()))
	require.Equal(t, session.StateSignedOut, f.manager.State())
	require.Empty(t, f.repo.Raw())
	require.Zero(t, f.fake.ProfileCalls())
}

func TestRestore_RejectedCredentialsSignOut(t *testing.T) {
	f := setupTestFixture(t)
	f.repo.Set(credentials.KeyAuthToken, "stale-access")
	f.repo.Set(credentials.KeyRefreshToken, "revoked-refresh")
	f.repo.Set(credentials.KeyUserData, `{"id":2,"username":"sam","role":"STAFF","store":1}`)

	err := f.manager.Restore(context.Background())
	require.ErrorIs(t, err, authclient.ErrSessionExpired)
	require.Equal(t, session.StateSignedOut, f.manager.State())
	require.Empty(t, f.repo.Raw())
	require.Equal(t, []session.Reason{session.ReasonExpired}, f.reasons.all())
	require.Equal(t, 1, f.fake.RefreshCalls())
}

func TestRestore_OfflineKeepsSession(t *testing.T) {
	fake := issuerfake.NewWithFixtures()
	defer fake.Close()
	repo := newRepo()
	setupSeed(t, fake, repo)

	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	f := newFixture(t, fake, repo, downURL)
	require.NoError(t, f.manager.Restore(context.Background()))
	require.Equal(t, session.StateSignedIn, f.manager.State())
	require.Len(t, repo.Raw(), 3)

	_, err := f.manager.RefreshUser(context.Background())
	require.ErrorIs(t, err, issuer.ErrNetwork)
	require.Equal(t, session.StateSignedIn, f.manager.State())
}

func TestAccessToken_HydratesFromStore(t *testing.T) {
	fake := issuerfake.NewWithFixtures()
	defer fake.Close()
	repo := newRepo()
	seed := setupSeed(t, fake, repo)

	f := newFixture(t, fake, repo, fake.URL())
	access, err := f.manager.AccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, seed.Credentials.AccessToken, access)
	require.Equal(t, session.StateSignedIn, f.manager.State())
}

// setupSeed signs in through a throwaway manager so repo holds a complete session.
func setupSeed(t *testing.T, fake *issuerfake.Server, repo *credentialsrepofake.FakeCredentialsRepo) *credentials.Snapshot {
	t.Helper()
	seeder := newFixture(t, fake, repo, fake.URL())
	seeder.signIn(t, issuerfake.StaffUser, users.RoleStaff)
	snap, err := seeder.store.Load(context.Background())
	require.NoError(t, err)
	return snap
}

func TestRestore_ProfileServerErrorSignsOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	fake := issuerfake.NewWithFixtures()
	defer fake.Close()
	repo := newRepo()
	setupSeed(t, fake, repo)

	f := newFixture(t, fake, repo, srv.URL)
	err := f.manager.Restore(context.Background())

	var apiErr *issuer.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusInternalServerError, apiErr.Status)
	require.Equal(t, session.StateSignedOut, f.manager.State())
	require.Empty(t, repo.Raw())
	require.Equal(t, []session.Reason{session.ReasonProfileRejected}, f.reasons.all())
}

func TestRestore_CancelledKeepsStore(t *testing.T) {
	fake := issuerfake.NewWithFixtures()
	defer fake.Close()
	repo := newRepo()
	setupSeed(t, fake, repo)

	f := newFixture(t, fake, repo, fake.URL())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.manager.Restore(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, session.StateSignedOut, f.manager.State())
	require.Len(t, repo.Raw(), 3)
	require.Empty(t, f.reasons.all())
}

func TestRefreshUser_ServerErrorSignsOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	fake := issuerfake.NewWithFixtures()
	defer fake.Close()
	repo := newRepo()
	setupSeed(t, fake, repo)

	f := newFixture(t, fake, repo, srv.URL)
	ctx := context.Background()
	_, err := f.manager.AccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, session.StateSignedIn, f.manager.State())

	_, err = f.manager.RefreshUser(ctx)
	var apiErr *issuer.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadGateway, apiErr.Status)
	require.Equal(t, session.StateSignedOut, f.manager.State())
	require.Empty(t, repo.Raw())
	require.Equal(t, []session.Reason{session.ReasonProfileRejected}, f.reasons.all())
}

func TestRefreshAccessToken_SignOutDuringWriteLeavesStoreEmpty(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.signIn(t, issuerfake.AdminUser, users.RoleAdmin)
	stale := f.manager.Credentials().AccessToken

	f.repo.OnPut = func(values map[string]string) {
		if _, ok := values[credentials.KeyAuthToken]; ok && len(values) == 1 {
			f.manager.SignOut(ctx)
		}
	}

	access, err := f.manager.RefreshAccessToken(ctx, stale)
	require.ErrorIs(t, err, authclient.ErrNotSignedIn)
	require.Empty(t, access)
	require.Equal(t, 1, f.fake.RefreshCalls())
	require.Equal(t, session.StateSignedOut, f.manager.State())
	require.Empty(t, f.repo.Raw())
	require.Equal(t, []session.Reason{session.ReasonSignedOut}, f.reasons.all())
}

func TestRefreshUser_SignOutDuringWriteLeavesStoreEmpty(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	res := f.signIn(t, issuerfake.StaffUser, users.RoleStaff)

	updated := *res.Identity
	updated.FirstName = "Samantha"
	f.fake.UpdateIdentity(updated)

	f.repo.OnPut = func(values map[string]string) {
		if _, ok := values[credentials.KeyUserData]; ok && len(values) == 1 {
			f.manager.SignOut(ctx)
		}
	}

	_, err := f.manager.RefreshUser(ctx)
	require.ErrorIs(t, err, authclient.ErrNotSignedIn)
	require.Equal(t, session.StateSignedOut, f.manager.State())
	require.Empty(t, f.repo.Raw())
	require.Nil(t, f.manager.Identity())
}

func TestProactiveRefresh_UsesManagerClock(t *testing.T) {
	fake := issuerfake.NewWithFixtures()
	defer fake.Close()
	later := func() time.Time { return time.Now().Add(10 * time.Minute) }
	f := newFixture(t, fake, newRepo(), fake.URL(),
		session.WithRefreshSkew(time.Second),
		session.WithNowFunc(later),
	)
	f.signIn(t, issuerfake.AdminUser, users.RoleAdmin)

	_, err := f.manager.RefreshUser(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, fake.RefreshCalls())
	require.Zero(t, fake.UnauthorizedHits())
}
