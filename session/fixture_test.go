package session_test

import (
	"context"
	"sync"
	"testing"

	"github.com/jrsteele09/retail-session/credentials"
	credentialsrepofake "github.com/jrsteele09/retail-session/credentials/repofake"
	"github.com/jrsteele09/retail-session/issuer"
	"github.com/jrsteele09/retail-session/issuer/issuerfake"
	"github.com/jrsteele09/retail-session/session"
	"github.com/jrsteele09/retail-session/users"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	fake    *issuerfake.Server
	repo    *credentialsrepofake.FakeCredentialsRepo
	store   *credentials.Store
	issuer  *issuer.Client
	manager *session.Manager
	reasons *reasonRecorder
}

type reasonRecorder struct {
	lock    sync.Mutex
	reasons []session.Reason
}

func (r *reasonRecorder) record(reason session.Reason) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.reasons = append(r.reasons, reason)
}

func (r *reasonRecorder) all() []session.Reason {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]session.Reason(nil), r.reasons...)
}

func setupTestFixture(t *testing.T, options ...session.Option) *testFixture {
	t.Helper()
	fake := issuerfake.NewWithFixtures()
	t.Cleanup(fake.Close)
	return newFixture(t, fake, credentialsrepofake.NewFakeCredentialsRepo(), fake.URL(), options...)
}

// newFixture builds a manager over repo talking to baseURL.
func newFixture(t *testing.T, fake *issuerfake.Server, repo *credentialsrepofake.FakeCredentialsRepo, baseURL string, options ...session.Option) *testFixture {
	t.Helper()
	store, err := credentials.NewStore(repo)
	require.NoError(t, err)

	ic, err := issuer.New(baseURL)
	require.NoError(t, err)

	manager, err := session.New(session.Deps{Store: store, Issuer: ic}, options...)
	require.NoError(t, err)

	reasons := &reasonRecorder{}
	manager.OnSignOut(reasons.record)

	return &testFixture{fake: fake, repo: repo, store: store, issuer: ic, manager: manager, reasons: reasons}
}

func (f *testFixture) signIn(t *testing.T, username string, role users.Role) *session.SignInResult {
	t.Helper()
	res, err := f.manager.SignIn(context.Background(), session.SignInRequest{
		Username: username,
		Password: issuerfake.Password,
		Role:     role,
	})
	require.NoError(t, err)
	return res
}

func newRepo() *credentialsrepofake.FakeCredentialsRepo {
	return credentialsrepofake.NewFakeCredentialsRepo()
}
