package credentials_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jrsteele09/retail-session/credentials"
	credentialsrepofake "github.com/jrsteele09/retail-session/credentials/repofake"
	"github.com/jrsteele09/retail-session/token"
	"github.com/jrsteele09/retail-session/users"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*credentials.Store, *credentialsrepofake.FakeCredentialsRepo) {
	t.Helper()
	repo := credentialsrepofake.NewFakeCredentialsRepo()
	store, err := credentials.NewStore(repo)
	require.NoError(t, err)
	return store, repo
}

func snapshot() credentials.Snapshot {
	return credentials.Snapshot{
		Credentials: token.Credentials{AccessToken: "access-1", RefreshToken: "refresh-1"},
		Identity: &users.Identity{
			ID:       7,
			Username: "sam",
			Email:    "sam@example.com",
			Role:     users.RoleStaff,
			StoreID:  "3",
		},
	}
}

func TestNewStore_RequiresRepo(t *testing.T) {
	_, err := credentials.NewStore(nil)
	require.Error(t, err)
}

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	store, repo := newStore(t)

	require.NoError(t, store.Save(ctx, snapshot()))
	require.Equal(t, 1, repo.Puts())

	raw := repo.Raw()
	require.Len(t, raw, 3)
	require.Equal(t, "access-1", raw[credentials.KeyAuthToken])
	require.Equal(t, "refresh-1", raw[credentials.KeyRefreshToken])
	require.Contains(t, raw[credentials.KeyUserData], `"username":"sam"`)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, snapshot().Credentials, loaded.Credentials)
	require.True(t, snapshot().Identity.Equal(loaded.Identity))
}

func TestStore_SaveRejectsIncomplete(t *testing.T) {
	ctx := context.Background()
	store, repo := newStore(t)

	snap := snapshot()
	snap.Credentials.RefreshToken = ""
	require.ErrorIs(t, store.Save(ctx, snap), credentials.ErrIncomplete)

	snap = snapshot()
	snap.Identity = nil
	require.ErrorIs(t, store.Save(ctx, snap), credentials.ErrIncomplete)

	require.Zero(t, repo.Puts())
	require.Empty(t, repo.Raw())
}

func TestStore_SaveFailureWritesNothing(t *testing.T) {
	store, repo := newStore(t)
	repo.FailPut = errors.New("disk full")

	err := store.Save(context.Background(), snapshot())
	require.ErrorIs(t, err, repo.FailPut)
	require.Empty(t, repo.Raw())
}

func TestStore_LoadEmpty(t *testing.T) {
	store, _ := newStore(t)
	_, err := store.Load(context.Background())
	require.ErrorIs(t, err, credentials.ErrNotFound)
}

func TestStore_LoadPartial(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
	}{
		{name: "only access", values: map[string]string{credentials.KeyAuthToken: "a"}},
		{name: "tokens without user", values: map[string]string{credentials.KeyAuthToken: "a", credentials.KeyRefreshToken: "r"}},
		{name: "user without refresh", values: map[string]string{credentials.KeyAuthToken: "a", credentials.KeyUserData: `{"username":"sam","role":"STAFF"}`}},
		{name: "blank refresh", values: map[string]string{credentials.KeyAuthToken: "a", credentials.KeyRefreshToken: " ", credentials.KeyUserData: `{"username":"sam","role":"STAFF"}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, repo := newStore(t)
			for k, v := range tt.values {
				repo.Set(k, v)
			}
			_, err := store.Load(context.Background())
			require.ErrorIs(t, err, credentials.ErrPartial)
			require.ErrorIs(t, err, credentials.ErrNotFound)
		})
	}
}

func TestStore_LoadCorrupt(t *testing.T) {
	tests := []struct {
		name     string
		userData string
	}{
		{name: "not json", userData: "{"},
		{name: "missing username", userData: `{"role":"ADMIN"}`},
		{name: "unknown role", userData: `{"username":"sam","role":"OWNER"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, repo := newStore(t)
			repo.Set(credentials.KeyAuthToken, "a")
			repo.Set(credentials.KeyRefreshToken, "r")
			repo.Set(credentials.KeyUserData, tt.userData)

			_, err := store.Load(context.Background())
			require.ErrorIs(t, err, credentials.ErrCorrupt)
			require.ErrorIs(t, err, credentials.ErrNotFound)
		})
	}
}

func TestStore_SaveAccessTokenKeepsRefresh(t *testing.T) {
	ctx := context.Background()
	store, repo := newStore(t)
	require.NoError(t, store.Save(ctx, snapshot()))

	require.NoError(t, store.SaveAccessToken(ctx, "access-2"))
	require.ErrorIs(t, store.SaveAccessToken(ctx, ""), credentials.ErrIncomplete)

	raw := repo.Raw()
	require.Equal(t, "access-2", raw[credentials.KeyAuthToken])
	require.Equal(t, "refresh-1", raw[credentials.KeyRefreshToken])

	refresh, err := store.RefreshToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "refresh-1", refresh)
}

func TestStore_SaveIdentity(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	require.NoError(t, store.Save(ctx, snapshot()))

	updated := snapshot().Identity.Clone()
	updated.FirstName = "Samira"
	require.NoError(t, store.SaveIdentity(ctx, updated))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "Samira", loaded.Identity.FirstName)
	require.Equal(t, "access-1", loaded.Credentials.AccessToken)
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	store, repo := newStore(t)
	require.NoError(t, store.Save(ctx, snapshot()))
	repo.Set("unrelated", "kept")

	require.NoError(t, store.Clear(ctx))
	require.Equal(t, 1, repo.Deletes())
	require.Equal(t, map[string]string{"unrelated": "kept"}, repo.Raw())

	_, err := store.Load(ctx)
	require.ErrorIs(t, err, credentials.ErrNotFound)

	refresh, err := store.RefreshToken(ctx)
	require.NoError(t, err)
	require.Empty(t, refresh)
}
