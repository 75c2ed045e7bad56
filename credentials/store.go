package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	ierrors "github.com/jrsteele09/retail-session/internal/errors"
	"github.com/jrsteele09/retail-session/token"
	"github.com/jrsteele09/retail-session/users"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned by Load when no complete session is stored.
	ErrNotFound = errors.New("no stored session")

	// ErrPartial is returned by Load when only some session keys are present.
	// It wraps ErrNotFound: a partial session counts as signed out.
	ErrPartial = ierrors.Wrapf(ErrNotFound, "partial session")

	// ErrCorrupt is returned by Load when userData cannot be decoded. It wraps ErrNotFound.
	ErrCorrupt = ierrors.Wrapf(ErrNotFound, "corrupt session")

	// ErrIncomplete is returned by Save when the snapshot lacks a token or identity.
	ErrIncomplete = errors.New("incomplete session snapshot")
)

// Snapshot is everything persisted for a signed-in session.
type Snapshot struct {
	Credentials token.Credentials
	Identity    *users.Identity
}

// Store is the durable mirror of the session. It holds no lifecycle logic of its own.
type Store struct {
	repo Repo
	log  zerolog.Logger
}

type StoreOption func(*Store)

func WithLogger(log zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.log = log
	}
}

func NewStore(repo Repo, options ...StoreOption) (*Store, error) {
	if repo == nil {
		return nil, errors.New("[NewStore] repo is required")
	}
	s := &Store{repo: repo, log: zerolog.Nop()}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Save writes the access token, refresh token and identity as one atomic set.
func (s *Store) Save(ctx context.Context, snap Snapshot) error {
	if !snap.Credentials.Complete() {
		return ierrors.Wrapf(ErrIncomplete, "missing token")
	}
	if err := snap.Identity.Validate(); err != nil {
		return ierrors.Wrapf(ErrIncomplete, "%s", err.Error())
	}

	userData, err := json.Marshal(snap.Identity)
	if err != nil {
		return ierrors.Wrapf(err, "encoding %s", KeyUserData)
	}

	err = s.repo.Put(ctx, map[string]string{
		KeyAuthToken:    snap.Credentials.AccessToken,
		KeyRefreshToken: snap.Credentials.RefreshToken,
		KeyUserData:     string(userData),
	})
	return ierrors.Wrapf(err, "saving session")
}

// Load reads the stored session. Anything short of all three keys is ErrNotFound.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	values, err := s.repo.Get(ctx, SessionKeys...)
	if err != nil {
		return nil, ierrors.Wrapf(err, "loading session")
	}

	present := 0
	for _, key := range SessionKeys {
		if strings.TrimSpace(values[key]) != "" {
			present++
		}
	}
	switch present {
	case 0:
		return nil, ErrNotFound
	case len(SessionKeys):
	default:
		s.log.Warn().Int("present", present).Msg("stored session is partial, treating as signed out")
		return nil, ErrPartial
	}

	var identity users.Identity
	if err := json.Unmarshal([]byte(values[KeyUserData]), &identity); err != nil {
		s.log.Warn().Err(err).Msg("stored userData is not decodable, treating as signed out")
		return nil, ErrCorrupt
	}
	if err := identity.Validate(); err != nil {
		s.log.Warn().Err(err).Msg("stored userData is invalid, treating as signed out")
		return nil, ErrCorrupt
	}

	return &Snapshot{
		Credentials: token.Credentials{
			AccessToken:  values[KeyAuthToken],
			RefreshToken: values[KeyRefreshToken],
		},
		Identity: &identity,
	}, nil
}

// RefreshToken returns the stored refresh token, or an empty string when none is stored.
func (s *Store) RefreshToken(ctx context.Context) (string, error) {
	values, err := s.repo.Get(ctx, KeyRefreshToken)
	if err != nil {
		return "", ierrors.Wrapf(err, "loading %s", KeyRefreshToken)
	}
	return values[KeyRefreshToken], nil
}

// SaveAccessToken replaces only the access token, as a refresh does.
func (s *Store) SaveAccessToken(ctx context.Context, access string) error {
	if strings.TrimSpace(access) == "" {
		return ierrors.Wrapf(ErrIncomplete, "empty access token")
	}
	return ierrors.Wrapf(s.repo.Put(ctx, map[string]string{KeyAuthToken: access}), "saving %s", KeyAuthToken)
}

// SaveIdentity replaces the cached profile.
func (s *Store) SaveIdentity(ctx context.Context, identity *users.Identity) error {
	if err := identity.Validate(); err != nil {
		return ierrors.Wrapf(ErrIncomplete, "%s", err.Error())
	}
	userData, err := json.Marshal(identity)
	if err != nil {
		return ierrors.Wrapf(err, "encoding %s", KeyUserData)
	}
	return ierrors.Wrapf(s.repo.Put(ctx, map[string]string{KeyUserData: string(userData)}), "saving %s", KeyUserData)
}

// Clear removes every session key.
func (s *Store) Clear(ctx context.Context) error {
	return ierrors.Wrapf(s.repo.Delete(ctx, SessionKeys...), "clearing session")
}
