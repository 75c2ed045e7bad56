package stores

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Lookup fetches the store assignment for a username.
type Lookup interface {
	StaffStores(ctx context.Context, username string) (*Assignment, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, username string) (*Assignment, error)

func (f LookupFunc) StaffStores(ctx context.Context, username string) (*Assignment, error) {
	return f(ctx, username)
}

// Resolution is the outcome of a successful validation.
type Resolution struct {
	StoreID      ID
	Store        Ref
	AutoSelected bool // true when the caller supplied no store and the only assignment was picked
}

// Validator confirms a staff identity is bound to a store before a sign-in is attempted.
// It holds no per-call state.
type Validator struct {
	lookup Lookup
	log    zerolog.Logger
}

type ValidatorOption func(*Validator)

func WithLogger(log zerolog.Logger) ValidatorOption {
	return func(v *Validator) {
		v.log = log
	}
}

func NewValidator(lookup Lookup, options ...ValidatorOption) (*Validator, error) {
	if lookup == nil {
		return nil, errors.New("[NewValidator] lookup is required")
	}
	v := &Validator{
		lookup: lookup,
		log:    zerolog.Nop(),
	}
	for _, opt := range options {
		opt(v)
	}
	return v, nil
}

// Validate resolves the store a staff sign-in will use.
//
//	authorized  requested        outcome
//	0           any              ErrNotAssigned
//	1           none             the one store, AutoSelected
//	1           matches          that store
//	1           differs          ErrStoreMismatch
//	>1          none             ErrStoreSelectionRequired
//	>1          matches one      requested
//	>1          matches none     ErrStoreMismatch
func (v *Validator) Validate(ctx context.Context, username string, requested ID) (*Resolution, error) {
	requested = ID(strings.TrimSpace(string(requested)))

	assignment, err := v.lookup.StaffStores(ctx, username)
	if err != nil {
		return nil, errors.Wrapf(err, "looking up stores for %q", username)
	}

	authorized := assignment.Authorized()
	log := v.log.With().Str("username", username).Int("authorized", len(authorized)).Logger()

	switch {
	case len(authorized) == 0:
		log.Info().Msg("staff sign-in refused: no store assigned")
		return nil, ErrNotAssigned

	case requested.IsZero() && len(authorized) == 1:
		log.Debug().Str("store_id", authorized[0].ID.String()).Msg("auto-selected the only assigned store")
		return &Resolution{StoreID: authorized[0].ID, Store: authorized[0], AutoSelected: true}, nil

	case requested.IsZero():
		log.Info().Msg("staff sign-in refused: store selection required")
		return nil, SelectionRequiredError{Choices: authorized}
	}

	if ref, ok := assignment.Find(requested); ok {
		return &Resolution{StoreID: ref.ID, Store: ref}, nil
	}

	ids := make([]ID, 0, len(authorized))
	for _, ref := range authorized {
		ids = append(ids, ref.ID)
	}
	log.Info().Str("requested", requested.String()).Msg("staff sign-in refused: store mismatch")
	return nil, MismatchError{Requested: requested, Authorized: ids}
}
