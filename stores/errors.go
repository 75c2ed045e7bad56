package stores

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotAssigned is returned when a staff identity has no authorized store.
	ErrNotAssigned = errors.New("staff account is not assigned to any store")

	// ErrStoreMismatch is returned when the requested store is not one the identity is authorized for.
	ErrStoreMismatch = errors.New("requested store does not match the assigned store")

	// ErrStoreSelectionRequired is returned when an identity has several authorized stores
	// and none was chosen. The caller must ask the user to pick one.
	ErrStoreSelectionRequired = errors.New("store selection is required")
)

// MismatchError carries the requested and authorized store ids of a rejected selection.
type MismatchError struct {
	Requested  ID
	Authorized []ID
}

func (e MismatchError) Error() string {
	ids := make([]string, 0, len(e.Authorized))
	for _, id := range e.Authorized {
		ids = append(ids, id.String())
	}
	return fmt.Sprintf("%s: requested %s, assigned %s", ErrStoreMismatch.Error(), e.Requested, strings.Join(ids, ", "))
}

func (e MismatchError) Unwrap() error { return ErrStoreMismatch }

// SelectionRequiredError lists the stores the user must choose from.
type SelectionRequiredError struct {
	Choices []Ref
}

func (e SelectionRequiredError) Error() string {
	return fmt.Sprintf("%s: %d stores assigned", ErrStoreSelectionRequired.Error(), len(e.Choices))
}

func (e SelectionRequiredError) Unwrap() error { return ErrStoreSelectionRequired }
