package stores

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ID identifies a store. The issuing service emits integer primary keys but compares
// store ids as strings, so ID accepts either JSON form and always encodes as a string.
type ID string

// NoStore is the zero ID, meaning no store was requested or assigned.
const NoStore ID = ""

func (id ID) String() string {
	return string(id)
}

// IsZero reports whether no store is set.
func (id ID) IsZero() bool {
	return strings.TrimSpace(string(id)) == ""
}

// UnmarshalJSON accepts a number, a string or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = NoStore
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("store id: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("store id %q is not an integer", n.String())
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON encodes the zero ID as null.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(string(id))
}

// Ref is the minimal description of a store a user can operate against.
type Ref struct {
	ID      ID     `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

// Assignment is the set of stores a staff identity is authorized for. It is fetched
// per sign-in attempt and never persisted.
type Assignment struct {
	Username string `json:"-"`
	Assigned bool   `json:"assigned"`
	Stores   []Ref  `json:"stores"`
}

// Authorized returns the stores the assignment grants. An unassigned result grants none,
// whatever the stores list says.
func (a *Assignment) Authorized() []Ref {
	if a == nil || !a.Assigned {
		return nil
	}
	refs := make([]Ref, 0, len(a.Stores))
	for _, s := range a.Stores {
		if s.ID.IsZero() {
			continue
		}
		refs = append(refs, s)
	}
	return refs
}

// Find returns the authorized store with the given id.
func (a *Assignment) Find(id ID) (Ref, bool) {
	for _, s := range a.Authorized() {
		if s.ID == id {
			return s, true
		}
	}
	return Ref{}, false
}
