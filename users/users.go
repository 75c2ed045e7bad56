package users

import (
	"fmt"
	"strings"

	"github.com/jrsteele09/retail-session/internal/utils"
	"github.com/jrsteele09/retail-session/stores"
)

// Role is the authorization tier the issuing service assigns to an account.
type Role string

const (
	RoleAdmin Role = "ADMIN" // Unrestricted access to every store and master data
	RoleStaff Role = "STAFF" // Restricted to the single store the account is assigned to
)

// ValidRoles lists the roles a session can be opened with.
var ValidRoles = []Role{RoleAdmin, RoleStaff}

// ParseRole normalises a role name, accepting any letter case.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// Identity is the signed-in user's profile as returned by the issuing service.
type Identity struct {
	ID        int64     `json:"id"`                  // Issuing service primary key
	Username  string    `json:"username"`            // Unique username
	Email     string    `json:"email,omitempty"`     // Contact email
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	Place     string    `json:"place,omitempty"`
	Role      Role      `json:"role"`
	PhotoURL  *string   `json:"photo_url,omitempty"`
	StoreID   stores.ID `json:"store"` // Assigned store, zero for admins
}

// FullName joins first and last name, falling back to the username.
func (u *Identity) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// Photo returns the profile photo URL or an empty string.
func (u *Identity) Photo() string {
	return utils.Value(u.PhotoURL)
}

func (u *Identity) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Can reports whether the identity's role grants perm.
func (u *Identity) Can(perm Permission) bool {
	if u == nil {
		return false
	}
	return HasPermission(u.Role, perm)
}

// CanAccessStore reports whether the identity may operate against the given store.
// Admins are not store scoped; staff may only use their assigned store.
func (u *Identity) CanAccessStore(id stores.ID) bool {
	if u == nil {
		return false
	}
	if !IsStoreScoped(u.Role) {
		return true
	}
	return !u.StoreID.IsZero() && u.StoreID == id
}

// Validate checks the fields a session cannot be opened without.
func (u *Identity) Validate() error {
	if u == nil {
		return fmt.Errorf("identity is missing")
	}
	if strings.TrimSpace(u.Username) == "" {
		return fmt.Errorf("identity has no username")
	}
	if !u.Role.Valid() {
		return fmt.Errorf("identity has unknown role %q", u.Role)
	}
	return nil
}

// Clone returns a deep copy.
func (u *Identity) Clone() *Identity {
	if u == nil {
		return nil
	}
	cp := *u
	cp.PhotoURL = utils.Clone(u.PhotoURL)
	return &cp
}

// Equal reports whether two identities carry the same profile.
func (u *Identity) Equal(other *Identity) bool {
	if u == nil || other == nil {
		return u == other
	}
	if !utils.EqualPtr(u.PhotoURL, other.PhotoURL) {
		return false
	}
	a, b := *u, *other
	a.PhotoURL, b.PhotoURL = nil, nil
	return a == b
}
