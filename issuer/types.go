package issuer

import (
	"github.com/jrsteele09/retail-session/stores"
	"github.com/jrsteele09/retail-session/users"
)

// TokenRequest is the body posted to the token endpoint at sign-in.
type TokenRequest struct {
	// Username and Password are the staff or admin account credentials.
	Username string `json:"username"`
	Password string `json:"password"`

	// Role is the role the user is signing in as.
	// The service rejects a role that does not match the account.
	Role users.Role `json:"role"`

	// StoreID is the store a STAFF user is signing in to.
	// Required for STAFF, omitted for ADMIN.
	// The service compares it as a string against the account's assigned store.
	StoreID stores.ID `json:"store_id,omitempty"`
}

// TokenResponse is the token endpoint's success body.
type TokenResponse struct {
	// Access is the short-lived JWT sent as "Authorization: Bearer <access>".
	// Lifespan: minutes. Replaced by the refresh endpoint.
	Access string `json:"access"`

	// Refresh is the long-lived JWT exchanged for new access tokens.
	// It is not rotated by a refresh.
	Refresh string `json:"refresh"`

	// User is the signed-in profile, in the same shape as the profile endpoint.
	User *users.Identity `json:"user"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access string `json:"access"`
}

// AdminStatus reports whether an admin account already exists. The sign-in screen uses it
// to decide whether to offer admin registration.
type AdminStatus struct {
	AdminExists bool   `json:"admin_exists"`
	AdminCount  int    `json:"admin_count"`
	Message     string `json:"message,omitempty"`
}

type staffStoresResponse struct {
	Assigned bool         `json:"assigned"`
	Stores   []stores.Ref `json:"stores"`
	Message  string       `json:"message,omitempty"`
}
