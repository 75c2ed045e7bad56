package credentials

import "context"

// Keys written by the store. They are always written and cleared together.
const (
	KeyAuthToken    = "authToken"
	KeyRefreshToken = "refreshToken"
	KeyUserData     = "userData"
)

// SessionKeys lists every key owned by a session.
var SessionKeys = []string{KeyAuthToken, KeyRefreshToken, KeyUserData}

// Repo is a durable key/value backend that survives process restarts.
type Repo interface {
	// Get returns the values of the requested keys that exist. Missing keys are omitted.
	Get(ctx context.Context, keys ...string) (map[string]string, error)

	// Put writes all values atomically: either every key is written or none is.
	Put(ctx context.Context, values map[string]string) error

	// Delete removes the keys atomically. Deleting a missing key is not an error.
	Delete(ctx context.Context, keys ...string) error
}
