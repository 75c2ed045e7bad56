package session

// State is where a Manager is in the session lifecycle.
//
//	SignedOut -> Authenticating -> SignedIn -> (Refreshing) -> SignedIn | SignedOut
//
// SignedOut is the initial state and the only terminal one.
type State int

const (
	StateSignedOut State = iota
	StateAuthenticating
	StateSignedIn
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateSignedOut:
		return "signed_out"
	case StateAuthenticating:
		return "authenticating"
	case StateSignedIn:
		return "signed_in"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// Active reports whether the state holds a usable session.
func (s State) Active() bool {
	return s == StateSignedIn || s == StateRefreshing
}

// Reason says why a session ended. Sign-out listeners receive it.
type Reason string

const (
	// ReasonSignedOut is an explicit SignOut.
	ReasonSignedOut Reason = "signed_out"

	// ReasonExpired is a failed access token refresh.
	ReasonExpired Reason = "expired"

	// ReasonProfileRejected is a profile fetch the issuing service refused, or answered
	// with a profile the client cannot use.
	ReasonProfileRejected Reason = "profile_rejected"
)
