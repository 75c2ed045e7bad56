package issuer

// Issuing service paths, relative to the configured base URL.
const (
	// Token Routes
	PathToken        = "/api/token/"
	PathTokenRefresh = "/api/token/refresh/"

	// Account Routes
	PathProfile     = "/api/accounts/profile/"
	PathStaffStores = "/api/accounts/staff-stores/"
	PathCheckAdmin  = "/api/accounts/check-admin/"
	PathMyStore     = "/api/accounts/my-store/"

	// Store Routes
	PathStores = "/api/stores/"
)

// RequestIDHeader carries a per-call correlation ID. A retried request reuses the ID of
// the original attempt.
const RequestIDHeader = "X-Request-ID"
