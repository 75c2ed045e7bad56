package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// NowTimeFunc is the clock of the package level helpers. Components with their own
// clock use ExpiresBy instead.
var NowTimeFunc = time.Now

// ErrNotJWT is returned when an access token cannot be read as a JWT.
var ErrNotJWT = errors.New("token is not a readable JWT")

// Claims are the unverified claims of an access token. The client holds no
// verification key, so these are only hints (expiry, subject) and never a trust decision.
type Claims struct {
	Subject   string     // user_id (SimpleJWT) or sub
	TokenType string     // "access" or "refresh" when present
	ID        string     // jti
	IssuedAt  *time.Time // iat
	ExpiresAt *time.Time // exp
}

// Inspect reads the claims of a JWT without verifying its signature.
func Inspect(raw string) (*Claims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrNotJWT
	}

	parsed, _, err := jwtlib.NewParser().ParseUnverified(raw, jwtlib.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotJWT, err)
	}

	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrNotJWT)
	}

	out := &Claims{}
	out.Subject, _ = claims.GetSubject()
	if out.Subject == "" {
		out.Subject = subjectFromUserID(claims["user_id"])
	}
	out.TokenType, _ = claims["token_type"].(string)
	out.ID, _ = claims["jti"].(string)

	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		t := iat.Time
		out.IssuedAt = &t
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		out.ExpiresAt = &t
	}
	return out, nil
}

func subjectFromUserID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return fmt.Sprintf("%d", int64(id))
	default:
		return ""
	}
}

// Expired reports whether the claims carry an expiry at or before now.
func (c *Claims) Expired() bool {
	return c.ExpiresWithin(0)
}

// ExpiresWithin reports whether the token expires within d of now. Tokens without an
// exp claim never expire.
func (c *Claims) ExpiresWithin(d time.Duration) bool {
	return c.ExpiresBy(NowTimeFunc().Add(d))
}

// ExpiresBy reports whether the token has expired by t.
func (c *Claims) ExpiresBy(t time.Time) bool {
	if c == nil || c.ExpiresAt == nil {
		return false
	}
	return !t.Before(*c.ExpiresAt)
}

// ExpiresWithin reads raw and reports whether it expires within d of NowTimeFunc.
// Unreadable tokens report false so callers fall back to the server's 401.
func ExpiresWithin(raw string, d time.Duration) bool {
	return ExpiresBy(raw, NowTimeFunc().Add(d))
}

// ExpiresBy reads raw and reports whether it has expired by t, for callers with their own clock.
func ExpiresBy(raw string, t time.Time) bool {
	claims, err := Inspect(raw)
	if err != nil {
		return false
	}
	return claims.ExpiresBy(t)
}
