package token

import (
	"strings"

	"golang.org/x/oauth2"
)

// TokenTypeBearer is the Authorization scheme the issuing service expects.
const TokenTypeBearer = "Bearer"

// Credentials is the access/refresh pair issued at sign-in. The two are replaced
// together; a refresh replaces only AccessToken.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// Complete reports whether both tokens are present.
func (c Credentials) Complete() bool {
	return strings.TrimSpace(c.AccessToken) != "" && strings.TrimSpace(c.RefreshToken) != ""
}

// WithAccess returns a copy carrying a new access token and the same refresh token.
func (c Credentials) WithAccess(access string) Credentials {
	c.AccessToken = access
	return c
}

// OAuth2 converts the pair to an *oauth2.Token. The expiry is read from the access
// token's exp claim when it is a JWT, otherwise it is left zero (never expires).
func (c Credentials) OAuth2() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    TokenTypeBearer,
	}
	if claims, err := Inspect(c.AccessToken); err == nil && claims.ExpiresAt != nil {
		tok.Expiry = *claims.ExpiresAt
	}
	return tok
}

// String hides the token values so credentials can't leak through logging.
func (c Credentials) String() string {
	return "token.Credentials{access:" + redact(c.AccessToken) + ", refresh:" + redact(c.RefreshToken) + "}"
}

func redact(s string) string {
	if s == "" {
		return "<empty>"
	}
	return "<redacted>"
}
