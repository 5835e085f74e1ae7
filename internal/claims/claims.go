// Package claims is the trust boundary for the file service. It verifies
// signed access tokens, decodes their claims, and resolves the per-tenant
// store path every file operation is scoped by. Nothing outside this package
// can construct a non-zero StorePath, so a handler holding one is proof the
// request carried a verified token.
package claims

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken indicates a token that failed signature verification or
// structural parsing. Use errors.Is(err, claims.ErrInvalidToken) to check.
var ErrInvalidToken = errors.New("claims: invalid token")

// Claims is the decoded payload of an access token. StorePath is the
// per-tenant directory name assigned by the issuer; Subject and ExpiresAt
// come from the registered claim set.
type Claims struct {
	StorePath string `json:"storePath"`
	jwt.RegisteredClaims
}

// Codec verifies and decodes access tokens signed with HMAC-SHA.
type Codec struct {
	secret []byte
}

// NewCodec creates a Codec that verifies tokens against the given secret.
func NewCodec(secret []byte) *Codec {
	return &Codec{secret: secret}
}

// Decode verifies the token signature and returns its claims. Expiry is
// deliberately not validated here — callers that need claims from an
// expired-but-genuine token (e.g. for error messaging) still get them.
// The resolver enforces expiry before any file operation.
func (c *Codec) Decode(token string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithoutClaimsValidation(),
	)

	var cl Claims

	_, err := parser.ParseWithClaims(token, &cl, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	return &cl, nil
}

// Expired reports whether the claims' expiry is strictly in the past at the
// given instant, compared in unix seconds. Claims without an expiry are
// treated as expired — the issuer always sets one.
func (cl *Claims) Expired(now time.Time) bool {
	if cl.ExpiresAt == nil {
		return true
	}

	return cl.ExpiresAt.Unix() < now.Unix()
}
