package claims

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrUnauthorized indicates a request without a usable token: missing bearer
// header, failed decode, expired token, or a malformed storePath claim.
var ErrUnauthorized = errors.New("claims: unauthorized")

// StorePath is a per-tenant directory name derived from verified claims.
// Only Resolver constructs non-zero values; user input never becomes one.
type StorePath struct {
	name string
}

// String returns the directory name for path joining.
func (p StorePath) String() string { return p.name }

// Resolver is the sole authorization gate for file operations. It extracts
// the bearer token from a request, verifies it via the Codec, enforces
// expiry, and vets the storePath claim before handing it out.
type Resolver struct {
	codec *Codec

	// now is the clock used for expiry checks. Tests override it.
	now func() time.Time
}

// NewResolver creates a Resolver backed by the given codec.
func NewResolver(codec *Codec) *Resolver {
	return &Resolver{codec: codec, now: time.Now}
}

// Resolve authorizes a request and returns its tenant's StorePath.
// Every failure mode collapses to ErrUnauthorized (wrapped with detail):
// callers must not distinguish a bad signature from an expired token in
// their response.
func (rs *Resolver) Resolve(r *http.Request) (StorePath, error) {
	token, ok := bearerToken(r)
	if !ok {
		return StorePath{}, fmt.Errorf("%w: no bearer token", ErrUnauthorized)
	}

	cl, err := rs.codec.Decode(token)
	if err != nil {
		return StorePath{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	if cl.Expired(rs.now()) {
		return StorePath{}, fmt.Errorf("%w: token expired", ErrUnauthorized)
	}

	if !validStorePath(cl.StorePath) {
		// A genuine token with a missing or malformed storePath claim is
		// rejected outright rather than mapped to any default path.
		return StorePath{}, fmt.Errorf("%w: malformed storePath claim", ErrUnauthorized)
	}

	return StorePath{name: cl.StorePath}, nil
}

// bearerToken extracts the token from an "Authorization: Bearer x" header.
func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")

	token, found := strings.CutPrefix(auth, "Bearer ")
	if !found || token == "" {
		return "", false
	}

	return token, true
}

// validStorePath reports whether the claim is a literal, traversal-free
// directory name.
func validStorePath(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}

	return !strings.ContainsAny(name, "/\\\x00")
}
