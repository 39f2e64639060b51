// Package apikey provides an API key authenticator that validates keys
// against a static key store using SHA-256 hashing and constant-time
// comparison.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rhuss/toolloop/pkg/auth"
)

// Key is the configuration format for one API key.
type Key struct {
	Key      string
	Identity auth.Identity
}

type entry struct {
	hash     [32]byte
	identity auth.Identity
}

// Authenticator validates keys presented either as an Authorization bearer
// token or in a dedicated header.
type Authenticator struct {
	header string
	keys   []entry
}

// New creates an authenticator. When header is non-empty (for example
// "X-API-Key") that header is consulted before the Authorization header.
// Keys are hashed immediately; plaintext keys are not stored.
func New(header string, keys []Key) *Authenticator {
	a := &Authenticator{header: header}
	for _, k := range keys {
		a.keys = append(a.keys, entry{
			hash:     sha256.Sum256([]byte(k.Key)),
			identity: k.Identity,
		})
	}
	return a
}

// Authenticate returns Yes for a known key, No for an unknown one and
// Abstain when the request carries no key at all.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	token, present := a.token(r)
	if !present {
		return auth.Result{Decision: auth.Abstain}
	}
	if token == "" {
		return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	sum := sha256.Sum256([]byte(token))
	for _, e := range a.keys {
		if subtle.ConstantTimeCompare(sum[:], e.hash[:]) == 1 {
			id := e.identity
			return auth.Result{Decision: auth.Yes, Identity: &id}
		}
	}
	return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
}

func (a *Authenticator) token(r *http.Request) (string, bool) {
	if a.header != "" {
		if v, ok := r.Header[http.CanonicalHeaderKey(a.header)]; ok && len(v) > 0 {
			return strings.TrimSpace(v[0]), true
		}
	}
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")), true
}
