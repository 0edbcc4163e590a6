package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/hyperifyio/postforge/internal/apperr"
)

// UserHeader carries the caller identity when a trusted gateway sits in front
// of the service.
const UserHeader = "X-User-ID"

// Authenticator resolves the caller of a request to a user id.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// HeaderAuthenticator trusts the identity header set by an upstream gateway.
type HeaderAuthenticator struct {
	Header string
}

func (a HeaderAuthenticator) Authenticate(r *http.Request) (string, error) {
	h := a.Header
	if h == "" {
		h = UserHeader
	}
	id := strings.TrimSpace(r.Header.Get(h))
	if id == "" {
		return "", apperr.E(apperr.Unauthorized, "missing %s header", h)
	}
	return id, nil
}

// TokenAuthenticator maps static bearer tokens to user ids. Browsers cannot
// set headers on WebSocket handshakes, so the access_token query parameter is
// accepted as well.
type TokenAuthenticator struct {
	Tokens map[string]string
}

func (a TokenAuthenticator) Authenticate(r *http.Request) (string, error) {
	token := ""
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if token == "" {
		token = r.URL.Query().Get("access_token")
	}
	if token == "" {
		return "", apperr.E(apperr.Unauthorized, "missing bearer token")
	}
	for t, user := range a.Tokens {
		if subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
			return user, nil
		}
	}
	return "", apperr.E(apperr.Unauthorized, "invalid bearer token")
}
