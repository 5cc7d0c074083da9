package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/doseidotio/doseid/pkg/sshauth"
	"github.com/doseidotio/doseid/pkg/store"
)

type contextKey string

const sessionKey contextKey = "session"

const sshBearerPrefix = "ssh:"

// authenticate resolves the Authorization header to a session. An
// `ssh:<base64>` bearer is verified against the registered key for its
// fingerprint and yields an ephemeral session; anything else is treated as a
// session token.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		bearer, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || bearer == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer credential")
			return
		}

		var sess *store.Session
		if encoded, ok := strings.CutPrefix(bearer, sshBearerPrefix); ok {
			sess = s.authenticateSSH(r.Context(), encoded)
		} else {
			sess, _ = s.sessions.Lookup(r.Context(), bearer)
		}
		if sess == nil {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticateSSH verifies an SSH bearer payload and, when valid, mints an
// ephemeral session for the key's account. Returns nil on any failure.
func (s *Server) authenticateSSH(ctx context.Context, encoded string) *store.Session {
	payload, err := sshauth.ParseBearer(encoded)
	if err != nil {
		return nil
	}
	if payload.Namespace != sshauth.Namespace {
		return nil
	}
	key, err := s.store.GetSSHKeyByFingerprint(ctx, payload.KeyFingerprint)
	if err != nil {
		return nil
	}
	if !payload.Verify(key.SSHKey) {
		return nil
	}
	return s.sessions.SSHNew(key.AccountID)
}

// requestSession returns the session the middleware attached to the request.
func requestSession(r *http.Request) *store.Session {
	sess, _ := r.Context().Value(sessionKey).(*store.Session)
	return sess
}
