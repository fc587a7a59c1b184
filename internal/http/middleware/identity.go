// Package middleware – caller identity.
//
// Authenticate resolves who is calling. A valid bearer token yields a signed-in
// identity; a missing token leaves the request anonymous, identified only by
// the X-Temporary-ID header the form client sends. An invalid token is a 401
// so clients re-authenticate instead of silently submitting anonymously.
//
// When no verifier is configured and TrustHeaders is set (local development
// only) the X-User-ID and X-User-Email headers are trusted instead. Otherwise
// those headers are ignored and every caller is anonymous.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/settlement-showcase/internal/auth"
)

const (
	// HeaderTemporaryID carries the client-generated temporary identifier.
	HeaderTemporaryID = "X-Temporary-ID"
	// HeaderUserID is trusted only with AuthOptions.TrustHeaders.
	HeaderUserID = "X-User-ID"
	// HeaderUserEmail is trusted only with AuthOptions.TrustHeaders.
	HeaderUserEmail = "X-User-Email"

	userIDKey   = "userID"
	identityKey = "identity"

	maxTemporaryIDLength = 64
)

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// AuthOptions configures Authenticate.
type AuthOptions struct {
	Verifier TokenVerifier
	// TrustHeaders accepts X-User-ID / X-User-Email when Verifier is nil.
	TrustHeaders bool
	// OnIdentity runs synchronously for every signed-in request before the
	// handler. Errors are logged and do not fail the request.
	OnIdentity func(ctx context.Context, id auth.Identity) error
}

// Authenticate resolves the caller identity and stores it in the context.
func Authenticate(opts AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			id    auth.Identity
			found bool
		)
		switch {
		case opts.Verifier != nil:
			raw := c.GetHeader("Authorization")
			if raw == "" {
				break
			}
			tok, ok := auth.BearerToken(raw)
			if !ok {
				abortJSON(c, http.StatusUnauthorized, "unauthorized", "malformed authorization header")
				return
			}
			v, err := opts.Verifier.Verify(tok)
			if err != nil {
				if !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrMissingToken) {
					LoggerFrom(c).Error().Err(err).Msg("token verification failed")
				}
				abortJSON(c, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
				return
			}
			id, found = v, true
		case opts.TrustHeaders:
			if uid := strings.TrimSpace(c.GetHeader(HeaderUserID)); uid != "" {
				id = auth.Identity{
					UserID:    uid,
					Email:     strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserEmail))),
					SessionID: "header:" + uid,
				}
				found = true
			}
		}

		if found {
			c.Set(userIDKey, id.UserID)
			c.Set(identityKey, id)
			l := LoggerFrom(c).With().Str("user_id", id.UserID).Logger()
			attachLogger(c, l)

			if opts.OnIdentity != nil {
				if err := opts.OnIdentity(c.Request.Context(), id); err != nil {
					LoggerFrom(c).Warn().Err(err).Msg("post-authentication hook failed")
				}
			}
		}
		c.Next()
	}
}

// RequireUser rejects anonymous callers with 401.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) == "" {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "sign in required")
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the signed-in identity, if any.
func IdentityFrom(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}

// UserID returns the signed-in user id, or "".
func UserID(c *gin.Context) string {
	return asString(c.Value(userIDKey))
}

// TemporaryID returns the client's temporary id header, or "" when absent or
// longer than allowed.
func TemporaryID(c *gin.Context) string {
	v := strings.TrimSpace(c.GetHeader(HeaderTemporaryID))
	if len(v) > maxTemporaryIDLength {
		return ""
	}
	return v
}
