// Package auth verifies bearer access tokens issued by the hosted identity
// provider and exposes the caller's identity.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// DefaultAudience is the audience hosted auth providers stamp on user tokens.
const DefaultAudience = "authenticated"

var defaultLeeway = 30 * time.Second

var (
	ErrMissingToken = errors.New("auth: missing bearer token")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Email  string
	// SessionID is stable for the lifetime of one sign-in session.
	SessionID string
}

// Claims are the access-token claims the service reads.
type Claims struct {
	jwt.RegisteredClaims
	Email     string `json:"email,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Options configures claim validation.
type Options struct {
	Issuer   string
	Audience string
	Leeway   time.Duration
}

func normalizeOptions(o Options) Options {
	o.Issuer = strings.TrimSpace(o.Issuer)
	o.Audience = strings.TrimSpace(o.Audience)
	if o.Audience == "" {
		o.Audience = DefaultAudience
	}
	if o.Leeway <= 0 {
		o.Leeway = defaultLeeway
	}
	return o
}

// Verifier validates HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	opts   Options
}

// NewVerifier builds a Verifier. The secret must be non-empty.
func NewVerifier(secret string, opts Options) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	return &Verifier{secret: []byte(secret), opts: normalizeOptions(opts)}, nil
}

// Verify parses token and returns the identity it carries.
func (v *Verifier) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.opts.Leeway),
		jwt.WithExpirationRequired(),
		jwt.WithAudience(v.opts.Audience),
	}
	if v.opts.Issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(v.opts.Issuer))
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, parserOptions...)
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("token not valid")
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, fmt.Errorf("%w: subject missing", ErrInvalidToken)
	}

	id := Identity{
		UserID:    claims.Subject,
		Email:     strings.ToLower(strings.TrimSpace(claims.Email)),
		SessionID: claims.SessionID,
	}
	if id.SessionID == "" {
		id.SessionID = claims.ID
	}
	if id.SessionID == "" && claims.IssuedAt != nil {
		id.SessionID = fmt.Sprintf("%s@%d", claims.Subject, claims.IssuedAt.Unix())
	}
	return id, nil
}

// Sign mints a token for id. Used by tests and local tooling; production
// tokens come from the identity provider.
func (v *Verifier) Sign(id Identity, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    v.opts.Issuer,
			Audience:  jwt.ClaimStrings{v.opts.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Email:     id.Email,
		SessionID: id.SessionID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}
