package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func newTestVerifier(t *testing.T, opts Options) *Verifier {
	t.Helper()
	v, err := NewVerifier("test-secret", opts)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return v
}

func TestVerify_RoundTrip(t *testing.T) {
	v := newTestVerifier(t, Options{Issuer: "https://auth.test"})
	tok, err := v.Sign(Identity{UserID: "u-1", Email: " Me@Firm.com ", SessionID: "sess-1"}, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	id, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.UserID != "u-1" || id.Email != "me@firm.com" || id.SessionID != "sess-1" {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestVerify_SessionFallsBackToJTIThenIssuedAt(t *testing.T) {
	v := newTestVerifier(t, Options{})
	now := time.Now()
	mk := func(jti string) string {
		c := Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-2",
			ID:        jti,
			Audience:  jwt.ClaimStrings{DefaultAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}}
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("test-secret"))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	if id, err := v.Verify(mk("jti-9")); err != nil || id.SessionID != "jti-9" {
		t.Fatalf("jti fallback: %+v %v", id, err)
	}
	if id, err := v.Verify(mk("")); err != nil || !strings.HasPrefix(id.SessionID, "u-2@") {
		t.Fatalf("issued-at fallback: %+v %v", id, err)
	}
}

func TestVerify_Rejections(t *testing.T) {
	v := newTestVerifier(t, Options{Issuer: "iss-a"})
	other := newTestVerifier(t, Options{Issuer: "iss-b"})

	expired, _ := v.Sign(Identity{UserID: "u"}, -time.Hour)
	wrongIssuer, _ := other.Sign(Identity{UserID: "u"}, time.Hour)
	noSubject, _ := v.Sign(Identity{}, time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "u"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	forged, _ := (&Verifier{secret: []byte("other"), opts: v.opts}).Sign(Identity{UserID: "u"}, time.Hour)

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not-a-jwt",
		"expired":      expired,
		"wrong issuer": wrongIssuer,
		"no subject":   noSubject,
		"alg none":     none,
		"forged":       forged,
	}
	for name, tok := range cases {
		_, err := v.Verify(tok)
		if err == nil {
			t.Fatalf("%s: expected rejection", name)
		}
		if name == "empty" {
			if !errors.Is(err, ErrMissingToken) {
				t.Fatalf("empty: got %v", err)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestNewVerifier_RequiresSecret(t *testing.T) {
	if _, err := NewVerifier("  ", Options{}); err == nil {
		t.Fatalf("expected error for blank secret")
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		in   string
		tok  string
		good bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer  abc ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		tok, ok := BearerToken(tc.in)
		if tok != tc.tok || ok != tc.good {
			t.Fatalf("BearerToken(%q)=%q,%v", tc.in, tok, ok)
		}
	}
}
