package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/settlement-showcase/internal/auth"
)

func newAuthRouter(t *testing.T, opts AuthOptions) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), RequestLogger(), Authenticate(opts))
	r.GET("/who", func(c *gin.Context) {
		id, _ := IdentityFrom(c)
		c.JSON(http.StatusOK, gin.H{"user": UserID(c), "email": id.Email, "session": id.SessionID, "temp": TemporaryID(c)})
	})
	r.GET("/mine", RequireUser(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func getJSON(t *testing.T, r http.Handler, path string, headers map[string]string) (int, map[string]string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	out := map[string]string{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

func TestAuthenticate_BearerToken(t *testing.T) {
	v, err := auth.NewVerifier("test-secret", auth.Options{})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	tok, err := v.Sign(auth.Identity{UserID: "u1", Email: "Jane@Firm.com", SessionID: "s1"}, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	var hooked []auth.Identity
	r := newAuthRouter(t, AuthOptions{
		Verifier: v,
		OnIdentity: func(_ context.Context, id auth.Identity) error {
			hooked = append(hooked, id)
			return errors.New("reconcile failed")
		},
	})

	code, body := getJSON(t, r, "/who", map[string]string{"Authorization": "Bearer " + tok, HeaderTemporaryID: "tmp-1"})
	if code != http.StatusOK || body["user"] != "u1" || body["email"] != "jane@firm.com" || body["session"] != "s1" || body["temp"] != "tmp-1" {
		t.Fatalf("signed-in: code=%d body=%v", code, body)
	}
	if len(hooked) != 1 || hooked[0].UserID != "u1" {
		t.Fatalf("OnIdentity not called once: %v", hooked)
	}

	// Anonymous requests pass without running the hook.
	code, body = getJSON(t, r, "/who", nil)
	if code != http.StatusOK || body["user"] != "" || len(hooked) != 1 {
		t.Fatalf("anonymous: code=%d body=%v hooks=%d", code, body, len(hooked))
	}

	for _, h := range []string{"Bearer garbage", "Basic abc", "Bearer"} {
		if code, _ := getJSON(t, r, "/who", map[string]string{"Authorization": h}); code != http.StatusUnauthorized {
			t.Fatalf("%q: code=%d", h, code)
		}
	}

	// Dev headers are ignored once a verifier is configured.
	if _, body := getJSON(t, r, "/who", map[string]string{HeaderUserID: "spoof"}); body["user"] != "" {
		t.Fatalf("header identity trusted alongside verifier")
	}
}

func TestAuthenticate_TrustedHeaders(t *testing.T) {
	r := newAuthRouter(t, AuthOptions{TrustHeaders: true})
	_, body := getJSON(t, r, "/who", map[string]string{HeaderUserID: "dev-1", HeaderUserEmail: " Dev@Local.test "})
	if body["user"] != "dev-1" || body["email"] != "dev@local.test" || body["session"] != "header:dev-1" {
		t.Fatalf("trusted headers: %v", body)
	}

	r = newAuthRouter(t, AuthOptions{})
	if _, body := getJSON(t, r, "/who", map[string]string{HeaderUserID: "dev-1"}); body["user"] != "" {
		t.Fatalf("headers trusted without opt-in")
	}
}

func TestRequireUserAndTemporaryID(t *testing.T) {
	r := newAuthRouter(t, AuthOptions{TrustHeaders: true})
	if code, body := getJSON(t, r, "/mine", nil); code != http.StatusUnauthorized || body["code"] != "unauthorized" {
		t.Fatalf("anonymous /mine: code=%d body=%v", code, body)
	}
	if code, _ := getJSON(t, r, "/mine", map[string]string{HeaderUserID: "u1"}); code != http.StatusNoContent {
		t.Fatalf("signed-in /mine: code=%d", code)
	}

	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}
	if _, body := getJSON(t, r, "/who", map[string]string{HeaderTemporaryID: string(long)}); body["temp"] != "" {
		t.Fatalf("oversized temporary id accepted")
	}
}
