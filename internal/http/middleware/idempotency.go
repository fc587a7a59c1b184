// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency support for unsafe HTTP methods. It
// validates an Idempotency-Key request header, replays a previously stored
// response for the same (subject, route, key), and otherwise records the
// handler's successful response so a retry returns the same body without
// creating a second checkout session or settlement.
//
// The subject is the signed-in user id, else the temporary id, else the
// client IP, so two anonymous visitors cannot collide on a key.
package middleware

import (
	"bytes"
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the canonical request header that clients use to
// convey an idempotency key for unsafe operations.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotentReplayed is set on responses served from the store.
const HeaderIdempotentReplayed = "Idempotent-Replayed"

const (
	ctxKeyIdemKey      = "idem.key"
	ctxKeyIdemReplay   = "idem.replay"
	ctxKeyIdemResource = "idem.resource"
	ctxKeyRateBypass   = "rate.bypass"

	// maxRecordedBody caps how much of a response is kept for replay.
	maxRecordedBody = 64 << 10
)

// StoredResponse is a previously produced response.
type StoredResponse struct {
	Status int
	Body   []byte
}

// IdempotencyLookup returns the stored response for (subject, scope, key), or
// nil when none exists or it has expired. Errors do not block processing.
type IdempotencyLookup func(ctx context.Context, subject, scope, key string, now time.Time) (*StoredResponse, error)

// IdempotencySave persists a successful response. resourceID is whatever the
// handler registered via SetIdempotentResource.
type IdempotencySave func(ctx context.Context, subject, scope, key, resourceID string, resp StoredResponse) error

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. If nil: ^[A-Za-z0-9._~\-:]+$
	Pattern *regexp.Regexp
	// Save stores 2xx responses. Nil disables recording.
	Save IdempotencySave
}

// GetIdempotencyKey returns the validated idempotency key stored in the Gin
// context by IdempotencyValidator. The second return value indicates presence.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := asString(c.Value(ctxKeyIdemKey))
	return s, s != ""
}

// IsReplay reports whether the response was served from the store.
func IsReplay(c *gin.Context) bool {
	b, _ := c.Value(ctxKeyIdemReplay).(bool)
	return b
}

// SetIdempotentResource records the id of the resource the current request
// produced, stored alongside the replayable response.
func SetIdempotentResource(c *gin.Context, id string) {
	c.Set(ctxKeyIdemResource, id)
}

// IdempotencySubject identifies the caller for idempotency scoping.
func IdempotencySubject(c *gin.Context) string {
	if uid := UserID(c); uid != "" {
		return "user:" + uid
	}
	if tid := TemporaryID(c); tid != "" {
		return "temp:" + tid
	}
	return "ip:" + c.ClientIP()
}

// IdempotencyValidator validates the Idempotency-Key header on unsafe methods.
//
// Behavior:
//   - Safe methods and requests without the header pass through untouched.
//   - A malformed key is rejected with 400.
//   - A stored response is replayed verbatim with Idempotent-Replayed: true,
//     and the handler does not run.
//   - Otherwise the handler runs and a 2xx response is saved.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}

	return func(c *gin.Context) {
		if !unsafeMethod(c.Request.Method) {
			c.Next()
			return
		}
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			abortJSON(c, http.StatusBadRequest, "bad_idempotency_key", "invalid Idempotency-Key")
			return
		}
		c.Set(ctxKeyIdemKey, key)

		subject := IdempotencySubject(c)
		scope := c.FullPath()
		if scope == "" {
			scope = c.Request.URL.Path
		}
		ctx := c.Request.Context()

		if lookup != nil {
			stored, err := lookup(ctx, subject, scope, key, time.Now().UTC())
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			}
			if stored != nil {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
				c.Header(HeaderIdempotentReplayed, "true")
				c.Data(stored.Status, "application/json; charset=utf-8", stored.Body)
				c.Abort()
				return
			}
		}

		if opts.Save == nil {
			c.Next()
			return
		}

		rec := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		status := rec.Status()
		if status < 200 || status >= 300 || rec.overflow {
			return
		}
		resourceID := asString(c.Value(ctxKeyIdemResource))
		resp := StoredResponse{Status: status, Body: rec.body.Bytes()}
		if err := opts.Save(ctx, subject, scope, key, resourceID, resp); err != nil {
			LoggerFrom(c).Warn().Err(err).Str("idempotency_key", key).Msg("could not store idempotent response")
		}
	}
}

func unsafeMethod(m string) bool {
	switch m {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// recordingWriter tees the response body into a bounded buffer.
type recordingWriter struct {
	gin.ResponseWriter
	body     bytes.Buffer
	overflow bool
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.capture(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.capture([]byte(s))
	return w.ResponseWriter.WriteString(s)
}

func (w *recordingWriter) capture(b []byte) {
	if w.overflow {
		return
	}
	if w.body.Len()+len(b) > maxRecordedBody {
		w.overflow = true
		w.body.Reset()
		return
	}
	w.body.Write(b)
}
