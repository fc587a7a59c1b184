// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger. It never logs
// bodies, masks credential headers, and scrubs identifiers from the query
// string and header values: checkout session ids, temporary ids, and email
// addresses must not end up in log storage.
//
// Usage:
//
//	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
//	    MaskHeaders: []string{"Stripe-Signature"},
//	}))
package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures additional scrub behavior for RedactingLogger.
type RedactOptions struct {
	// MaskHeaders are extra header names whose values are replaced with
	// "[REDACTED]". Matching is case-insensitive and merged with
	// Authorization, Cookie, Set-Cookie and X-User-Email.
	MaskHeaders []string
	// MaskParams are extra query parameters whose values are replaced.
	// Merged with session_id, temporaryId, temporary_id and email.
	MaskParams []string
}

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits only so hex runs inside ids never match.
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
	// Checkout session ids as issued by the payment provider.
	checkoutSessionRE = regexp.MustCompile(`\bcs_(?:test|live)_[A-Za-z0-9]+\b`)
)

// redact applies the pattern substitutions. UUIDs go before phone numbers so
// the loose phone pattern never eats UUID segments.
func redact(s string) string {
	if s == "" {
		return s
	}
	out := checkoutSessionRE.ReplaceAllString(s, "[REDACTED:session]")
	out = uuidRE.ReplaceAllString(out, "[REDACTED:id]")
	out = emailRE.ReplaceAllString(out, "[REDACTED:email]")
	out = phoneRE.ReplaceAllString(out, "[REDACTED:phone]")
	return out
}

func lowerSet(base []string, extra []string) map[string]struct{} {
	m := make(map[string]struct{}, len(base)+len(extra))
	for _, s := range append(base, extra...) {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			m[s] = struct{}{}
		}
	}
	return m
}

// redactQuery masks named parameters and scrubs the rest. Unparseable
// queries are scrubbed as a whole.
func redactQuery(raw string, params map[string]struct{}) string {
	if raw == "" {
		return ""
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return redact(raw)
	}
	for k, vv := range vals {
		_, masked := params[strings.ToLower(k)]
		for i := range vv {
			if masked {
				vv[i] = "[REDACTED]"
			} else {
				vv[i] = redact(vv[i])
			}
		}
	}
	// Encode escapes the brackets; decode so the log stays readable.
	out, err := url.QueryUnescape(vals.Encode())
	if err != nil {
		return vals.Encode()
	}
	return out
}

// RedactingLogger returns a Gin middleware that writes one structured access
// line per request: INFO for 2xx/3xx, WARN for 4xx, ERROR for 5xx.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := lowerSet([]string{"authorization", "cookie", "set-cookie", strings.ToLower(HeaderUserEmail)}, opts.MaskHeaders)
	maskParams := lowerSet([]string{"session_id", "temporaryid", "temporary_id", "email"}, opts.MaskParams)

	return func(c *gin.Context) {
		start := time.Now()

		safeQuery := redactQuery(c.Request.URL.RawQuery, maskParams)
		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = truncate(redact(strings.Join(vv, ", ")), 256)
		}

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = redact(c.Request.URL.Path)
		}
		status := c.Writer.Status()

		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		if uid := UserID(c); uid != "" {
			ev = ev.Str("user_id", uid)
		}
		if IsReplay(c) {
			ev = ev.Bool("idempotent_replay", true)
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", truncate(redact(c.Errors.String()), 512))
		}

		ev.
			Str("request_id", RequestIDFrom(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", safeQuery).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
