// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides the request ID injector, the request-scoped logger, and
// panic recovery:
//
//   - RequestID() propagates or mints X-Request-ID and stores it in the Gin
//     context.
//   - RequestLogger() builds a zerolog.Logger carrying the request id and
//     route, and attaches it to both the Gin context and the request's
//     context.Context so services (sysutil.Logger) log with the same fields.
//   - Recovery() converts panics into the JSON error envelope.
//   - LoggerFrom() retrieves the request-scoped logger inside handlers.
//
// Access lines are written by RedactingLogger; RequestLogger never logs on
// its own.
//
// Recommended order: RequestID, RedactingLogger, RequestLogger, Recovery.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// requestIDKey is the Gin context key under which the request ID is stored.
	requestIDKey = "requestID"
	// requestIDHeader is the HTTP header used to propagate the correlation ID.
	requestIDHeader = "X-Request-ID"
	// loggerKey is the Gin context key of the request-scoped logger.
	loggerKey = "logger"
	// maxRequestIDLength bounds client-supplied correlation ids.
	maxRequestIDLength = 128
)

// RequestID attaches (or propagates) a correlation identifier per request.
// Oversized client values are replaced with a fresh UUID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" || len(rid) > maxRequestIDLength {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// RequestLogger stores a logger with request_id and route fields in the Gin
// context and in the request context. The user id is added once
// Authenticate has resolved it.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		l := log.With().
			Str("request_id", RequestIDFrom(c)).
			Str("method", c.Request.Method).
			Str("route", path).
			Logger()
		attachLogger(c, l)
		c.Next()
	}
}

// attachLogger makes l the request-scoped logger in both contexts.
func attachLogger(c *gin.Context, l zerolog.Logger) {
	c.Set(loggerKey, &l)
	c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
}

// Recovery intercepts panics, logs a stack trace, and writes a JSON 500 in
// the standard error envelope when nothing was written yet.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				LoggerFrom(c).Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")

				if !c.Writer.Written() {
					abortJSON(c, http.StatusInternalServerError, "internal_error", "internal server error")
					return
				}
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or the global logger when
// RequestLogger did not run.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// RequestIDFrom returns the correlation id set by RequestID.
func RequestIDFrom(c *gin.Context) string {
	if s := asString(c.Value(requestIDKey)); s != "" {
		return s
	}
	return c.Writer.Header().Get(requestIDHeader)
}

// abortJSON writes the standard {request_id, code, message} envelope.
func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": RequestIDFrom(c),
		"code":       code,
		"message":    msg,
	})
}

// asString converts an arbitrary interface to a string, returning an empty
// string when the value is not a string.
func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// truncate returns s unchanged when within max bytes, otherwise it cuts s to
// max bytes and appends an ellipsis. A max <= 0 disables truncation.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
