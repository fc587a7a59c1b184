// Package redirect builds and parses the URLs that carry a checkout attempt
// across the payment provider's redirect round-trip.
//
// Providers and intermediaries may emit duplicated '?' delimiters
// (".../confirmation??session_id=abc?temporaryId=xyz"). Every '?' after the
// first is treated as '&' instead of rejecting the URL.
package redirect

import (
	"errors"
	"net/url"
	"strings"
)

// Query parameter names.
const (
	ParamSessionID   = "session_id"
	ParamTemporaryID = "temporaryId"
	ParamCanceled    = "canceled"

	// SessionPlaceholder is substituted by the payment provider with the
	// checkout session id.
	SessionPlaceholder = "{CHECKOUT_SESSION_ID}"
)

// ErrNoParams is returned when a return URL carries neither a session id
// nor a temporary id.
var ErrNoParams = errors.New("redirect: no session or temporary id in return url")

// Confirmation is what a return redirect carries.
type Confirmation struct {
	SessionID   string
	TemporaryID string
	Canceled    bool
}

// ParseConfirmation extracts a Confirmation from a full return URL (or a
// bare query string). Values are trimmed; truncated values are returned as
// they are and left to server-side verification.
func ParseConfirmation(raw string) (Confirmation, error) {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}
	q := raw
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		q = raw[i+1:]
	} else if !strings.Contains(raw, "=") {
		return Confirmation{}, ErrNoParams
	}
	return ParseQuery(q)
}

// ParseQuery is ParseConfirmation for an already isolated raw query, such as
// http.Request.URL.RawQuery (which keeps any extra leading '?').
func ParseQuery(rawQuery string) (Confirmation, error) {
	vals := Sanitize(rawQuery)
	c := Confirmation{
		SessionID:   first(vals, ParamSessionID),
		TemporaryID: first(vals, ParamTemporaryID, "temporary_id"),
	}
	switch strings.ToLower(first(vals, ParamCanceled)) {
	case "1", "true", "yes":
		c.Canceled = true
	}
	if c.SessionID == "" && c.TemporaryID == "" {
		return c, ErrNoParams
	}
	return c, nil
}

// Sanitize rewrites stray '?' delimiters to '&' and decodes the result.
// Pairs with malformed escapes keep their raw text instead of failing the
// whole query.
func Sanitize(rawQuery string) url.Values {
	rawQuery = strings.ReplaceAll(rawQuery, "?", "&")
	out := url.Values{}
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		out.Add(unescape(k), unescape(v))
	}
	return out
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return strings.TrimSpace(u)
	}
	return strings.TrimSpace(s)
}

func first(vals url.Values, keys ...string) string {
	for _, k := range keys {
		for _, v := range vals[k] {
			if v != "" {
				return v
			}
		}
	}
	return ""
}

// SuccessURL is the provider success redirect for a checkout attempt. The
// session placeholder is left unescaped so the provider can substitute it.
func SuccessURL(returnURL, temporaryID string) string {
	return strings.TrimRight(returnURL, "/") + "/confirmation?" +
		ParamSessionID + "=" + SessionPlaceholder +
		"&" + ParamTemporaryID + "=" + url.QueryEscape(temporaryID)
}

// CancelURL is the provider cancel redirect, returning to the submit page
// with the draft's temporary id.
func CancelURL(returnURL, temporaryID string) string {
	return strings.TrimRight(returnURL, "/") + "/submit?" +
		ParamCanceled + "=1&" + ParamTemporaryID + "=" + url.QueryEscape(temporaryID)
}

// BuildConfirmationURL produces the canonical confirmation URL for a
// completed session.
func BuildConfirmationURL(baseURL, sessionID, temporaryID string) string {
	v := url.Values{}
	v.Set(ParamSessionID, sessionID)
	if temporaryID != "" {
		v.Set(ParamTemporaryID, temporaryID)
	}
	return strings.TrimRight(baseURL, "/") + "/confirmation?" + v.Encode()
}
