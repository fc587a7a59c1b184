// Package apiclient is a small HTTP client for the settlement API. It
// implements the wizard collaborators (gate, checkout, submission,
// confirmation) and the email-existence checker, returning *remote.Error for
// every failed call.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/tbourn/settlement-showcase/internal/form"
	"github.com/tbourn/settlement-showcase/internal/redirect"
	"github.com/tbourn/settlement-showcase/internal/remote"
	"github.com/tbourn/settlement-showcase/internal/wizard"
)

// DefaultTimeout bounds every request when no http.Client is supplied.
const DefaultTimeout = 15 * time.Second

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// TokenSource returns the current bearer token, or "" when anonymous.
type TokenSource func(ctx context.Context) (string, error)

// Client talks to the API rooted at BaseURL (for example
// "https://api.example.com/api/v1").
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Token   TokenSource
}

// New returns a Client for baseURL.
func New(baseURL string, token TokenSource) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: DefaultTimeout},
		Token:   token,
	}
}

// apiError mirrors the server's error envelope.
type apiError struct {
	RequestID string            `json:"request_id"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// FieldErrors returns per-field validation messages carried by err, if any.
func FieldErrors(err error) map[form.Field]string {
	var fe *fieldError
	if !errors.As(err, &fe) {
		return nil
	}
	out := make(map[form.Field]string, len(fe.fields))
	for k, v := range fe.fields {
		out[form.Field(k)] = v
	}
	return out
}

type fieldError struct{ fields map[string]string }

func (e *fieldError) Error() string { return fmt.Sprintf("%d invalid fields", len(e.fields)) }

type call struct {
	method      string
	path        string
	query       url.Values
	body        any
	temporaryID string
	idemKey     string
}

func (c *Client) do(ctx context.Context, in call, out any) error {
	var rd io.Reader
	if in.body != nil {
		b, err := json.Marshal(in.body)
		if err != nil {
			return remote.Wrap(remote.KindInternal, err)
		}
		rd = bytes.NewReader(b)
	}
	u := c.BaseURL + in.path
	if len(in.query) > 0 {
		u += "?" + in.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, in.method, u, rd)
	if err != nil {
		return remote.Wrap(remote.KindInternal, err)
	}
	req.Header.Set("Accept", "application/json")
	if in.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if in.temporaryID != "" {
		req.Header.Set("X-Temporary-ID", in.temporaryID)
	}
	if in.idemKey != "" {
		req.Header.Set("Idempotency-Key", in.idemKey)
	}
	if c.Token != nil {
		tok, err := c.Token(ctx)
		if err != nil {
			return remote.Wrap(remote.KindUnauthorized, err)
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return remote.Wrap(remote.KindNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &remote.Error{Kind: remote.KindInternal, Message: "malformed response", Status: resp.StatusCode, Err: err}
	}
	return nil
}

func decodeError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	e := &remote.Error{Kind: remote.FromStatus(resp.StatusCode), Status: resp.StatusCode}
	var env apiError
	if json.Unmarshal(b, &env) == nil && env.Message != "" {
		e.Message = env.Message
		if len(env.Fields) > 0 {
			e.Err = &fieldError{fields: env.Fields}
		}
	} else {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}

// EmailExists implements emailcheck.Checker.
func (c *Client) EmailExists(ctx context.Context, email string) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	err := c.do(ctx, call{method: http.MethodPost, path: "/email-checks", body: map[string]string{"email": email}}, &out)
	return out.Exists, err
}

// SubscriptionActive implements wizard.Gate.
func (c *Client) SubscriptionActive(ctx context.Context, temporaryID string) (bool, error) {
	q := url.Values{}
	if temporaryID != "" {
		q.Set(redirect.ParamTemporaryID, temporaryID)
	}
	var out struct {
		Active bool `json:"active"`
	}
	err := c.do(ctx, call{method: http.MethodGet, path: "/subscription/status", query: q}, &out)
	return out.Active, err
}

// BeginCheckout implements wizard.Checkout.
func (c *Client) BeginCheckout(ctx context.Context, req wizard.CheckoutRequest) (*wizard.CheckoutResult, error) {
	body := struct {
		TemporaryID string     `json:"temporary_id"`
		Email       string     `json:"email,omitempty"`
		ReturnURL   string     `json:"return_url,omitempty"`
		Draft       form.Draft `json:"draft"`
	}{req.TemporaryID, req.Email, req.ReturnURL, req.Draft}

	var out struct {
		URL              string `json:"url"`
		SessionID        string `json:"session_id"`
		SettlementID     string `json:"settlement_id"`
		AlreadyCompleted bool   `json:"already_completed"`
	}
	err := c.do(ctx, call{
		method:      http.MethodPost,
		path:        "/checkout-sessions",
		body:        body,
		temporaryID: req.TemporaryID,
		idemKey:     req.IdempotencyKey,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.URL == "" && !out.AlreadyCompleted {
		return nil, remote.New(remote.KindProvider, "checkout session has no url")
	}
	return &wizard.CheckoutResult{
		URL:              out.URL,
		SessionID:        out.SessionID,
		SettlementID:     out.SettlementID,
		AlreadyCompleted: out.AlreadyCompleted,
	}, nil
}

// SubmitSettlement implements wizard.Submitter.
func (c *Client) SubmitSettlement(ctx context.Context, temporaryID string, d form.Draft) (string, error) {
	body := struct {
		TemporaryID string     `json:"temporary_id,omitempty"`
		Draft       form.Draft `json:"draft"`
	}{temporaryID, d}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, call{method: http.MethodPost, path: "/submissions", body: body, temporaryID: temporaryID}, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// ConfirmCheckout implements wizard.Confirmer.
func (c *Client) ConfirmCheckout(ctx context.Context, sessionID, temporaryID string) error {
	q := url.Values{}
	q.Set(redirect.ParamSessionID, sessionID)
	if temporaryID != "" {
		q.Set(redirect.ParamTemporaryID, temporaryID)
	}
	return c.do(ctx, call{method: http.MethodGet, path: "/confirmation", query: q}, nil)
}
