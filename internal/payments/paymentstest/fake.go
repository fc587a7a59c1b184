// Package paymentstest provides an in-memory payments.Provider for tests.
package paymentstest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tbourn/settlement-showcase/internal/payments"
	"github.com/tbourn/settlement-showcase/internal/remote"
)

// Provider records checkout requests and serves sessions and subscriptions
// from maps. Set CreateErr or GetErr to simulate provider failures.
type Provider struct {
	mu            sync.Mutex
	Requests      []payments.CheckoutRequest
	Sessions      map[string]*payments.Session
	Subscriptions map[string]*payments.Subscription
	CreateErr     error
	GetErr        error
	WebhookSecret string
	next          int
}

// New returns an empty fake provider.
func New() *Provider {
	return &Provider{
		Sessions:      map[string]*payments.Session{},
		Subscriptions: map[string]*payments.Subscription{},
		WebhookSecret: "whsec_fake",
	}
}

func (p *Provider) CreateCheckoutSession(_ context.Context, req payments.CheckoutRequest) (*payments.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if p.CreateErr != nil {
		return nil, p.CreateErr
	}
	p.next++
	id := fmt.Sprintf("cs_fake_%d", p.next)
	s := &payments.Session{
		ID:                id,
		URL:               "https://checkout.fake/pay/" + id,
		ClientReferenceID: req.TemporaryID,
		Metadata:          map[string]string{payments.MetaTemporaryID: req.TemporaryID},
		CustomerEmail:     req.CustomerEmail,
	}
	if req.UserID != "" {
		s.Metadata[payments.MetaUserID] = req.UserID
	}
	p.Sessions[id] = s
	return s, nil
}

func (p *Provider) GetCheckoutSession(_ context.Context, id string) (*payments.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.GetErr != nil {
		return nil, p.GetErr
	}
	s, ok := p.Sessions[id]
	if !ok {
		return nil, remote.New(remote.KindNotFound, "no such checkout session")
	}
	cp := *s
	return &cp, nil
}

func (p *Provider) GetSubscription(_ context.Context, id string) (*payments.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.GetErr != nil {
		return nil, p.GetErr
	}
	s, ok := p.Subscriptions[id]
	if !ok {
		return nil, remote.New(remote.KindNotFound, "no such subscription")
	}
	cp := *s
	return &cp, nil
}

// ParseWebhook accepts payloads encoded by Event and rejects any signature
// other than WebhookSecret.
func (p *Provider) ParseWebhook(payload []byte, signature string) (*payments.Event, error) {
	if signature != p.WebhookSecret {
		return nil, payments.ErrInvalidSignature
	}
	var ev payments.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	ev.Payload = payload
	return &ev, nil
}

// Complete marks a created session as paid, attaching a subscription.
func (p *Provider) Complete(sessionID string, sub *payments.Subscription) *payments.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.Sessions[sessionID]
	if s == nil {
		s = &payments.Session{ID: sessionID, Metadata: map[string]string{}}
		p.Sessions[sessionID] = s
	}
	s.Paid, s.Complete = true, true
	if sub != nil {
		s.SubscriptionID = sub.ID
		s.Subscription = sub
		p.Subscriptions[sub.ID] = sub
	}
	return s
}

// Event encodes ev as a payload accepted by ParseWebhook.
func Event(ev payments.Event) []byte {
	b, _ := json.Marshal(ev)
	return b
}
