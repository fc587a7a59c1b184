// Package services – SubscriptionGate
//
// This file implements the subscription gate: it answers whether an identity
// may submit a settlement without paying again. The identity is resolved by
// priority, the authenticated user id first and the anonymous temporary id
// otherwise. A subscription counts as active when its active flag is set and
// its window ends strictly after now.
//
// Clients use the answer for routing only. Direct submission re-runs the
// gate server-side before anything is marked payment-completed.
package services

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/settlement-showcase/internal/repo"
)

// Identity identifies the submitter of a settlement.
type Identity struct {
	UserID      string
	TemporaryID string
}

// Normalize trims both identifiers.
func (i Identity) Normalize() Identity {
	return Identity{UserID: strings.TrimSpace(i.UserID), TemporaryID: strings.TrimSpace(i.TemporaryID)}
}

// Empty reports whether neither identifier is set.
func (i Identity) Empty() bool { return i.UserID == "" && i.TemporaryID == "" }

// SubscriptionGate decides whether an identity holds an active subscription.
type SubscriptionGate struct {
	DB  *gorm.DB
	Now func() time.Time
}

// NewSubscriptionGate constructs a gate reading subscriptions from db.
func NewSubscriptionGate(db *gorm.DB) *SubscriptionGate {
	return &SubscriptionGate{DB: db, Now: time.Now}
}

// HasActiveSubscription reports whether id holds an active subscription.
// An empty identity never does.
func (g *SubscriptionGate) HasActiveSubscription(ctx context.Context, id Identity) (bool, error) {
	id = id.Normalize()
	tr := otel.Tracer("services/SubscriptionGate")
	ctx, span := tr.Start(ctx, "HasActiveSubscription",
		trace.WithAttributes(
			attribute.Bool("identity.authenticated", id.UserID != ""),
		),
	)
	defer span.End()

	now := g.Now().UTC()
	switch {
	case id.UserID != "":
		return repo.HasActiveSubscriptionByUser(ctx, g.DB, id.UserID, now)
	case id.TemporaryID != "":
		return repo.HasActiveSubscriptionByTemporaryID(ctx, g.DB, id.TemporaryID, now)
	default:
		return false, nil
	}
}
