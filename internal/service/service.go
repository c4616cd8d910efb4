package service

import (
	"context"

	"jumpgen/internal/model"
)

// GenerationService defines the business operations of the product core.
// Transport layers and workers depend on this interface, not on the
// concrete orchestrator.
type GenerationService interface {
	Generate(ctx context.Context, req model.GenerateRequest) (*model.Jump, error)
	Balance(ctx context.Context, userID string) (int64, error)
	Purchase(ctx context.Context, req model.PurchaseRequest) error
	Transactions(ctx context.Context, userID string) ([]model.CreditTransaction, error)
	Track(ctx context.Context, jumpID string, event model.EngagementEvent) error
	ApplyRefund(ctx context.Context, event model.RefundEvent) error
}

// MessageBus publishes events for asynchronous processing.
type MessageBus interface {
	Publish(subject string, data []byte) error
}

// RefundsSubject carries refunds that could not be applied inline and
// must be reconciled by the queue worker.
const RefundsSubject = "credits.refunds"
