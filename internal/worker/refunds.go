package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"jumpgen/internal/model"
	"jumpgen/internal/service"
)

const (
	refundQueue       = "refund_workers"
	refundAckWait     = 30 * time.Second
	redeliveryBackoff = 10 * time.Second
)

// errBadEvent marks an event no redelivery can fix. Such events are
// terminated instead of retried forever.
var errBadEvent = errors.New("malformed refund event")

// RefundWorker drains the refund reconciliation queue: every refund the
// orchestrator could not apply inline lands here and is replayed against
// the ledger. Events are acked only after the credit lands; a failed
// attempt is nak'd and redelivered, and the ledger's reference-keyed
// idempotency makes any replay harmless.
type RefundWorker struct {
	svc      service.GenerationService
	natsConn *nats.Conn
}

func NewRefundWorker(svc service.GenerationService, nc *nats.Conn) *RefundWorker {
	return &RefundWorker{svc: svc, natsConn: nc}
}

// Start subscribes to the refunds subject and blocks until ctx is
// cancelled. The queue group spreads messages across replicas so each
// delivery is handled by exactly one worker; unacked deliveries come back
// after the ack wait even if that worker dies mid-apply.
func (w *RefundWorker) Start(ctx context.Context) error {
	js, err := w.natsConn.JetStream()
	if err != nil {
		return fmt.Errorf("refund worker: jetstream context: %w", err)
	}

	sub, err := js.QueueSubscribe(service.RefundsSubject, refundQueue, func(m *nats.Msg) {
		err := w.apply(ctx, m.Data)
		switch {
		case err == nil:
			_ = m.Ack()
		case errors.Is(err, errBadEvent):
			slog.Error("refund worker: dropping undecodable event", "error", err)
			_ = m.Term()
		default:
			slog.Warn("refund worker: refund not applied, leaving for redelivery", "error", err)
			_ = m.NakWithDelay(redeliveryBackoff)
		}
	}, nats.ManualAck(), nats.AckWait(refundAckWait))
	if err != nil {
		return fmt.Errorf("refund worker: subscribe: %w", err)
	}

	slog.Info("refund worker is running")

	<-ctx.Done()

	slog.Info("refund worker shutting down, draining subscription...")
	return sub.Drain()
}

// apply replays one queued refund against the ledger. Any returned error
// except errBadEvent means the event must be redelivered.
func (w *RefundWorker) apply(ctx context.Context, data []byte) error {
	var event model.RefundEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("%w: %v", errBadEvent, err)
	}
	if err := w.svc.ApplyRefund(ctx, event); err != nil {
		return fmt.Errorf("apply refund %s: %w", event.ReferenceID, err)
	}
	slog.Info("refund worker: refund applied",
		"user_id", event.UserID,
		"reference_id", event.ReferenceID,
	)
	return nil
}

// Stop implements the infrastructure.Server interface (shutdown is via ctx).
func (w *RefundWorker) Stop(ctx context.Context) error {
	return nil
}
