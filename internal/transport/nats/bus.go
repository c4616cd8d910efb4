package nats

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// refundsStream is the JetStream stream backing the refund
	// reconciliation queue. File storage keeps queued refunds across
	// broker restarts and worker downtime.
	refundsStream = "CREDITS"
	refundsMaxAge = 7 * 24 * time.Hour
)

// Bus publishes service events through JetStream. Publish returns only
// after the broker acknowledges persistence, so an event published while
// every consumer is down is delivered once one comes back.
type Bus struct {
	js nats.JetStreamContext
}

// NewBus ensures the backing stream covers the given subjects before any
// publish happens.
func NewBus(nc *nats.Conn, subjects ...string) (*Bus, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     refundsStream,
		Subjects: subjects,
		Storage:  nats.FileStorage,
		MaxAge:   refundsMaxAge,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return nil, fmt.Errorf("ensure stream %s: %w", refundsStream, err)
	}
	return &Bus{js: js}, nil
}

func (b *Bus) Publish(subject string, data []byte) error {
	_, err := b.js.Publish(subject, data)
	return err
}
