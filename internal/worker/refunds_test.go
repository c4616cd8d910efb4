package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"jumpgen/internal/model"
)

type mockService struct {
	applyErrs []error
	applied   []model.RefundEvent
}

func (m *mockService) ApplyRefund(ctx context.Context, event model.RefundEvent) error {
	if len(m.applyErrs) > 0 {
		err := m.applyErrs[0]
		m.applyErrs = m.applyErrs[1:]
		if err != nil {
			return err
		}
	}
	m.applied = append(m.applied, event)
	return nil
}

func (m *mockService) Generate(ctx context.Context, req model.GenerateRequest) (*model.Jump, error) {
	return nil, nil
}
func (m *mockService) Balance(ctx context.Context, userID string) (int64, error) { return 0, nil }
func (m *mockService) Purchase(ctx context.Context, req model.PurchaseRequest) error {
	return nil
}
func (m *mockService) Transactions(ctx context.Context, userID string) ([]model.CreditTransaction, error) {
	return nil, nil
}
func (m *mockService) Track(ctx context.Context, jumpID string, event model.EngagementEvent) error {
	return nil
}

func encodeEvent(t *testing.T, event model.RefundEvent) []byte {
	t.Helper()
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// A refund that fails on first delivery must fail in a retryable way and
// land on the next delivery of the same event.
func TestApplyRetriesOnRedelivery(t *testing.T) {
	svc := &mockService{applyErrs: []error{errors.New("ledger unavailable")}}
	w := NewRefundWorker(svc, nil)
	data := encodeEvent(t, model.RefundEvent{
		UserID:      "u1",
		Amount:      1,
		ReferenceID: "req-1:refund",
	})

	err := w.apply(context.Background(), data)
	if err == nil {
		t.Fatal("first delivery: expected an error")
	}
	if errors.Is(err, errBadEvent) {
		t.Fatalf("first delivery: error %v classified as undecodable, would be terminated instead of redelivered", err)
	}
	if len(svc.applied) != 0 {
		t.Fatalf("first delivery: %d refunds applied, want 0", len(svc.applied))
	}

	if err := w.apply(context.Background(), data); err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if len(svc.applied) != 1 || svc.applied[0].ReferenceID != "req-1:refund" {
		t.Fatalf("applied = %+v, want one refund for req-1:refund", svc.applied)
	}
}

func TestApplyTerminatesUndecodableEvent(t *testing.T) {
	svc := &mockService{}
	w := NewRefundWorker(svc, nil)

	err := w.apply(context.Background(), []byte("{not json"))
	if !errors.Is(err, errBadEvent) {
		t.Fatalf("error = %v, want errBadEvent", err)
	}
	if len(svc.applied) != 0 {
		t.Fatalf("%d refunds applied from garbage payload", len(svc.applied))
	}
}
