package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"jumpgen/internal/model"
)

// Ledger is the authoritative balance store. Admission control and every
// money-equivalent mutation go through here and nowhere else.
type Ledger interface {
	Initialize(ctx context.Context, userID string) error
	TryDebit(ctx context.Context, userID string, amount int64, description, referenceID string) (bool, error)
	Credit(ctx context.Context, userID string, amount int64, txType model.TransactionType, description, referenceID string) error
	Balance(ctx context.Context, userID string) (int64, error)
	Transactions(ctx context.Context, userID string) ([]model.CreditTransaction, error)
}

// ModelInvoker calls the text-generation endpoint.
type ModelInvoker interface {
	Invoke(ctx context.Context, prompt, modelName string) (string, error)
}

// PlanParser recovers a JSON document from raw model output.
type PlanParser interface {
	Extract(text string) (json.RawMessage, bool)
}

// JumpStore persists generated jumps.
type JumpStore interface {
	Create(ctx context.Context, jump *model.Jump) error
}

// CounterStore records engagement events. Best-effort only.
type CounterStore interface {
	RecordView(ctx context.Context, jumpID string) error
	RecordClarification(ctx context.Context, jumpID string, level int64) error
	RecordReroute(ctx context.Context, jumpID string) error
	RecordToolClick(ctx context.Context, jumpID string) error
	RecordPromptCopy(ctx context.Context, jumpID string) error
	RecordComboUsage(ctx context.Context, jumpID string) error
	RecordShare(ctx context.Context, jumpID string) error
}

const (
	generationCost    = 1
	refundTimeout     = 5 * time.Second
	debitDescription  = "jump generation"
	refundDescription = "refund for failed generation"
)

// Orchestrator composes ledger, model client, parser and stores into the
// generate cycle: reserve a credit, invoke the model, parse, persist.
// Any failure after a successful debit is compensated with a refund keyed
// off the debit reference, so the whole operation is safe to retry.
type Orchestrator struct {
	ledger       Ledger
	invoker      ModelInvoker
	parser       PlanParser
	jumps        JumpStore
	counters     CounterStore
	bus          MessageBus
	defaultModel string
}

func NewOrchestrator(ledger Ledger, invoker ModelInvoker, parser PlanParser, jumps JumpStore, counters CounterStore, bus MessageBus, defaultModel string) *Orchestrator {
	return &Orchestrator{
		ledger:       ledger,
		invoker:      invoker,
		parser:       parser,
		jumps:        jumps,
		counters:     counters,
		bus:          bus,
		defaultModel: defaultModel,
	}
}

// Generate runs one paid generation. State transitions:
// debit reserved -> model invoked -> parsed -> persisted. A denied debit
// returns ErrInsufficientCredits with nothing spent; a failure on any
// later edge refunds the debit before returning the typed error.
func (o *Orchestrator) Generate(ctx context.Context, req model.GenerateRequest) (*model.Jump, error) {
	if req.IdempotencyKey == "" {
		// Without a caller key the refund reference still needs an anchor.
		req.IdempotencyKey = uuid.NewString()
	}
	modelName := req.Model
	if modelName == "" {
		modelName = o.defaultModel
	}

	if err := o.ledger.Initialize(ctx, req.UserID); err != nil {
		return nil, fmt.Errorf("initialize account: %w", err)
	}

	granted, err := o.ledger.TryDebit(ctx, req.UserID, generationCost, debitDescription, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if !granted {
		return nil, model.ErrInsufficientCredits
	}

	raw, err := o.invoker.Invoke(ctx, planPrompt(req.Goal), modelName)
	if err != nil {
		o.refund(ctx, req)
		return nil, err
	}

	plan, ok := o.decodePlan(raw)
	if !ok {
		o.refund(ctx, req)
		return nil, &model.ParseError{Raw: raw}
	}

	jump := &model.Jump{
		ID:     uuid.NewString(),
		UserID: req.UserID,
		Goal:   req.Goal,
		Model:  modelName,
		Plan:   *plan,
	}
	if err := o.jumps.Create(ctx, jump); err != nil {
		o.refund(ctx, req)
		return nil, fmt.Errorf("persist jump: %w", err)
	}
	return jump, nil
}

// decodePlan extracts a document and checks it actually carries a plan.
// Valid JSON with no phases is still a parse failure: the credit bought a
// plan, not an arbitrary object.
func (o *Orchestrator) decodePlan(raw string) (*model.JumpPlan, bool) {
	doc, ok := o.parser.Extract(raw)
	if !ok {
		return nil, false
	}
	var plan model.JumpPlan
	if err := json.Unmarshal(doc, &plan); err != nil {
		return nil, false
	}
	if len(plan.Phases) == 0 {
		return nil, false
	}
	return &plan, true
}

// refund issues the compensating credit for a post-debit failure. It runs
// on a cancellation-immune context so a disconnected caller cannot leave
// a debited-but-unserved account. If the credit cannot be applied now,
// the refund is queued for the reconciliation worker; the reference keeps
// every path idempotent.
func (o *Orchestrator) refund(ctx context.Context, req model.GenerateRequest) {
	event := model.RefundEvent{
		UserID:      req.UserID,
		Amount:      generationCost,
		Description: refundDescription,
		ReferenceID: refundReference(req.IdempotencyKey),
		CreatedAt:   time.Now().UTC(),
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refundTimeout)
	defer cancel()

	err := o.ledger.Credit(rctx, event.UserID, event.Amount, model.TransactionRefund, event.Description, event.ReferenceID)
	if err == nil {
		return
	}
	slog.Warn("generate: inline refund failed, queueing for reconciliation",
		"user_id", event.UserID, "reference_id", event.ReferenceID, "error", err)

	data, _ := json.Marshal(event)
	if pubErr := o.bus.Publish(RefundsSubject, data); pubErr != nil {
		// Both the ledger and the bus are down. Loud log is all that is
		// left; losing this line silently would be a correctness bug.
		slog.Error("generate: refund could not be applied or queued",
			"user_id", event.UserID, "reference_id", event.ReferenceID, "error", pubErr)
	}
}

// ApplyRefund is invoked by the reconciliation worker for queued refunds.
// Redelivery is harmless: the credit is idempotent on the reference.
func (o *Orchestrator) ApplyRefund(ctx context.Context, event model.RefundEvent) error {
	return o.ledger.Credit(ctx, event.UserID, event.Amount, model.TransactionRefund, event.Description, event.ReferenceID)
}

func (o *Orchestrator) Balance(ctx context.Context, userID string) (int64, error) {
	return o.ledger.Balance(ctx, userID)
}

// Purchase records a completed payment. Called by the payment webhook
// with the processor's reference, so processor retries are no-ops.
func (o *Orchestrator) Purchase(ctx context.Context, req model.PurchaseRequest) error {
	if err := o.ledger.Initialize(ctx, req.UserID); err != nil {
		return err
	}
	description := req.Description
	if description == "" {
		description = "credit purchase"
	}
	return o.ledger.Credit(ctx, req.UserID, req.Amount, model.TransactionPurchase, description, req.ReferenceID)
}

func (o *Orchestrator) Transactions(ctx context.Context, userID string) ([]model.CreditTransaction, error) {
	return o.ledger.Transactions(ctx, userID)
}

// Track maps an engagement event onto its counter.
func (o *Orchestrator) Track(ctx context.Context, jumpID string, event model.EngagementEvent) error {
	switch event.Kind {
	case model.EventView:
		return o.counters.RecordView(ctx, jumpID)
	case model.EventClarification:
		return o.counters.RecordClarification(ctx, jumpID, event.Level)
	case model.EventReroute:
		return o.counters.RecordReroute(ctx, jumpID)
	case model.EventToolClick:
		return o.counters.RecordToolClick(ctx, jumpID)
	case model.EventPromptCopy:
		return o.counters.RecordPromptCopy(ctx, jumpID)
	case model.EventComboUse:
		return o.counters.RecordComboUsage(ctx, jumpID)
	case model.EventShare:
		return o.counters.RecordShare(ctx, jumpID)
	default:
		return fmt.Errorf("%w: %q", model.ErrUnknownEventKind, event.Kind)
	}
}

// refundReference derives the refund idempotency key from the debit's,
// so retried compensations collapse onto one transaction.
func refundReference(idempotencyKey string) string {
	return idempotencyKey + ":refund"
}

func planPrompt(goal string) string {
	return fmt.Sprintf(`You are an execution planner. Decompose the goal below into an actionable plan.

Respond with ONLY a JSON object, no prose, in this shape:
{"title": "...", "summary": "...", "phases": [{"name": "...", "objective": "...", "steps": [{"description": "...", "tools": ["..."], "prompt": "..."}]}]}

Goal: %s`, goal)
}

var _ GenerationService = (*Orchestrator)(nil)
