package model

import "time"

// GenerateRequest is the caller-facing contract for producing a jump.
// IdempotencyKey doubles as the ledger reference for the debit and, with
// a ":refund" suffix, for any compensating credit.
type GenerateRequest struct {
	UserID         string `json:"user_id"`
	Goal           string `json:"goal"`
	Model          string `json:"model,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Jump is a persisted, generated execution plan.
type Jump struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Goal      string    `json:"goal"`
	Model     string    `json:"model"`
	Plan      JumpPlan  `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
}

// JumpPlan is the structured form recovered from model output.
type JumpPlan struct {
	Title   string  `json:"title"`
	Summary string  `json:"summary,omitempty"`
	Phases  []Phase `json:"phases"`
}

type Phase struct {
	Name      string `json:"name"`
	Objective string `json:"objective,omitempty"`
	Steps     []Step `json:"steps"`
}

type Step struct {
	Description string   `json:"description"`
	Tools       []string `json:"tools,omitempty"`
	Prompt      string   `json:"prompt,omitempty"`
}

// UsageCounters are best-effort engagement metrics for one jump. The
// additive fields mean "at least N events": updates are read-modify-write
// and concurrent trackers can lose increments. MaxClarificationLevel is a
// running maximum, monotonically non-decreasing.
type UsageCounters struct {
	JumpID                string `json:"jump_id"`
	Views                 int64  `json:"views"`
	Clarifications        int64  `json:"clarifications"`
	MaxClarificationLevel int64  `json:"max_clarification_level"`
	Reroutes              int64  `json:"reroutes"`
	ToolClicks            int64  `json:"tool_clicks"`
	PromptCopies          int64  `json:"prompt_copies"`
	ComboUses             int64  `json:"combo_uses"`
	Shares                int64  `json:"shares"`
}

// EngagementEvent is one tracking call against a jump.
type EngagementEvent struct {
	Kind  string `json:"kind"`
	Level int64  `json:"level,omitempty"`
}

const (
	EventView          = "view"
	EventClarification = "clarification"
	EventReroute       = "reroute"
	EventToolClick     = "tool_click"
	EventPromptCopy    = "prompt_copy"
	EventComboUse      = "combo_use"
	EventShare         = "share"
)
