package model

import "time"

// TransactionType classifies entries in the credit audit trail.
type TransactionType string

const (
	TransactionPurchase     TransactionType = "purchase"
	TransactionUsage        TransactionType = "usage"
	TransactionWelcomeBonus TransactionType = "welcome_bonus"
	TransactionRefund       TransactionType = "refund"
)

// CreditAccount holds the spendable balance for one user.
// Balance is only ever mutated through ledger operations and always
// equals the sum of signed transaction amounts for the account.
type CreditAccount struct {
	UserID         string    `json:"user_id"`
	Balance        int64     `json:"balance"`
	TotalPurchased int64     `json:"total_purchased"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreditTransaction is an immutable audit record. Rows are created once
// and never updated; a failed operation is undone by a compensating
// refund transaction, not by editing history.
type CreditTransaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Type        TransactionType `json:"type"`
	Amount      int64           `json:"amount"`
	Description string          `json:"description"`
	ReferenceID string          `json:"reference_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type PurchaseRequest struct {
	UserID      string `json:"user_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	ReferenceID string `json:"reference_id"`
}

// RefundEvent is queued on the bus when a compensating refund could not
// be applied inline. The reconciliation worker replays it; the
// reference-keyed unique index makes redelivery harmless.
type RefundEvent struct {
	UserID      string    `json:"user_id"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description"`
	ReferenceID string    `json:"reference_id"`
	CreatedAt   time.Time `json:"created_at"`
}
