package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	"jumpgen/internal/model"
)

// WelcomeCredits is granted exactly once when an account is first
// initialized.
const WelcomeCredits = 5

const (
	conflictRetryDelay = 50 * time.Millisecond
	conflictRetryMax   = 3

	// Cached balances expire quickly so a lost invalidation (cache-aside
	// race with a concurrent debit) cannot pin a stale value until the
	// next mutation.
	balanceCacheTTL = 30 * time.Second
)

// LedgerRepo is the authoritative source of truth for spendable balances.
// Postgres owns correctness: the debit is a single conditional UPDATE
// guarded by a CHECK constraint, and idempotency rides on a partial
// unique index over (reference_id, type). Redis only caches the read
// path and is invalidated on every mutation.
type LedgerRepo struct {
	db  *pgxpool.Pool
	rdb *redis.Client
}

func NewLedgerRepo(db *pgxpool.Pool, rdb *redis.Client) *LedgerRepo {
	return &LedgerRepo{db: db, rdb: rdb}
}

// Initialize lazily creates the account with the welcome grant and logs
// the welcome_bonus transaction. Calling it again is a no-op.
func (r *LedgerRepo) Initialize(ctx context.Context, userID string) error {
	return r.withConflictRetry(ctx, func(ctx context.Context) error {
		tx, err := r.db.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		tag, err := tx.Exec(ctx,
			`INSERT INTO credit_accounts (user_id, balance, total_purchased)
			 VALUES ($1, $2, 0)
			 ON CONFLICT (user_id) DO NOTHING`,
			userID, WelcomeCredits)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil // already initialized
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO credit_transactions (id, user_id, type, amount, description, reference_id)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.NewString(), userID, model.TransactionWelcomeBonus,
			int64(WelcomeCredits), "welcome bonus", "welcome:"+userID)
		if err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		r.invalidateBalance(ctx, userID)
		return nil
	})
}

// TryDebit atomically decrements the balance iff balance >= amount, in
// one transaction with the usage record. granted=false (insufficient
// balance) is an expected outcome, not an error. A replay of an already
// applied referenceID grants without charging again.
//
// The transaction record is inserted first: on a replay the insert
// conflicts and the balance is left alone; on a fresh key the conditional
// UPDATE is the single atomic admission check, and an insufficient
// balance rolls the record back out.
func (r *LedgerRepo) TryDebit(ctx context.Context, userID string, amount int64, description, referenceID string) (bool, error) {
	granted := false
	err := r.withConflictRetry(ctx, func(ctx context.Context) error {
		granted = false
		tx, err := r.db.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		inserted, err := insertTransaction(ctx, tx, model.CreditTransaction{
			ID:          uuid.NewString(),
			UserID:      userID,
			Type:        model.TransactionUsage,
			Amount:      -amount,
			Description: description,
			ReferenceID: referenceID,
		})
		if err != nil {
			return err
		}
		if !inserted {
			granted = true // idempotent replay
			return tx.Commit(ctx)
		}

		tag, err := tx.Exec(ctx,
			`UPDATE credit_accounts
			 SET balance = balance - $2
			 WHERE user_id = $1 AND balance >= $2`,
			userID, amount)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil // insufficient (or unknown account); rollback drops the record
		}

		granted = true
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		r.invalidateBalance(ctx, userID)
		return nil
	})
	return granted, err
}

// Credit adds amount to the balance and records a transaction of the
// given type. Idempotent on referenceID: a repeated call with the same
// reference and type is a no-op. Purchases also bump total_purchased.
func (r *LedgerRepo) Credit(ctx context.Context, userID string, amount int64, txType model.TransactionType, description, referenceID string) error {
	return r.withConflictRetry(ctx, func(ctx context.Context) error {
		tx, err := r.db.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		inserted, err := insertTransaction(ctx, tx, model.CreditTransaction{
			ID:          uuid.NewString(),
			UserID:      userID,
			Type:        txType,
			Amount:      amount,
			Description: description,
			ReferenceID: referenceID,
		})
		if err != nil {
			return mapAccountError(err)
		}
		if !inserted {
			return tx.Commit(ctx) // replay
		}

		tag, err := tx.Exec(ctx,
			`UPDATE credit_accounts
			 SET balance = balance + $2,
			     total_purchased = total_purchased + CASE WHEN $3 THEN $2 ELSE 0 END
			 WHERE user_id = $1`,
			userID, amount, txType == model.TransactionPurchase)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return model.ErrUnknownAccount
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		r.invalidateBalance(ctx, userID)
		return nil
	})
}

// Balance reads through the Redis cache. Cache failures degrade to a
// direct Postgres read; the cache never decides correctness.
func (r *LedgerRepo) Balance(ctx context.Context, userID string) (int64, error) {
	key := balanceKey(userID)
	if cached, err := r.rdb.Get(ctx, key).Result(); err == nil {
		if balance, parseErr := strconv.ParseInt(cached, 10, 64); parseErr == nil {
			return balance, nil
		}
	}

	var balance int64
	err := r.db.QueryRow(ctx,
		`SELECT balance FROM credit_accounts WHERE user_id = $1`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, model.ErrUnknownAccount
		}
		return 0, fmt.Errorf("balance query: %w", err)
	}

	if err := r.rdb.Set(ctx, key, balance, balanceCacheTTL).Err(); err != nil {
		slog.Warn("ledger: balance cache write failed", "user_id", userID, "error", err)
	}
	return balance, nil
}

// Transactions returns the audit trail, newest first.
func (r *LedgerRepo) Transactions(ctx context.Context, userID string) ([]model.CreditTransaction, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, type, amount, description, COALESCE(reference_id, ''), created_at
		 FROM credit_transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("transactions query: %w", err)
	}
	defer rows.Close()

	var out []model.CreditTransaction
	for rows.Next() {
		var t model.CreditTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Description, &t.ReferenceID, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// insertTransaction appends an audit record. Returns false when a record
// with the same (reference_id, type) already exists, which is the replay
// signal for idempotent operations.
func insertTransaction(ctx context.Context, tx pgx.Tx, t model.CreditTransaction) (bool, error) {
	var ref any
	if t.ReferenceID != "" {
		ref = t.ReferenceID
	}
	tag, err := tx.Exec(ctx,
		`INSERT INTO credit_transactions (id, user_id, type, amount, description, reference_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (reference_id, type) WHERE reference_id IS NOT NULL DO NOTHING`,
		t.ID, t.UserID, t.Type, t.Amount, t.Description, ref)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// withConflictRetry retries serialization failures and deadlocks a small
// bounded number of times; exhaustion surfaces as ErrLedgerUnavailable.
// These conflicts are an internal storage concern, never a caller error.
func (r *LedgerRepo) withConflictRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(conflictRetryMax, retry.NewConstant(conflictRetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			if isRetryableConflict(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil && isRetryableConflict(err) {
		slog.Error("ledger: conflict retries exhausted", "error", err)
		return fmt.Errorf("%w: %v", model.ErrLedgerUnavailable, err)
	}
	return err
}

// mapAccountError translates a foreign-key violation on the transaction
// insert into ErrUnknownAccount. credit_transactions references
// credit_accounts, so crediting a user that was never initialized fails
// on the insert before the balance UPDATE can report the missing row.
func mapAccountError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return model.ErrUnknownAccount
	}
	return err
}

func isRetryableConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// serialization_failure, deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func balanceKey(userID string) string {
	return "credits:balance:" + userID
}

func (r *LedgerRepo) invalidateBalance(ctx context.Context, userID string) {
	if err := r.rdb.Del(ctx, balanceKey(userID)).Err(); err != nil {
		slog.Warn("ledger: balance cache invalidation failed", "user_id", userID, "error", err)
	}
}
