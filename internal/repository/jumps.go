package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jumpgen/internal/model"
)

// JumpsRepo persists generated jumps. The counters row is created in the
// same transaction so every jump always has one.
type JumpsRepo struct {
	db *pgxpool.Pool
}

func NewJumpsRepo(db *pgxpool.Pool) *JumpsRepo {
	return &JumpsRepo{db: db}
}

func (r *JumpsRepo) Create(ctx context.Context, jump *model.Jump) error {
	plan, err := json.Marshal(jump.Plan)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO jumps (id, user_id, goal, model, plan)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		jump.ID, jump.UserID, jump.Goal, jump.Model, plan).Scan(&jump.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert jump: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO jump_counters (jump_id) VALUES ($1)`, jump.ID); err != nil {
		return fmt.Errorf("insert counters: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *JumpsRepo) Get(ctx context.Context, jumpID string) (*model.Jump, error) {
	var jump model.Jump
	var plan []byte
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, goal, model, plan, created_at FROM jumps WHERE id = $1`,
		jumpID).Scan(&jump.ID, &jump.UserID, &jump.Goal, &jump.Model, &plan, &jump.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("jump %s: not found", jumpID)
		}
		return nil, err
	}
	if err := json.Unmarshal(plan, &jump.Plan); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return &jump, nil
}
