package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jumpgen/internal/model"
)

// CountersRepo tracks per-jump engagement metrics. Updates are a plain
// read-then-write with no transaction: concurrent trackers on the same
// jump can lose increments. That is an accepted tradeoff for advisory
// analytics; nothing here may ever gate admission or billing, which
// belong exclusively to LedgerRepo.
type CountersRepo struct {
	db *pgxpool.Pool
}

func NewCountersRepo(db *pgxpool.Pool) *CountersRepo {
	return &CountersRepo{db: db}
}

func (r *CountersRepo) RecordView(ctx context.Context, jumpID string) error {
	return r.record(ctx, jumpID, func(c *model.UsageCounters) { c.Views++ })
}

// RecordClarification bumps the counter and keeps the running maximum of
// the observed clarification depth.
func (r *CountersRepo) RecordClarification(ctx context.Context, jumpID string, level int64) error {
	return r.record(ctx, jumpID, func(c *model.UsageCounters) {
		c.Clarifications++
		if level > c.MaxClarificationLevel {
			c.MaxClarificationLevel = level
		}
	})
}

func (r *CountersRepo) RecordReroute(ctx context.Context, jumpID string) error {
	return r.record(ctx, jumpID, func(c *model.UsageCounters) { c.Reroutes++ })
}

func (r *CountersRepo) RecordToolClick(ctx context.Context, jumpID string) error {
	return r.record(ctx, jumpID, func(c *model.UsageCounters) { c.ToolClicks++ })
}

func (r *CountersRepo) RecordPromptCopy(ctx context.Context, jumpID string) error {
	return r.record(ctx, jumpID, func(c *model.UsageCounters) { c.PromptCopies++ })
}

func (r *CountersRepo) RecordComboUsage(ctx context.Context, jumpID string) error {
	return r.record(ctx, jumpID, func(c *model.UsageCounters) { c.ComboUses++ })
}

func (r *CountersRepo) RecordShare(ctx context.Context, jumpID string) error {
	return r.record(ctx, jumpID, func(c *model.UsageCounters) { c.Shares++ })
}

func (r *CountersRepo) Get(ctx context.Context, jumpID string) (*model.UsageCounters, error) {
	var c model.UsageCounters
	err := r.db.QueryRow(ctx,
		`SELECT jump_id, views, clarifications, max_clarification_level,
		        reroutes, tool_clicks, prompt_copies, combo_uses, shares
		 FROM jump_counters WHERE jump_id = $1`, jumpID).
		Scan(&c.JumpID, &c.Views, &c.Clarifications, &c.MaxClarificationLevel,
			&c.Reroutes, &c.ToolClicks, &c.PromptCopies, &c.ComboUses, &c.Shares)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("counters for jump %s: not found", jumpID)
		}
		return nil, err
	}
	return &c, nil
}

func (r *CountersRepo) record(ctx context.Context, jumpID string, mutate func(*model.UsageCounters)) error {
	c, err := r.Get(ctx, jumpID)
	if err != nil {
		return err
	}
	mutate(c)
	_, err = r.db.Exec(ctx,
		`UPDATE jump_counters
		 SET views = $2, clarifications = $3, max_clarification_level = $4,
		     reroutes = $5, tool_clicks = $6, prompt_copies = $7,
		     combo_uses = $8, shares = $9
		 WHERE jump_id = $1`,
		jumpID, c.Views, c.Clarifications, c.MaxClarificationLevel,
		c.Reroutes, c.ToolClicks, c.PromptCopies, c.ComboUses, c.Shares)
	return err
}
