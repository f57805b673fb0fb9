// Package reconcile commits candidate entries to the schedule store under a
// conflict-resolution strategy.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MikeSquared-Agency/shiftbook/internal/bulletin"
	"github.com/MikeSquared-Agency/shiftbook/internal/conflict"
	"github.com/MikeSquared-Agency/shiftbook/internal/schedule"
)

type Strategy string

const (
	OverwriteAll Strategy = "overwrite_all"
	SkipExisting Strategy = "skip_existing"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case OverwriteAll, SkipExisting:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown conflict strategy %q", s)
}

type Result struct {
	Imported int      `json:"imported_count"`
	Skipped  int      `json:"skipped_count"`
	Strategy Strategy `json:"strategy"`
}

type Engine struct {
	store  schedule.Store
	logger *slog.Logger
}

func New(store schedule.Store, logger *slog.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// Apply upserts the candidates for agentID. With SkipExisting, entries whose
// date is in conflicts are left untouched. Idempotence comes from the store's
// (agent, date) key, so a retried Apply with the same input is safe.
func (e *Engine) Apply(ctx context.Context, agentID string, candidates []bulletin.CandidateEntry, strategy Strategy, conflicts []conflict.Conflict) (Result, error) {
	res := Result{Strategy: strategy}
	skip := map[schedule.Date]bool{}
	switch strategy {
	case OverwriteAll:
	case SkipExisting:
		skip = conflict.Dates(conflicts)
	default:
		return res, fmt.Errorf("apply: unknown strategy %q", strategy)
	}

	if col := conflict.Collisions(candidates); len(col) > 0 {
		return res, fmt.Errorf("apply: %d candidates share a date with another (first on %s)", len(col), col[0].Date)
	}

	for _, c := range candidates {
		if skip[c.Date] {
			res.Skipped++
			continue
		}
		if err := e.store.Upsert(ctx, c.ToScheduleEntry(agentID)); err != nil {
			return res, fmt.Errorf("upsert %s: %w", c.Date, err)
		}
		res.Imported++
	}

	e.logger.Info("reconciliation applied",
		"agent_id", agentID,
		"strategy", string(strategy),
		"imported", res.Imported,
		"skipped", res.Skipped,
	)
	return res, nil
}
