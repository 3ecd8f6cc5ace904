package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"autokudo/internal/domain"
)

// RunStore keeps the run history and the per-kudo outcomes of every run.
type RunStore struct {
	db *sqlx.DB
	tm *TransactionManager
}

func NewRunStore(db *sqlx.DB, tm *TransactionManager) *RunStore {
	return &RunStore{db: db, tm: tm}
}

// Record writes the run row and its kudo rows in one transaction.
func (s *RunStore) Record(ctx context.Context, run *domain.RunRecord) error {
	return s.tm.WithTransaction(ctx, func(ctx context.Context) error {
		exec := GetExecutor(ctx, s.db)

		query := `
			INSERT INTO autokudo_runs (
				id, trigger, depth, started_at, finished_at,
				total, eligible, succeeded, failed, error
			) VALUES (
				:id, :trigger, :depth, :started_at, :finished_at,
				:total, :eligible, :succeeded, :failed, :error
			)`
		if _, err := sqlx.NamedExecContext(ctx, exec, query, run); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		for _, o := range run.Outcomes {
			var errText *string
			if o.Err != nil {
				msg := o.Err.Error()
				errText = &msg
			}
			_, err := exec.ExecContext(ctx, `
				INSERT INTO autokudo_kudos (run_id, idx, activity_id, athlete, name, delay_ms, succeeded, error)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				run.ID,
				o.Index,
				o.Activity.ID,
				o.Activity.Athlete,
				o.Activity.Name,
				o.Delay.Milliseconds(),
				o.OK(),
				errText,
			)
			if err != nil {
				return fmt.Errorf("insert kudo %s: %w", o.Activity.ID, err)
			}
		}

		return nil
	})
}

// Recent returns the latest runs, newest first. Outcomes are not loaded.
func (s *RunStore) Recent(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	query := `
		SELECT id, trigger, depth, started_at, finished_at, total, eligible, succeeded, failed, error
		FROM autokudo_runs
		ORDER BY started_at DESC
		LIMIT $1`

	var runs []domain.RunRecord
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &runs, query, limit); err != nil {
		return nil, err
	}
	return runs, nil
}
