package postgres

import (
	"context"
	"fmt"

	"github.com/shaibs3/ResearchGraph/internal/db"
	"github.com/shaibs3/ResearchGraph/internal/model"
)

func (p *PostgresProvider) AddQueuedTask(ctx context.Context, t model.QueuedTask) (int64, error) {
	if t.Name == "" {
		return 0, fmt.Errorf("queued task name is required: %w", model.ErrInvalidArgument)
	}
	return run(ctx, p, "add_queued_task", func() (int64, error) {
		var id int64
		err := p.db.QueryRowContext(ctx, `
			INSERT INTO task_queue (task_name, task_scope, task_prompt, task_description)
			VALUES ($1, $2, $3, $4) RETURNING task_id`,
			t.Name, db.NullString(t.Scope), db.NullString(t.Prompt), db.NullString(t.Description),
		).Scan(&id)
		return id, err
	})
}

func (p *PostgresProvider) ListQueuedTasks(ctx context.Context, limit int) ([]model.QueuedTask, error) {
	return run(ctx, p, "list_queued_tasks", func() ([]model.QueuedTask, error) {
		rows, err := p.db.QueryContext(ctx, `
			SELECT task_id, task_name, COALESCE(task_scope, ''), COALESCE(task_prompt, ''), COALESCE(task_description, '')
			FROM task_queue ORDER BY task_id LIMIT $1`, limitArg(limit))
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []model.QueuedTask
		for rows.Next() {
			var t model.QueuedTask
			if err := rows.Scan(&t.ID, &t.Name, &t.Scope, &t.Prompt, &t.Description); err != nil {
				return nil, err
			}
			out = append(out, t)
		}
		return out, rows.Err()
	})
}

func (p *PostgresProvider) DeleteQueuedTask(ctx context.Context, id int64) error {
	return p.exec(ctx, "delete_queued_task", func() error {
		res, err := p.db.ExecContext(ctx, `DELETE FROM task_queue WHERE task_id = $1`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("queued task %d: %w", id, model.ErrNotFound)
		}
		return nil
	})
}

func (p *PostgresProvider) AddCriterion(ctx context.Context, c model.Criterion) (int64, error) {
	if c.Name == "" || c.Scope == "" {
		return 0, fmt.Errorf("criterion name and scope are required: %w", model.ErrInvalidArgument)
	}
	return run(ctx, p, "add_criterion", func() (int64, error) {
		var id int64
		err := p.db.QueryRowContext(ctx, `
			INSERT INTO assessment_criteria (criteria_name, criteria_prompt, criteria_scope, criteria_promise)
			VALUES ($1, $2, $3, $4) RETURNING criteria_id`,
			c.Name, db.NullString(c.Prompt), c.Scope, c.Promise,
		).Scan(&id)
		return id, err
	})
}

func (p *PostgresProvider) ListCriteria(ctx context.Context, name string) ([]model.Criterion, error) {
	return run(ctx, p, "list_criteria", func() ([]model.Criterion, error) {
		rows, err := p.db.QueryContext(ctx, `
			SELECT criteria_id, criteria_name, COALESCE(criteria_prompt, ''), COALESCE(criteria_scope, ''), criteria_promise
			FROM assessment_criteria
			WHERE $1 = '' OR criteria_name = $1
			ORDER BY criteria_promise DESC, criteria_id`, name)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []model.Criterion
		for rows.Next() {
			var c model.Criterion
			if err := rows.Scan(&c.ID, &c.Name, &c.Prompt, &c.Scope, &c.Promise); err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, rows.Err()
	})
}
