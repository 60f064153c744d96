package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shaibs3/ResearchGraph/internal/db"
	"github.com/shaibs3/ResearchGraph/internal/model"
)

func (p *PostgresProvider) CreateProject(ctx context.Context, name, description string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("project name is required: %w", model.ErrInvalidArgument)
	}
	return run(ctx, p, "create_project", func() (int64, error) {
		var id int64
		err := p.db.QueryRowContext(ctx,
			`INSERT INTO projects (project_name, project_description) VALUES ($1, $2) RETURNING project_id`,
			name, db.NullString(description),
		).Scan(&id)
		return id, err
	})
}

func (p *PostgresProvider) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	return run(ctx, p, "get_project", func() (*model.Project, error) {
		var pr model.Project
		var desc sql.NullString
		err := p.db.QueryRowContext(ctx,
			`SELECT project_id, project_name, project_description, created_at FROM projects WHERE project_id = $1`, id,
		).Scan(&pr.ID, &pr.Name, &desc, &pr.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("project %d: %w", id, model.ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		pr.Description = desc.String
		return &pr, nil
	})
}

func (p *PostgresProvider) CreateTask(ctx context.Context, in model.TaskInput) (int64, error) {
	if in.Name == "" {
		return 0, fmt.Errorf("task name is required: %w", model.ErrInvalidArgument)
	}
	vec, err := db.VectorLiteral(in.DescriptionEmbedding, p.dim)
	if err != nil {
		return 0, fmt.Errorf("%v: %w", err, model.ErrInvalidArgument)
	}
	return run(ctx, p, "create_task", func() (int64, error) {
		var id int64
		err := p.withTx(ctx, func(tx *sql.Tx) error {
			var one int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE project_id = $1`, in.ProjectID).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("project %d: %w", in.ProjectID, model.ErrNotFound)
			}
			if err != nil {
				return err
			}
			return tx.QueryRowContext(ctx, `
				INSERT INTO project_tasks (project_id, task_name, task_description, task_schema, task_description_embed, task_context, task_status)
				VALUES ($1, $2, $3, $4, $5::vector, $6::jsonb, $7)
				RETURNING task_id`,
				in.ProjectID, in.Name, db.NullString(in.Description), db.NullString(in.OutputSchema),
				vec, db.NullJSON(in.Context), string(model.TaskCreated),
			).Scan(&id)
		})
		return id, err
	})
}

const taskColumns = `task_id, project_id, task_name, task_description, task_schema,
	task_description_embed::text, task_context::text, task_status, created_at`

func scanTask(row rowScanner) (*model.Task, error) {
	var (
		t                         model.Task
		desc, schema, vv, ctxJSON sql.NullString
		status                    string
	)
	if err := row.Scan(&t.ID, &t.ProjectID, &t.Name, &desc, &schema, &vv, &ctxJSON, &status, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Description, t.OutputSchema = desc.String, schema.String
	t.Status = model.TaskStatus(status)
	if ctxJSON.Valid {
		t.Context = []byte(ctxJSON.String)
	}
	vec, err := db.ParseVector(vv)
	if err != nil {
		return nil, err
	}
	t.DescriptionEmbedding = vec
	return &t, nil
}

func (p *PostgresProvider) GetTask(ctx context.Context, id int64) (*model.Task, error) {
	return run(ctx, p, "get_task", func() (*model.Task, error) {
		t, err := scanTask(p.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM project_tasks WHERE task_id = $1`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %d: %w", id, model.ErrNotFound)
		}
		return t, err
	})
}

func (p *PostgresProvider) ListTasks(ctx context.Context, projectID int64) ([]model.Task, error) {
	return run(ctx, p, "list_tasks", func() ([]model.Task, error) {
		rows, err := p.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM project_tasks WHERE project_id = $1 ORDER BY task_id`, projectID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []model.Task
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, *t)
		}
		return out, rows.Err()
	})
}

// updateTask runs a single-row UPDATE and maps zero rows to ErrNotFound.
func (p *PostgresProvider) updateTask(ctx context.Context, op string, id int64, query string, args ...interface{}) error {
	return p.exec(ctx, op, func() error {
		res, err := p.db.ExecContext(ctx, query, append([]interface{}{id}, args...)...)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("task %d: %w", id, model.ErrNotFound)
		}
		return nil
	})
}

func (p *PostgresProvider) RenameTask(ctx context.Context, id int64, name string) error {
	if name == "" {
		return fmt.Errorf("task name is required: %w", model.ErrInvalidArgument)
	}
	return p.updateTask(ctx, "rename_task", id, `UPDATE project_tasks SET task_name = $2 WHERE task_id = $1`, name)
}

func (p *PostgresProvider) SetTaskStatus(ctx context.Context, id int64, status model.TaskStatus) error {
	return p.updateTask(ctx, "set_task_status", id, `UPDATE project_tasks SET task_status = $2 WHERE task_id = $1`, string(status))
}

func (p *PostgresProvider) DeleteTask(ctx context.Context, id int64) error {
	return p.updateTask(ctx, "delete_task", id, `DELETE FROM project_tasks WHERE task_id = $1`)
}

func (p *PostgresProvider) AddDependency(ctx context.Context, dep model.TaskDependency) error {
	if !dep.DataFlow.IsValid() {
		return fmt.Errorf("data flow %q: %w", dep.DataFlow, model.ErrInvalidArgument)
	}
	if dep.SourceTaskID == dep.DependentTaskID {
		return fmt.Errorf("task %d cannot depend on itself: %w", dep.SourceTaskID, model.ErrInvalidArgument)
	}
	return p.exec(ctx, "add_dependency", func() error {
		return p.withTx(ctx, func(tx *sql.Tx) error {
			var n int
			err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM project_tasks WHERE task_id IN ($1, $2)`,
				dep.SourceTaskID, dep.DependentTaskID,
			).Scan(&n)
			if err != nil {
				return err
			}
			if n != 2 {
				return fmt.Errorf("tasks %d -> %d: %w", dep.SourceTaskID, dep.DependentTaskID, model.ErrNotFound)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO task_dependencies (source_task_id, dependent_task_id, relationship_description, data_schema, data_flow)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (source_task_id, dependent_task_id) DO UPDATE SET
					relationship_description = EXCLUDED.relationship_description,
					data_schema              = EXCLUDED.data_schema,
					data_flow                = EXCLUDED.data_flow`,
				dep.SourceTaskID, dep.DependentTaskID, db.NullString(dep.RelationshipDescription),
				db.NullString(dep.DataSchema), string(dep.DataFlow))
			return err
		})
	})
}

func (p *PostgresProvider) queryDeps(ctx context.Context, op, where, order string, arg int64) ([]model.TaskDependency, error) {
	return run(ctx, p, op, func() ([]model.TaskDependency, error) {
		rows, err := p.db.QueryContext(ctx, `
			SELECT d.source_task_id, d.dependent_task_id, COALESCE(d.relationship_description, ''),
				COALESCE(d.data_schema, ''), d.data_flow
			FROM task_dependencies d
			WHERE `+where+`
			ORDER BY `+order, arg)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []model.TaskDependency
		for rows.Next() {
			var d model.TaskDependency
			var flow string
			if err := rows.Scan(&d.SourceTaskID, &d.DependentTaskID, &d.RelationshipDescription, &d.DataSchema, &flow); err != nil {
				return nil, err
			}
			d.DataFlow = model.DataFlow(flow)
			out = append(out, d)
		}
		return out, rows.Err()
	})
}

func (p *PostgresProvider) Dependencies(ctx context.Context, taskID int64) ([]model.TaskDependency, error) {
	return p.queryDeps(ctx, "dependencies", "d.dependent_task_id = $1", "d.source_task_id", taskID)
}

func (p *PostgresProvider) Dependents(ctx context.Context, taskID int64) ([]model.TaskDependency, error) {
	return p.queryDeps(ctx, "dependents", "d.source_task_id = $1", "d.dependent_task_id", taskID)
}

func (p *PostgresProvider) ProjectDependencies(ctx context.Context, projectID int64) ([]model.TaskDependency, error) {
	return p.queryDeps(ctx, "project_dependencies", `
		EXISTS (SELECT 1 FROM project_tasks s WHERE s.task_id = d.source_task_id AND s.project_id = $1)
		AND EXISTS (SELECT 1 FROM project_tasks t WHERE t.task_id = d.dependent_task_id AND t.project_id = $1)`,
		"d.source_task_id, d.dependent_task_id", projectID)
}

func (p *PostgresProvider) LinkEntityToTask(ctx context.Context, te model.TaskEntity) error {
	return p.exec(ctx, "link_entity_to_task", func() error {
		return p.withTx(ctx, func(tx *sql.Tx) error {
			var one int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM project_tasks WHERE task_id = $1`, te.TaskID).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("task %d: %w", te.TaskID, model.ErrNotFound)
			}
			if err != nil {
				return err
			}
			if err := entityExists(ctx, tx, te.EntityID); err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO task_entities (task_id, entity_id, feedback_rating)
				VALUES ($1, $2, $3)
				ON CONFLICT (task_id, entity_id) DO UPDATE SET feedback_rating = EXCLUDED.feedback_rating`,
				te.TaskID, te.EntityID, te.FeedbackRating)
			return err
		})
	})
}

func (p *PostgresProvider) TaskEntities(ctx context.Context, taskID int64) ([]model.TaskEntityView, error) {
	return run(ctx, p, "task_entities", func() ([]model.TaskEntityView, error) {
		rows, err := p.db.QueryContext(ctx, `
			SELECT e.entity_id, e.entity_type, e.entity_name, e.entity_url, e.entity_detail,
				e.entity_json::text, e.entity_embed::text, e.entity_parent, e.created_at,
				COALESCE(te.feedback_rating, 0)
			FROM task_entities te
			JOIN entities e ON e.entity_id = te.entity_id
			WHERE te.task_id = $1
			ORDER BY te.feedback_rating DESC NULLS LAST, e.entity_id`, taskID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []model.TaskEntityView
		for rows.Next() {
			var rating float64
			e, err := scanEntity(scanWithExtra{rows, &rating})
			if err != nil {
				return nil, err
			}
			out = append(out, model.TaskEntityView{Entity: *e, FeedbackRating: rating})
		}
		return out, rows.Err()
	})
}

// scanWithExtra appends trailing destinations to an entity scan.
type scanWithExtra struct {
	row   rowScanner
	extra interface{}
}

func (s scanWithExtra) Scan(dest ...interface{}) error {
	return s.row.Scan(append(dest, s.extra)...)
}

func (p *PostgresProvider) CountTaskOutputs(ctx context.Context, taskID int64, typ model.EntityType) (int, error) {
	return run(ctx, p, "count_task_outputs", func() (int, error) {
		var n int
		err := p.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM task_entities te
			JOIN entities e ON e.entity_id = te.entity_id
			WHERE te.task_id = $1 AND ($2 = '' OR e.entity_type = $2)`,
			taskID, string(typ),
		).Scan(&n)
		return n, err
	})
}
