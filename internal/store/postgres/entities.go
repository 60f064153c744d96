package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shaibs3/ResearchGraph/internal/db"
	"github.com/shaibs3/ResearchGraph/internal/model"
)

const entityColumns = `entity_id, entity_type, entity_name, entity_url, entity_detail,
	entity_json::text, entity_embed::text, entity_parent, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntity(row rowScanner) (*model.Entity, error) {
	var (
		e                         model.Entity
		typ                       string
		name, url, detail, js, vv sql.NullString
		parent                    sql.NullInt64
	)
	if err := row.Scan(&e.ID, &typ, &name, &url, &detail, &js, &vv, &parent, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Type = model.EntityType(typ)
	e.Name, e.URL, e.Detail = name.String, url.String, detail.String
	if js.Valid {
		e.JSON = []byte(js.String)
	}
	vec, err := db.ParseVector(vv)
	if err != nil {
		return nil, err
	}
	e.Embedding = vec
	if parent.Valid {
		id := parent.Int64
		e.ParentID = &id
	}
	return &e, nil
}

func entityExists(ctx context.Context, tx *sql.Tx, id int64) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM entities WHERE entity_id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("entity %d: %w", id, model.ErrNotFound)
	}
	return err
}

func (p *PostgresProvider) UpsertEntity(ctx context.Context, in model.EntityInput) (int64, error) {
	if in.Type == "" {
		return 0, fmt.Errorf("entity type is required: %w", model.ErrInvalidArgument)
	}
	vec, err := db.VectorLiteral(in.Embedding, p.dim)
	if err != nil {
		return 0, fmt.Errorf("%v: %w", err, model.ErrInvalidArgument)
	}
	return run(ctx, p, "upsert_entity", func() (int64, error) {
		var id int64
		err := p.withTx(ctx, func(tx *sql.Tx) error {
			kind := in.KeyKind()
			if kind != model.KeyNone {
				if err := advisoryLock(ctx, tx, fmt.Sprintf("entity:%s:%s:%s", in.Type, in.Name, in.URL)); err != nil {
					return err
				}
				found, err := findEntity(ctx, tx, in, kind)
				if err != nil {
					return err
				}
				if found > 0 {
					id = found
					_, err := tx.ExecContext(ctx, `
						UPDATE entities SET
							entity_detail = COALESCE($2, entity_detail),
							entity_json   = COALESCE($3::jsonb, entity_json),
							entity_embed  = COALESCE($4::vector, entity_embed)
						WHERE entity_id = $1`,
						id, db.NullString(in.Detail), db.NullJSON(in.JSON), vec)
					if err != nil {
						return fmt.Errorf("failed to update entity: %w", err)
					}
					return nil
				}
			}
			if in.ParentID != nil {
				if err := entityExists(ctx, tx, *in.ParentID); err != nil {
					return fmt.Errorf("parent: %w", err)
				}
			}
			err := tx.QueryRowContext(ctx, `
				INSERT INTO entities (entity_type, entity_name, entity_url, entity_detail, entity_json, entity_embed, entity_parent)
				VALUES ($1, $2, $3, $4, $5::jsonb, $6::vector, $7)
				RETURNING entity_id`,
				string(in.Type), db.NullString(in.Name), db.NullString(in.URL), db.NullString(in.Detail),
				db.NullJSON(in.JSON), vec, in.ParentID,
			).Scan(&id)
			if err != nil {
				return fmt.Errorf("failed to insert entity: %w", err)
			}
			return nil
		})
		return id, err
	})
}

func findEntity(ctx context.Context, tx *sql.Tx, in model.EntityInput, kind model.EntityKey) (int64, error) {
	var (
		query string
		args  []interface{}
	)
	switch kind {
	case model.KeyTypeNameURL:
		query = `SELECT entity_id FROM entities WHERE entity_type = $1 AND entity_name = $2 AND entity_url = $3`
		args = []interface{}{string(in.Type), in.Name, in.URL}
	case model.KeyTypeURL:
		query = `SELECT entity_id FROM entities WHERE entity_type = $1 AND entity_name IS NULL AND entity_url = $2`
		args = []interface{}{string(in.Type), in.URL}
	case model.KeyTypeName:
		query = `SELECT entity_id FROM entities WHERE entity_type = $1 AND entity_url IS NULL AND entity_name = $2`
		args = []interface{}{string(in.Type), in.Name}
	}
	var id int64
	err := tx.QueryRowContext(ctx, query+` ORDER BY entity_id LIMIT 1`, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up entity: %w", err)
	}
	return id, nil
}

func (p *PostgresProvider) GetEntity(ctx context.Context, id int64) (*model.Entity, error) {
	return run(ctx, p, "get_entity", func() (*model.Entity, error) {
		e, err := scanEntity(p.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE entity_id = $1`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("entity %d: %w", id, model.ErrNotFound)
		}
		return e, err
	})
}

func (p *PostgresProvider) queryIDs(ctx context.Context, query string, args ...interface{}) ([]int64, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *PostgresProvider) GetByURL(ctx context.Context, url string, typ model.EntityType) ([]int64, error) {
	return run(ctx, p, "get_by_url", func() ([]int64, error) {
		if typ == "" {
			return p.queryIDs(ctx, `SELECT entity_id FROM entities WHERE entity_url = $1 ORDER BY entity_id`, url)
		}
		return p.queryIDs(ctx, `SELECT entity_id FROM entities WHERE entity_url = $1 AND entity_type = $2 ORDER BY entity_id`, url, string(typ))
	})
}

func (p *PostgresProvider) SetEntityEmbedding(ctx context.Context, id int64, embedding []float32) error {
	vec, err := db.VectorLiteral(embedding, p.dim)
	if err != nil {
		return fmt.Errorf("%v: %w", err, model.ErrInvalidArgument)
	}
	return p.exec(ctx, "set_entity_embedding", func() error {
		res, err := p.db.ExecContext(ctx, `UPDATE entities SET entity_embed = $2::vector WHERE entity_id = $1`, id, vec)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("entity %d: %w", id, model.ErrNotFound)
		}
		return nil
	})
}

func (p *PostgresProvider) AddOrUpdateTag(ctx context.Context, in model.TagInput) (int, error) {
	if in.Name == "" {
		return 0, fmt.Errorf("tag name is required: %w", model.ErrInvalidArgument)
	}
	vec, err := db.VectorLiteral(in.Embedding, p.dim)
	if err != nil {
		return 0, fmt.Errorf("%v: %w", err, model.ErrInvalidArgument)
	}
	return run(ctx, p, "add_or_update_tag", func() (int, error) {
		var instance int
		err := p.withTx(ctx, func(tx *sql.Tx) error {
			if err := advisoryLock(ctx, tx, fmt.Sprintf("tag:%d:%s", in.EntityID, in.Name)); err != nil {
				return err
			}
			if err := entityExists(ctx, tx, in.EntityID); err != nil {
				return err
			}
			var hasFirst bool
			var maxInstance int
			err := tx.QueryRowContext(ctx, `
				SELECT COALESCE(bool_or(entity_tag_instance = 1), false), COALESCE(MAX(entity_tag_instance), 0)
				FROM entity_tags WHERE entity_id = $1 AND tag_name = $2`,
				in.EntityID, in.Name,
			).Scan(&hasFirst, &maxInstance)
			if err != nil {
				return fmt.Errorf("failed to read tag instances: %w", err)
			}

			switch {
			case !hasFirst:
				instance = 1
			case !in.AddAnother:
				instance = 1
				_, err := tx.ExecContext(ctx, `
					UPDATE entity_tags SET tag_value = $3, tag_embed = COALESCE($4::vector, tag_embed)
					WHERE entity_id = $1 AND tag_name = $2 AND entity_tag_instance = 1`,
					in.EntityID, in.Name, in.Value, vec)
				if err != nil {
					return fmt.Errorf("failed to update tag: %w", err)
				}
				return nil
			default:
				instance = maxInstance + 1
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO entity_tags (entity_id, tag_name, entity_tag_instance, tag_value, tag_embed)
				VALUES ($1, $2, $3, $4, $5::vector)`,
				in.EntityID, in.Name, instance, in.Value, vec)
			if err != nil {
				return fmt.Errorf("failed to insert tag: %w", err)
			}
			return nil
		})
		return instance, err
	})
}

func (p *PostgresProvider) ListTags(ctx context.Context, entityID int64, name string) ([]model.Tag, error) {
	return run(ctx, p, "list_tags", func() ([]model.Tag, error) {
		rows, err := p.db.QueryContext(ctx, `
			SELECT tag_name, entity_tag_instance, COALESCE(tag_value, ''), tag_embed::text
			FROM entity_tags
			WHERE entity_id = $1 AND ($2 = '' OR tag_name = $2)
			ORDER BY tag_name, entity_tag_instance`, entityID, name)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var tags []model.Tag
		for rows.Next() {
			t := model.Tag{EntityID: entityID}
			var vv sql.NullString
			if err := rows.Scan(&t.Name, &t.Instance, &t.Value, &vv); err != nil {
				return nil, err
			}
			if t.Embedding, err = db.ParseVector(vv); err != nil {
				return nil, err
			}
			tags = append(tags, t)
		}
		return tags, rows.Err()
	})
}

func (p *PostgresProvider) Link(ctx context.Context, link model.Link) error {
	if link.Type == "" {
		return fmt.Errorf("link type is required: %w", model.ErrInvalidArgument)
	}
	if link.Strength == 0 {
		link.Strength = 1
	}
	return p.exec(ctx, "link", func() error {
		return p.withTx(ctx, func(tx *sql.Tx) error {
			for _, id := range []int64{link.FromID, link.ToID} {
				if err := entityExists(ctx, tx, id); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO entity_link (from_id, to_id, link_type, entity_strength)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (from_id, to_id, link_type) DO NOTHING`,
				link.FromID, link.ToID, string(link.Type), link.Strength)
			return err
		})
	})
}

func (p *PostgresProvider) ListLinks(ctx context.Context, fromID int64) ([]model.Link, error) {
	return run(ctx, p, "list_links", func() ([]model.Link, error) {
		rows, err := p.db.QueryContext(ctx, `
			SELECT from_id, to_id, link_type, entity_strength
			FROM entity_link WHERE from_id = $1 ORDER BY to_id, link_type`, fromID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var links []model.Link
		for rows.Next() {
			var l model.Link
			var typ string
			if err := rows.Scan(&l.FromID, &l.ToID, &typ, &l.Strength); err != nil {
				return nil, err
			}
			l.Type = model.LinkType(typ)
			links = append(links, l)
		}
		return links, rows.Err()
	})
}

func (p *PostgresProvider) AddParagraph(ctx context.Context, paperID int64, content string, embedding []float32) (int64, error) {
	vec, err := db.VectorLiteral(embedding, p.dim)
	if err != nil {
		return 0, fmt.Errorf("%v: %w", err, model.ErrInvalidArgument)
	}
	return run(ctx, p, "add_paragraph", func() (int64, error) {
		var id int64
		err := p.withTx(ctx, func(tx *sql.Tx) error {
			if err := entityExists(ctx, tx, paperID); err != nil {
				return err
			}
			err := tx.QueryRowContext(ctx, `
				SELECT entity_id FROM entities
				WHERE entity_type = $1 AND entity_parent = $2 AND entity_detail = $3
				ORDER BY entity_id LIMIT 1`,
				string(model.EntityParagraph), paperID, content,
			).Scan(&id)
			if err == nil {
				return nil
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			return tx.QueryRowContext(ctx, `
				INSERT INTO entities (entity_type, entity_detail, entity_embed, entity_parent)
				VALUES ($1, $2, $3::vector, $4)
				RETURNING entity_id`,
				string(model.EntityParagraph), content, vec, paperID,
			).Scan(&id)
		})
		return id, err
	})
}

func (p *PostgresProvider) DeleteParagraphs(ctx context.Context, paperID int64) (int, error) {
	return run(ctx, p, "delete_paragraphs", func() (int, error) {
		res, err := p.db.ExecContext(ctx,
			`DELETE FROM entities WHERE entity_type = $1 AND entity_parent = $2`,
			string(model.EntityParagraph), paperID)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		return int(n), err
	})
}

func (p *PostgresProvider) EntitiesWithSummaries(ctx context.Context, ids []int64) ([]model.EntitySummary, error) {
	if ids == nil {
		ids = []int64{}
	}
	return run(ctx, p, "entities_with_summaries", func() ([]model.EntitySummary, error) {
		rows, err := p.db.QueryContext(ctx, `
			SELECT e.entity_id, e.entity_name, COALESCE(e.entity_url, ''), COALESCE(t.tag_value, '')
			FROM entities e
			LEFT JOIN entity_tags t
				ON t.entity_id = e.entity_id AND t.tag_name = 'summary' AND t.entity_tag_instance = 1
			WHERE e.entity_name IS NOT NULL AND (cardinality($1::bigint[]) = 0 OR e.entity_id = ANY($1))
			ORDER BY e.entity_name, e.entity_id`, pq.Array(ids))
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []model.EntitySummary
		for rows.Next() {
			var s model.EntitySummary
			if err := rows.Scan(&s.ID, &s.Name, &s.URL, &s.Summary); err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, rows.Err()
	})
}

func (p *PostgresProvider) UntaggedEntities(ctx context.Context, typ model.EntityType, tagName string, limit int) ([]model.Entity, error) {
	return run(ctx, p, "untagged_entities", func() ([]model.Entity, error) {
		rows, err := p.db.QueryContext(ctx, `
			SELECT `+entityColumns+` FROM entities e
			WHERE entity_type = $1
			  AND NOT EXISTS (SELECT 1 FROM entity_tags t WHERE t.entity_id = e.entity_id AND t.tag_name = $2)
			ORDER BY entity_id
			LIMIT $3`, string(typ), tagName, limitArg(limit))
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []model.Entity
		for rows.Next() {
			e, err := scanEntity(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, *e)
		}
		return out, rows.Err()
	})
}
