package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/shaibs3/ResearchGraph/internal/db"
	"github.com/shaibs3/ResearchGraph/internal/model"
)

const entityText = `COALESCE(entity_name, '') || ' ' || COALESCE(entity_detail, '')`

// RankEntities orders embedded entities by L2 distance to the query vector.
// Each keyword adds one full-text predicate, so all of them must match.
func (p *PostgresProvider) RankEntities(ctx context.Context, q model.VectorQuery) ([]int64, error) {
	vec, err := db.VectorLiteral(q.Vector, p.dim)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, model.ErrInvalidArgument)
	}
	if vec == nil {
		return nil, fmt.Errorf("query vector is empty: %w", model.ErrInvalidArgument)
	}

	args := []interface{}{vec}
	where := []string{"entity_embed IS NOT NULL"}
	if q.EntityType != "" {
		args = append(args, string(q.EntityType))
		where = append(where, fmt.Sprintf("entity_type = $%d", len(args)))
	}
	for _, kw := range q.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		args = append(args, kw)
		where = append(where, fmt.Sprintf("to_tsvector('english', %s) @@ plainto_tsquery('english', $%d)", entityText, len(args)))
	}
	args = append(args, limitArg(q.K))
	query := fmt.Sprintf(`
		SELECT entity_id FROM entities
		WHERE %s
		ORDER BY entity_embed <-> $1::vector, entity_id
		LIMIT $%d`, strings.Join(where, " AND "), len(args))

	return run(ctx, p, "rank_entities", func() ([]int64, error) {
		return p.queryIDs(ctx, query, args...)
	})
}

// RankTags orders entities by the distance of their closest matching tag.
func (p *PostgresProvider) RankTags(ctx context.Context, q model.TagQuery) ([]int64, error) {
	vec, err := db.VectorLiteral(q.Vector, p.dim)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, model.ErrInvalidArgument)
	}
	if vec == nil {
		return nil, fmt.Errorf("query vector is empty: %w", model.ErrInvalidArgument)
	}
	return run(ctx, p, "rank_tags", func() ([]int64, error) {
		return p.queryIDs(ctx, `
			SELECT entity_id FROM (
				SELECT entity_id, MIN(tag_embed <-> $1::vector) AS dist
				FROM entity_tags
				WHERE tag_embed IS NOT NULL AND ($2 = '' OR tag_name = $2)
				GROUP BY entity_id
			) ranked
			ORDER BY dist, entity_id
			LIMIT $3`, vec, q.TagName, limitArg(q.K))
	})
}
