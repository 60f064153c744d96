package enrichment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaibs3/ResearchGraph/internal/model"
	"github.com/shaibs3/ResearchGraph/internal/oracle"
	"github.com/shaibs3/ResearchGraph/internal/store"
	"go.uber.org/zap"
)

// AssessBatch is how many untagged entities one criterion covers per run.
const AssessBatch = 10

// Assess applies assessment criteria to entities that lack the criterion's
// tag. Scope on the queued task restricts the entity type and Prompt, when
// set, names a single criterion.
type Assess struct {
	entities store.EntityStore
	criteria store.QueueStore
	assessor oracle.Assessor
	logger   *zap.Logger
}

func NewAssess(entities store.EntityStore, criteria store.QueueStore, assessor oracle.Assessor, logger *zap.Logger) *Assess {
	return &Assess{entities: entities, criteria: criteria, assessor: assessor, logger: logger.Named("assess")}
}

func (a *Assess) Name() string { return "assess" }

func (a *Assess) Run(ctx context.Context, task model.QueuedTask) error {
	criteria, err := a.criteria.ListCriteria(ctx, task.Prompt)
	if err != nil {
		return err
	}
	var errs []error
	for _, c := range criteria {
		if task.Scope != "" && c.Scope != task.Scope {
			continue
		}
		if err := a.apply(ctx, c); err != nil {
			errs = append(errs, fmt.Errorf("criterion %q: %w", c.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (a *Assess) apply(ctx context.Context, c model.Criterion) error {
	pending, err := a.entities.UntaggedEntities(ctx, model.EntityType(c.Scope), c.Name, AssessBatch)
	if err != nil {
		return err
	}
	for _, e := range pending {
		verdict, err := a.assessor.Assess(ctx, c, e)
		if err != nil {
			return fmt.Errorf("entity %d: %w", e.ID, err)
		}
		// An empty verdict is still written so the entity is not picked again.
		if _, err := a.entities.AddOrUpdateTag(ctx, model.TagInput{EntityID: e.ID, Name: c.Name, Value: verdict}); err != nil {
			return err
		}
	}
	if len(pending) > 0 {
		a.logger.Info("criterion applied", zap.String("criterion", c.Name), zap.Int("entities", len(pending)))
	}
	return nil
}
