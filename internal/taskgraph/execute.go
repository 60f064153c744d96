package taskgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/shaibs3/ResearchGraph/internal/model"
	"github.com/shaibs3/ResearchGraph/internal/oracle"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OutputRating is the feedback rating given to entities a task produced.
const OutputRating = 9.0

const embedConcurrency = 4

// ExecutionOutcome reports what one ExecuteTask call did.
type ExecutionOutcome struct {
	TaskID   int64            `json:"task_id"`
	Status   model.TaskStatus `json:"status"`
	Entities []int64          `json:"entities,omitempty"`
	NewTasks []int64          `json:"new_tasks,omitempty"`
}

// ExecuteTask gates, runs and records one ready task. Outputs become
// json_data entities linked to the task; proposed tasks and edges are created
// but not executed.
func (o *Orchestrator) ExecuteTask(ctx context.Context, taskID int64) (ExecutionOutcome, error) {
	logger := o.logger.With(zap.Int64("task_id", taskID))
	if runID, ok := ctx.Value(runIDKey{}).(string); ok {
		logger = logger.With(zap.String("run_id", runID))
	}
	outcome := ExecutionOutcome{TaskID: taskID}

	if o.delegate == nil {
		return outcome, fmt.Errorf("no execution delegate configured")
	}
	task, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		return outcome, err
	}
	ready, err := o.IsReady(ctx, taskID)
	if err != nil {
		return outcome, err
	}
	if !ready {
		return outcome, fmt.Errorf("task %d: %w", taskID, ErrNotReady)
	}

	up, err := o.upstream(ctx, taskID)
	if err != nil {
		return outcome, err
	}
	down, err := o.downstream(ctx, taskID)
	if err != nil {
		return outcome, err
	}
	if o.RequiresHuman(ctx, *task, up, down) {
		outcome.Status = model.TaskNeedsClarification
		logger.Info("task gated for human review")
		recordExecution(ctx, outcome.Status)
		return outcome, o.store.SetTaskStatus(ctx, taskID, outcome.Status)
	}

	if err := o.store.SetTaskStatus(ctx, taskID, model.TaskExecuting); err != nil {
		return outcome, err
	}
	result, err := o.delegate.Execute(ctx, oracle.ExecutionRequest{Task: *task, Upstream: up})
	if err != nil {
		o.fail(ctx, taskID, logger)
		return outcome, fmt.Errorf("execution delegate failed for task %d: %w", taskID, err)
	}

	outcome.Entities, err = o.persistOutputs(ctx, *task, result.Entities)
	if err != nil {
		o.fail(ctx, taskID, logger)
		return outcome, err
	}
	outcome.NewTasks, err = o.createProposed(ctx, *task, result)
	if err != nil {
		logger.Warn("failed to create proposed tasks", zap.Error(err))
	}

	produced, err := o.store.CountTaskOutputs(ctx, taskID, model.EntityJSONData)
	if err != nil {
		return outcome, err
	}
	outcome.Status = model.TaskProduced
	if produced == 0 {
		outcome.Status = model.TaskFailed
	}
	if err := o.store.SetTaskStatus(ctx, taskID, outcome.Status); err != nil {
		return outcome, err
	}
	recordExecution(ctx, outcome.Status)
	logger.Info("task executed",
		zap.String("status", string(outcome.Status)),
		zap.Int("outputs", len(outcome.Entities)),
		zap.Int("new_tasks", len(outcome.NewTasks)))
	return outcome, nil
}

func (o *Orchestrator) fail(ctx context.Context, taskID int64, logger *zap.Logger) {
	recordExecution(ctx, model.TaskFailed)
	if err := o.store.SetTaskStatus(ctx, taskID, model.TaskFailed); err != nil {
		logger.Error("failed to record task failure", zap.Error(err))
	}
}

// persistOutputs embeds the payloads concurrently, then writes them one by
// one once every embedding has returned.
func (o *Orchestrator) persistOutputs(ctx context.Context, task model.Task, payloads []json.RawMessage) ([]int64, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, len(payloads))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i, payload := range payloads {
		g.Go(func() error {
			vec, err := o.embedder.Embed(gctx, string(payload))
			if err != nil {
				return err
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to embed outputs: %w", err)
	}

	ids := make([]int64, 0, len(payloads))
	digests := make(map[string]string, len(payloads))
	for i, payload := range payloads {
		if !json.Valid(payload) {
			o.logger.Warn("skipping invalid output payload", zap.Int64("task_id", task.ID), zap.Int("index", i))
			continue
		}
		name := outputName(payload)
		digest := model.ContentDigest(string(payload))
		if prev, ok := digests[name]; ok && prev != digest {
			name = name + " #" + digest[:8]
		}
		digests[name] = digest
		id, err := o.store.UpsertEntity(ctx, model.EntityInput{
			Type:      model.EntityJSONData,
			Name:      name,
			URL:       "task://" + strconv.FormatInt(task.ID, 10),
			Detail:    string(payload),
			JSON:      payload,
			Embedding: vectors[i],
		})
		if err != nil {
			return ids, fmt.Errorf("failed to store output: %w", err)
		}
		if err := o.store.LinkEntityToTask(ctx, model.TaskEntity{TaskID: task.ID, EntityID: id, FeedbackRating: OutputRating}); err != nil {
			return ids, fmt.Errorf("failed to link output %d: %w", id, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// outputName prefers a title/name field and falls back to a content digest,
// so re-delivering the same payload updates one entity. Output identity is
// (json_data, name, task://<id>): a later run emitting a payload with an
// already stored title replaces that entity. Within one run, a second payload
// sharing a title with different content gets a digest suffix instead.
func outputName(payload json.RawMessage) string {
	var fields map[string]interface{}
	if err := json.Unmarshal(payload, &fields); err == nil {
		for _, key := range []string{"title", "name"} {
			if s, ok := fields[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return "output-" + model.ContentDigest(string(payload))[:12]
}

// createProposed creates the tasks and edges a delegate suggested.
func (o *Orchestrator) createProposed(ctx context.Context, task model.Task, result oracle.ExecutionResult) ([]int64, error) {
	refs := map[string]int64{"self": task.ID}
	var created []int64
	for _, pt := range result.Tasks {
		if pt.Name == "" {
			continue
		}
		id, err := o.CreateTask(ctx, model.TaskInput{
			ProjectID:    task.ProjectID,
			Name:         pt.Name,
			Description:  pt.Description,
			OutputSchema: pt.OutputSchema,
		})
		if err != nil {
			return created, err
		}
		if pt.Ref != "" {
			refs[pt.Ref] = id
		}
		created = append(created, id)
	}

	for _, pd := range result.Dependencies {
		src, ok1 := lookupRef(refs, pd.Source)
		dst, ok2 := lookupRef(refs, pd.Dependent)
		if !ok1 || !ok2 {
			o.logger.Warn("skipping dependency with unknown ref", zap.String("source", pd.Source), zap.String("dependent", pd.Dependent))
			continue
		}
		flow := pd.DataFlow
		if flow == "" {
			flow = model.FlowAutomatic
		}
		err := o.AddDependency(ctx, model.TaskDependency{
			SourceTaskID:            src,
			DependentTaskID:         dst,
			RelationshipDescription: pd.Relationship,
			DataSchema:              pd.DataSchema,
			DataFlow:                flow,
		})
		if err != nil {
			o.logger.Warn("skipping proposed dependency", zap.Int64("source", src), zap.Int64("dependent", dst), zap.Error(err))
		}
	}
	return created, nil
}

type runIDKey struct{}

// AutoReport summarises one auto-execution pass.
type AutoReport struct {
	RunID    string  `json:"run_id"`
	Executed []int64 `json:"executed"`
	Skipped  []int64 `json:"skipped"`
	Gated    []int64 `json:"gated"`
	Failed   []int64 `json:"failed"`
}

// AutoExecute visits taskIDs once, in order, executing those that are ready.
// Failures are logged and do not stop the pass.
func (o *Orchestrator) AutoExecute(ctx context.Context, taskIDs []int64) AutoReport {
	report := AutoReport{RunID: uuid.NewString()}
	ctx = context.WithValue(ctx, runIDKey{}, report.RunID)
	logger := o.logger.With(zap.String("run_id", report.RunID))

	for _, id := range taskIDs {
		if ctx.Err() != nil {
			logger.Warn("auto-execution cancelled", zap.Error(ctx.Err()))
			break
		}
		ready, err := o.IsReady(ctx, id)
		if err != nil {
			logger.Error("readiness check failed", zap.Int64("task_id", id), zap.Error(err))
			report.Failed = append(report.Failed, id)
			continue
		}
		if !ready {
			report.Skipped = append(report.Skipped, id)
			continue
		}
		outcome, err := o.ExecuteTask(ctx, id)
		switch {
		case err != nil:
			logger.Error("task execution failed", zap.Int64("task_id", id), zap.Error(err))
			report.Failed = append(report.Failed, id)
		case outcome.Status == model.TaskNeedsClarification:
			report.Gated = append(report.Gated, id)
		case outcome.Status == model.TaskFailed:
			report.Failed = append(report.Failed, id)
		default:
			report.Executed = append(report.Executed, id)
		}
	}
	logger.Info("auto-execution pass finished",
		zap.Int("executed", len(report.Executed)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("gated", len(report.Gated)),
		zap.Int("failed", len(report.Failed)))
	return report
}
