package taskgraph

import (
	"context"
	"errors"
	"testing"

	"github.com/shaibs3/ResearchGraph/internal/model"
	"github.com/stretchr/testify/require"
)

func TestAutoExecute_IsolatesFailures(t *testing.T) {
	f := newFixture(t, nil)
	a := f.task(t, "alpha")
	b := f.task(t, "beta")
	c := f.task(t, "gamma")
	d := f.task(t, "delta")
	f.edge(t, a, d, model.FlowAutomatic)
	f.delegate.errs["alpha"] = errors.New("boom")
	f.delegate.produce("beta", `{"x":1}`)

	report := f.orch.AutoExecute(context.Background(), []int64{a, b, c, d})
	require.NotEmpty(t, report.RunID)
	require.Equal(t, []int64{b}, report.Executed)
	require.Equal(t, []int64{a, c}, report.Failed)
	require.Equal(t, []int64{d}, report.Skipped)
}

func TestAutoExecute_SinglePass(t *testing.T) {
	f := newFixture(t, nil)
	a := f.task(t, "first step")
	b := f.task(t, "second step")
	f.edge(t, a, b, model.FlowAutomatic)
	f.delegate.produce("first step", `{"ok":true}`)
	f.delegate.produce("second step", `{"ok":true}`)

	// b is visited before a produces, so it is skipped in this pass.
	report := f.orch.AutoExecute(context.Background(), []int64{b, a})
	require.Equal(t, []int64{a}, report.Executed)
	require.Equal(t, []int64{b}, report.Skipped)
	require.True(t, f.ready(t, b))
}

func TestApplyPlan(t *testing.T) {
	f := newFixture(t, fixedGate{requireFor: map[string]bool{"pick final list": true}})
	ctx := context.Background()
	existing := f.task(t, "survey graph databases")
	f.delegate.produce("survey graph databases", `{"title":"old"}`)
	f.delegate.produce("search vector stores", `{"title":"pgvector"}`)
	f.delegate.produce("compare stores", `{"title":"comparison"}`)

	res, err := f.orch.ApplyPlan(ctx, f.project, Plan{
		Tasks: []PlannedTask{
			{Ref: "survey", Summary: "survey graph databases"},
			{Ref: "vec", Summary: "search vector stores", Parent: "survey"},
			{Ref: "cmp", Summary: "compare stores"},
			{Ref: "final", Summary: "pick final list"},
		},
		Dependencies: []PlannedDependency{
			{Source: "vec", Dependent: "cmp", DataFlow: model.FlowAutomatic},
			{Source: "cmp", Dependent: "final"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, existing, res.Tasks["survey"])
	require.Len(t, res.Created, 3)

	// Created tasks run in creation order, so cmp sees vec's output in the
	// same pass. The resolved task is not run.
	require.NotContains(t, f.delegate.calls, "survey graph databases")
	require.Equal(t, []int64{res.Tasks["vec"], res.Tasks["cmp"]}, res.Run.Executed)
	require.Equal(t, []int64{res.Tasks["final"]}, res.Run.Gated)
}

func TestApplyPlan_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.orch.ApplyPlan(ctx, f.project, Plan{
		Tasks:        []PlannedTask{{Ref: "a", Summary: "a"}},
		Dependencies: []PlannedDependency{{Source: "a", Dependent: "zzz"}},
	})
	require.ErrorIs(t, err, model.ErrInvalidArgument)

	_, err = f.orch.ApplyPlan(ctx, f.project, Plan{
		Dependencies: []PlannedDependency{{Source: "1", Dependent: "2", DataFlow: "bogus"}},
	})
	require.ErrorIs(t, err, model.ErrInvalidArgument)
}
