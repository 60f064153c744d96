package enrichment

import (
	"context"
	"errors"
	"testing"

	"github.com/shaibs3/ResearchGraph/internal/model"
	"github.com/shaibs3/ResearchGraph/internal/store/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingOp struct {
	name string
	fail map[int64]bool
	ran  []int64
}

func (r *recordingOp) Name() string { return r.name }

func (r *recordingOp) Run(_ context.Context, task model.QueuedTask) error {
	r.ran = append(r.ran, task.ID)
	if r.fail[task.ID] {
		return errors.New("transient")
	}
	return nil
}

func TestDrain_SuccessDeletesFailureStays(t *testing.T) {
	ctx := context.Background()
	m := memory.NewInMemoryProvider()
	op := &recordingOp{name: "noop", fail: map[int64]bool{2: true}}
	for _, name := range []string{"noop", "noop", "mystery", "noop"} {
		_, err := m.AddQueuedTask(ctx, model.QueuedTask{Name: name})
		require.NoError(t, err)
	}

	d := NewDrainer(m, NewRegistry(op), 0, zap.NewNop())
	report, err := d.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, DrainReport{Ran: 2, Failed: 1, Unknown: 1}, report)
	require.Equal(t, []int64{1, 2, 4}, op.ran)

	left, err := m.ListQueuedTasks(ctx, 0)
	require.NoError(t, err)
	require.Len(t, left, 2)
	require.Equal(t, int64(2), left[0].ID)
	require.Equal(t, "mystery", left[1].Name)
}

func TestDrain_BatchLimit(t *testing.T) {
	ctx := context.Background()
	m := memory.NewInMemoryProvider()
	op := &recordingOp{name: "noop"}
	for i := 0; i < 3; i++ {
		_, err := m.AddQueuedTask(ctx, model.QueuedTask{Name: "noop"})
		require.NoError(t, err)
	}

	d := NewDrainer(m, NewRegistry(op), 2, zap.NewNop())
	report, err := d.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.Ran)
	require.Equal(t, []int64{1, 2}, op.ran)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(&recordingOp{name: "b"}, &recordingOp{name: "a"})
	require.Equal(t, []string{"a", "b"}, r.Names())
	_, ok := r.Lookup("c")
	require.False(t, ok)
}
