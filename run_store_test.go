package weave

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryRunStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRunStore()

	run := NewRun("wf-1", map[string]any{"n": 1})
	require.NoError(t, store.CreateRun(ctx, run))

	t.Run("GetReturnsCopy", func(t *testing.T) {
		loaded, err := store.GetRun(ctx, run.ID)
		require.NoError(t, err)
		require.Equal(t, run.ID, loaded.ID)

		loaded.Input["n"] = 99
		again, err := store.GetRun(ctx, run.ID)
		require.NoError(t, err)
		require.Equal(t, 1, again.Input["n"])
	})

	t.Run("Update", func(t *testing.T) {
		run.Status = RunStatusRunning
		run.StartedAt = time.Now()
		require.NoError(t, store.UpdateRun(ctx, run))

		loaded, err := store.GetRun(ctx, run.ID)
		require.NoError(t, err)
		require.Equal(t, RunStatusRunning, loaded.Status)
	})

	t.Run("UpdateUnknownRun", func(t *testing.T) {
		err := store.UpdateRun(ctx, NewRun("wf-1", nil))
		require.ErrorIs(t, err, ErrRunNotFound)
	})

	t.Run("ListFilters", func(t *testing.T) {
		other := NewRun("wf-2", nil)
		require.NoError(t, store.CreateRun(ctx, other))

		runs, err := store.ListRuns(ctx, RunFilter{WorkflowID: "wf-1"})
		require.NoError(t, err)
		require.Len(t, runs, 1)
		require.Equal(t, run.ID, runs[0].ID)

		runs, err = store.ListRuns(ctx, RunFilter{Status: RunStatusDraft})
		require.NoError(t, err)
		require.Len(t, runs, 1)
		require.Equal(t, other.ID, runs[0].ID)

		runs, err = store.ListRuns(ctx, RunFilter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, runs, 1)

		runs, err = store.ListRuns(ctx, RunFilter{Offset: 5})
		require.NoError(t, err)
		require.Empty(t, runs)
	})

	t.Run("Delete", func(t *testing.T) {
		deleted, err := store.DeleteRun(ctx, run.ID)
		require.NoError(t, err)
		require.True(t, deleted)

		deleted, err = store.DeleteRun(ctx, run.ID)
		require.NoError(t, err)
		require.False(t, deleted)

		_, err = store.GetRun(ctx, run.ID)
		require.ErrorIs(t, err, ErrRunNotFound)
	})
}

func TestRunStatusTerminal(t *testing.T) {
	require.True(t, RunStatusCompleted.Terminal())
	require.True(t, RunStatusFailed.Terminal())
	require.True(t, RunStatusCancelled.Terminal())
	require.False(t, RunStatusDraft.Terminal())
	require.False(t, RunStatusRunning.Terminal())
	require.False(t, RunStatusPaused.Terminal())
}
