package weave

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func testCheckpointStore(t *testing.T, store CheckpointStore) {
	ctx := context.Background()

	t.Run("LoadLatestWithoutID", func(t *testing.T) {
		err := store.Save(ctx, "wf-latest", "c0", json.RawMessage(`{"step":0}`), nil)
		require.NoError(t, err)
		err = store.Save(ctx, "wf-latest", "c1", json.RawMessage(`{"step":1}`), nil)
		require.NoError(t, err)

		checkpoint, err := store.Load(ctx, "wf-latest", "")
		require.NoError(t, err)

		state := map[string]any{}
		require.NoError(t, json.Unmarshal(checkpoint.State, &state))
		require.Equal(t, float64(1), state["step"])
	})

	t.Run("LoadByID", func(t *testing.T) {
		checkpoint, err := store.Load(ctx, "wf-latest", "c0")
		require.NoError(t, err)
		require.Equal(t, "c0", checkpoint.CheckpointID)
	})

	t.Run("ExplicitOverwrite", func(t *testing.T) {
		err := store.Save(ctx, "wf-latest", "c0", json.RawMessage(`{"step":99}`), nil)
		require.NoError(t, err)

		checkpoint, err := store.Load(ctx, "wf-latest", "c0")
		require.NoError(t, err)
		require.JSONEq(t, `{"step":99}`, string(checkpoint.State))
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		infos, err := store.List(ctx, "wf-latest")
		require.NoError(t, err)
		require.Len(t, infos, 2)
		require.Equal(t, "c0", infos[0].CheckpointID) // overwritten above, newest
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := store.Load(ctx, "wf-nothing", "")
		require.ErrorIs(t, err, ErrCheckpointNotFound)

		_, err = store.Load(ctx, "wf-latest", "missing")
		require.ErrorIs(t, err, ErrCheckpointNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		deleted, err := store.Delete(ctx, "wf-latest", "c1")
		require.NoError(t, err)
		require.True(t, deleted)

		deleted, err = store.Delete(ctx, "wf-latest", "c1")
		require.NoError(t, err)
		require.False(t, deleted)

		infos, err := store.List(ctx, "wf-latest")
		require.NoError(t, err)
		require.Len(t, infos, 1)
	})

	t.Run("WorkflowIsolationUnderConcurrentWriters", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make(chan error, 80)
		for w := 0; w < 4; w++ {
			workflowID := fmt.Sprintf("wf-iso-%d", w)
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 20; i++ {
					state := json.RawMessage(fmt.Sprintf(`{"workflow":%q,"i":%d}`, workflowID, i))
					if err := store.Save(ctx, workflowID, fmt.Sprintf("c%d", i), state, nil); err != nil {
						errs <- err
					}
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		for w := 0; w < 4; w++ {
			workflowID := fmt.Sprintf("wf-iso-%d", w)
			infos, err := store.List(ctx, workflowID)
			require.NoError(t, err)
			require.Len(t, infos, 20)

			checkpoint, err := store.Load(ctx, workflowID, "")
			require.NoError(t, err)
			state := map[string]any{}
			require.NoError(t, json.Unmarshal(checkpoint.State, &state))
			require.Equal(t, workflowID, state["workflow"])
		}
	})
}

func TestMemoryCheckpointStore(t *testing.T) {
	testCheckpointStore(t, NewMemoryCheckpointStore())
}

func TestFileCheckpointStore(t *testing.T) {
	store, err := NewFileCheckpointStore(t.TempDir())
	require.NoError(t, err)
	testCheckpointStore(t, store)
}

func TestFileCheckpointStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileCheckpointStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	state := &RunState{
		RunID:   "run-1",
		Cursor:  "b",
		Visited: []string{"a"},
		NodeOutputs: map[string]map[string]any{
			"a": {"value": float64(42)},
		},
		Payload: map[string]any{"value": float64(42)},
	}
	blob, err := MarshalState(state)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "wf-rt", "c0", blob, map[string]any{"node": "a"}))

	// A fresh store over the same directory sees the same data.
	reopened, err := NewFileCheckpointStore(dir)
	require.NoError(t, err)
	checkpoint, err := reopened.Load(ctx, "wf-rt", "")
	require.NoError(t, err)
	require.Equal(t, "a", checkpoint.Metadata["node"])

	restored, err := UnmarshalState(checkpoint.State)
	require.NoError(t, err)
	require.Equal(t, state, restored)
}
