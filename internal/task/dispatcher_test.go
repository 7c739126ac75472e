package task_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/inkwell-api/internal/queue"
	"github.com/phrazzld/inkwell-api/internal/store"
	"github.com/phrazzld/inkwell-api/internal/task"
)

func TestDispatcherDispatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("creates pending record and enqueues on routed queue", func(t *testing.T) {
		t.Parallel()
		st := newMemTaskStore()
		enq := newRecordingEnqueuer()
		d := task.NewDispatcher(st, enq, nil)

		ownerID := uuid.New()
		rec, err := d.Dispatch(ctx, task.Request{
			Type:    task.TypeEnhance,
			OwnerID: ownerID,
			Payload: []byte(`{"note_id":"` + uuid.NewString() + `"}`),
		})
		require.NoError(t, err)
		assert.Equal(t, task.StatusPending, rec.Status)
		assert.Equal(t, "Enhance note", rec.Name)
		assert.Equal(t, ownerID, rec.OwnerID)
		assert.Nil(t, rec.StartedAt)

		stored, err := st.Get(ctx, rec.TaskID)
		require.NoError(t, err)
		assert.Equal(t, task.StatusPending, stored.Status)

		require.Len(t, enq.payloads[queue.QueueHighPriority], 1)
		msg, err := task.DecodeMessage(enq.payloads[queue.QueueHighPriority][0])
		require.NoError(t, err)
		assert.Equal(t, rec.TaskID, msg.TaskID)
		assert.Equal(t, task.TypeEnhance, msg.Type)
	})

	t.Run("routes batch work to the default queue", func(t *testing.T) {
		t.Parallel()
		st := newMemTaskStore()
		enq := newRecordingEnqueuer()
		d := task.NewDispatcher(st, enq, nil)

		_, err := d.Dispatch(ctx, task.Request{
			Type:    task.TypeGenerateBlog,
			OwnerID: uuid.New(),
			Payload: []byte(`{"title":"t","content":"c"}`),
		})
		require.NoError(t, err)
		assert.Len(t, enq.payloads[queue.QueueDefault], 1)
		assert.Empty(t, enq.payloads[queue.QueueHighPriority])
	})

	t.Run("rejects unknown type before touching the store", func(t *testing.T) {
		t.Parallel()
		st := newMemTaskStore()
		d := task.NewDispatcher(st, newRecordingEnqueuer(), nil)

		_, err := d.Dispatch(ctx, task.Request{Type: "mine_bitcoin", OwnerID: uuid.New()})
		assert.ErrorIs(t, err, task.ErrUnknownType)
		assert.Empty(t, st.records)
	})

	t.Run("marks record failed when enqueue fails", func(t *testing.T) {
		t.Parallel()
		st := newMemTaskStore()
		enq := newRecordingEnqueuer()
		enq.err = errors.New("redis down")
		d := task.NewDispatcher(st, enq, nil)

		_, err := d.Dispatch(ctx, task.Request{
			Type:    task.TypeSummarize,
			OwnerID: uuid.New(),
		})
		require.Error(t, err)

		st.mu.Lock()
		defer st.mu.Unlock()
		require.Len(t, st.records, 1)
		for _, rec := range st.records {
			assert.Equal(t, task.StatusFailed, rec.Status)
			assert.NotEmpty(t, rec.Error)
		}
	})
}

func TestDispatcherCancel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("cancels a pending task", func(t *testing.T) {
		t.Parallel()
		st := newMemTaskStore()
		d := task.NewDispatcher(st, newRecordingEnqueuer(), nil)

		ownerID := uuid.New()
		rec, err := d.Dispatch(ctx, task.Request{Type: task.TypeEnhance, OwnerID: ownerID})
		require.NoError(t, err)

		applied, err := d.Cancel(ctx, rec.TaskID, ownerID)
		require.NoError(t, err)
		assert.True(t, applied)

		got, err := st.Get(ctx, rec.TaskID)
		require.NoError(t, err)
		assert.Equal(t, task.StatusFailed, got.Status)
		assert.Equal(t, "cancelled by user", got.Error)
		assert.NotNil(t, got.CompletedAt)
	})

	t.Run("does not override a completed task", func(t *testing.T) {
		t.Parallel()
		st := newMemTaskStore()
		d := task.NewDispatcher(st, newRecordingEnqueuer(), nil)

		ownerID := uuid.New()
		rec, err := d.Dispatch(ctx, task.Request{Type: task.TypeEnhance, OwnerID: ownerID})
		require.NoError(t, err)

		_, err = st.UpdateStatus(ctx, rec.TaskID, task.StatusRunning, nil, "")
		require.NoError(t, err)
		applied, err := st.UpdateStatus(ctx, rec.TaskID, task.StatusSuccess, []byte(`{"ok":true}`), "")
		require.NoError(t, err)
		require.True(t, applied)

		applied, err = d.Cancel(ctx, rec.TaskID, ownerID)
		require.NoError(t, err)
		assert.False(t, applied, "cancel must lose to an existing terminal status")

		got, err := st.Get(ctx, rec.TaskID)
		require.NoError(t, err)
		assert.Equal(t, task.StatusSuccess, got.Status)
		assert.JSONEq(t, `{"ok":true}`, string(got.Result))
	})

	t.Run("hides other owners' tasks", func(t *testing.T) {
		t.Parallel()
		st := newMemTaskStore()
		d := task.NewDispatcher(st, newRecordingEnqueuer(), nil)

		rec, err := d.Dispatch(ctx, task.Request{Type: task.TypeEnhance, OwnerID: uuid.New()})
		require.NoError(t, err)

		_, err = d.Cancel(ctx, rec.TaskID, uuid.New())
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})
}
