package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/queue"
)

// Dispatcher persists a task record and hands the work off to a queue.
// The record is created first so a client that receives the task ID can
// immediately poll or subscribe, even if the worker has not picked the
// message up yet.
type Dispatcher struct {
	store    Store
	enqueuer queue.Enqueuer
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher backed by the given store and queue.
func NewDispatcher(store Store, enqueuer queue.Enqueuer, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:    store,
		enqueuer: enqueuer,
		logger:   logger.With(slog.String("component", "task_dispatcher")),
	}
}

// Request describes a task submission.
type Request struct {
	Type         Type
	OwnerID      uuid.UUID
	ResourceType string
	ResourceID   uuid.UUID
	Payload      json.RawMessage
}

// Dispatch creates a pending record and enqueues its message on the
// queue the task type routes to. On enqueue failure the record is
// marked failed so it does not linger as a pending orphan.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Record, error) {
	if _, err := ParseType(string(req.Type)); err != nil {
		return nil, err
	}

	rec := &Record{
		TaskID:       uuid.New(),
		OwnerID:      req.OwnerID,
		Type:         req.Type,
		Name:         req.Type.Name(),
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Status:       StatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	if err := d.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create task record: %w", err)
	}

	msg := Message{
		TaskID:  rec.TaskID,
		Type:    rec.Type,
		OwnerID: rec.OwnerID,
		Payload: req.Payload,
	}
	data, err := msg.Encode()
	if err != nil {
		return nil, err
	}

	queueName := req.Type.Queue()
	if err := d.enqueuer.Enqueue(ctx, queueName, data); err != nil {
		d.logger.ErrorContext(ctx, "failed to enqueue task",
			slog.String("task_id", rec.TaskID.String()),
			slog.String("queue", queueName),
			slog.String("error", err.Error()))
		if _, markErr := d.store.UpdateStatus(ctx, rec.TaskID, StatusFailed, nil, "failed to enqueue task"); markErr != nil {
			d.logger.ErrorContext(ctx, "failed to mark orphaned task as failed",
				slog.String("task_id", rec.TaskID.String()),
				slog.String("error", markErr.Error()))
		}
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	d.logger.DebugContext(ctx, "task dispatched",
		slog.String("task_id", rec.TaskID.String()),
		slog.String("task_type", string(rec.Type)),
		slog.String("queue", queueName))
	return rec, nil
}

// Cancel marks a non-terminal task owned by ownerID as failed with a
// cancellation message. A task that already produced a result keeps it:
// the terminal status wins and Cancel reports that nothing changed.
func (d *Dispatcher) Cancel(ctx context.Context, taskID, ownerID uuid.UUID) (bool, error) {
	if _, err := d.store.GetForOwner(ctx, taskID, ownerID); err != nil {
		return false, err
	}
	applied, err := d.store.UpdateStatus(ctx, taskID, StatusFailed, nil, "cancelled by user")
	if err != nil {
		return false, fmt.Errorf("failed to cancel task: %w", err)
	}
	if applied {
		d.logger.InfoContext(ctx, "task cancelled",
			slog.String("task_id", taskID.String()))
	}
	return applied, nil
}
