package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/inkwell-api/internal/config"
	"github.com/phrazzld/inkwell-api/internal/generation"
	"github.com/phrazzld/inkwell-api/internal/pubsub"
	"github.com/phrazzld/inkwell-api/internal/queue"
	"github.com/phrazzld/inkwell-api/internal/store"
	"github.com/phrazzld/inkwell-api/internal/stream"
)

const dequeueWait = 5 * time.Second

// Runner consumes task messages from the queues and executes them on a
// fixed pool of workers. It owns the task lifecycle: workers claim the
// pending record, run the handler under soft and hard time limits, retry
// transient failures with exponential backoff, and write exactly one
// terminal status. The matching terminal stream event is published only
// when the status write was actually applied, so a concurrent
// cancellation never produces a second terminal event.
type Runner struct {
	store    Store
	dequeuer queue.Dequeuer
	handlers *Handlers
	bus      pubsub.Provider
	cfg      config.WorkerConfig
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a runner. Start must be called before it consumes
// anything.
func NewRunner(
	st Store,
	dequeuer queue.Dequeuer,
	handlers *Handlers,
	bus pubsub.Provider,
	cfg config.WorkerConfig,
	logger *slog.Logger,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:    st,
		dequeuer: dequeuer,
		handlers: handlers,
		bus:      bus,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "task_runner")),
	}
}

// Start launches the worker pool and the background sweeper.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	for i := 0; i < r.cfg.Count; i++ {
		r.wg.Add(1)
		go func(id int) {
			defer r.wg.Done()
			r.workerLoop(ctx, id)
		}(i)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.sweepLoop(ctx)
	}()

	r.logger.Info("task runner started",
		slog.Int("workers", r.cfg.Count),
		slog.Int("max_retries", r.cfg.MaxRetries))
}

// Stop signals the workers and waits for in-flight tasks to finish.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.logger.Info("task runner stopped")
}

// workerLoop dequeues and executes messages until the context is
// cancelled. The high-priority queue is listed first so the blocking
// pop services it ahead of the default queue.
func (r *Runner) workerLoop(ctx context.Context, id int) {
	log := r.logger.With(slog.Int("worker", id))
	for {
		delivery, err := r.dequeuer.Dequeue(ctx, []string{queue.QueueHighPriority, queue.QueueDefault}, dequeueWait)
		if err != nil {
			if errors.Is(err, queue.ErrNoMessage) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			log.ErrorContext(ctx, "dequeue failed", slog.String("error", err.Error()))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		msg, err := DecodeMessage(delivery.Payload)
		if err != nil {
			log.ErrorContext(ctx, "dropping undecodable task message",
				slog.String("queue", delivery.Queue),
				slog.String("error", err.Error()))
			continue
		}
		r.execute(ctx, log, msg)
	}
}

// execute runs one task message through its full lifecycle.
func (r *Runner) execute(ctx context.Context, log *slog.Logger, msg Message) {
	log = log.With(
		slog.String("task_id", msg.TaskID.String()),
		slog.String("task_type", string(msg.Type)))

	handler, err := r.handlers.Lookup(msg.Type)
	if err != nil {
		r.finishFailed(ctx, log, msg, err.Error())
		return
	}

	claimed, err := r.store.UpdateStatus(ctx, msg.TaskID, StatusRunning, nil, "")
	if err != nil {
		log.ErrorContext(ctx, "failed to claim task", slog.String("error", err.Error()))
		return
	}
	if !claimed {
		// Already terminal, typically cancelled before pickup.
		log.InfoContext(ctx, "skipping task already in terminal state")
		return
	}
	log.InfoContext(ctx, "task started")

	var result HandlerResult
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.backoff(attempt)
			log.WarnContext(ctx, "retrying task",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				r.finishFailed(ctx, log, msg, "worker shutting down")
				return
			}
		}

		result, lastErr = r.runAttempt(ctx, handler, msg)
		if lastErr == nil {
			r.finishSuccess(ctx, log, msg, result)
			return
		}
		if !retryable(lastErr) {
			break
		}
	}
	r.finishFailed(ctx, log, msg, lastErr.Error())
}

// runAttempt executes the handler once under the soft time limit, with
// the hard limit as a backstop for handlers that ignore cancellation.
func (r *Runner) runAttempt(ctx context.Context, handler HandlerFunc, msg Message) (HandlerResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.SoftTimeLimit)
	defer cancel()

	type outcome struct {
		result HandlerResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := handler(attemptCtx, msg)
		done <- outcome{result: res, err: err}
	}()

	hard := time.NewTimer(r.cfg.HardTimeLimit)
	defer hard.Stop()

	select {
	case out := <-done:
		return out.result, out.err
	case <-hard.C:
		return HandlerResult{}, fmt.Errorf("task exceeded hard time limit of %s", r.cfg.HardTimeLimit)
	}
}

// backoff returns the delay before the given retry attempt, doubling
// from the base delay and capped at the configured maximum.
func (r *Runner) backoff(attempt int) time.Duration {
	delay := r.cfg.RetryBaseDelay << (attempt - 1)
	if delay > r.cfg.RetryMaxDelay || delay <= 0 {
		delay = r.cfg.RetryMaxDelay
	}
	return delay
}

func (r *Runner) finishSuccess(ctx context.Context, log *slog.Logger, msg Message, result HandlerResult) {
	applied, err := r.store.UpdateStatus(ctx, msg.TaskID, StatusSuccess, result.Result, "")
	if err != nil {
		log.ErrorContext(ctx, "failed to record task success", slog.String("error", err.Error()))
		return
	}
	if !applied {
		log.InfoContext(ctx, "task completed but was already terminal, discarding result")
		return
	}
	r.publishTerminal(ctx, log, stream.Complete(msg.TaskID, result.FullText))
	log.InfoContext(ctx, "task succeeded")
}

func (r *Runner) finishFailed(ctx context.Context, log *slog.Logger, msg Message, errMsg string) {
	applied, err := r.store.UpdateStatus(ctx, msg.TaskID, StatusFailed, nil, errMsg)
	if err != nil {
		log.ErrorContext(ctx, "failed to record task failure", slog.String("error", err.Error()))
		return
	}
	if !applied {
		return
	}
	r.publishTerminal(ctx, log, stream.Error(msg.TaskID, errMsg))
	log.WarnContext(ctx, "task failed", slog.String("error", errMsg))
}

func (r *Runner) publishTerminal(ctx context.Context, log *slog.Logger, ev stream.Event) {
	if r.bus == nil {
		return
	}
	data, err := ev.Encode()
	if err != nil {
		log.ErrorContext(ctx, "failed to encode terminal stream event", slog.String("error", err.Error()))
		return
	}
	if err := r.bus.Publish(ctx, stream.Channel(ev.TaskID), data); err != nil {
		log.WarnContext(ctx, "failed to publish terminal stream event", slog.String("error", err.Error()))
	}
}

// sweepLoop periodically removes aged-out terminal records and fails
// running records that outlived the hard time limit, covering workers
// that died mid-task.
func (r *Runner) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()

			removed, err := r.store.Sweep(ctx, now.Add(-r.cfg.Retention))
			if err != nil {
				r.logger.ErrorContext(ctx, "task sweep failed", slog.String("error", err.Error()))
			} else if removed > 0 {
				r.logger.InfoContext(ctx, "swept expired task records", slog.Int64("removed", removed))
			}

			failed, err := r.store.FailOverdue(ctx, now.Add(-r.cfg.HardTimeLimit), "task exceeded hard time limit")
			if err != nil {
				r.logger.ErrorContext(ctx, "overdue task check failed", slog.String("error", err.Error()))
			} else if failed > 0 {
				r.logger.WarnContext(ctx, "failed overdue running tasks", slog.Int64("failed", failed))
			}
		}
	}
}

// retryable reports whether an error is worth another attempt. Bad
// input, missing resources, and content policy refusals will not
// improve on retry; transient upstream and infrastructure errors might.
func retryable(err error) bool {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, generation.ErrContentBlocked),
		errors.Is(err, generation.ErrInvalidResponse),
		errors.Is(err, ErrUnknownType),
		errors.Is(err, context.Canceled):
		return false
	}
	var jsonErr *json.SyntaxError
	if errors.As(err, &jsonErr) {
		return false
	}
	return true
}
