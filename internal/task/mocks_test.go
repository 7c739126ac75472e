package task_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/inkwell-api/internal/domain"
	"github.com/phrazzld/inkwell-api/internal/generation"
	"github.com/phrazzld/inkwell-api/internal/pubsub"
	"github.com/phrazzld/inkwell-api/internal/store"
	"github.com/phrazzld/inkwell-api/internal/task"
)

// memTaskStore is an in-memory task.Store with the same
// terminal-wins transition semantics as the Postgres implementation.
type memTaskStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*task.Record
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{records: make(map[uuid.UUID]*task.Record)}
}

func (s *memTaskStore) Create(_ context.Context, rec *task.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.TaskID] = &cp
	return nil
}

func (s *memTaskStore) Get(_ context.Context, taskID uuid.UUID) (*task.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[taskID]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *memTaskStore) GetForOwner(ctx context.Context, taskID, ownerID uuid.UUID) (*task.Record, error) {
	rec, err := s.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, store.ErrTaskNotFound
	}
	return rec, nil
}

func (s *memTaskStore) UpdateStatus(_ context.Context, taskID uuid.UUID, status task.Status, result json.RawMessage, errMsg string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[taskID]
	if !ok {
		return false, store.ErrTaskNotFound
	}
	now := time.Now().UTC()
	if status == task.StatusRunning {
		if rec.Status != task.StatusPending {
			return false, nil
		}
		rec.Status = task.StatusRunning
		if rec.StartedAt == nil {
			rec.StartedAt = &now
		}
		return true, nil
	}
	if rec.Status.Terminal() {
		return false, nil
	}
	rec.Status = status
	rec.Result = result
	rec.Error = errMsg
	rec.CompletedAt = &now
	return true, nil
}

func (s *memTaskStore) List(_ context.Context, ownerID uuid.UUID, _ task.ListFilter) ([]*task.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*task.Record
	for _, rec := range s.records {
		if rec.OwnerID == ownerID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memTaskStore) CountForOwner(ctx context.Context, ownerID uuid.UUID, filter task.ListFilter) (int, error) {
	recs, err := s.List(ctx, ownerID, filter)
	return len(recs), err
}

func (s *memTaskStore) Delete(_ context.Context, taskID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[taskID]; !ok {
		return store.ErrTaskNotFound
	}
	delete(s.records, taskID)
	return nil
}

func (s *memTaskStore) Sweep(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.records {
		if rec.Status.Terminal() && rec.CompletedAt != nil && rec.CompletedAt.Before(olderThan) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

func (s *memTaskStore) FailOverdue(_ context.Context, startedBefore time.Time, errMsg string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	var n int64
	for _, rec := range s.records {
		if rec.Status == task.StatusRunning && rec.StartedAt != nil && rec.StartedAt.Before(startedBefore) {
			rec.Status = task.StatusFailed
			rec.Error = errMsg
			rec.CompletedAt = &now
			n++
		}
	}
	return n, nil
}

// memNoteStore is an in-memory store.NoteStore.
type memNoteStore struct {
	mu        sync.Mutex
	notes     map[uuid.UUID]*domain.Note
	saveErr   error
	saveCalls int
}

func newMemNoteStore(notes ...*domain.Note) *memNoteStore {
	s := &memNoteStore{notes: make(map[uuid.UUID]*domain.Note)}
	for _, n := range notes {
		cp := *n
		s.notes[n.ID] = &cp
	}
	return s
}

func (s *memNoteStore) Create(_ context.Context, note *domain.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[note.ID] = note
	return nil
}

func (s *memNoteStore) GetForOwner(_ context.Context, id, ownerID uuid.UUID) (*domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	note, ok := s.notes[id]
	if !ok || note.UserID != ownerID {
		return nil, store.ErrNoteNotFound
	}
	cp := *note
	return &cp, nil
}

func (s *memNoteStore) SaveGeneratedContent(_ context.Context, id uuid.UUID, field store.GeneratedField, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	if s.saveErr != nil {
		return s.saveErr
	}
	note, ok := s.notes[id]
	if !ok {
		return store.ErrNoteNotFound
	}
	switch field {
	case store.GeneratedFieldEnhanced:
		note.EnhancedContent = text
	case store.GeneratedFieldSummary:
		note.Summary = text
	}
	return nil
}

func (s *memNoteStore) WithTx(*sql.Tx) store.NoteStore { return s }

// stubGenerator returns a fixed response or error on every call.
type stubGenerator struct {
	response string
	err      error
}

func (g *stubGenerator) Generate(context.Context, string) (string, error) {
	return g.response, g.err
}

// stubStreamGenerator yields its fragments one at a time before
// terminating the stream.
type stubStreamGenerator struct {
	fragments []string
	err       error
}

func (g *stubStreamGenerator) Generate(context.Context, string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	var out string
	for _, f := range g.fragments {
		out += f
	}
	return out, nil
}

func (g *stubStreamGenerator) GenerateStream(ctx context.Context, _ string) (<-chan generation.Fragment, error) {
	ch := make(chan generation.Fragment)
	go func() {
		defer close(ch)
		for _, f := range g.fragments {
			select {
			case ch <- generation.Fragment{Text: f}:
			case <-ctx.Done():
				return
			}
		}
		if g.err != nil {
			ch <- generation.Fragment{Err: g.err}
		}
	}()
	return ch, nil
}

// flakyGenerator fails a set number of times before succeeding, for
// retry tests.
type flakyGenerator struct {
	mu        sync.Mutex
	failures  int
	response  string
	callCount int
}

func (g *flakyGenerator) Generate(context.Context, string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.callCount++
	if g.callCount <= g.failures {
		return "", errors.New("model temporarily unavailable")
	}
	return g.response, nil
}

func (g *flakyGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.callCount
}

// slowGenerator sleeps for a fixed duration ignoring the context, to
// exercise the hard time limit backstop.
type slowGenerator struct {
	delay    time.Duration
	response string
}

func (g *slowGenerator) Generate(context.Context, string) (string, error) {
	time.Sleep(g.delay)
	return g.response, nil
}

// captureBus records published payloads per channel.
type captureBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func newCaptureBus() *captureBus {
	return &captureBus{published: make(map[string][][]byte)}
}

func (b *captureBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	b.published[channel] = append(b.published[channel], cp)
	return nil
}

func (b *captureBus) Subscribe(context.Context, string) (pubsub.Subscription, error) {
	return nil, errors.New("capture bus does not support subscriptions")
}

func (b *captureBus) events(channel string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.published[channel]))
	copy(out, b.published[channel])
	return out
}

// recordingEnqueuer captures enqueued payloads, optionally failing.
type recordingEnqueuer struct {
	mu       sync.Mutex
	err      error
	payloads map[string][][]byte
}

func newRecordingEnqueuer() *recordingEnqueuer {
	return &recordingEnqueuer{payloads: make(map[string][][]byte)}
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, queueName string, payload []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.payloads[queueName] = append(e.payloads[queueName], payload)
	return nil
}
