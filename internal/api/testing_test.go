package api_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/inkwell-api/internal/api/shared"
	"github.com/phrazzld/inkwell-api/internal/domain"
	"github.com/phrazzld/inkwell-api/internal/pubsub"
	"github.com/phrazzld/inkwell-api/internal/store"
	"github.com/phrazzld/inkwell-api/internal/task"
)

// withUserID simulates the auth middleware for direct handler tests.
func withUserID(r *http.Request, userID uuid.UUID) *http.Request {
	ctx := context.WithValue(r.Context(), shared.UserIDContextKey, userID)
	return r.WithContext(ctx)
}

// fakeTaskStore is an in-memory task.Store with the production
// transition semantics.
type fakeTaskStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*task.Record
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{records: make(map[uuid.UUID]*task.Record)}
}

func (s *fakeTaskStore) Create(_ context.Context, rec *task.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.TaskID] = &cp
	return nil
}

func (s *fakeTaskStore) Get(_ context.Context, taskID uuid.UUID) (*task.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[taskID]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeTaskStore) GetForOwner(ctx context.Context, taskID, ownerID uuid.UUID) (*task.Record, error) {
	rec, err := s.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, store.ErrTaskNotFound
	}
	return rec, nil
}

func (s *fakeTaskStore) UpdateStatus(_ context.Context, taskID uuid.UUID, status task.Status, result json.RawMessage, errMsg string) (bool, error) {
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
		rec.Status = status
		rec.StartedAt = &now
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

func (s *fakeTaskStore) List(_ context.Context, ownerID uuid.UUID, filter task.ListFilter) ([]*task.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*task.Record
	for _, rec := range s.records {
		if rec.OwnerID != ownerID {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.Type != "" && rec.Type != filter.Type {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeTaskStore) CountForOwner(ctx context.Context, ownerID uuid.UUID, filter task.ListFilter) (int, error) {
	recs, err := s.List(ctx, ownerID, filter)
	return len(recs), err
}

// len reports how many records the store holds, for assertions about
// operations that must not create any.
func (s *fakeTaskStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *fakeTaskStore) Delete(_ context.Context, taskID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[taskID]; !ok {
		return store.ErrTaskNotFound
	}
	delete(s.records, taskID)
	return nil
}

func (s *fakeTaskStore) Sweep(context.Context, time.Time) (int64, error) { return 0, nil }

func (s *fakeTaskStore) FailOverdue(context.Context, time.Time, string) (int64, error) {
	return 0, nil
}

// fakeNoteStore backs the NoteService in handler tests.
type fakeNoteStore struct {
	mu    sync.Mutex
	notes map[uuid.UUID]*domain.Note
}

func newFakeNoteStore(notes ...*domain.Note) *fakeNoteStore {
	s := &fakeNoteStore{notes: make(map[uuid.UUID]*domain.Note)}
	for _, n := range notes {
		s.notes[n.ID] = n
	}
	return s
}

func (s *fakeNoteStore) Create(_ context.Context, note *domain.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[note.ID] = note
	return nil
}

func (s *fakeNoteStore) GetForOwner(_ context.Context, id, ownerID uuid.UUID) (*domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	note, ok := s.notes[id]
	if !ok || note.UserID != ownerID {
		return nil, store.ErrNoteNotFound
	}
	cp := *note
	return &cp, nil
}

func (s *fakeNoteStore) SaveGeneratedContent(_ context.Context, id uuid.UUID, field store.GeneratedField, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
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

func (s *fakeNoteStore) WithTx(*sql.Tx) store.NoteStore { return s }

// countingEnqueuer accepts everything and remembers how many messages
// it saw.
type countingEnqueuer struct {
	mu    sync.Mutex
	count int
}

func (e *countingEnqueuer) Enqueue(context.Context, string, []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count++
	return nil
}

func (e *countingEnqueuer) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

// chanBus is an in-process pubsub.Provider with working subscriptions.
type chanBus struct {
	mu   sync.Mutex
	subs map[string][]*chanSubscription
}

func newChanBus() *chanBus {
	return &chanBus{subs: make(map[string][]*chanSubscription)}
}

func (b *chanBus) Subscribe(_ context.Context, channel string) (pubsub.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &chanSubscription{ch: make(chan pubsub.Message, 32)}
	b.subs[channel] = append(b.subs[channel], sub)
	return sub, nil
}

func (b *chanBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs[channel] {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		sub.deliver(pubsub.Message{Payload: cp})
	}
	return nil
}

type chanSubscription struct {
	mu     sync.Mutex
	ch     chan pubsub.Message
	closed bool
}

func (s *chanSubscription) Messages() <-chan pubsub.Message { return s.ch }

func (s *chanSubscription) deliver(msg pubsub.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- msg
}

func (s *chanSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}
