package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/queue"
)

// Status represents the current state of a task record.
type Status string

// Possible task status values. The only legal path is
// pending → running → {success, failed}; a terminal status is never
// overwritten.
const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Terminal reports whether the status ends the task lifecycle.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Type identifies the kind of work a task performs. The set is closed:
// the runner maps each type to a statically-known handler, so an unknown
// type is rejected at dispatch time rather than at execution time.
type Type string

const (
	TypeEnhance      Type = "enhance"
	TypeSummarize    Type = "summarize"
	TypeGenerateQuiz Type = "generate_quiz"
	TypeGenerateBlog Type = "generate_blog"
	TypeAskQuestion  Type = "ask_question"
)

// ErrUnknownType is returned when a task type string does not name a
// registered task type.
var ErrUnknownType = errors.New("unknown task type")

// ParseType validates a task type received from the outside.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeEnhance, TypeSummarize, TypeGenerateQuiz, TypeGenerateBlog, TypeAskQuestion:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

// Queue returns the named queue a task type is routed to. Interactive
// note enhancements go to the high-priority queue; everything else uses
// the default queue.
func (t Type) Queue() string {
	switch t {
	case TypeEnhance, TypeSummarize, TypeAskQuestion:
		return queue.QueueHighPriority
	default:
		return queue.QueueDefault
	}
}

// Name returns the human-readable task name stored on the record.
func (t Type) Name() string {
	switch t {
	case TypeEnhance:
		return "Enhance note"
	case TypeSummarize:
		return "Summarize note"
	case TypeGenerateQuiz:
		return "Generate quiz"
	case TypeGenerateBlog:
		return "Generate blog post"
	case TypeAskQuestion:
		return "Answer question"
	default:
		return string(t)
	}
}

// Streaming reports whether the type's handler streams fragments to the
// broadcast bus while it runs.
func (t Type) Streaming() bool {
	switch t {
	case TypeEnhance, TypeSummarize, TypeGenerateBlog:
		return true
	default:
		return false
	}
}

// Record is the durable ledger entry for one dispatched job.
type Record struct {
	TaskID       uuid.UUID       `json:"task_id"`
	OwnerID      uuid.UUID       `json:"owner_id"`
	Type         Type            `json:"task_type"`
	Name         string          `json:"task_name"`
	ResourceType string          `json:"resource_type,omitempty"`
	ResourceID   uuid.UUID       `json:"resource_id,omitempty"`
	Status       Status          `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// Message is the envelope placed on a queue at dispatch time and decoded
// by a worker. Payload carries handler-specific arguments.
type Message struct {
	TaskID  uuid.UUID       `json:"task_id"`
	Type    Type            `json:"task_type"`
	OwnerID uuid.UUID       `json:"owner_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode serializes the message for the queue.
func (m Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task message: %w", err)
	}
	return data, nil
}

// DecodeMessage deserializes a queue payload.
func DecodeMessage(payload []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return Message{}, fmt.Errorf("failed to decode task message: %w", err)
	}
	if _, err := ParseType(string(m.Type)); err != nil {
		return Message{}, err
	}
	return m, nil
}

// NotePayload carries arguments for note-scoped tasks (enhance,
// summarize, generate_quiz, ask_question).
type NotePayload struct {
	NoteID   uuid.UUID `json:"note_id"`
	Question string    `json:"question,omitempty"`
}

// BlogPayload carries arguments for blog post generation, which acts on
// inline content rather than a stored resource.
type BlogPayload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}
