// Package stream defines the ephemeral events fanned out to live
// subscribers while a background generation runs. Events are the lossy
// notification layer; the task ledger remains the durable source of truth.
package stream

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// EventKind enumerates stream event categories surfaced to clients.
type EventKind string

const (
	EventKindChunk    EventKind = "chunk"
	EventKindComplete EventKind = "complete"
	EventKindError    EventKind = "error"
)

// Event is one fan-out message published on a task's channel.
// Content carries a text fragment for chunk events; FullText carries the
// final aggregate for complete events; Error carries a message for error
// events. Done marks terminal events so subscribers know to close.
type Event struct {
	Kind     EventKind `json:"kind"`
	TaskID   uuid.UUID `json:"task_id"`
	Content  string    `json:"content,omitempty"`
	FullText string    `json:"full_text,omitempty"`
	Error    string    `json:"error,omitempty"`
	Done     bool      `json:"done,omitempty"`
}

// Terminal reports whether the event ends a stream.
func (e Event) Terminal() bool {
	return e.Kind == EventKindComplete || e.Kind == EventKindError
}

// Chunk builds a chunk event carrying one text fragment.
func Chunk(taskID uuid.UUID, content string) Event {
	return Event{Kind: EventKindChunk, TaskID: taskID, Content: content}
}

// Complete builds the terminal success event carrying the full
// accumulated text.
func Complete(taskID uuid.UUID, fullText string) Event {
	return Event{Kind: EventKindComplete, TaskID: taskID, FullText: fullText, Done: true}
}

// Error builds the terminal failure event.
func Error(taskID uuid.UUID, message string) Event {
	return Event{Kind: EventKindError, TaskID: taskID, Error: message, Done: true}
}

// Channel returns the broadcast bus channel name for a task's stream.
func Channel(taskID uuid.UUID) string {
	return "stream:" + taskID.String()
}

// Encode serializes the event for the broadcast bus.
func (e Event) Encode() ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode stream event: %w", err)
	}
	return payload, nil
}

// Decode deserializes an event received from the broadcast bus.
func Decode(payload []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return Event{}, fmt.Errorf("failed to decode stream event: %w", err)
	}
	return e, nil
}
