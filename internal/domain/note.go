package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for Note
var (
	ErrEmptyNoteID      = errors.New("note ID cannot be empty")
	ErrEmptyNoteUserID  = errors.New("note user ID cannot be empty")
	ErrEmptyNoteTitle   = errors.New("note title cannot be empty")
	ErrEmptyNoteContent = errors.New("note content cannot be empty")
)

// Note represents a text entry authored by a user. Besides the original
// content it carries the AI-generated derivatives written back by
// background tasks.
type Note struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	Title           string    `json:"title"`
	Content         string    `json:"content"`
	EnhancedContent string    `json:"enhanced_content,omitempty"`
	Summary         string    `json:"summary,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewNote creates a new Note with the given owner, title, and content.
// It generates a new UUID for the note ID and sets the timestamps.
// Returns an error if validation fails.
func NewNote(userID uuid.UUID, title, content string) (*Note, error) {
	now := time.Now().UTC()
	note := &Note{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := note.Validate(); err != nil {
		return nil, err
	}

	return note, nil
}

// Validate checks if the Note has valid data.
// Returns an error if any field fails validation.
func (n *Note) Validate() error {
	if n.ID == uuid.Nil {
		return ErrEmptyNoteID
	}

	if n.UserID == uuid.Nil {
		return ErrEmptyNoteUserID
	}

	if n.Title == "" {
		return ErrEmptyNoteTitle
	}

	if n.Content == "" {
		return ErrEmptyNoteContent
	}

	return nil
}
