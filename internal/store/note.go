package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/domain"
)

// GeneratedField identifies which AI-derived column of a note a task
// writes back.
type GeneratedField string

const (
	GeneratedFieldEnhanced GeneratedField = "enhanced_content"
	GeneratedFieldSummary  GeneratedField = "summary"
)

// NoteStore defines the interface for note data persistence.
type NoteStore interface {
	// Create saves a new note to the store.
	// Returns validation errors from the domain Note if data is invalid.
	Create(ctx context.Context, note *domain.Note) error

	// GetForOwner retrieves a note by ID scoped to its owner.
	// Returns ErrNoteNotFound when the note does not exist or belongs
	// to a different owner.
	GetForOwner(ctx context.Context, id, ownerID uuid.UUID) (*domain.Note, error)

	// SaveGeneratedContent writes an AI-generated derivative back onto the
	// note. Returns ErrNoteNotFound if the note does not exist.
	SaveGeneratedContent(ctx context.Context, id uuid.UUID, field GeneratedField, text string) error

	// WithTx returns a new NoteStore instance that uses the provided transaction.
	// The transaction should be created and managed by the caller.
	WithTx(tx *sql.Tx) NoteStore
}
