package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/domain"
	"github.com/phrazzld/inkwell-api/internal/platform/logger"
	"github.com/phrazzld/inkwell-api/internal/store"
)

// NoteStore implements store.NoteStore using PostgreSQL.
type NoteStore struct {
	db store.DBTX
}

// NewNoteStore creates a NoteStore using the given database connection
// or transaction.
func NewNoteStore(db store.DBTX) *NoteStore {
	return &NoteStore{db: db}
}

var _ store.NoteStore = (*NoteStore)(nil)

// Create saves a new note.
func (s *NoteStore) Create(ctx context.Context, note *domain.Note) error {
	log := logger.FromContext(ctx)

	if err := note.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO notes (id, user_id, title, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		note.ID,
		note.UserID,
		note.Title,
		note.Content,
		note.CreatedAt,
		note.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to insert note", "note_id", note.ID, "error", err)
		return MapError(err)
	}
	return nil
}

// GetForOwner retrieves a note by ID scoped to its owner.
func (s *NoteStore) GetForOwner(ctx context.Context, id, ownerID uuid.UUID) (*domain.Note, error) {
	query := `
		SELECT id, user_id, title, content, enhanced_content, summary, created_at, updated_at
		FROM notes
		WHERE id = $1 AND user_id = $2
	`

	var note domain.Note
	var enhanced, summary sql.NullString
	err := s.db.QueryRowContext(ctx, query, id, ownerID).Scan(
		&note.ID,
		&note.UserID,
		&note.Title,
		&note.Content,
		&enhanced,
		&summary,
		&note.CreatedAt,
		&note.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNoteNotFound
		}
		logger.FromContext(ctx).Error("failed to get note", "note_id", id, "error", err)
		return nil, MapError(err)
	}
	note.EnhancedContent = enhanced.String
	note.Summary = summary.String
	return &note, nil
}

// SaveGeneratedContent writes an AI-generated derivative onto the note.
// The target column is selected from the closed GeneratedField set, so
// the column name never comes from caller input.
func (s *NoteStore) SaveGeneratedContent(
	ctx context.Context,
	id uuid.UUID,
	field store.GeneratedField,
	text string,
) error {
	log := logger.FromContext(ctx)

	var query string
	switch field {
	case store.GeneratedFieldEnhanced:
		query = `UPDATE notes SET enhanced_content = $1, updated_at = $2 WHERE id = $3`
	case store.GeneratedFieldSummary:
		query = `UPDATE notes SET summary = $1, updated_at = $2 WHERE id = $3`
	default:
		return fmt.Errorf("%w: unknown generated field %q", store.ErrInvalidEntity, field)
	}

	res, err := s.db.ExecContext(ctx, query, text, time.Now().UTC(), id)
	if err != nil {
		log.Error("failed to save generated content",
			"note_id", id,
			"field", field,
			"error", err)
		return MapError(err)
	}
	if err := CheckRowsAffected(res, "note"); err != nil {
		return fmt.Errorf("%w: %v", store.ErrNoteNotFound, err)
	}
	return nil
}

// WithTx returns a NoteStore bound to the given transaction.
func (s *NoteStore) WithTx(tx *sql.Tx) store.NoteStore {
	return &NoteStore{db: tx}
}
