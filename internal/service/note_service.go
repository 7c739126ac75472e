package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/domain"
	"github.com/phrazzld/inkwell-api/internal/store"
)

// NoteService exposes the note operations the generation pipeline needs:
// owner-scoped reads for prompt assembly and ownership checks, and
// transactional write-back of generated derivatives.
type NoteService struct {
	db        *sql.DB
	noteStore store.NoteStore
}

// NewNoteService creates a NoteService.
func NewNoteService(db *sql.DB, noteStore store.NoteStore) *NoteService {
	return &NoteService{
		db:        db,
		noteStore: noteStore,
	}
}

// GetForOwner retrieves a note scoped to its owner. Notes belonging to
// other users surface as store.ErrNoteNotFound so existence is never
// leaked across accounts.
func (s *NoteService) GetForOwner(ctx context.Context, id, ownerID uuid.UUID) (*domain.Note, error) {
	return s.noteStore.GetForOwner(ctx, id, ownerID)
}

// VerifyOwnership confirms the note exists and belongs to ownerID. Used
// by the dispatcher before a task referencing the note is accepted.
func (s *NoteService) VerifyOwnership(ctx context.Context, id, ownerID uuid.UUID) error {
	if _, err := s.noteStore.GetForOwner(ctx, id, ownerID); err != nil {
		return err
	}
	return nil
}

// SaveGeneratedContent writes an AI-generated derivative onto the note
// inside a transaction.
func (s *NoteService) SaveGeneratedContent(
	ctx context.Context,
	id uuid.UUID,
	field store.GeneratedField,
	text string,
) error {
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		return s.noteStore.WithTx(tx).SaveGeneratedContent(ctx, id, field, text)
	})
	if err != nil {
		return fmt.Errorf("failed to save generated content: %w", err)
	}
	return nil
}
