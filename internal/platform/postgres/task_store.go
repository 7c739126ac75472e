package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/platform/logger"
	"github.com/phrazzld/inkwell-api/internal/store"
	"github.com/phrazzld/inkwell-api/internal/task"
)

// TaskStore implements task.Store using PostgreSQL. Status transitions
// are enforced in SQL: the UPDATE's WHERE clause names the states the
// transition is legal from, so concurrent writers race on the database
// row and exactly one terminal write can ever apply.
type TaskStore struct {
	db store.DBTX
}

// NewTaskStore creates a TaskStore using the given database connection
// or transaction.
func NewTaskStore(db store.DBTX) *TaskStore {
	return &TaskStore{db: db}
}

var _ task.Store = (*TaskStore)(nil)

// Create inserts a new pending task record.
func (s *TaskStore) Create(ctx context.Context, rec *task.Record) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO tasks (id, owner_id, task_type, task_name, resource_type, resource_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.TaskID,
		rec.OwnerID,
		rec.Type,
		rec.Name,
		nullString(rec.ResourceType),
		nullUUID(rec.ResourceID),
		rec.Status,
		rec.CreatedAt,
	)
	if err != nil {
		log.Error("failed to insert task record",
			"task_id", rec.TaskID,
			"task_type", rec.Type,
			"error", err)
		return MapError(err)
	}
	return nil
}

// Get retrieves a task record by ID.
func (s *TaskStore) Get(ctx context.Context, taskID uuid.UUID) (*task.Record, error) {
	query := taskSelect + ` WHERE id = $1`
	return s.scanOne(ctx, s.db.QueryRowContext(ctx, query, taskID))
}

// GetForOwner retrieves a task record scoped to its owner. A record
// owned by someone else is indistinguishable from a missing one.
func (s *TaskStore) GetForOwner(ctx context.Context, taskID, ownerID uuid.UUID) (*task.Record, error) {
	query := taskSelect + ` WHERE id = $1 AND owner_id = $2`
	return s.scanOne(ctx, s.db.QueryRowContext(ctx, query, taskID, ownerID))
}

// UpdateStatus transitions a record's status atomically. The running
// transition applies only from pending; terminal transitions apply from
// pending or running. It returns false with a nil error when the row
// exists but the transition was not legal, which is how a late writer
// learns it lost the race.
func (s *TaskStore) UpdateStatus(
	ctx context.Context,
	taskID uuid.UUID,
	status task.Status,
	result json.RawMessage,
	errMsg string,
) (bool, error) {
	log := logger.FromContext(ctx)
	now := time.Now().UTC()

	var res sql.Result
	var err error
	switch {
	case status == task.StatusRunning:
		query := `
			UPDATE tasks
			SET status = $1, started_at = COALESCE(started_at, $2)
			WHERE id = $3 AND status = 'pending'
		`
		res, err = s.db.ExecContext(ctx, query, status, now, taskID)
	case status.Terminal():
		query := `
			UPDATE tasks
			SET status = $1, result = $2, error_message = $3, completed_at = $4
			WHERE id = $5 AND status IN ('pending', 'running')
		`
		res, err = s.db.ExecContext(ctx, query, status, nullJSON(result), nullString(errMsg), now, taskID)
	default:
		return false, fmt.Errorf("illegal status transition target %q", status)
	}
	if err != nil {
		log.Error("failed to update task status",
			"task_id", taskID,
			"status", status,
			"error", err)
		return false, MapError(err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return true, nil
	}

	// Distinguish "transition lost" from "no such task".
	if _, err := s.Get(ctx, taskID); err != nil {
		return false, err
	}
	return false, nil
}

// List returns an owner's task records, newest first.
func (s *TaskStore) List(ctx context.Context, ownerID uuid.UUID, filter task.ListFilter) ([]*task.Record, error) {
	log := logger.FromContext(ctx)

	query, args := buildListQuery(taskSelect, ownerID, filter)
	query += ` ORDER BY created_at DESC`
	argn := len(args)
	if filter.Limit > 0 {
		argn++
		query += fmt.Sprintf(" LIMIT $%d", argn)
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		argn++
		query += fmt.Sprintf(" OFFSET $%d", argn)
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list tasks", "owner_id", ownerID, "error", err)
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var records []*task.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return records, nil
}

// CountForOwner returns the number of records matching the filter.
func (s *TaskStore) CountForOwner(ctx context.Context, ownerID uuid.UUID, filter task.ListFilter) (int, error) {
	query, args := buildListQuery(`SELECT COUNT(*) FROM tasks`, ownerID, filter)

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, MapError(err)
	}
	return count, nil
}

// Delete removes a task record regardless of its status.
func (s *TaskStore) Delete(ctx context.Context, taskID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, taskID)
	if err != nil {
		return MapError(err)
	}
	if err := CheckRowsAffected(res, "task"); err != nil {
		return err
	}
	return nil
}

// Sweep removes terminal records completed before the cutoff.
func (s *TaskStore) Sweep(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		DELETE FROM tasks
		WHERE status IN ('success', 'failed') AND completed_at < $1
	`
	res, err := s.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, MapError(err)
	}
	return res.RowsAffected()
}

// FailOverdue marks running records started before the deadline as
// failed. Same terminal-wins guard as UpdateStatus: only rows still in
// running can be claimed.
func (s *TaskStore) FailOverdue(ctx context.Context, startedBefore time.Time, errMsg string) (int64, error) {
	query := `
		UPDATE tasks
		SET status = 'failed', error_message = $1, completed_at = $2
		WHERE status = 'running' AND started_at < $3
	`
	res, err := s.db.ExecContext(ctx, query, errMsg, time.Now().UTC(), startedBefore)
	if err != nil {
		return 0, MapError(err)
	}
	return res.RowsAffected()
}

// WithTx returns a TaskStore bound to the given transaction.
func (s *TaskStore) WithTx(tx *sql.Tx) *TaskStore {
	return &TaskStore{db: tx}
}

const taskSelect = `
	SELECT id, owner_id, task_type, task_name, resource_type, resource_id,
	       status, result, error_message, created_at, started_at, completed_at
	FROM tasks`

func buildListQuery(base string, ownerID uuid.UUID, filter task.ListFilter) (string, []interface{}) {
	clauses := []string{"owner_id = $1"}
	args := []interface{}{ownerID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		clauses = append(clauses, fmt.Sprintf("task_type = $%d", len(args)))
	}
	return base + " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *TaskStore) scanOne(ctx context.Context, row *sql.Row) (*task.Record, error) {
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrTaskNotFound
		}
		logger.FromContext(ctx).Error("failed to get task record", "error", err)
		return nil, err
	}
	return rec, nil
}

func scanRecord(row rowScanner) (*task.Record, error) {
	var rec task.Record
	var resourceType sql.NullString
	var resourceID uuid.NullUUID
	var result []byte
	var errMsg sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&rec.TaskID,
		&rec.OwnerID,
		&rec.Type,
		&rec.Name,
		&resourceType,
		&resourceID,
		&rec.Status,
		&result,
		&errMsg,
		&rec.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, MapError(err)
		}
		return nil, fmt.Errorf("failed to scan task row: %w", err)
	}

	rec.ResourceType = resourceType.String
	if resourceID.Valid {
		rec.ResourceID = resourceID.UUID
	}
	rec.Result = result
	rec.Error = errMsg.String
	if startedAt.Valid {
		t := startedAt.Time
		rec.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}

func nullJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
