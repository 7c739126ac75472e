package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/api/shared"
	"github.com/phrazzld/inkwell-api/internal/service"
	"github.com/phrazzld/inkwell-api/internal/stream"
	"github.com/phrazzld/inkwell-api/internal/task"
)

// CreateTaskRequest represents the request body for submitting a task.
// Which fields are required depends on the task type in the URL: note
// tasks need note_id, blog generation needs title and content, questions
// additionally need question.
type CreateTaskRequest struct {
	NoteID   string `json:"note_id"  validate:"omitempty,uuid"`
	Question string `json:"question" validate:"omitempty,min=1"`
	Title    string `json:"title"    validate:"omitempty,min=1"`
	Content  string `json:"content"  validate:"omitempty,min=1"`
}

// TaskResponse represents the response data for a task record.
type TaskResponse struct {
	TaskID      string          `json:"task_id"`
	Type        string          `json:"task_type"`
	Name        string          `json:"task_name"`
	Status      string          `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// CreateTaskResponse is returned on task submission, pointing the client
// at the channels where progress will appear.
type CreateTaskResponse struct {
	TaskID        string `json:"task_id"`
	Status        string `json:"status"`
	StreamChannel string `json:"stream_channel"`
	WSURL         string `json:"ws_url"`
}

// TaskListResponse wraps a page of task records with the total count.
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
	Total int            `json:"total"`
}

// TaskHandler handles task submission and inspection requests.
type TaskHandler struct {
	dispatcher *task.Dispatcher
	taskStore  task.Store
	notes      *service.NoteService
	validator  *validator.Validate
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(dispatcher *task.Dispatcher, taskStore task.Store, notes *service.NoteService) *TaskHandler {
	return &TaskHandler{
		dispatcher: dispatcher,
		taskStore:  taskStore,
		notes:      notes,
		validator:  validator.New(),
	}
}

// CreateTask handles POST /api/tasks/{type} requests.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(shared.UserIDContextKey).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	taskType, err := task.ParseType(chi.URLParam(r, "type"))
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	var req CreateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	dispatchReq, err := h.buildRequest(r, taskType, userID, req)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	rec, err := h.dispatcher.Dispatch(r.Context(), dispatchReq)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, CreateTaskResponse{
		TaskID:        rec.TaskID.String(),
		Status:        string(rec.Status),
		StreamChannel: stream.Channel(rec.TaskID),
		WSURL:         "/ws/stream/" + rec.TaskID.String(),
	})
}

// buildRequest assembles the dispatch request for the task type,
// verifying note ownership before the task is accepted.
func (h *TaskHandler) buildRequest(
	r *http.Request,
	taskType task.Type,
	userID uuid.UUID,
	req CreateTaskRequest,
) (task.Request, error) {
	dispatchReq := task.Request{
		Type:    taskType,
		OwnerID: userID,
	}

	switch taskType {
	case task.TypeGenerateBlog:
		if req.Title == "" || req.Content == "" {
			return task.Request{}, validationError("title and content are required")
		}
		payload, err := json.Marshal(task.BlogPayload{Title: req.Title, Content: req.Content})
		if err != nil {
			return task.Request{}, err
		}
		dispatchReq.Payload = payload

	default:
		noteID, err := uuid.Parse(req.NoteID)
		if err != nil {
			return task.Request{}, validationError("note_id is required")
		}
		if taskType == task.TypeAskQuestion && req.Question == "" {
			return task.Request{}, validationError("question is required")
		}
		if err := h.notes.VerifyOwnership(r.Context(), noteID, userID); err != nil {
			return task.Request{}, err
		}
		payload, err := json.Marshal(task.NotePayload{NoteID: noteID, Question: req.Question})
		if err != nil {
			return task.Request{}, err
		}
		dispatchReq.Payload = payload
		dispatchReq.ResourceType = "note"
		dispatchReq.ResourceID = noteID
	}

	return dispatchReq, nil
}

// GetTask handles GET /api/tasks/{task_id} requests.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(shared.UserIDContextKey).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	taskID, err := uuid.Parse(chi.URLParam(r, "task_id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}

	rec, err := h.taskStore.GetForOwner(r.Context(), taskID, userID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(rec))
}

// ListTasks handles GET /api/tasks requests with optional status, type,
// limit, and offset query parameters.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(shared.UserIDContextKey).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	filter, err := parseListFilter(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.taskStore.List(r.Context(), userID, filter)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	total, err := h.taskStore.CountForOwner(r.Context(), userID, filter)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	resp := TaskListResponse{
		Tasks: make([]TaskResponse, 0, len(records)),
		Total: total,
	}
	for _, rec := range records {
		resp.Tasks = append(resp.Tasks, taskToResponse(rec))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// CancelTask handles DELETE /api/tasks/{task_id} requests. A task that
// is still pending or running is cancelled best-effort and its snapshot
// returned; a task that already finished is removed from the ledger.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(shared.UserIDContextKey).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	taskID, err := uuid.Parse(chi.URLParam(r, "task_id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}

	rec, err := h.taskStore.GetForOwner(r.Context(), taskID, userID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	if rec.Status.Terminal() {
		if err := h.taskStore.Delete(r.Context(), taskID); err != nil {
			shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if _, err := h.dispatcher.Cancel(r.Context(), taskID, userID); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	// A worker racing the cancel may have finished first; either way the
	// first terminal write won, so return whatever the ledger holds now.
	rec, err = h.taskStore.GetForOwner(r.Context(), taskID, userID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(rec))
}

func parseListFilter(r *http.Request) (task.ListFilter, error) {
	filter := task.ListFilter{Limit: 50}

	if s := r.URL.Query().Get("status"); s != "" {
		switch task.Status(s) {
		case task.StatusPending, task.StatusRunning, task.StatusSuccess, task.StatusFailed:
			filter.Status = task.Status(s)
		default:
			return task.ListFilter{}, validationError("invalid status filter")
		}
	}
	if s := r.URL.Query().Get("type"); s != "" {
		t, err := task.ParseType(s)
		if err != nil {
			return task.ListFilter{}, validationError("invalid type filter")
		}
		filter.Type = t
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 200 {
			return task.ListFilter{}, validationError("limit must be between 1 and 200")
		}
		filter.Limit = n
	}
	if s := r.URL.Query().Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return task.ListFilter{}, validationError("offset must not be negative")
		}
		filter.Offset = n
	}
	return filter, nil
}

func taskToResponse(rec *task.Record) TaskResponse {
	return TaskResponse{
		TaskID:      rec.TaskID.String(),
		Type:        string(rec.Type),
		Name:        rec.Name,
		Status:      string(rec.Status),
		Result:      rec.Result,
		Error:       rec.Error,
		CreatedAt:   rec.CreatedAt,
		StartedAt:   rec.StartedAt,
		CompletedAt: rec.CompletedAt,
	}
}
