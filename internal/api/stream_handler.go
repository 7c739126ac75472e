package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/api/shared"
	"github.com/phrazzld/inkwell-api/internal/generation"
	"github.com/phrazzld/inkwell-api/internal/task"
)

// GenerateBlogRequest represents the request body for synchronous
// streaming blog generation.
type GenerateBlogRequest struct {
	Title   string `json:"title"   validate:"required,min=1"`
	Content string `json:"content" validate:"required,min=1"`
}

// sseEvent is one server-sent frame of a streaming generation.
type sseEvent struct {
	Type     string `json:"type"`
	TaskID   string `json:"task_id,omitempty"`
	Content  string `json:"content,omitempty"`
	FullText string `json:"full_text,omitempty"`
	Error    string `json:"error,omitempty"`
}

// StreamHandler serves synchronous generation over Server-Sent Events.
// Unlike the queued task flow, the generation runs inside the request,
// but it still writes a task record so the result survives the
// connection and shows up in the task list.
type StreamHandler struct {
	taskStore task.Store
	generator generation.Generator
	validator *validator.Validate
	logger    *slog.Logger
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(taskStore task.Store, generator generation.Generator, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{
		taskStore: taskStore,
		generator: generator,
		validator: validator.New(),
		logger:    logger.With(slog.String("component", "stream_handler")),
	}
}

// GenerateBlog handles POST /api/blog/generate/stream. Frames are sent
// as `data: {...}` events: start with the task ID, then one chunk per
// fragment, then done with the full text, or error.
func (h *StreamHandler) GenerateBlog(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(shared.UserIDContextKey).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	var req GenerateBlogRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	rec := &task.Record{
		TaskID:    uuid.New(),
		OwnerID:   userID,
		Type:      task.TypeGenerateBlog,
		Name:      task.TypeGenerateBlog.Name(),
		Status:    task.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.taskStore.Create(r.Context(), rec); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	log := h.logger.With(slog.String("task_id", rec.TaskID.String()))
	ctx := r.Context()

	if _, err := h.taskStore.UpdateStatus(ctx, rec.TaskID, task.StatusRunning, nil, ""); err != nil {
		log.Error("failed to mark streaming task running", slog.String("error", err.Error()))
	}
	h.writeEvent(w, flusher, sseEvent{Type: "start", TaskID: rec.TaskID.String()})

	fullText, err := h.generate(ctx, w, flusher, req)
	if err != nil {
		log.Warn("streaming generation failed", slog.String("error", err.Error()))
		if _, uerr := h.taskStore.UpdateStatus(ctx, rec.TaskID, task.StatusFailed, nil, err.Error()); uerr != nil {
			log.Error("failed to record streaming failure", slog.String("error", uerr.Error()))
		}
		h.writeEvent(w, flusher, sseEvent{Type: "error", Error: GetSafeErrorMessage(err)})
		return
	}

	result, merr := json.Marshal(map[string]string{
		"title":   req.Title,
		"content": fullText,
	})
	if merr != nil {
		result = nil
	}
	if _, err := h.taskStore.UpdateStatus(ctx, rec.TaskID, task.StatusSuccess, result, ""); err != nil {
		log.Error("failed to record streaming success", slog.String("error", err.Error()))
	}
	h.writeEvent(w, flusher, sseEvent{Type: "done", FullText: fullText})
	log.Debug("streaming generation finished", slog.Int("chars", len(fullText)))
}

// generate drives the model, writing one chunk frame per fragment, and
// returns the accumulated text.
func (h *StreamHandler) generate(
	ctx context.Context,
	w http.ResponseWriter,
	flusher http.Flusher,
	req GenerateBlogRequest,
) (string, error) {
	prompt := fmt.Sprintf(blogStreamPrompt, req.Title, req.Content)

	sg, ok := h.generator.(generation.StreamGenerator)
	if !ok {
		text, err := h.generator.Generate(ctx, prompt)
		if err != nil {
			return "", err
		}
		h.writeEvent(w, flusher, sseEvent{Type: "chunk", Content: text})
		return text, nil
	}

	fragments, err := sg.GenerateStream(ctx, prompt)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for frag := range fragments {
		if frag.Err != nil {
			return "", frag.Err
		}
		sb.WriteString(frag.Text)
		h.writeEvent(w, flusher, sseEvent{Type: "chunk", Content: frag.Text})
	}
	return sb.String(), nil
}

func (h *StreamHandler) writeEvent(w http.ResponseWriter, flusher http.Flusher, ev sseEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to encode SSE event", slog.String("error", err.Error()))
		return
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return
	}
	flusher.Flush()
}

const blogStreamPrompt = `Write a well-structured blog post based on the title and source material below.
Use markdown with headings. Return only the post body.

Title: %s

Source material:
%s`
