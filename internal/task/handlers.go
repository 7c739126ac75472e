package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/phrazzld/inkwell-api/internal/generation"
	"github.com/phrazzld/inkwell-api/internal/pubsub"
	"github.com/phrazzld/inkwell-api/internal/store"
	"github.com/phrazzld/inkwell-api/internal/stream"
)

// HandlerResult is what a handler produces on success. Result is stored
// on the task record; FullText, when set, rides along on the terminal
// stream event so subscribers that missed fragments still get the
// complete output.
type HandlerResult struct {
	Result   json.RawMessage
	FullText string
}

// HandlerFunc executes one task message. Handlers publish fragment
// events themselves but never terminal events; the runner owns the
// lifecycle and emits complete/error exactly once.
type HandlerFunc func(ctx context.Context, msg Message) (HandlerResult, error)

const (
	enhancePrompt = `You are an expert editor. Improve the clarity, grammar, and structure of the
following note while preserving its meaning and the author's voice. Return only
the improved note text.

Note:
%s`

	summarizePrompt = `Summarize the following note in 2-3 concise sentences. Return only the summary.

Note:
%s`

	quizPrompt = `Create a quiz from the following note. Return ONLY a JSON object with a
"questions" array; each element has "question", "options" (array of 4 strings),
and "answer" (the correct option). No markdown fences, no commentary.

Note:
%s`

	blogPrompt = `Write a well-structured blog post based on the title and source material below.
Use markdown with headings. Return only the post body.

Title: %s

Source material:
%s`

	askPrompt = `Answer the question using only the note below. If the note does not contain
the answer, say so.

Note:
%s

Question: %s`
)

// Handlers bundles the dependencies shared by all task handlers and
// exposes the type-to-handler lookup used by the runner.
type Handlers struct {
	notes  store.NoteStore
	gen    generation.Generator
	bus    pubsub.Provider
	logger *slog.Logger
}

// NewHandlers builds the handler set.
func NewHandlers(notes store.NoteStore, gen generation.Generator, bus pubsub.Provider, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		notes:  notes,
		gen:    gen,
		bus:    bus,
		logger: logger.With(slog.String("component", "task_handlers")),
	}
}

// Lookup returns the handler for a task type, or ErrUnknownType.
func (h *Handlers) Lookup(t Type) (HandlerFunc, error) {
	switch t {
	case TypeEnhance:
		return h.Enhance, nil
	case TypeSummarize:
		return h.Summarize, nil
	case TypeGenerateQuiz:
		return h.GenerateQuiz, nil
	case TypeGenerateBlog:
		return h.GenerateBlog, nil
	case TypeAskQuestion:
		return h.AskQuestion, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
}

// Enhance rewrites a note's content for clarity and saves the result on
// the note, streaming fragments as they arrive.
func (h *Handlers) Enhance(ctx context.Context, msg Message) (HandlerResult, error) {
	var payload NotePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return HandlerResult{}, fmt.Errorf("invalid enhance payload: %w", err)
	}
	note, err := h.notes.GetForOwner(ctx, payload.NoteID, msg.OwnerID)
	if err != nil {
		return HandlerResult{}, err
	}

	text, err := h.generate(ctx, msg, fmt.Sprintf(enhancePrompt, note.Content))
	if err != nil {
		return HandlerResult{}, err
	}

	if err := h.notes.SaveGeneratedContent(ctx, note.ID, store.GeneratedFieldEnhanced, text); err != nil {
		return HandlerResult{}, fmt.Errorf("failed to save enhanced content: %w", err)
	}

	result, err := json.Marshal(map[string]string{
		"note_id":          note.ID.String(),
		"enhanced_content": text,
	})
	if err != nil {
		return HandlerResult{}, fmt.Errorf("failed to encode result: %w", err)
	}
	return HandlerResult{Result: result, FullText: text}, nil
}

// Summarize produces a short summary of a note and saves it on the note.
func (h *Handlers) Summarize(ctx context.Context, msg Message) (HandlerResult, error) {
	var payload NotePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return HandlerResult{}, fmt.Errorf("invalid summarize payload: %w", err)
	}
	note, err := h.notes.GetForOwner(ctx, payload.NoteID, msg.OwnerID)
	if err != nil {
		return HandlerResult{}, err
	}

	text, err := h.generate(ctx, msg, fmt.Sprintf(summarizePrompt, note.Content))
	if err != nil {
		return HandlerResult{}, err
	}

	if err := h.notes.SaveGeneratedContent(ctx, note.ID, store.GeneratedFieldSummary, text); err != nil {
		return HandlerResult{}, fmt.Errorf("failed to save summary: %w", err)
	}

	result, err := json.Marshal(map[string]string{
		"note_id": note.ID.String(),
		"summary": text,
	})
	if err != nil {
		return HandlerResult{}, fmt.Errorf("failed to encode result: %w", err)
	}
	return HandlerResult{Result: result, FullText: text}, nil
}

// GenerateQuiz asks the model for a JSON quiz derived from a note. The
// model response is validated as JSON before it is accepted.
func (h *Handlers) GenerateQuiz(ctx context.Context, msg Message) (HandlerResult, error) {
	var payload NotePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return HandlerResult{}, fmt.Errorf("invalid quiz payload: %w", err)
	}
	note, err := h.notes.GetForOwner(ctx, payload.NoteID, msg.OwnerID)
	if err != nil {
		return HandlerResult{}, err
	}

	text, err := h.gen.Generate(ctx, fmt.Sprintf(quizPrompt, note.Content))
	if err != nil {
		return HandlerResult{}, err
	}

	quiz := stripCodeFence(text)
	if !json.Valid([]byte(quiz)) {
		return HandlerResult{}, fmt.Errorf("%w: quiz output is not valid JSON", generation.ErrInvalidResponse)
	}
	return HandlerResult{Result: json.RawMessage(quiz)}, nil
}

// GenerateBlog writes a blog post from inline title and source content,
// streaming fragments as they arrive.
func (h *Handlers) GenerateBlog(ctx context.Context, msg Message) (HandlerResult, error) {
	var payload BlogPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return HandlerResult{}, fmt.Errorf("invalid blog payload: %w", err)
	}
	if strings.TrimSpace(payload.Title) == "" || strings.TrimSpace(payload.Content) == "" {
		return HandlerResult{}, errors.New("blog generation requires a title and content")
	}

	text, err := h.generate(ctx, msg, fmt.Sprintf(blogPrompt, payload.Title, payload.Content))
	if err != nil {
		return HandlerResult{}, err
	}

	result, err := json.Marshal(map[string]string{
		"title":   payload.Title,
		"content": text,
	})
	if err != nil {
		return HandlerResult{}, fmt.Errorf("failed to encode result: %w", err)
	}
	return HandlerResult{Result: result, FullText: text}, nil
}

// AskQuestion answers a question against a note's content.
func (h *Handlers) AskQuestion(ctx context.Context, msg Message) (HandlerResult, error) {
	var payload NotePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return HandlerResult{}, fmt.Errorf("invalid question payload: %w", err)
	}
	if strings.TrimSpace(payload.Question) == "" {
		return HandlerResult{}, errors.New("question must not be empty")
	}
	note, err := h.notes.GetForOwner(ctx, payload.NoteID, msg.OwnerID)
	if err != nil {
		return HandlerResult{}, err
	}

	text, err := h.gen.Generate(ctx, fmt.Sprintf(askPrompt, note.Content, payload.Question))
	if err != nil {
		return HandlerResult{}, err
	}

	result, err := json.Marshal(map[string]string{
		"question": payload.Question,
		"answer":   text,
	})
	if err != nil {
		return HandlerResult{}, fmt.Errorf("failed to encode result: %w", err)
	}
	return HandlerResult{Result: result, FullText: text}, nil
}

// generate runs the model and, when the generator supports streaming,
// publishes each fragment to the task's stream channel as it arrives.
// It returns the accumulated full text either way.
func (h *Handlers) generate(ctx context.Context, msg Message, prompt string) (string, error) {
	sg, ok := h.gen.(generation.StreamGenerator)
	if !ok || h.bus == nil {
		return h.gen.Generate(ctx, prompt)
	}

	fragments, err := sg.GenerateStream(ctx, prompt)
	if err != nil {
		return "", err
	}

	channel := stream.Channel(msg.TaskID)
	var sb strings.Builder
	for frag := range fragments {
		if frag.Err != nil {
			return "", frag.Err
		}
		sb.WriteString(frag.Text)
		h.publish(ctx, channel, stream.Chunk(msg.TaskID, frag.Text))
	}
	return sb.String(), nil
}

func (h *Handlers) publish(ctx context.Context, channel string, ev stream.Event) {
	data, err := ev.Encode()
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to encode stream event",
			slog.String("channel", channel),
			slog.String("error", err.Error()))
		return
	}
	if err := h.bus.Publish(ctx, channel, data); err != nil {
		h.logger.WarnContext(ctx, "failed to publish stream fragment",
			slog.String("channel", channel),
			slog.String("error", err.Error()))
	}
}

// stripCodeFence removes a surrounding markdown code fence that models
// sometimes wrap JSON output in despite instructions not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
