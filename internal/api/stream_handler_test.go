package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/inkwell-api/internal/api"
	"github.com/phrazzld/inkwell-api/internal/generation"
	"github.com/phrazzld/inkwell-api/internal/task"
)

// streamGen yields fragments then an optional error, mirroring the
// streaming adapter contract.
type streamGen struct {
	fragments []string
	err       error
}

func (g *streamGen) Generate(context.Context, string) (string, error) {
	return strings.Join(g.fragments, ""), g.err
}

func (g *streamGen) GenerateStream(ctx context.Context, _ string) (<-chan generation.Fragment, error) {
	ch := make(chan generation.Fragment)
	go func() {
		defer close(ch)
		for _, f := range g.fragments {
			select {
			case ch <- generation.Fragment{Text: f}:
			case <-ctx.Done():
				return
			}
		}
		if g.err != nil {
			ch <- generation.Fragment{Err: g.err}
		}
	}()
	return ch, nil
}

func parseSSE(t *testing.T, body string) []map[string]interface{} {
	t.Helper()
	var events []map[string]interface{}
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func postBlogStream(t *testing.T, handler *api.StreamHandler, userID uuid.UUID, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, "/api/blog/generate/stream", &buf)
	req = withUserID(req, userID)
	rr := httptest.NewRecorder()
	handler.GenerateBlog(rr, req)
	return rr
}

func TestGenerateBlogStream(t *testing.T) {
	t.Parallel()

	t.Run("streams start, chunks, then done with full text", func(t *testing.T) {
		t.Parallel()
		taskStore := newFakeTaskStore()
		gen := &streamGen{fragments: []string{"## Title\n", "First paragraph. ", "Second."}}
		handler := api.NewStreamHandler(taskStore, gen, nil)

		userID := uuid.New()
		rr := postBlogStream(t, handler, userID, map[string]string{
			"title":   "On Caching",
			"content": "cache invalidation notes",
		})
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))

		events := parseSSE(t, rr.Body.String())
		require.GreaterOrEqual(t, len(events), 5)

		assert.Equal(t, "start", events[0]["type"])
		taskID := events[0]["task_id"].(string)
		require.NotEmpty(t, taskID)

		var assembled string
		for _, ev := range events[1 : len(events)-1] {
			assert.Equal(t, "chunk", ev["type"])
			assembled += ev["content"].(string)
		}

		last := events[len(events)-1]
		assert.Equal(t, "done", last["type"])
		assert.Equal(t, assembled, last["full_text"], "chunk concatenation must equal the full text")

		// The run is persisted on the task ledger.
		rec, err := taskStore.GetForOwner(context.Background(), uuid.MustParse(taskID), userID)
		require.NoError(t, err)
		assert.Equal(t, task.StatusSuccess, rec.Status)
		var result map[string]string
		require.NoError(t, json.Unmarshal(rec.Result, &result))
		assert.Equal(t, last["full_text"], result["content"])
	})

	t.Run("mid-stream failure emits an error frame and fails the record", func(t *testing.T) {
		t.Parallel()
		taskStore := newFakeTaskStore()
		gen := &streamGen{
			fragments: []string{"partial "},
			err:       generation.ErrUpstreamUnavailable,
		}
		handler := api.NewStreamHandler(taskStore, gen, nil)

		rr := postBlogStream(t, handler, uuid.New(), map[string]string{
			"title":   "On Caching",
			"content": "notes",
		})
		require.Equal(t, http.StatusOK, rr.Code)

		events := parseSSE(t, rr.Body.String())
		require.NotEmpty(t, events)
		last := events[len(events)-1]
		assert.Equal(t, "error", last["type"])
		assert.NotContains(t, last["error"], "dial", "raw errors must not leak")

		taskID := uuid.MustParse(events[0]["task_id"].(string))
		rec, err := taskStore.Get(context.Background(), taskID)
		require.NoError(t, err)
		assert.Equal(t, task.StatusFailed, rec.Status)
	})

	t.Run("rejects a missing title before streaming starts", func(t *testing.T) {
		t.Parallel()
		handler := api.NewStreamHandler(newFakeTaskStore(), &streamGen{}, nil)
		rr := postBlogStream(t, handler, uuid.New(), map[string]string{"content": "notes"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("rejects unauthenticated requests", func(t *testing.T) {
		t.Parallel()
		handler := api.NewStreamHandler(newFakeTaskStore(), &streamGen{}, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/blog/generate/stream",
			bytes.NewBufferString(`{"title":"t","content":"c"}`))
		rr := httptest.NewRecorder()
		handler.GenerateBlog(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestGenerateBlogStreamNonStreamingGenerator(t *testing.T) {
	t.Parallel()

	// A generator without streaming support still produces a valid
	// frame sequence with a single chunk.
	taskStore := newFakeTaskStore()
	handler := api.NewStreamHandler(taskStore, nonStreamingGen{text: "whole post"}, nil)

	rr := postBlogStream(t, handler, uuid.New(), map[string]string{
		"title":   "t",
		"content": "c",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	events := parseSSE(t, rr.Body.String())
	require.Len(t, events, 3)
	assert.Equal(t, "start", events[0]["type"])
	assert.Equal(t, "chunk", events[1]["type"])
	assert.Equal(t, "whole post", events[1]["content"])
	assert.Equal(t, "done", events[2]["type"])
}

type nonStreamingGen struct {
	text string
	err  error
}

func (g nonStreamingGen) Generate(context.Context, string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return g.text, nil
}
