package shared

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	t.Run("valid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/test",
			bytes.NewBufferString(`{"title": "draft", "count": 3}`))

		var body struct {
			Title string `json:"title"`
			Count int    `json:"count"`
		}
		require.NoError(t, DecodeJSON(req, &body))
		assert.Equal(t, "draft", body.Title)
		assert.Equal(t, 3, body.Count)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/test",
			bytes.NewBufferString(`{"title": }`))

		var body struct{}
		assert.Error(t, DecodeJSON(req, &body))
	})

	t.Run("empty body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(""))

		var body struct{}
		assert.Error(t, DecodeJSON(req, &body))
	})
}
