package postgres

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/phrazzld/inkwell-api/internal/task"
)

func TestBuildListQuery(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()

	t.Run("owner only", func(t *testing.T) {
		t.Parallel()
		query, args := buildListQuery("SELECT COUNT(*) FROM tasks", ownerID, task.ListFilter{})
		assert.Equal(t, "SELECT COUNT(*) FROM tasks WHERE owner_id = $1", query)
		assert.Equal(t, []interface{}{ownerID}, args)
	})

	t.Run("status filter", func(t *testing.T) {
		t.Parallel()
		query, args := buildListQuery("SELECT COUNT(*) FROM tasks", ownerID, task.ListFilter{
			Status: task.StatusRunning,
		})
		assert.Equal(t, "SELECT COUNT(*) FROM tasks WHERE owner_id = $1 AND status = $2", query)
		assert.Equal(t, []interface{}{ownerID, task.StatusRunning}, args)
	})

	t.Run("status and type filters", func(t *testing.T) {
		t.Parallel()
		query, args := buildListQuery("SELECT COUNT(*) FROM tasks", ownerID, task.ListFilter{
			Status: task.StatusFailed,
			Type:   task.TypeGenerateBlog,
		})
		assert.Equal(t,
			"SELECT COUNT(*) FROM tasks WHERE owner_id = $1 AND status = $2 AND task_type = $3",
			query)
		assert.Len(t, args, 3)
	})
}

func TestNullHelpers(t *testing.T) {
	t.Parallel()

	assert.False(t, nullString("").Valid)
	assert.True(t, nullString("x").Valid)

	assert.False(t, nullUUID(uuid.Nil).Valid)
	assert.True(t, nullUUID(uuid.New()).Valid)

	assert.Nil(t, nullJSON(nil))
	assert.NotNil(t, nullJSON([]byte(`{}`)))
}
