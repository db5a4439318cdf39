package repository

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ds124wfegd/car-rental/internal/entity"
)

func TestParseIsolation(t *testing.T) {
	tests := map[string]sql.IsolationLevel{
		"":                sql.LevelReadCommitted,
		"read_committed":  sql.LevelReadCommitted,
		"repeatable_read": sql.LevelRepeatableRead,
		"serializable":    sql.LevelSerializable,
	}
	for in, want := range tests {
		got, err := ParseIsolation(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseIsolation("snapshot")
	assert.Error(t, err)
}

func TestErrorClassification(t *testing.T) {
	wrap := func(code string) error {
		return fmt.Errorf("failed to lock car: %w", &pq.Error{Code: pq.ErrorCode(code)})
	}

	assert.True(t, isRetryable(wrap(pgerrcode.SerializationFailure)))
	assert.True(t, isRetryable(wrap(pgerrcode.DeadlockDetected)))
	assert.False(t, isRetryable(wrap(pgerrcode.UniqueViolation)))
	assert.False(t, isRetryable(sql.ErrConnDone))

	assert.True(t, isUniqueViolation(wrap(pgerrcode.UniqueViolation)))
	assert.False(t, isUniqueViolation(wrap(pgerrcode.SerializationFailure)))

	assert.ErrorIs(t, notFound(sql.ErrNoRows), entity.ErrNotFound)
	assert.ErrorIs(t, notFound(sql.ErrTxDone), sql.ErrTxDone)
}
