package storage

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apiharvest/internal/ctxkeys"
	"apiharvest/internal/logger"
	"apiharvest/pkg/model"
)

func TestJournalLogAndRecent(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "history.sqlite3"), "apiharvest_", nil)
	require.NoError(t, err)
	defer j.Close()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	j.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	ctx := ctxkeys.WithTraceID(context.Background(), "trace-1")
	require.NoError(t, j.Log(ctx, "status", model.OKResult(), 3*time.Millisecond))
	require.NoError(t, j.Log(ctx, "eval", model.ErrorResult("eval timeout"), 10*time.Second))

	recs, err := j.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "eval", recs[0].Action)
	assert.False(t, recs[0].OK)
	assert.Equal(t, "eval timeout", recs[0].Error)
	assert.Equal(t, int64(10000), recs[0].DurationMS)
	assert.Equal(t, "status", recs[1].Action)
	assert.True(t, recs[1].OK)
	assert.Equal(t, "trace-1", recs[1].TraceID)
	assert.Len(t, recs[1].ID, 36)

	recs, err = j.Recent(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	_, err := Open("", "", nil)
	assert.Error(t, err)
}

func TestGormLoggerTagsTraceID(t *testing.T) {
	var buf bytes.Buffer
	gl := NewGormLogger(logger.NewWriter(&buf, zerolog.DebugLevel))
	ctx := ctxkeys.WithTraceID(context.Background(), "abc")

	gl.Trace(ctx, time.Now(), func() (string, int64) { return "SELECT 1", 1 }, errors.New("disk full"))
	assert.Contains(t, buf.String(), "abc")
	assert.Contains(t, buf.String(), "SELECT 1")

	buf.Reset()
	gl.Trace(ctx, time.Now(), func() (string, int64) { return "SELECT 2", 1 }, nil)
	assert.Empty(t, buf.String(), "fast queries are not logged at warn level")
}
