package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apiharvest/internal/capture"
	"apiharvest/internal/store"
	"apiharvest/pkg/model"
)

func TestUpdateMergesAuthMaterial(t *testing.T) {
	layout := store.New(t.TempDir())
	known := capture.NewCookieNames()
	m := NewManager(layout, known, "Mozilla/5.0 Test", nil)

	m.Update("ex", "api.example.com", &model.CaptureEvent{
		RequestHeaders: map[string]string{
			"Cookie":        "sid=abc; theme = dark ",
			"Authorization": "Bearer t1",
			"Accept":        "*/*",
		},
		ResponseHeaders: map[string]string{"X-CSRF-Token": "c1", "Content-Type": "application/json"},
	})
	m.Update("ex", "www.example.com", &model.CaptureEvent{
		RequestHeaders: map[string]string{"cookie": "sid=def; lang=en"},
	})

	snap := layout.ReadSession("ex")
	assert.Equal(t, "www.example.com", snap.Domain)
	assert.Equal(t, "Mozilla/5.0 Test", snap.UserAgent)
	assert.NotEmpty(t, snap.CapturedAt)
	assert.Equal(t, map[string]string{"sid": "def", "theme": "dark", "lang": "en"}, snap.Cookies)
	assert.Equal(t, map[string]string{"Authorization": "Bearer t1"}, snap.AuthHeaders)
	assert.Equal(t, map[string]string{"X-CSRF-Token": "c1"}, snap.CSRFTokens)

	for _, name := range []string{"sid", "theme", "lang"} {
		assert.True(t, known.Has(name), name)
	}
}

func TestUpdateIgnoresEventsWithoutAuthHeaders(t *testing.T) {
	layout := store.New(t.TempDir())
	m := NewManager(layout, nil, "", nil)

	m.Update("ex", "api.example.com", &model.CaptureEvent{
		RequestHeaders: map[string]string{"x-requested-with": "XMLHttpRequest"},
	})
	m.Update("ex", "api.example.com", &model.CaptureEvent{})

	assert.NoFileExists(t, layout.SessionPath("ex"))
}

func TestSnapshotIsLastWriteWins(t *testing.T) {
	layout := store.New(t.TempDir())
	require.NoError(t, layout.EnsureAppDirs("ex"))
	m := NewManager(layout, nil, "", nil)

	m.Update("ex", "a.example.com", &model.CaptureEvent{RequestHeaders: map[string]string{"x-xsrf-token": "1"}})
	m.Update("ex", "a.example.com", &model.CaptureEvent{RequestHeaders: map[string]string{"x-xsrf-token": "2"}})
	assert.Equal(t, "2", m.Snapshot("ex").AuthHeaders["x-xsrf-token"])
}
