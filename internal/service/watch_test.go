package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apiharvest/internal/store"
	"apiharvest/pkg/model"
)

func serviceAt(t *testing.T, dir string) *Service {
	t.Helper()
	s, err := New(Options{
		Layout:    store.New(dir),
		UserAgent: "Mozilla/5.0 test",
		Session:   "2026-01-01T00-00",
		Now:       func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return s
}

func authedFor(host string) []byte {
	return []byte(strings.Replace(authed, "api.example.com", host, 1))
}

func TestConcurrentAutoRegisterPersistsEveryDomain(t *testing.T) {
	dir := t.TempDir()
	s := serviceAt(t, dir)
	_, err := s.RegisterApp("ex", "app.example.com")
	require.NoError(t, err)
	s.OnNavigate("https://app.example.com/")

	var wg sync.WaitGroup
	for i := range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := s.Ingest(authedFor(fmt.Sprintf("h%d.example.com", i)))
			assert.Equal(t, model.OutcomeAdmitted, d.Outcome)
		}()
	}
	wg.Wait()

	reg, err := s.Layout().ReadApp("ex")
	require.NoError(t, err)
	assert.Len(t, reg.Domains, 41)
	assert.Len(t, s.registry.Domains("ex"), 41)

	restarted := serviceAt(t, dir)
	for i := range 40 {
		app, ok := restarted.registry.Lookup(fmt.Sprintf("h%d.example.com", i))
		assert.True(t, ok)
		assert.Equal(t, "ex", app)
	}
}

func TestReloadFlushesBufferRegisteredElsewhere(t *testing.T) {
	dir := t.TempDir()
	running := serviceAt(t, dir)
	other := serviceAt(t, dir)

	assert.Equal(t, model.OutcomeBuffered, running.Ingest(authedFor("api.new.com")).Outcome)
	assert.Equal(t, model.OutcomeBuffered, running.Ingest(authedFor("api.new.com")).Outcome)

	_, err := other.RegisterApp("newapp", "api.new.com")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"api.new.com": 2}, running.Buffered())

	assert.Equal(t, 1, running.Reload(context.Background()))
	assert.Empty(t, running.Buffered())
	assert.Len(t, readLines(t, running.Layout().CaptureFile("newapp", running.Session())), 2)

	assert.Equal(t, model.OutcomeAdmitted, running.Ingest(authedFor("api.new.com")).Outcome)
	assert.Len(t, readLines(t, running.Layout().CaptureFile("newapp", running.Session())), 3)
	assert.Zero(t, running.Reload(context.Background()))
}

func TestReloadResumesPendingNavigation(t *testing.T) {
	dir := t.TempDir()
	running := serviceAt(t, dir)
	b := &stubBrowser{}
	running.AttachBrowser(b)

	pending, err := running.Open(context.Background(), "new.example.com")
	require.NoError(t, err)
	require.True(t, pending)
	assert.Empty(t, b.navigated)

	_, err = serviceAt(t, dir).RegisterApp("neo", "new.example.com")
	require.NoError(t, err)
	running.Reload(context.Background())

	assert.Equal(t, []string{"https://new.example.com"}, b.navigated)
	assert.Empty(t, running.PendingURL())
	cur, ok := running.CurrentApp()
	assert.True(t, ok)
	assert.Equal(t, "neo", cur)
}

func TestWatchRegistrationsPicksUpNewApp(t *testing.T) {
	dir := t.TempDir()
	running := serviceAt(t, dir)
	running.Ingest(authedFor("api.watch.com"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- running.WatchRegistrations(ctx, 20*time.Millisecond) }()

	_, err := serviceAt(t, dir).RegisterApp("watched", "api.watch.com")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := running.registry.Lookup("api.watch.com")
		return ok && len(running.Buffered()) == 0
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Len(t, readLines(t, running.Layout().CaptureFile("watched", running.Session())), 1)
}
