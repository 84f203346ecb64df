package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apiharvest/pkg/model"
)

func TestCreateAndAddDomain(t *testing.T) {
	l := New(t.TempDir())
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	reg, err := l.CreateApp("gmail", "mail.google.com", now)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02T03:04:05Z", reg.Created)

	_, err = l.CreateApp("gmail", "other.com", now)
	assert.ErrorIs(t, err, ErrAppExists)

	added, err := l.AddDomain("gmail", "accounts.google.com")
	require.NoError(t, err)
	assert.True(t, added)
	added, err = l.AddDomain("gmail", "accounts.google.com")
	require.NoError(t, err)
	assert.False(t, added)

	got, err := l.ReadApp("gmail")
	require.NoError(t, err)
	assert.Equal(t, []string{"mail.google.com", "accounts.google.com"}, got.Domains)
	assert.Equal(t, "mail.google.com", got.Seed())
	assert.Nil(t, got.LastSession)

	require.NoError(t, l.SetLastSession("gmail", "2026-01-02T03-04"))
	got, err = l.ReadApp("gmail")
	require.NoError(t, err)
	require.NotNil(t, got.LastSession)
	assert.Equal(t, "2026-01-02T03-04", *got.LastSession)

	_, err = l.ReadApp("missing")
	assert.ErrorIs(t, err, ErrAppNotFound)

	assert.Equal(t, []model.AppDetail{{Name: "gmail", Domains: got.Domains}}, l.AppDetails())
}

func TestValidateName(t *testing.T) {
	assert.Error(t, ValidateName("../etc"))
	assert.Error(t, ValidateName(""))
	assert.NoError(t, ValidateName("slack"))
}

func TestSessionDefaultsWhenMissing(t *testing.T) {
	l := New(t.TempDir())
	snap := l.ReadSession("nope")
	assert.NotNil(t, snap.Cookies)
	assert.Empty(t, snap.Domain)

	require.NoError(t, l.EnsureAppDirs("a"))
	require.NoError(t, os.WriteFile(l.SessionPath("a"), []byte("{broken"), 0o644))
	assert.NotNil(t, l.ReadSession("a").AuthHeaders)
}

func TestAppendConcurrentLinesStayWhole(t *testing.T) {
	l := New(t.TempDir())
	s := NewCaptureStore(l)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Append("a", "s1", []byte(`{"url":"https://x.test/`+strings.Repeat("p", 200)+`"}`)))
		}()
	}
	wg.Wait()

	var n int
	require.NoError(t, ScanLines(l.CaptureFile("a", "s1"), func(line []byte) {
		n++
		assert.True(t, strings.HasPrefix(string(line), `{"url"`))
		assert.True(t, strings.HasSuffix(string(line), `"}`))
	}))
	assert.Equal(t, 40, n)

	files, err := l.CaptureFiles("a")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(l.CapturesDir("a"), "s1.jsonl")}, files)
}

func TestWriteFileAtomicReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x", "f.json")
	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0o644))
	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0o644))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestConcurrentRegistrationUpdatesKeepEveryDomain(t *testing.T) {
	l := New(t.TempDir())
	_, err := l.CreateApp("ex", "app.example.com", time.Now())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 40 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := l.AddDomain("ex", fmt.Sprintf("h%d.example.com", i))
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, l.SetLastSession("ex", fmt.Sprintf("s%d", i%3)))
		}()
	}
	wg.Wait()

	reg, err := l.ReadApp("ex")
	require.NoError(t, err)
	assert.Len(t, reg.Domains, 41)
	assert.Equal(t, "app.example.com", reg.Seed())
	require.NotNil(t, reg.LastSession)
}

func TestUpdateAppSkipsWriteWhenUnchanged(t *testing.T) {
	l := New(t.TempDir())
	_, err := l.CreateApp("ex", "app.example.com", time.Now())
	require.NoError(t, err)
	before, err := os.Stat(l.ConfigPath("ex"))
	require.NoError(t, err)

	reg, err := l.UpdateApp("ex", func(*model.AppRegistration) bool { return false })
	require.NoError(t, err)
	assert.Equal(t, []string{"app.example.com"}, reg.Domains)
	after, err := os.Stat(l.ConfigPath("ex"))
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())

	_, err = l.UpdateApp("ghost", func(*model.AppRegistration) bool { return true })
	assert.ErrorIs(t, err, ErrAppNotFound)
}
