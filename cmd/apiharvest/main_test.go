package main

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apiharvest/internal/bridge"
	"apiharvest/internal/logger"
	"apiharvest/internal/service"
	"apiharvest/internal/store"
	"apiharvest/pkg/api"
	"apiharvest/pkg/model"
)

func TestSendCommandRoundTrip(t *testing.T) {
	layout := store.New(t.TempDir())
	require.NoError(t, os.WriteFile(layout.ResultPath(), []byte(`{"ok":true,"result":"stale"}`), 0o644))

	src := bridge.NewFileSource(layout, time.Millisecond, logger.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var got []byte
	served := make(chan struct{})
	go func() {
		defer close(served)
		for ctx.Err() == nil {
			if src.Tick(ctx, func(_ context.Context, body []byte) model.Result {
				got = body
				return model.ValueResult("pong")
			}) {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	var out bytes.Buffer
	require.NoError(t, sendCommand(ctx, layout, `{"action":"status"}`, 200, 5*time.Millisecond, &out))
	<-served
	assert.Equal(t, `{"action":"status"}`, string(got))
	assert.Equal(t, `{"ok":true,"result":"pong"}`+"\n", out.String())
	assert.NoFileExists(t, layout.ResultPath())
	assert.NoFileExists(t, layout.CommandPath())
}

func TestSendCommandTimesOut(t *testing.T) {
	layout := store.New(t.TempDir())
	err := sendCommand(context.Background(), layout, `{"action":"status"}`, 3, time.Millisecond, &bytes.Buffer{})
	assert.ErrorIs(t, err, errNoResponse)
	assert.FileExists(t, layout.CommandPath())
}

func TestInitDataDirKeepsExistingConfig(t *testing.T) {
	layout := store.New(t.TempDir())
	created, err := initDataDir(layout)
	require.NoError(t, err)
	assert.Equal(t, []string{layout.AgentGuidePath(), layout.GlobalConfigPath()}, created)
	assert.DirExists(t, layout.AppsDir())

	guide, err := os.ReadFile(layout.AgentGuidePath())
	require.NoError(t, err)
	assert.Contains(t, string(guide), "apiharvest cmd")

	require.NoError(t, os.WriteFile(layout.GlobalConfigPath(), []byte(`{"batch_every":10}`), 0o644))
	created, err = initDataDir(layout)
	require.NoError(t, err)
	assert.Equal(t, []string{layout.AgentGuidePath()}, created)
	cfg, err := os.ReadFile(layout.GlobalConfigPath())
	require.NoError(t, err)
	assert.JSONEq(t, `{"batch_every":10}`, string(cfg))
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run", "cmd", "generate", "init", "register", "add-domain", "apps", "history"})
	assert.NotNil(t, root.PersistentFlags().Lookup("data-dir"))
}

func TestRegisterAndAppsThroughCLI(t *testing.T) {
	dir := t.TempDir()

	root := newRootCmd()
	root.SetArgs([]string{"--data-dir", dir, "--log-level", "error", "register", "mail", "mail.example.com"})
	var out bytes.Buffer
	root.SetOut(&out)
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "registered mail")

	root = newRootCmd()
	out.Reset()
	root.SetOut(&out)
	root.SetArgs([]string{"--data-dir", dir, "apps", "--json"})
	require.NoError(t, root.Execute())
	assert.JSONEq(t, `[{"name":"mail","domains":["mail.example.com"]}]`, out.String())
}

type navBrowser struct{ urls []string }

func (b *navBrowser) Inject(context.Context, string) error { return nil }
func (b *navBrowser) Navigate(_ context.Context, url string) error {
	b.urls = append(b.urls, url)
	return nil
}
func (b *navBrowser) Cookies(context.Context, string) ([]model.BrowserCookie, error) { return nil, nil }
func (b *navBrowser) Available() bool                                                { return true }

func TestOpenWaitsForRegistration(t *testing.T) {
	dir := t.TempDir()
	opts := service.Options{Layout: store.New(dir), Session: "2026-01-01T00-00"}
	svc, err := api.NewService(opts)
	require.NoError(t, err)
	b := &navBrowser{}
	svc.AttachBrowser(b)

	openOnce(context.Background(), svc, "mail.example.com", logger.NewNop())
	assert.Empty(t, b.urls)

	other, err := api.NewService(service.Options{Layout: store.New(dir), Session: "2026-01-01T00-00"})
	require.NoError(t, err)
	_, err = other.RegisterApp("mail", "mail.example.com")
	require.NoError(t, err)

	assert.Equal(t, 1, svc.Reload(context.Background()))
	assert.Equal(t, []string{"https://mail.example.com"}, b.urls)
}
