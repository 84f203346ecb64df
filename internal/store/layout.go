package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const (
	appsDirName     = "apps"
	capturesDirName = "captures"
	sessionsDirName = "sessions"
	captureExt      = ".jsonl"
)

// Layout 数据目录布局
//
//	<root>/apps/<app>/config.json
//	<root>/apps/<app>/sessions/latest.json
//	<root>/apps/<app>/captures/<session>.jsonl
//	<root>/apps/<app>/{endpoints.json,auth.json,examples.sh}
//	<root>/{cmd.json,cmd-result.json,config.json,AGENT.md}
type Layout struct {
	Root string

	// regMu 串行化 config.json 的读改写
	regMu sync.Mutex
}

// New 创建目录布局
func New(root string) *Layout {
	return &Layout{Root: root}
}

func (l *Layout) AppsDir() string               { return filepath.Join(l.Root, appsDirName) }
func (l *Layout) AppDir(app string) string      { return filepath.Join(l.AppsDir(), app) }
func (l *Layout) ConfigPath(app string) string  { return filepath.Join(l.AppDir(app), "config.json") }
func (l *Layout) CapturesDir(app string) string { return filepath.Join(l.AppDir(app), capturesDirName) }
func (l *Layout) SessionPath(app string) string {
	return filepath.Join(l.AppDir(app), sessionsDirName, "latest.json")
}
func (l *Layout) EndpointsPath(app string) string { return filepath.Join(l.AppDir(app), "endpoints.json") }
func (l *Layout) AuthPath(app string) string      { return filepath.Join(l.AppDir(app), "auth.json") }
func (l *Layout) ExamplesPath(app string) string  { return filepath.Join(l.AppDir(app), "examples.sh") }
func (l *Layout) CommandPath() string             { return filepath.Join(l.Root, "cmd.json") }
func (l *Layout) ResultPath() string              { return filepath.Join(l.Root, "cmd-result.json") }
func (l *Layout) GlobalConfigPath() string        { return filepath.Join(l.Root, "config.json") }
func (l *Layout) AgentGuidePath() string          { return filepath.Join(l.Root, "AGENT.md") }

// CaptureFile 会话日志文件路径
func (l *Layout) CaptureFile(app, session string) string {
	return filepath.Join(l.CapturesDir(app), session+captureExt)
}

// CaptureFileName 会话日志文件名
func CaptureFileName(session string) string {
	return session + captureExt
}

// EnsureDirs 创建根目录结构
func (l *Layout) EnsureDirs() error {
	return os.MkdirAll(l.AppsDir(), 0o755)
}

// EnsureAppDirs 创建应用完整目录结构
func (l *Layout) EnsureAppDirs(app string) error {
	if err := os.MkdirAll(l.CapturesDir(app), 0o755); err != nil {
		return err
	}
	return os.MkdirAll(filepath.Dir(l.SessionPath(app)), 0o755)
}

// ListApps 列出所有应用名（按名称排序）
func (l *Layout) ListApps() []string {
	entries, err := os.ReadDir(l.AppsDir())
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

// CaptureFiles 列出应用的全部会话日志（按文件名排序）
func (l *Layout) CaptureFiles(app string) ([]string, error) {
	entries, err := os.ReadDir(l.CapturesDir(app))
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != captureExt {
			continue
		}
		files = append(files, filepath.Join(l.CapturesDir(app), e.Name()))
	}
	return files, nil
}

// ValidateName 应用名直接作为目录名使用
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid app name %q", name)
	}
	return nil
}
