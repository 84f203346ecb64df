package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"apiharvest/internal/logger"
	"apiharvest/internal/store"
	"apiharvest/pkg/model"
)

// Handler 处理一条命令原文
type Handler func(ctx context.Context, body []byte) model.Result

// FileSource 基于命令文件的控制通道：固定间隔轮询，fsnotify 到达时提前唤醒
// 命令文件在执行前删除，崩溃时丢弃而非重放
type FileSource struct {
	CommandPath string
	ResultPath  string
	Interval    time.Duration
	// NoWatch 关闭 fsnotify，只按间隔轮询
	NoWatch bool
	Logger  logger.Logger
}

// NewFileSource 使用数据目录下的 cmd.json / cmd-result.json
func NewFileSource(layout *store.Layout, interval time.Duration, l logger.Logger) *FileSource {
	if l == nil {
		l = logger.NewNop()
	}
	return &FileSource{
		CommandPath: layout.CommandPath(),
		ResultPath:  layout.ResultPath(),
		Interval:    interval,
		Logger:      l,
	}
}

// Serve 阻塞运行直到 ctx 结束，同一时刻只执行一条命令
func (s *FileSource) Serve(ctx context.Context, handle Handler) error {
	interval := s.Interval
	if interval <= 0 {
		interval = 300 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var wake <-chan fsnotify.Event
	var watchErrs <-chan error
	if !s.NoWatch {
		if w, err := s.watch(); err != nil {
			s.Logger.Warn("命令文件监听不可用，仅使用轮询", "error", err)
		} else {
			defer w.Close()
			wake, watchErrs = w.Events, w.Errors
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx, handle)
		case ev, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
			if filepath.Clean(ev.Name) == filepath.Clean(s.CommandPath) && ev.Has(fsnotify.Create|fsnotify.Write) {
				s.Tick(ctx, handle)
			}
		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			s.Logger.Debug("命令文件监听错误", "error", err)
		}
	}
}

func (s *FileSource) watch() (*fsnotify.Watcher, error) {
	dir := filepath.Dir(s.CommandPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

// Tick 执行一轮：读取命令、立即删除、分发、覆盖写结果；没有命令时返回 false
func (s *FileSource) Tick(ctx context.Context, handle Handler) bool {
	body, err := os.ReadFile(s.CommandPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.Logger.Debug("读取命令文件失败", "error", err)
		}
		return false
	}
	// 文件已创建但内容尚未写入
	if len(bytes.TrimSpace(body)) == 0 {
		return false
	}
	if err := os.Remove(s.CommandPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.Logger.Warn("删除命令文件失败", "error", err)
	}

	res := handle(ctx, body)
	data, err := json.Marshal(res)
	if err != nil {
		data = []byte(`{"error":"encode result"}`)
	}
	if err := store.WriteFileAtomic(s.ResultPath, data, 0o644); err != nil {
		s.Logger.Err(err, "写入命令结果失败")
	}
	return true
}
