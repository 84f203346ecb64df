package service

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"apiharvest/internal/capture"
)

const defaultRegistrationPoll = 2 * time.Second

// Reload 合并其他进程写入的注册信息：新出现的域名加入映射并回放缓冲，返回新映射的域名数
func (s *Service) Reload(ctx context.Context) int {
	mapped := 0
	for _, reg := range s.layout.Registrations() {
		for _, d := range reg.Domains {
			if _, ok := s.registry.Lookup(d); ok {
				continue
			}
			if !s.registry.Assign(d, reg.Name) {
				continue
			}
			mapped++
			n := s.router.Flush(d, reg.Name)
			s.log.Info("载入外部注册的域名", "app", reg.Name, "domain", d, "replayed", n)
		}
	}
	if mapped > 0 {
		s.resumePending(ctx)
	}
	return mapped
}

// resumePending 待导航地址的域名已有归属时继续导航
func (s *Service) resumePending(ctx context.Context) {
	target := s.PendingURL()
	if target == "" {
		return
	}
	if _, ok := s.registry.Lookup(capture.Host(target)); !ok {
		return
	}
	if err := s.ResumeNavigate(ctx); err != nil {
		s.log.Warn("继续导航失败", "url", target, "error", err)
	}
}

// WatchRegistrations 监听 apps/*/config.json，变化时 Reload；定时轮询兜底，阻塞到 ctx 结束
func (s *Service) WatchRegistrations(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultRegistrationPoll
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	w, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.Warn("注册信息监听不可用，仅使用轮询", "error", err)
	} else {
		defer w.Close()
		s.watchAppDirs(w)
		events, errs = w.Events, w.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Reload(ctx)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			// 新应用目录：补加监听，config.json 可能已先于监听写入
			if ev.Has(fsnotify.Create) && filepath.Dir(filepath.Clean(ev.Name)) == filepath.Clean(s.layout.AppsDir()) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					_ = w.Add(ev.Name)
				}
				s.Reload(ctx)
				continue
			}
			if filepath.Base(ev.Name) == "config.json" && ev.Has(fsnotify.Create|fsnotify.Write) {
				s.Reload(ctx)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.log.Debug("注册信息监听错误", "error", err)
		}
	}
}

func (s *Service) watchAppDirs(w *fsnotify.Watcher) {
	if err := w.Add(s.layout.AppsDir()); err != nil {
		s.log.Debug("监听应用目录失败", "error", err)
		return
	}
	for _, app := range s.layout.ListApps() {
		_ = w.Add(s.layout.AppDir(app))
	}
}
