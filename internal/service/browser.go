package service

import (
	"context"
	"sync"

	"apiharvest/internal/bridge"
	"apiharvest/internal/capture"
	"apiharvest/pkg/model"
)

// browserRef 可替换的浏览器视图，未连接时 Available 为 false
type browserRef struct {
	mu sync.RWMutex
	b  bridge.Browser
}

func (r *browserRef) get() bridge.Browser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.b
}

func (r *browserRef) set(b bridge.Browser) {
	r.mu.Lock()
	r.b = b
	r.mu.Unlock()
}

func (r *browserRef) Inject(ctx context.Context, js string) error {
	b := r.get()
	if b == nil {
		return bridge.ErrNoBrowser
	}
	return b.Inject(ctx, js)
}

func (r *browserRef) Navigate(ctx context.Context, url string) error {
	b := r.get()
	if b == nil {
		return bridge.ErrNoBrowser
	}
	return b.Navigate(ctx, url)
}

func (r *browserRef) Cookies(ctx context.Context, url string) ([]model.BrowserCookie, error) {
	b := r.get()
	if b == nil {
		return nil, bridge.ErrNoBrowser
	}
	return b.Cookies(ctx, url)
}

func (r *browserRef) Available() bool {
	b := r.get()
	return b != nil && b.Available()
}

// AttachBrowser 设置当前浏览器视图，传 nil 表示已关闭
func (s *Service) AttachBrowser(b bridge.Browser) {
	s.browser.set(b)
}

// Browser 当前浏览器视图的代理
func (s *Service) Browser() bridge.Browser { return s.browser }

// Open 打开地址：域名已映射时切换当前应用并导航；
// 未映射时记为待导航地址并通知先命名应用，返回 pending=true
func (s *Service) Open(ctx context.Context, raw string) (pending bool, err error) {
	target, host, err := capture.NormalizeURL(raw)
	if err != nil {
		return false, err
	}
	app, ok := s.registry.Lookup(host)
	if !ok {
		s.pendingMu.Lock()
		s.pendingURL = target
		s.pendingMu.Unlock()
		s.emit(model.Event{Type: EventNameBeforeNav, Domain: host, URL: target})
		return true, nil
	}
	s.registry.SetCurrent(app)
	return false, s.browser.Navigate(ctx, target)
}

// PendingURL 等待应用命名后再导航的地址
func (s *Service) PendingURL() string {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return s.pendingURL
}

// ResumeNavigate 注册完成后导航到待导航地址，没有时什么也不做
func (s *Service) ResumeNavigate(ctx context.Context) error {
	s.pendingMu.Lock()
	target := s.pendingURL
	s.pendingURL = ""
	s.pendingMu.Unlock()
	if target == "" {
		return nil
	}
	s.OnNavigate(target)
	return s.browser.Navigate(ctx, target)
}

// OnNavigate 导航到已映射域名时切换当前应用
func (s *Service) OnNavigate(url string) {
	if app, ok := s.registry.Lookup(capture.Host(url)); ok {
		s.registry.SetCurrent(app)
	}
}

// CurrentApp 当前浏览的应用
func (s *Service) CurrentApp() (string, bool) { return s.registry.Current() }

// NewDispatcher 组装控制命令分发器，journal 可为 nil
func (s *Service) NewDispatcher(journal bridge.Journal) *bridge.Dispatcher {
	return bridge.NewDispatcher(bridge.Config{
		Browser:    s.browser,
		Evals:      s.evals,
		Apps:       s.Apps,
		Generate:   s.GenerateAll,
		Record:     func(raw []byte) { s.Ingest(raw) },
		OnNavigate: s.OnNavigate,
		Journal:    journal,
		Logger:     s.log.With("module", "bridge"),
		Now:        s.now,
	})
}
