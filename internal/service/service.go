package service

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"apiharvest/internal/bridge"
	"apiharvest/internal/capture"
	"apiharvest/internal/cleanup"
	"apiharvest/internal/endpoints"
	"apiharvest/internal/logger"
	"apiharvest/internal/registry"
	"apiharvest/internal/session"
	"apiharvest/internal/store"
	"apiharvest/pkg/model"
)

// SessionLayout 会话时间戳格式，同时作为日志文件名
const SessionLayout = "2006-01-02T15-04"

// OfflineSession 离线生成使用，不对应任何日志文件，所有历史日志都可被裁剪
const OfflineSession = "offline"

const (
	EventRequestCaptured = "request-captured"
	EventUnknownDomain   = "unknown-domain"
	EventNameBeforeNav   = "name-app-before-navigate"
	EventDomainsPruned   = "domains-pruned"

	eventBuffer = 256
)

// Options 服务参数
type Options struct {
	Layout      *store.Layout
	UserAgent   string
	BatchEvery  int
	EvalTimeout time.Duration
	// Session 为空时按当前时间生成
	Session string
	Logger  logger.Logger
	Now     func() time.Time
}

// Service 显式的运行时上下文，持有所有共享状态
// 注册表、缓冲区、求值槽、会话文件锁各自独立加锁
type Service struct {
	layout   *store.Layout
	registry *registry.Registry
	cookies  *capture.CookieNames
	sessions *session.Manager
	router   *capture.Router
	catalog  *endpoints.Generator
	trimmer  *cleanup.Trimmer
	pruner   *cleanup.Pruner
	evals    *bridge.EvalRegistry
	browser  *browserRef
	session  string
	log      logger.Logger
	now      func() time.Time

	batches singleflight.Group
	batchWG sync.WaitGroup

	pendingMu  sync.Mutex
	pendingURL string

	lastMu   sync.Mutex
	recorded map[string]struct{}

	events chan model.Event
}

// New 创建服务并由磁盘上的注册信息重建域名映射
func New(opts Options) (*Service, error) {
	if opts.Layout == nil {
		return nil, errors.New("service: layout is required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Session == "" {
		opts.Session = opts.Now().UTC().Format(SessionLayout)
	}
	if err := opts.Layout.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("prepare data dir: %w", err)
	}

	s := &Service{
		layout:   opts.Layout,
		registry: registry.New(),
		cookies:  capture.NewCookieNames(),
		evals:    bridge.NewEvalRegistry(opts.EvalTimeout),
		browser:  &browserRef{},
		session:  opts.Session,
		log:      opts.Logger,
		now:      opts.Now,
		recorded: make(map[string]struct{}),
		events:   make(chan model.Event, eventBuffer),
	}
	s.registry.Rebuild(opts.Layout.Registrations())
	s.sessions = session.NewManager(opts.Layout, s.cookies, opts.UserAgent, opts.Logger.With("module", "session"))
	s.catalog = endpoints.NewGenerator(opts.Layout, opts.Logger.With("module", "endpoints"))
	s.trimmer = cleanup.NewTrimmer(opts.Layout, opts.Logger.With("module", "trim"))
	s.pruner = cleanup.NewPruner(opts.Layout, s.cookies, s.registry, opts.Logger.With("module", "prune"))
	s.router = capture.NewRouter(capture.Config{
		Registry:   s.registry,
		Store:      store.NewCaptureStore(opts.Layout),
		Sessions:   s.sessions,
		Cookies:    s.cookies,
		Notifier:   s,
		Session:    s.session,
		Persist:    s.persistDomain,
		BatchEvery: opts.BatchEvery,
		OnBatch:    s.scheduleBatch,
		Logger:     opts.Logger.With("module", "capture"),
		Now:        opts.Now,
	})
	return s, nil
}

// Session 本进程的会话时间戳
func (s *Service) Session() string { return s.session }

// Layout 数据目录布局
func (s *Service) Layout() *store.Layout { return s.layout }

// Evals 求值结果注册表，浏览器绑定回调投递到这里
func (s *Service) Evals() *bridge.EvalRegistry { return s.evals }

// Events 运行时事件，发送端不阻塞，消费不及时会丢弃
func (s *Service) Events() <-chan model.Event { return s.events }

// Ingest 接收浏览器上报的一条捕获记录
func (s *Service) Ingest(raw []byte) model.Decision {
	return s.router.Admit(raw)
}

// Buffered 未映射域名的缓冲条数
func (s *Service) Buffered() map[string]int { return s.router.Buffered() }

// Snapshot 应用当前会话快照
func (s *Service) Snapshot(app string) *model.SessionSnapshot {
	return s.sessions.Snapshot(app)
}

// RegisterApp 以种子域名创建应用并回放该域名的缓冲记录，返回回放条数
func (s *Service) RegisterApp(name, domain string) (int, error) {
	domain = cleanDomain(domain)
	if domain == "" {
		return 0, errors.New("domain is empty")
	}
	if owner, ok := s.registry.Lookup(domain); ok {
		return 0, fmt.Errorf("domain %s already belongs to app %s", domain, owner)
	}
	if _, err := s.layout.CreateApp(name, domain, s.now()); err != nil {
		return 0, err
	}
	s.registry.Assign(domain, name)
	s.markSession(name)
	s.log.Info("应用已注册", "app", name, "domain", domain)
	return s.router.Flush(domain, name), nil
}

// AddDomain 为已有应用追加域名并回放缓冲记录
func (s *Service) AddDomain(name, domain string) (int, error) {
	domain = cleanDomain(domain)
	if domain == "" {
		return 0, errors.New("domain is empty")
	}
	if owner, ok := s.registry.Lookup(domain); ok && owner != name {
		return 0, fmt.Errorf("domain %s already belongs to app %s", domain, owner)
	}
	if _, err := s.layout.AddDomain(name, domain); err != nil {
		return 0, err
	}
	s.registry.Assign(domain, name)
	s.log.Info("域名已追加", "app", name, "domain", domain)
	return s.router.Flush(domain, name), nil
}

// Apps 已注册应用名（排序）
func (s *Service) Apps() []string { return s.layout.ListApps() }

// AppDetails 应用名与域名列表
func (s *Service) AppDetails() []model.AppDetail { return s.layout.AppDetails() }

// GenerateAll 对每个应用依次执行目录生成、日志瘦身、域名裁剪
func (s *Service) GenerateAll() {
	for _, app := range s.layout.ListApps() {
		s.runBatch(app)
	}
}

// Wait 等待后台批处理结束
func (s *Service) Wait() { s.batchWG.Wait() }

// runBatch 同一应用同时只有一轮在执行，并发触发者共享结果
func (s *Service) runBatch(app string) {
	_, _, _ = s.batches.Do(app, func() (any, error) {
		if _, err := s.catalog.Generate(app); err != nil {
			s.log.Debug("跳过目录生成", "app", app, "error", err)
			return nil, nil
		}
		s.trimmer.Trim(app, s.session)
		if removed := s.pruner.Prune(app); len(removed) > 0 {
			s.emit(model.Event{Type: EventDomainsPruned, App: app, Domain: strings.Join(removed, ",")})
		}
		return nil, nil
	})
}

func (s *Service) scheduleBatch() {
	s.batchWG.Add(1)
	go func() {
		defer s.batchWG.Done()
		s.GenerateAll()
	}()
}

func (s *Service) persistDomain(app, domain string) error {
	_, err := s.layout.AddDomain(app, domain)
	return err
}

// markSession 每个应用在本进程内只写一次 last_session
func (s *Service) markSession(app string) {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	if _, ok := s.recorded[app]; ok {
		return
	}
	if err := s.layout.SetLastSession(app, s.session); err != nil {
		s.log.Warn("记录会话时间戳失败", "app", app, "error", err)
		return
	}
	s.recorded[app] = struct{}{}
}

// UnknownDomain 实现 capture.Notifier
func (s *Service) UnknownDomain(domain string) {
	s.emit(model.Event{Type: EventUnknownDomain, Domain: domain})
}

// Captured 实现 capture.Notifier
func (s *Service) Captured(app string, ev *model.CaptureEvent) {
	s.markSession(app)
	s.emit(model.Event{Type: EventRequestCaptured, App: app, Domain: capture.Host(ev.URL), URL: ev.URL})
}

func (s *Service) emit(ev model.Event) {
	ev.Timestamp = s.now().UnixMilli()
	select {
	case s.events <- ev:
	default:
	}
}

// cleanDomain 接受裸域名或完整 URL
func cleanDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "://") {
		return capture.Host(raw)
	}
	return strings.ToLower(strings.TrimSuffix(raw, "/"))
}
