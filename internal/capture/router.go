package capture

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/sjson"

	"apiharvest/internal/logger"
	"apiharvest/internal/registry"
	"apiharvest/pkg/model"
	"apiharvest/pkg/traffic"
)

// Appender 捕获日志追加接口
type Appender interface {
	Append(app, session string, raw []byte) error
}

// SessionUpdater 会话快照更新接口
type SessionUpdater interface {
	Update(app, domain string, ev *model.CaptureEvent)
}

// Notifier 路由结果通知
type Notifier interface {
	UnknownDomain(domain string)
	Captured(app string, ev *model.CaptureEvent)
}

// Config 路由器配置
type Config struct {
	Registry *registry.Registry
	Store    Appender
	Sessions SessionUpdater
	Cookies  *CookieNames
	Notifier Notifier
	// Session 当前会话时间戳，即日志文件名
	Session string
	// Persist 持久化自动注册的域名
	Persist func(app, domain string) error
	// BatchEvery 每接纳 N 条触发一次 OnBatch
	BatchEvery int
	OnBatch    func()
	Logger     logger.Logger
	Now        func() time.Time
}

// Router 捕获过滤与路由
type Router struct {
	cfg Config
	log logger.Logger

	bufMu  sync.Mutex
	buffer map[string][]*model.CaptureEvent

	admitted atomic.Uint64
}

// NewRouter 创建路由器
func NewRouter(cfg Config) *Router {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Cookies == nil {
		cfg.Cookies = NewCookieNames()
	}
	return &Router{
		cfg:    cfg,
		log:    cfg.Logger,
		buffer: make(map[string][]*model.CaptureEvent),
	}
}

// Admit 处理一条原始捕获记录
func (r *Router) Admit(raw []byte) model.Decision {
	ev, err := Decode(raw)
	if err != nil {
		return dropped("", "malformed")
	}
	return r.AdmitEvent(ev)
}

// AdmitEvent 处理已解析的捕获记录
func (r *Router) AdmitEvent(ev *model.CaptureEvent) model.Decision {
	if ev.URL == "" {
		return dropped("", "no url")
	}
	if ev.Type == model.EventXHRStart {
		return dropped("", "superseded")
	}
	domain := Host(ev.URL)
	if domain == "" {
		return dropped("", "bad url")
	}

	evidence := HasAuthEvidence(traffic.Header(ev.RequestHeaders), r.cfg.Cookies)
	if !ev.Type.IsMeta() {
		if ShouldSkip(ev.URL) {
			return dropped(domain, "noise")
		}
		if !evidence {
			return dropped(domain, "no auth evidence")
		}
	}
	r.stamp(ev)

	if app, ok := r.cfg.Registry.Lookup(domain); ok {
		r.commit(app, domain, ev)
		return model.Decision{Outcome: model.OutcomeAdmitted, App: app, Domain: domain}
	}

	if cur, ok := r.cfg.Registry.Current(); ok {
		if !evidence {
			return dropped(domain, "unmapped without auth evidence")
		}
		app := cur
		if !r.cfg.Registry.Assign(domain, cur) {
			// 并发注册到了其他应用
			app, _ = r.cfg.Registry.Lookup(domain)
		} else if r.cfg.Persist != nil {
			if err := r.cfg.Persist(cur, domain); err != nil {
				r.log.Err(err, "持久化自动注册域名失败", "app", cur, "domain", domain)
			}
			r.log.Info("自动注册域名", "app", cur, "domain", domain)
		}
		r.commit(app, domain, ev)
		return model.Decision{Outcome: model.OutcomeAdmitted, App: app, Domain: domain}
	}

	// 持锁复查映射：Flush 前已注册的域名不会再进入缓冲
	r.bufMu.Lock()
	if app, ok := r.cfg.Registry.Lookup(domain); ok {
		r.bufMu.Unlock()
		r.commit(app, domain, ev)
		return model.Decision{Outcome: model.OutcomeAdmitted, App: app, Domain: domain}
	}
	r.buffer[domain] = append(r.buffer[domain], ev)
	r.bufMu.Unlock()
	if r.cfg.Notifier != nil {
		r.cfg.Notifier.UnknownDomain(domain)
	}
	return model.Decision{Outcome: model.OutcomeBuffered, Domain: domain}
}

// Flush 域名注册后按原始顺序回放其缓冲记录，返回回放条数
func (r *Router) Flush(domain, app string) int {
	r.bufMu.Lock()
	entries := r.buffer[domain]
	delete(r.buffer, domain)
	r.bufMu.Unlock()

	for _, ev := range entries {
		r.commit(app, domain, ev)
	}
	if len(entries) > 0 {
		r.log.Info("回放缓冲捕获", "app", app, "domain", domain, "count", len(entries))
	}
	return len(entries)
}

// Buffered 各未映射域名当前缓冲的条数
func (r *Router) Buffered() map[string]int {
	r.bufMu.Lock()
	defer r.bufMu.Unlock()
	out := make(map[string]int, len(r.buffer))
	for d, entries := range r.buffer {
		out[d] = len(entries)
	}
	return out
}

// Admitted 已接纳条数
func (r *Router) Admitted() uint64 {
	return r.admitted.Load()
}

func (r *Router) commit(app, domain string, ev *model.CaptureEvent) {
	if err := r.cfg.Store.Append(app, r.cfg.Session, ev.Raw); err != nil {
		r.log.Err(err, "写入捕获日志失败", "app", app)
	}
	if r.cfg.Sessions != nil {
		r.cfg.Sessions.Update(app, domain, ev)
	}
	if r.cfg.Notifier != nil {
		r.cfg.Notifier.Captured(app, ev)
	}
	n := r.admitted.Add(1)
	if r.cfg.BatchEvery > 0 && n%uint64(r.cfg.BatchEvery) == 0 && r.cfg.OnBatch != nil {
		r.cfg.OnBatch()
	}
}

// stamp 缺少时间戳的记录在写盘前补齐
func (r *Router) stamp(ev *model.CaptureEvent) {
	if ev.Timestamp != "" {
		return
	}
	ts := r.cfg.Now().UTC().Format(time.RFC3339Nano)
	raw, err := sjson.SetBytes(ev.Raw, "timestamp", ts)
	if err != nil {
		return
	}
	ev.Raw = raw
	ev.Timestamp = ts
}

func dropped(domain, reason string) model.Decision {
	return model.Decision{Outcome: model.OutcomeDropped, Domain: domain, Reason: reason}
}
