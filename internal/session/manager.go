package session

import (
	"strings"
	"sync"
	"time"

	"apiharvest/internal/logger"
	"apiharvest/pkg/model"
	"apiharvest/pkg/traffic"
)

var (
	authHeaders   = []string{"authorization", "x-csrf-token", "x-xsrf-token"}
	cookieHeaders = []string{"cookie"}
)

// Store 会话快照持久化
type Store interface {
	ReadSession(app string) *model.SessionSnapshot
	WriteSession(app string, snap *model.SessionSnapshot) error
}

// CookieLearner 接收新观察到的 Cookie 名
type CookieLearner interface {
	Learn(names ...string) int
}

// Manager 每个应用维护一份当前会话快照
// 所有应用共用一把会话文件锁
type Manager struct {
	mu        sync.Mutex
	store     Store
	learner   CookieLearner
	userAgent string
	now       func() time.Time
	log       logger.Logger
}

// NewManager 创建会话提取器
func NewManager(store Store, learner CookieLearner, userAgent string, l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{
		store:     store,
		learner:   learner,
		userAgent: userAgent,
		now:       time.Now,
		log:       l,
	}
}

// Update 合并一条捕获中的鉴权材料，请求头没有鉴权/Cookie 头时不做任何事
func (m *Manager) Update(app, domain string, ev *model.CaptureEvent) {
	req := traffic.Header(ev.RequestHeaders)
	if len(req) == 0 || !req.HasAny(append(authHeaders, cookieHeaders...)...) {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.store.ReadSession(app)
	snap.Domain = domain
	snap.CapturedAt = m.now().UTC().Format(time.RFC3339)
	snap.UserAgent = m.userAgent

	var names []string
	for k, v := range req {
		if !isOneOf(k, cookieHeaders) {
			continue
		}
		for _, c := range traffic.ParseCookie(v) {
			snap.Cookies[c.Name] = c.Value
			names = append(names, c.Name)
		}
	}
	for k, v := range req {
		if isOneOf(k, authHeaders) {
			snap.AuthHeaders[k] = v
		}
	}
	for k, v := range ev.ResponseHeaders {
		lower := strings.ToLower(k)
		if strings.Contains(lower, "csrf") || strings.Contains(lower, "xsrf") {
			snap.CSRFTokens[k] = v
		}
	}

	if m.learner != nil && len(names) > 0 {
		if added := m.learner.Learn(names...); added > 0 {
			m.log.Debug("学习到新的会话 Cookie", "app", app, "added", added)
		}
	}
	if err := m.store.WriteSession(app, snap); err != nil {
		m.log.Err(err, "写入会话快照失败", "app", app)
	}
}

// Snapshot 读取应用当前快照
func (m *Manager) Snapshot(app string) *model.SessionSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.ReadSession(app)
}

func isOneOf(name string, set []string) bool {
	for _, s := range set {
		if strings.EqualFold(name, s) {
			return true
		}
	}
	return false
}
