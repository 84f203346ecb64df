package model

import "encoding/json"

// EventType 捕获记录类型
type EventType string

const (
	EventXHR        EventType = "xhr"
	EventFetch      EventType = "fetch"
	EventXHRStart   EventType = "xhr-start"
	EventUIAction   EventType = "ui-action"
	EventNavigation EventType = "navigation"
	EventCookies    EventType = "cookies"
)

// IsMeta 元信息类记录不做鉴权检查
func (t EventType) IsMeta() bool {
	return t == EventUIAction || t == EventNavigation || t == EventCookies
}

// CaptureEvent 浏览器上报的一条捕获记录
// Raw 保留原始 JSON，写盘时原样追加，未知字段不会丢失
type CaptureEvent struct {
	Type            EventType
	URL             string
	Method          string
	Timestamp       string
	RequestHeaders  map[string]string
	ResponseHeaders map[string]string
	RequestBody     *string
	ResponseBody    *string
	Raw             []byte
}

// AppRegistration 应用注册信息，对应 apps/<name>/config.json
type AppRegistration struct {
	Name        string   `json:"-"`
	Domains     []string `json:"domains"`
	Created     string   `json:"created"`
	LastSession *string  `json:"last_session"`
}

// Seed 返回种子域名（第一个注册的域名）
func (a *AppRegistration) Seed() string {
	if len(a.Domains) == 0 {
		return ""
	}
	return a.Domains[0]
}

// AppDetail 应用名与域名列表
type AppDetail struct {
	Name    string   `json:"name"`
	Domains []string `json:"domains"`
}

// SessionSnapshot 应用当前的鉴权材料，对应 sessions/latest.json
type SessionSnapshot struct {
	Domain      string            `json:"domain"`
	CapturedAt  string            `json:"captured_at"`
	Cookies     map[string]string `json:"cookies"`
	AuthHeaders map[string]string `json:"auth_headers"`
	CSRFTokens  map[string]string `json:"csrf_tokens"`
	UserAgent   string            `json:"user_agent"`
}

// NewSessionSnapshot 创建空会话快照
func NewSessionSnapshot() *SessionSnapshot {
	return &SessionSnapshot{
		Cookies:     make(map[string]string),
		AuthHeaders: make(map[string]string),
		CSRFTokens:  make(map[string]string),
	}
}

// EndpointRecord 按 "METHOD /pattern" 聚合的接口记录
type EndpointRecord struct {
	Pattern              string          `json:"pattern"`
	Methods              []string        `json:"methods"`
	ObservedURLs         []string        `json:"observed_urls"`
	QueryParams          []string        `json:"query_params"`
	RequestContentTypes  []string        `json:"request_content_types"`
	ResponseContentTypes []string        `json:"response_content_types"`
	ResponseShapeSample  json.RawMessage `json:"response_shape_sample"`
	AuthRequired         bool            `json:"auth_required"`
	TimesSeen            int             `json:"times_seen"`
	LastSeen             string          `json:"last_seen"`
}

// EndpointCatalog 应用的接口目录，对应 endpoints.json
type EndpointCatalog struct {
	Endpoints []EndpointRecord `json:"endpoints"`
}

// AuthMechanism 推断出的鉴权方式
type AuthMechanism struct {
	Type    string         `json:"type"`
	Details map[string]any `json:"details"`
}

// AuthDescriptor 应用的鉴权模型，对应 auth.json
type AuthDescriptor struct {
	Mechanisms              []AuthMechanism `json:"mechanisms"`
	LoginURL                *string         `json:"login_url"`
	RefreshEndpoints        []string        `json:"observed_refresh_endpoints"`
	SessionDurationEstimate string          `json:"session_duration_estimate"`
}

// AdmitOutcome 捕获过滤结果
type AdmitOutcome string

const (
	OutcomeAdmitted AdmitOutcome = "admitted"
	OutcomeBuffered AdmitOutcome = "buffered"
	OutcomeDropped  AdmitOutcome = "dropped"
)

// Decision 单条捕获的路由决策
type Decision struct {
	Outcome AdmitOutcome
	App     string
	Domain  string
	Reason  string
}

// Event 对外通知的运行时事件
type Event struct {
	Type      string `json:"type"`
	App       string `json:"app,omitempty"`
	Domain    string `json:"domain,omitempty"`
	URL       string `json:"url,omitempty"`
	Timestamp int64  `json:"timestamp"`
}
