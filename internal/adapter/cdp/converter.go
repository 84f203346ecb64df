package cdp

import (
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"apiharvest/pkg/model"
)

// Request requestWillBeSent 中用到的字段
type Request struct {
	ID       string
	Resource string // CDP ResourceType，如 XHR / Fetch
	URL      string
	Method   string
	Headers  []byte // network.Headers 原始 JSON
	PostData *string
	WallTime float64 // 秒
}

// Exchange 一次请求/响应的累积状态
type Exchange struct {
	Type            model.EventType
	URL             string
	Method          string
	Timestamp       string
	RequestHeaders  map[string]string
	ResponseHeaders map[string]string
	RequestBody     *string
	Status          int
}

// Tracker 按 requestId 关联请求、响应与加载完成事件，只跟踪 XHR / Fetch
type Tracker struct {
	mu      sync.Mutex
	pending map[string]*Exchange
	now     func() time.Time
}

// NewTracker 创建跟踪器
func NewTracker() *Tracker {
	return &Tracker{pending: make(map[string]*Exchange), now: time.Now}
}

// EventType CDP 资源类型映射为捕获类型
func EventType(resource string) (model.EventType, bool) {
	switch resource {
	case "XHR":
		return model.EventXHR, true
	case "Fetch":
		return model.EventFetch, true
	}
	return "", false
}

// OnRequest 开始跟踪；重定向沿用同一 requestId，以最新地址为准
func (t *Tracker) OnRequest(r Request) bool {
	typ, ok := EventType(r.Resource)
	if !ok {
		return false
	}
	ts := t.now()
	if r.WallTime > 0 {
		sec := int64(r.WallTime)
		ts = time.Unix(sec, int64((r.WallTime-float64(sec))*1e9))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	ex, ok := t.pending[r.ID]
	if !ok {
		ex = &Exchange{RequestHeaders: map[string]string{}, ResponseHeaders: map[string]string{}}
		t.pending[r.ID] = ex
	}
	ex.Type = typ
	ex.URL = r.URL
	ex.Method = r.Method
	ex.Timestamp = ts.UTC().Format(time.RFC3339Nano)
	ex.RequestBody = r.PostData
	mergeHeaders(ex.RequestHeaders, r.Headers)
	return true
}

// OnRequestExtra 合并浏览器实际发出的请求头（包含 Cookie）
func (t *Tracker) OnRequestExtra(id string, headers []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ex, ok := t.pending[id]; ok {
		mergeHeaders(ex.RequestHeaders, headers)
	}
}

// OnResponse 记录响应状态与响应头
func (t *Tracker) OnResponse(id string, status int, headers []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ex, ok := t.pending[id]; ok {
		if status > 0 {
			ex.Status = status
		}
		mergeHeaders(ex.ResponseHeaders, headers)
	}
}

// OnResponseExtra 合并原始响应头（包含 Set-Cookie）
func (t *Tracker) OnResponseExtra(id string, headers []byte) {
	t.OnResponse(id, 0, headers)
}

// Tracked 是否正在跟踪
func (t *Tracker) Tracked(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[id]
	return ok
}

// Finish 结束跟踪并生成捕获记录，body 为 nil 表示无可用响应体
func (t *Tracker) Finish(id string, body *string) ([]byte, bool) {
	t.mu.Lock()
	ex, ok := t.pending[id]
	delete(t.pending, id)
	t.mu.Unlock()
	if !ok {
		return nil, false
	}
	return Render(ex, body), true
}

// Pending 跟踪中的请求数
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Render 生成单行捕获 JSON
func Render(ex *Exchange, body *string) []byte {
	raw := []byte(`{}`)
	raw, _ = sjson.SetBytes(raw, "type", string(ex.Type))
	raw, _ = sjson.SetBytes(raw, "url", ex.URL)
	raw, _ = sjson.SetBytes(raw, "method", ex.Method)
	raw, _ = sjson.SetBytes(raw, "timestamp", ex.Timestamp)
	raw, _ = sjson.SetBytes(raw, "requestHeaders", ex.RequestHeaders)
	raw, _ = sjson.SetBytes(raw, "responseHeaders", ex.ResponseHeaders)
	if ex.RequestBody != nil {
		raw, _ = sjson.SetBytes(raw, "requestBody", *ex.RequestBody)
	}
	if body != nil {
		raw, _ = sjson.SetBytes(raw, "responseBody", *body)
	}
	if ex.Status > 0 {
		raw, _ = sjson.SetBytes(raw, "status", ex.Status)
	}
	return raw
}

// mergeHeaders HTTP/2 伪头部（:authority 等）不保留
func mergeHeaders(dst map[string]string, headers []byte) {
	if len(headers) == 0 || !gjson.ValidBytes(headers) {
		return
	}
	gjson.ParseBytes(headers).ForEach(func(k, v gjson.Result) bool {
		name := k.String()
		if name != "" && !strings.HasPrefix(name, ":") {
			dst[name] = v.String()
		}
		return true
	})
}

// NavigationRecord 主框架导航生成 navigation 元记录；frame 为 page.Frame 的 JSON
func NavigationRecord(frame []byte, now time.Time) ([]byte, bool) {
	f := gjson.ParseBytes(frame)
	if f.Get("parentId").String() != "" {
		return nil, false
	}
	u := f.Get("url").String()
	if !strings.HasPrefix(u, "http") {
		return nil, false
	}
	raw := []byte(`{"type":"navigation"}`)
	raw, _ = sjson.SetBytes(raw, "url", u)
	raw, _ = sjson.SetBytes(raw, "timestamp", now.UTC().Format(time.RFC3339Nano))
	return raw, true
}

// BrowserCookies 解析 Network.getCookies 的返回 JSON
func BrowserCookies(reply []byte) []model.BrowserCookie {
	list := gjson.GetBytes(reply, "cookies").Array()
	out := make([]model.BrowserCookie, 0, len(list))
	for _, c := range list {
		out = append(out, model.BrowserCookie{
			Name:     c.Get("name").String(),
			Value:    c.Get("value").String(),
			Domain:   c.Get("domain").String(),
			Path:     c.Get("path").String(),
			HTTPOnly: c.Get("httpOnly").Bool(),
			Secure:   c.Get("secure").Bool(),
		})
	}
	return out
}
