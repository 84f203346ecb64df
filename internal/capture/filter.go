package capture

import (
	"net/url"
	"path"
	"strings"
	"sync"

	"apiharvest/pkg/traffic"
)

// AuthHeaders 视为鉴权证据的请求头
var AuthHeaders = []string{"authorization", "x-csrf-token", "x-xsrf-token"}

// CookieHeader 会话 Cookie 请求头
const CookieHeader = "cookie"

var noiseDomains = []string{
	"google-analytics.com",
	"googletagmanager.com",
	"googlesyndication.com",
	"googleadservices.com",
	"doubleclick.net",
	"adservice.google.",
	"connect.facebook.net",
	"facebook.com/tr",
	"analytics.tiktok.com",
	"ads-twitter.com",
	"bat.bing.com",
	"clarity.ms",
	"hotjar.com",
	"hotjar.io",
	"segment.io",
	"segment.com",
	"mixpanel.com",
	"amplitude.com",
	"sentry.io",
	"nr-data.net",
	"newrelic.com",
	"datadoghq",
	"browser-intake",
	"fullstory.com",
	"optimizely.com",
	"scorecardresearch.com",
	"quantserve.com",
}

var staticExts = map[string]struct{}{
	".js": {}, ".mjs": {}, ".css": {}, ".map": {},
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {}, ".ico": {}, ".webp": {}, ".avif": {}, ".bmp": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".otf": {}, ".eot": {},
	".mp4": {}, ".webm": {}, ".mp3": {}, ".wav": {}, ".ogg": {},
}

var trackingPaths = []string{
	"/collect",
	"/beacon",
	"/pixel",
	"/track",
	"/analytics",
	"/telemetry",
	"/rum",
	"/__utm",
	"/log_event",
	"/csp-report",
}

// ShouldSkip 是否为噪声流量：统计/追踪域名、静态资源、追踪路径
// 扩展名只匹配 path，不看查询串；无法解析的 URL 视为噪声
func ShouldSkip(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}
	hostPath := strings.ToLower(u.Host + u.Path)
	for _, d := range noiseDomains {
		if strings.Contains(hostPath, d) {
			return true
		}
	}
	p := strings.ToLower(u.Path)
	if _, ok := staticExts[path.Ext(p)]; ok {
		return true
	}
	for _, t := range trackingPaths {
		if strings.Contains(p, t) {
			return true
		}
	}
	return false
}

// CookieNames 进程内已观察到的会话 Cookie 名集合
type CookieNames struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

// NewCookieNames 创建空集合
func NewCookieNames() *CookieNames {
	return &CookieNames{names: make(map[string]struct{})}
}

// Learn 记录 Cookie 名，返回新增数量
func (c *CookieNames) Learn(names ...string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	added := 0
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := c.names[n]; !ok {
			c.names[n] = struct{}{}
			added++
		}
	}
	return added
}

// Has 是否为已知会话 Cookie
func (c *CookieNames) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.names[name]
	return ok
}

// Merge 并入另一集合
func (c *CookieNames) Merge(other *CookieNames) {
	other.mu.RLock()
	names := make([]string, 0, len(other.names))
	for n := range other.names {
		names = append(names, n)
	}
	other.mu.RUnlock()
	c.Learn(names...)
}

// Len 集合大小
func (c *CookieNames) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.names)
}

// HasAuthEvidence 请求头中存在鉴权头，或存在已知会话 Cookie
func HasAuthEvidence(h traffic.Header, known *CookieNames) bool {
	if h.HasAny(AuthHeaders...) {
		return true
	}
	if known == nil {
		return false
	}
	cookie, ok := h.Lookup(CookieHeader)
	if !ok {
		return false
	}
	for _, c := range traffic.ParseCookie(cookie) {
		if known.Has(c.Name) {
			return true
		}
	}
	return false
}
