package endpoints

import (
	"fmt"
	"net/url"
	"slices"
	"sort"
	"strings"
	"time"

	"apiharvest/internal/capture"
	"apiharvest/internal/logger"
	"apiharvest/internal/store"
	"apiharvest/pkg/model"
	"apiharvest/pkg/traffic"
)

const maxObservedURLs = 3

var authCookiePatterns = []string{"session", "sid", "token", "auth", "csrf", "xsrf", "jwt"}

// Output 一次全量扫描的结果
type Output struct {
	Catalog  model.EndpointCatalog
	Auth     model.AuthDescriptor
	Examples []byte
}

// Generator 接口目录生成器，每次触发都全量重扫日志
type Generator struct {
	layout *store.Layout
	log    logger.Logger
	now    func() time.Time
}

// NewGenerator 创建生成器
func NewGenerator(layout *store.Layout, l logger.Logger) *Generator {
	if l == nil {
		l = logger.NewNop()
	}
	return &Generator{layout: layout, log: l, now: time.Now}
}

// Generate 扫描并写出 endpoints.json、auth.json、examples.sh
func (g *Generator) Generate(app string) (*Output, error) {
	out, err := g.Build(app)
	if err != nil {
		return nil, err
	}
	if err := store.WriteJSON(g.layout.EndpointsPath(app), out.Catalog); err != nil {
		return nil, fmt.Errorf("write endpoints: %w", err)
	}
	if err := store.WriteJSON(g.layout.AuthPath(app), out.Auth); err != nil {
		return nil, fmt.Errorf("write auth: %w", err)
	}
	if err := store.WriteFileAtomic(g.layout.ExamplesPath(app), out.Examples, 0o755); err != nil {
		return nil, fmt.Errorf("write examples: %w", err)
	}
	g.log.Debug("接口目录已生成", "app", app, "endpoints", len(out.Catalog.Endpoints))
	return out, nil
}

// Build 扫描应用全部日志，不写盘
func (g *Generator) Build(app string) (*Output, error) {
	files, err := g.layout.CaptureFiles(app)
	if err != nil {
		return nil, fmt.Errorf("list captures for %s: %w", app, err)
	}

	acc := newAccumulator()
	for _, f := range files {
		if err := store.ScanLines(f, acc.add); err != nil {
			g.log.Warn("读取捕获日志失败，已跳过", "file", f, "error", err)
		}
	}

	out := &Output{
		Catalog: model.EndpointCatalog{Endpoints: acc.sorted()},
		Auth:    acc.auth(),
	}
	out.Examples = RenderExamples(out.Catalog, g.layout.ReadSession(app), g.now())
	return out, nil
}

// LoadCatalog 读取已写出的接口目录
func LoadCatalog(layout *store.Layout, app string) (*model.EndpointCatalog, error) {
	cat := &model.EndpointCatalog{}
	if err := store.ReadJSON(layout.EndpointsPath(app), cat); err != nil {
		return nil, err
	}
	return cat, nil
}

type accumulator struct {
	records     map[string]*model.EndpointRecord
	cookies     map[string]struct{}
	authHeaders map[[2]string]struct{}
	loginURLs   []string
	refreshURLs []string
}

func newAccumulator() *accumulator {
	return &accumulator{
		records:     make(map[string]*model.EndpointRecord),
		cookies:     make(map[string]struct{}),
		authHeaders: make(map[[2]string]struct{}),
	}
}

func (a *accumulator) add(line []byte) {
	ev, ok := capture.DecodeLine(line)
	if !ok || ev.Type == model.EventXHRStart {
		return
	}
	req := traffic.Header(ev.RequestHeaders)
	if ev.Type == model.EventCookies {
		a.harvestCookies(req)
		return
	}
	if ev.URL == "" {
		return
	}
	u, err := url.Parse(ev.URL)
	if err != nil {
		return
	}

	method := ev.Method
	if method == "" {
		method = "GET"
	}
	key := method + " " + Normalize(u.Path)

	hasAuth := req.HasAny(capture.AuthHeaders...) || req.HasAny(capture.CookieHeader)
	for k, v := range req {
		if slices.ContainsFunc(capture.AuthHeaders, func(h string) bool { return strings.EqualFold(h, k) }) {
			a.authHeaders[[2]string{k, schemePattern(v)}] = struct{}{}
		}
	}
	a.harvestCookies(req)
	a.detectAuthFlow(method, u.Path, ev.URL)

	rec, ok := a.records[key]
	if !ok {
		rec = &model.EndpointRecord{
			Pattern:              key,
			Methods:              []string{},
			ObservedURLs:         []string{},
			QueryParams:          []string{},
			RequestContentTypes:  []string{},
			ResponseContentTypes: []string{},
		}
		a.records[key] = rec
	}
	rec.Methods = appendUnique(rec.Methods, method)
	if len(rec.ObservedURLs) < maxObservedURLs {
		rec.ObservedURLs = appendUnique(rec.ObservedURLs, ev.URL)
	}
	for _, q := range queryNames(u.RawQuery) {
		rec.QueryParams = appendUnique(rec.QueryParams, q)
	}
	if ct := req.Get("content-type"); ct != "" {
		rec.RequestContentTypes = appendUnique(rec.RequestContentTypes, ct)
	}
	if ct := traffic.Header(ev.ResponseHeaders).Get("content-type"); ct != "" {
		rec.ResponseContentTypes = appendUnique(rec.ResponseContentTypes, ct)
	}
	if rec.ResponseShapeSample == nil && ev.ResponseBody != nil {
		if shape, ok := Shape(*ev.ResponseBody); ok {
			rec.ResponseShapeSample = shape
		}
	}
	rec.AuthRequired = rec.AuthRequired || hasAuth
	rec.TimesSeen++
	rec.LastSeen = ev.Timestamp
}

func (a *accumulator) harvestCookies(req traffic.Header) {
	for k, v := range req {
		if !strings.EqualFold(k, capture.CookieHeader) {
			continue
		}
		for _, c := range traffic.ParseCookie(v) {
			a.cookies[c.Name] = struct{}{}
		}
	}
}

// detectAuthFlow 登录/刷新接口识别
// 条件按字面优先级求值：login || signin || (auth && (POST || token))
func (a *accumulator) detectAuthFlow(method, p, rawURL string) {
	lp := strings.ToLower(p)
	if !(strings.Contains(lp, "login") ||
		strings.Contains(lp, "signin") ||
		strings.Contains(lp, "auth") && (method == "POST" || strings.Contains(lp, "token"))) {
		return
	}
	if strings.Contains(lp, "refresh") || strings.Contains(lp, "token") {
		a.refreshURLs = appendUnique(a.refreshURLs, rawURL)
	} else {
		a.loginURLs = append(a.loginURLs, rawURL)
	}
}

func (a *accumulator) sorted() []model.EndpointRecord {
	list := make([]model.EndpointRecord, 0, len(a.records))
	for _, rec := range a.records {
		list = append(list, *rec)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].TimesSeen != list[j].TimesSeen {
			return list[i].TimesSeen > list[j].TimesSeen
		}
		return list[i].Pattern < list[j].Pattern
	})
	return list
}

func (a *accumulator) auth() model.AuthDescriptor {
	desc := model.AuthDescriptor{
		Mechanisms:              []model.AuthMechanism{},
		RefreshEndpoints:        []string{},
		SessionDurationEstimate: "unknown",
	}

	var names []string
	for name := range a.cookies {
		lower := strings.ToLower(name)
		for _, p := range authCookiePatterns {
			if strings.Contains(lower, p) {
				names = append(names, name)
				break
			}
		}
	}
	if len(names) > 0 {
		sort.Strings(names)
		desc.Mechanisms = append(desc.Mechanisms, model.AuthMechanism{
			Type:    "cookie",
			Details: map[string]any{"names": names},
		})
	}

	pairs := make([][2]string, 0, len(a.authHeaders))
	for p := range a.authHeaders {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	for _, p := range pairs {
		desc.Mechanisms = append(desc.Mechanisms, model.AuthMechanism{
			Type:    "header",
			Details: map[string]any{"header": p[0], "pattern": p[1]},
		})
	}

	if len(a.loginURLs) > 0 {
		login := a.loginURLs[0]
		desc.LoginURL = &login
	}
	desc.RefreshEndpoints = append(desc.RefreshEndpoints, a.refreshURLs...)
	return desc
}

// schemePattern 取第一个空格前的认证方案，如 "Bearer ..."；无空格为 opaque
func schemePattern(v string) string {
	if i := strings.IndexByte(v, ' '); i >= 0 {
		return v[:i] + " ..."
	}
	return "opaque"
}

// queryNames 按出现顺序返回查询参数名
func queryNames(raw string) []string {
	var names []string
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		name, _, _ := strings.Cut(part, "=")
		if un, err := url.QueryUnescape(name); err == nil {
			name = un
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

func appendUnique(list []string, v string) []string {
	if slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}
