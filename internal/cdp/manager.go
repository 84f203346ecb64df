package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/rpcc"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	adapter "apiharvest/internal/adapter/cdp"
	"apiharvest/internal/bridge"
	"apiharvest/internal/logger"
	"apiharvest/pkg/model"
)

// CaptureBinding 页面脚本上报捕获记录的绑定名
const CaptureBinding = "__harvest_capture"

const bodyTimeout = 5 * time.Second

// bootstrapScript 每个新文档执行：登记 WebSocket 实例，DOM 就绪后上报一次 document.cookie
const bootstrapScript = `(function(){if(window.__harvest_boot)return;window.__harvest_boot=true;
window.__harvest_ws=window.__harvest_ws||[];
var Native=window.WebSocket;
if(Native){var Wrapped=function(u,p){var s=p===undefined?new Native(u):new Native(u,p);window.__harvest_ws.push(s);return s;};
Wrapped.prototype=Native.prototype;Wrapped.CONNECTING=0;Wrapped.OPEN=1;Wrapped.CLOSING=2;Wrapped.CLOSED=3;window.WebSocket=Wrapped;}
if(window.top!==window)return;
var report=function(){try{if(!document.cookie||typeof window.__harvest_capture!=='function')return;
window.__harvest_capture(JSON.stringify({type:'cookies',url:location.href,timestamp:new Date().toISOString(),requestHeaders:{cookie:document.cookie}}));}catch(e){}};
if(document.readyState==='loading'){document.addEventListener('DOMContentLoaded',report);}else{report();}
})();`

// Sink 接收捕获记录的一方
type Sink interface {
	Ingest(raw []byte) model.Decision
}

// EvalSink 接收求值结果的一方
type EvalSink interface {
	DeliverPayload(payload string) bool
}

var _ bridge.Browser = (*Manager)(nil)

// Manager 连接浏览器页面目标，把网络事件与绑定回调转成捕获记录，同时实现命令桥所需的 Browser
type Manager struct {
	devtoolsURL string
	sink        Sink
	evals       EvalSink
	tracker     *adapter.Tracker
	log         logger.Logger
	now         func() time.Time

	mu     sync.RWMutex
	conn   *rpcc.Conn
	client *cdp.Client

	ready     chan struct{}
	readyOnce sync.Once
}

// New 创建管理器，devtoolsURL 形如 http://127.0.0.1:9222
func New(devtoolsURL string, sink Sink, evals EvalSink, l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{
		devtoolsURL: devtoolsURL,
		sink:        sink,
		evals:       evals,
		tracker:     adapter.NewTracker(),
		log:         l.With("component", "cdp"),
		now:         time.Now,
		ready:       make(chan struct{}),
	}
}

// Ready 连接并完成 Enable 后关闭
func (m *Manager) Ready() <-chan struct{} { return m.ready }

// Attach 连接第一个页面目标，没有则新建
func (m *Manager) Attach(ctx context.Context) error {
	dt := devtool.New(m.devtoolsURL)
	pt, err := dt.Get(ctx, devtool.Page)
	if err != nil {
		pt, err = dt.Create(ctx)
		if err != nil {
			return fmt.Errorf("find page target: %w", err)
		}
	}
	conn, err := rpcc.DialContext(ctx, pt.WebSocketDebuggerURL)
	if err != nil {
		return fmt.Errorf("dial devtools: %w", err)
	}
	m.mu.Lock()
	m.conn = conn
	m.client = cdp.NewClient(conn)
	m.mu.Unlock()
	m.log.Info("已连接页面目标", "target", string(pt.ID), "url", pt.URL)
	return nil
}

func (m *Manager) cl() *cdp.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}

// Enable 打开 Page / Runtime / Network 域，注册绑定与启动脚本
func (m *Manager) Enable(ctx context.Context) error {
	c := m.cl()
	if c == nil {
		return bridge.ErrNoBrowser
	}
	if err := c.Page.Enable(ctx); err != nil {
		return fmt.Errorf("page enable: %w", err)
	}
	if err := c.Runtime.Enable(ctx); err != nil {
		return fmt.Errorf("runtime enable: %w", err)
	}
	if err := c.Network.Enable(ctx, nil); err != nil {
		return fmt.Errorf("network enable: %w", err)
	}
	for _, name := range []string{CaptureBinding, bridge.EvalBinding} {
		if err := c.Runtime.AddBinding(ctx, runtime.NewAddBindingArgs(name)); err != nil {
			return fmt.Errorf("add binding %s: %w", name, err)
		}
	}
	if _, err := c.Page.AddScriptToEvaluateOnNewDocument(ctx, page.NewAddScriptToEvaluateOnNewDocumentArgs(bootstrapScript)); err != nil {
		return fmt.Errorf("add bootstrap script: %w", err)
	}
	// 已加载的文档补一次
	if _, err := c.Runtime.Evaluate(ctx, runtime.NewEvaluateArgs(bootstrapScript)); err != nil {
		m.log.Warn("当前文档注入启动脚本失败", "error", err)
	}
	return nil
}

// Run 连接并消费事件，直到 ctx 结束或连接断开
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Attach(ctx); err != nil {
		return err
	}
	defer m.Close()
	if err := m.Enable(ctx); err != nil {
		return err
	}
	m.readyOnce.Do(func() { close(m.ready) })
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.consumeBindings(gctx) })
	g.Go(func() error { return m.consumeNetwork(gctx) })
	g.Go(func() error { return m.consumeNavigation(gctx) })
	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (m *Manager) consumeBindings(ctx context.Context) error {
	bc, err := m.cl().Runtime.BindingCalled(ctx)
	if err != nil {
		return err
	}
	defer bc.Close()
	for {
		ev, err := bc.Recv()
		if err != nil {
			return err
		}
		switch ev.Name {
		case CaptureBinding:
			m.sink.Ingest([]byte(ev.Payload))
		case bridge.EvalBinding:
			if !m.evals.DeliverPayload(ev.Payload) {
				m.log.Debug("丢弃过期的求值结果")
			}
		}
	}
}

func (m *Manager) consumeNavigation(ctx context.Context) error {
	fn, err := m.cl().Page.FrameNavigated(ctx)
	if err != nil {
		return err
	}
	defer fn.Close()
	for {
		ev, err := fn.Recv()
		if err != nil {
			return err
		}
		frame, err := json.Marshal(ev.Frame)
		if err != nil {
			continue
		}
		if raw, ok := adapter.NavigationRecord(frame, m.now()); ok {
			m.sink.Ingest(raw)
		}
	}
}

func (m *Manager) consumeNetwork(ctx context.Context) error {
	c := m.cl()
	rws, err := c.Network.RequestWillBeSent(ctx)
	if err != nil {
		return err
	}
	defer rws.Close()
	rwx, err := c.Network.RequestWillBeSentExtraInfo(ctx)
	if err != nil {
		return err
	}
	defer rwx.Close()
	rr, err := c.Network.ResponseReceived(ctx)
	if err != nil {
		return err
	}
	defer rr.Close()
	rrx, err := c.Network.ResponseReceivedExtraInfo(ctx)
	if err != nil {
		return err
	}
	defer rrx.Close()
	lf, err := c.Network.LoadingFinished(ctx)
	if err != nil {
		return err
	}
	defer lf.Close()
	lfail, err := c.Network.LoadingFailed(ctx)
	if err != nil {
		return err
	}
	defer lfail.Close()
	// 同步后按浏览器发出的顺序读取
	if err := cdp.Sync(rws, rwx, rr, rrx, lf, lfail); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-rws.Ready():
			ev, err := rws.Recv()
			if err != nil {
				return err
			}
			m.onRequest(ev)
		case <-rwx.Ready():
			ev, err := rwx.Recv()
			if err != nil {
				return err
			}
			m.tracker.OnRequestExtra(string(ev.RequestID), []byte(ev.Headers))
		case <-rr.Ready():
			ev, err := rr.Recv()
			if err != nil {
				return err
			}
			m.tracker.OnResponse(string(ev.RequestID), ev.Response.Status, []byte(ev.Response.Headers))
		case <-rrx.Ready():
			ev, err := rrx.Recv()
			if err != nil {
				return err
			}
			m.tracker.OnResponseExtra(string(ev.RequestID), []byte(ev.Headers))
		case <-lf.Ready():
			ev, err := lf.Recv()
			if err != nil {
				return err
			}
			m.finish(ctx, ev.RequestID, true)
		case <-lfail.Ready():
			ev, err := lfail.Recv()
			if err != nil {
				return err
			}
			m.finish(ctx, ev.RequestID, false)
		}
	}
}

// onRequest 资源类型、时间与请求体经 JSON 读取，字段缺省时不报错
func (m *Manager) onRequest(ev *network.RequestWillBeSentReply) {
	meta, _ := json.Marshal(ev)
	m.tracker.OnRequest(adapter.Request{
		ID:       string(ev.RequestID),
		Resource: gjson.GetBytes(meta, "type").String(),
		URL:      ev.Request.URL,
		Method:   ev.Request.Method,
		Headers:  []byte(ev.Request.Headers),
		PostData: optionalString(gjson.GetBytes(meta, "request.postData")),
		WallTime: gjson.GetBytes(meta, "wallTime").Float(),
	})
}

func (m *Manager) finish(ctx context.Context, id network.RequestID, loaded bool) {
	if !m.tracker.Tracked(string(id)) {
		return
	}
	var body *string
	if loaded {
		body = m.responseBody(ctx, id)
	}
	raw, ok := m.tracker.Finish(string(id), body)
	if !ok {
		return
	}
	d := m.sink.Ingest(raw)
	m.log.Debug("网络请求已上报", "requestId", string(id), "app", d.App, "outcome", string(d.Outcome))
}

// responseBody 二进制响应体不保留
func (m *Manager) responseBody(ctx context.Context, id network.RequestID) *string {
	ctx, cancel := context.WithTimeout(ctx, bodyTimeout)
	defer cancel()
	reply, err := m.cl().Network.GetResponseBody(ctx, network.NewGetResponseBodyArgs(id))
	if err != nil {
		m.log.Debug("响应体不可用", "requestId", string(id), "error", err)
		return nil
	}
	if reply.Base64Encoded {
		return nil
	}
	return &reply.Body
}

// Inject 在页面主世界执行脚本，不等待结果
func (m *Manager) Inject(ctx context.Context, js string) error {
	c := m.cl()
	if c == nil {
		return bridge.ErrNoBrowser
	}
	reply, err := c.Runtime.Evaluate(ctx, runtime.NewEvaluateArgs(js))
	if err != nil {
		return err
	}
	if reply.ExceptionDetails != nil {
		return errors.New(reply.ExceptionDetails.Text)
	}
	return nil
}

// Navigate 页面跳转
func (m *Manager) Navigate(ctx context.Context, url string) error {
	c := m.cl()
	if c == nil {
		return bridge.ErrNoBrowser
	}
	reply, err := c.Page.Navigate(ctx, page.NewNavigateArgs(url))
	if err != nil {
		return err
	}
	if reply.ErrorText != nil && *reply.ErrorText != "" {
		return errors.New(*reply.ErrorText)
	}
	return nil
}

// Cookies 包含 HttpOnly 在内的浏览器 Cookie；url 为空时取当前页面
func (m *Manager) Cookies(ctx context.Context, url string) ([]model.BrowserCookie, error) {
	c := m.cl()
	if c == nil {
		return nil, bridge.ErrNoBrowser
	}
	args := network.NewGetCookiesArgs()
	if url != "" {
		args = args.SetURLs([]string{url})
	}
	reply, err := c.Network.GetCookies(ctx, args)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(reply)
	if err != nil {
		return nil, err
	}
	return adapter.BrowserCookies(raw), nil
}

// Available 是否已连接
func (m *Manager) Available() bool { return m.cl() != nil }

// Close 断开连接
func (m *Manager) Close() error {
	m.mu.Lock()
	conn := m.conn
	m.conn, m.client = nil, nil
	m.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func optionalString(r gjson.Result) *string {
	if !r.Exists() || r.Type != gjson.String {
		return nil
	}
	s := r.String()
	return &s
}
