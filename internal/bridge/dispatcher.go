package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"apiharvest/internal/ctxkeys"
	"apiharvest/internal/logger"
	"apiharvest/pkg/model"
)

var (
	ErrNoBrowser     = errors.New("browser not open")
	ErrUnknownAction = errors.New("unknown action")
)

const defaultScrollAmount = 500

// Browser 浏览器视图
type Browser interface {
	Injector
	Navigate(ctx context.Context, url string) error
	Cookies(ctx context.Context, url string) ([]model.BrowserCookie, error)
	Available() bool
}

// Journal 命令执行记录
type Journal interface {
	Log(ctx context.Context, action string, res model.Result, elapsed time.Duration) error
}

// Config 分发器依赖
type Config struct {
	Browser Browser
	Evals   *EvalRegistry
	// Apps 已知应用名
	Apps func() []string
	// Generate 同步执行一轮全量目录生成
	Generate func()
	// Record 写入一条 ui-action 元记录
	Record func(raw []byte)
	// OnNavigate 导航成功后回调，用于切换当前应用
	OnNavigate func(url string)
	Journal    Journal
	Logger     logger.Logger
	Now        func() time.Time
}

// Dispatcher 控制命令分发，每条命令都产出一个结果对象
type Dispatcher struct {
	cfg Config
	log logger.Logger
}

// NewDispatcher 创建分发器
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Evals == nil {
		cfg.Evals = NewEvalRegistry(0)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Dispatcher{cfg: cfg, log: cfg.Logger}
}

// Handle 解析并执行一条命令，panic 也会转换为错误结果
func (d *Dispatcher) Handle(ctx context.Context, body []byte) (res model.Result) {
	traceID := uuid.NewString()
	ctx = ctxkeys.WithTraceID(ctx, traceID)
	start := d.cfg.Now()
	var action model.Action

	defer func() {
		if r := recover(); r != nil {
			d.log.Error("命令执行异常", "traceId", traceID, "action", action, "panic", r)
			res = model.ErrorResult(fmt.Sprintf("internal error: %v", r))
		}
		elapsed := d.cfg.Now().Sub(start)
		d.log.Info("命令已执行", "traceId", traceID, "action", action, "ok", res.Error == "", "elapsedMs", elapsed.Milliseconds())
		if d.cfg.Journal != nil {
			if err := d.cfg.Journal.Log(ctx, string(action), res, elapsed); err != nil {
				d.log.Warn("写入命令记录失败", "traceId", traceID, "error", err)
			}
		}
	}()

	var cmd model.Command
	if err := json.Unmarshal(body, &cmd); err != nil {
		return model.ErrorResult(err.Error())
	}
	action = cmd.Action
	return d.Dispatch(ctx, &cmd)
}

// Dispatch 执行已解析的命令
func (d *Dispatcher) Dispatch(ctx context.Context, cmd *model.Command) model.Result {
	switch cmd.Action {
	case model.ActionNavigate:
		return d.navigate(ctx, cmd.URL)
	case model.ActionClick:
		return d.eval(ctx, clickScript(cmd.Selector))
	case model.ActionType:
		return d.eval(ctx, typeScript(cmd.Selector, cmd.Value))
	case model.ActionScroll:
		amount := int64(defaultScrollAmount)
		if cmd.Amount != nil {
			amount = *cmd.Amount
		}
		return d.eval(ctx, scrollScript(cmd.Direction, amount))
	case model.ActionEval:
		return d.eval(ctx, cmd.JS)
	case model.ActionReadPage:
		return d.eval(ctx, readPageScript)
	case model.ActionReadUI:
		return d.eval(ctx, ReadUIScript())
	case model.ActionClickRef:
		return d.refAction(ctx, cmd, clickAction, "")
	case model.ActionTypeRef:
		return d.refAction(ctx, cmd, typeAction, cmd.Value)
	case model.ActionSelectRef:
		return d.refAction(ctx, cmd, selectAction, cmd.Value)
	case model.ActionGetCookies:
		return d.cookies(ctx, cmd.URL)
	case model.ActionStatus:
		return d.status()
	case model.ActionWSSend:
		index := 0
		if cmd.Index != nil {
			index = *cmd.Index
		}
		return d.eval(ctx, wsSendScript(index, cmd.Message))
	case model.ActionWSList:
		return d.eval(ctx, wsListScript)
	case model.ActionGenerateEndpoints:
		if d.cfg.Generate != nil {
			d.cfg.Generate()
		}
		return model.OKResult()
	default:
		return model.ErrorResult(fmt.Sprintf("%s: %s", ErrUnknownAction, cmd.Action))
	}
}

func (d *Dispatcher) browser() (Browser, error) {
	if d.cfg.Browser == nil || !d.cfg.Browser.Available() {
		return nil, ErrNoBrowser
	}
	return d.cfg.Browser, nil
}

func (d *Dispatcher) navigate(ctx context.Context, url string) model.Result {
	if url == "" {
		return model.ErrorResult("missing url")
	}
	b, err := d.browser()
	if err != nil {
		return model.ErrorResult(err.Error())
	}
	if err := b.Navigate(ctx, url); err != nil {
		return model.ErrorResult(err.Error())
	}
	if d.cfg.OnNavigate != nil {
		d.cfg.OnNavigate(url)
	}
	return model.OKResult()
}

// Eval 在页面中求值并返回字符串结果
func (d *Dispatcher) Eval(ctx context.Context, js string) (string, error) {
	b, err := d.browser()
	if err != nil {
		return "", err
	}
	return d.cfg.Evals.Eval(ctx, b, js)
}

func (d *Dispatcher) eval(ctx context.Context, js string) model.Result {
	v, err := d.Eval(ctx, js)
	if err != nil {
		return model.ErrorResult(err.Error())
	}
	return model.ValueResult(v)
}

func (d *Dispatcher) refAction(ctx context.Context, cmd *model.Command, action, value string) model.Result {
	if cmd.Ref == nil {
		return model.ErrorResult("missing ref")
	}
	out, err := d.Eval(ctx, RefScript(*cmd.Ref, action, value))
	if err != nil {
		return model.ErrorResult(err.Error())
	}
	if !gjson.Valid(out) {
		return model.ValueResult(out)
	}
	r := gjson.Parse(out)
	if msg := r.Get("error"); msg.Exists() {
		return model.ErrorResult(msg.String())
	}
	if d.cfg.Record != nil {
		d.cfg.Record(uiActionRecord(cmd, r, value))
	}
	return model.ValueResult(out)
}

// uiActionRecord 组装 ui-action 元记录，时间戳由路由器补齐
func uiActionRecord(cmd *model.Command, r gjson.Result, value string) []byte {
	raw := []byte(`{"type":"ui-action"}`)
	raw, _ = sjson.SetBytes(raw, "url", r.Get("url").String())
	raw, _ = sjson.SetBytes(raw, "action", string(cmd.Action))
	raw, _ = sjson.SetBytes(raw, "ref", *cmd.Ref)
	raw, _ = sjson.SetBytes(raw, "role", r.Get("role").String())
	raw, _ = sjson.SetBytes(raw, "label", r.Get("label").String())
	if cmd.Action != model.ActionClickRef {
		raw, _ = sjson.SetBytes(raw, "value", value)
	}
	return raw
}

func (d *Dispatcher) cookies(ctx context.Context, url string) model.Result {
	b, err := d.browser()
	if err != nil {
		return model.ErrorResult(err.Error())
	}
	list, err := b.Cookies(ctx, url)
	if err != nil {
		return model.ErrorResult(err.Error())
	}
	if list == nil {
		list = []model.BrowserCookie{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return model.ErrorResult(err.Error())
	}
	return model.ValueResult(string(data))
}

func (d *Dispatcher) status() model.Result {
	open := d.cfg.Browser != nil && d.cfg.Browser.Available()
	// 没有应用时也返回 "apps":[]
	res := model.Result{OK: true, BrowserOpen: &open, Apps: []string{}}
	if d.cfg.Apps != nil {
		res.Apps = append(res.Apps, d.cfg.Apps()...)
	}
	return res
}
