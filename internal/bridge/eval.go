package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
)

// EvalBinding 浏览器侧回传求值结果的绑定函数名
const EvalBinding = "__harvest_eval"

var ErrEvalTimeout = errors.New("eval timeout")

const evalTemplate = `(function(){var __d=function(s){window.` + EvalBinding + `(JSON.stringify({id:ID_PLACEHOLDER,result:s}));};` +
	`var __e=function(e){__d('error: '+(e&&e.message!==undefined?e.message:String(e)));};` +
	`try{var __r=(JS_PLACEHOLDER);if(__r&&typeof __r.then==='function'){__r.then(function(v){var __s=typeof v==='string'?v:JSON.stringify(v);__d(__s||'null');}).catch(__e);}` +
	`else{var __s=typeof __r==='string'?__r:JSON.stringify(__r);__d(__s||'null');}}catch(e){__e(e);}})();`

// Injector 向页面注入脚本，不等待返回值
type Injector interface {
	Inject(ctx context.Context, js string) error
}

// EvalRegistry 按 id 关联的一次性求值结果槽
type EvalRegistry struct {
	mu      sync.Mutex
	slots   map[string]chan string
	seq     atomic.Uint64
	timeout time.Duration
}

// NewEvalRegistry 创建求值注册表
func NewEvalRegistry(timeout time.Duration) *EvalRegistry {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &EvalRegistry{slots: make(map[string]chan string), timeout: timeout}
}

// Eval 注入包装后的脚本并阻塞等待回传，任何退出路径都会移除结果槽
func (r *EvalRegistry) Eval(ctx context.Context, inj Injector, js string) (string, error) {
	id := fmt.Sprintf("e%d", r.seq.Add(1)-1)
	ch := make(chan string, 1)

	r.mu.Lock()
	r.slots[id] = ch
	r.mu.Unlock()
	defer r.remove(id)

	if err := inj.Inject(ctx, WrapEval(id, js)); err != nil {
		return "", fmt.Errorf("dispatch eval: %w", err)
	}

	t := time.NewTimer(r.timeout)
	defer t.Stop()
	select {
	case v := <-ch:
		return v, nil
	case <-t.C:
		return "", ErrEvalTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Deliver 投递结果，槽已超时移除时静默丢弃
func (r *EvalRegistry) Deliver(id, result string) bool {
	r.mu.Lock()
	ch, ok := r.slots[id]
	delete(r.slots, id)
	r.mu.Unlock()
	if ok {
		ch <- result
	}
	return ok
}

// DeliverPayload 解析绑定回调的 {"id","result"} 负载
func (r *EvalRegistry) DeliverPayload(payload string) bool {
	if !gjson.Valid(payload) {
		return false
	}
	p := gjson.Parse(payload)
	id := p.Get("id").String()
	if id == "" {
		return false
	}
	return r.Deliver(id, p.Get("result").String())
}

// Pending 等待中的结果槽数量
func (r *EvalRegistry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

func (r *EvalRegistry) remove(id string) {
	r.mu.Lock()
	delete(r.slots, id)
	r.mu.Unlock()
}

// WrapEval 生成求值包装脚本：表达式直接内联，支持 Promise，异常以 "error: " 前缀返回
func WrapEval(id, js string) string {
	idJSON, _ := json.Marshal(id)
	return strings.NewReplacer("ID_PLACEHOLDER", string(idJSON), "JS_PLACEHOLDER", js).Replace(evalTemplate)
}
