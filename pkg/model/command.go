package model

// Action 控制命令动作
type Action string

const (
	ActionNavigate          Action = "navigate"
	ActionClick             Action = "click"
	ActionType              Action = "type"
	ActionScroll            Action = "scroll"
	ActionEval              Action = "eval"
	ActionReadPage          Action = "read_page"
	ActionReadUI            Action = "read_ui"
	ActionClickRef          Action = "click_ref"
	ActionTypeRef           Action = "type_ref"
	ActionSelectRef         Action = "select_ref"
	ActionGetCookies        Action = "get_cookies"
	ActionStatus            Action = "status"
	ActionWSSend            Action = "ws_send"
	ActionWSList            Action = "ws_list"
	ActionGenerateEndpoints Action = "generate_endpoints"
)

// Command 命令文件中的一条命令
type Command struct {
	Action    Action `json:"action"`
	URL       string `json:"url,omitempty"`
	Selector  string `json:"selector,omitempty"`
	Value     string `json:"value,omitempty"`
	Amount    *int64 `json:"amount,omitempty"`
	Direction string `json:"direction,omitempty"`
	JS        string `json:"js,omitempty"`
	Ref       *int   `json:"ref,omitempty"`
	Index     *int   `json:"index,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Result 结果文件内容
type Result struct {
	OK          bool     `json:"ok,omitempty"`
	Result      *string  `json:"result,omitempty"`
	Error       string   `json:"error,omitempty"`
	BrowserOpen *bool    `json:"browser_open,omitempty"`
	Apps        []string `json:"apps,omitzero"`
}

// OKResult 成功结果
func OKResult() Result { return Result{OK: true} }

// ValueResult 携带返回值的成功结果
func ValueResult(v string) Result { return Result{OK: true, Result: &v} }

// ErrorResult 失败结果
func ErrorResult(msg string) Result { return Result{Error: msg} }

// BrowserCookie 浏览器 Cookie 仓中的一条 Cookie，包含 httpOnly
type BrowserCookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	HTTPOnly bool   `json:"httpOnly"`
	Secure   bool   `json:"secure"`
}
