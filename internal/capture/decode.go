package capture

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"apiharvest/pkg/model"
)

var ErrMalformed = errors.New("malformed capture event")

// Decode 在边界处一次性解析捕获记录，Raw 为紧凑单行 JSON
func Decode(raw []byte) (*model.CaptureEvent, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, ErrMalformed
	}
	r := gjson.ParseBytes(buf.Bytes())
	if !r.IsObject() {
		return nil, ErrMalformed
	}
	return fromResult(r, buf.Bytes()), nil
}

// DecodeLine 解析日志中的一行（已是单行 JSON）
func DecodeLine(line []byte) (*model.CaptureEvent, bool) {
	if !gjson.ValidBytes(line) {
		return nil, false
	}
	r := gjson.ParseBytes(line)
	if !r.IsObject() {
		return nil, false
	}
	return fromResult(r, line), true
}

func fromResult(r gjson.Result, raw []byte) *model.CaptureEvent {
	ev := &model.CaptureEvent{
		Type:            model.EventType(r.Get("type").String()),
		URL:             r.Get("url").String(),
		Method:          r.Get("method").String(),
		Timestamp:       r.Get("timestamp").String(),
		RequestHeaders:  headerMap(r.Get("requestHeaders")),
		ResponseHeaders: headerMap(r.Get("responseHeaders")),
		RequestBody:     stringField(r.Get("requestBody")),
		ResponseBody:    stringField(r.Get("responseBody")),
		Raw:             raw,
	}
	return ev
}

func headerMap(v gjson.Result) map[string]string {
	if !v.IsObject() {
		return nil
	}
	m := make(map[string]string)
	v.ForEach(func(k, val gjson.Result) bool {
		if val.Type == gjson.String {
			m[k.String()] = val.String()
		}
		return true
	})
	return m
}

func stringField(v gjson.Result) *string {
	if v.Type != gjson.String {
		return nil
	}
	s := v.String()
	return &s
}

// Host 提取 URL 的主机名，无法解析时返回空串
func Host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// NormalizeURL 裸域名补全为 https://，返回规范化后的地址与主机名
func NormalizeURL(raw string) (string, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", errors.New("empty url")
	}
	if !strings.HasPrefix(raw, "http") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", "", errors.New("url has no host: " + raw)
	}
	return u.String(), host, nil
}
