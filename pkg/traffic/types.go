package traffic

import "strings"

// Header 封装通用的头部操作，保留原始大小写
type Header map[string]string

// Get 获取指定 Header 的值（大小写不敏感）
func (h Header) Get(key string) string {
	v, _ := h.Lookup(key)
	return v
}

// Lookup 查找指定 Header，返回原始名称下的值
func (h Header) Lookup(key string) (string, bool) {
	if h == nil {
		return "", false
	}
	if v, ok := h[key]; ok {
		return v, true
	}
	for k, v := range h {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// HasAny 是否包含任一指定 Header（大小写不敏感）
func (h Header) HasAny(keys ...string) bool {
	for k := range h {
		for _, want := range keys {
			if strings.EqualFold(k, want) {
				return true
			}
		}
	}
	return false
}

// Cookie 单个 Cookie 键值对
type Cookie struct {
	Name  string
	Value string
}

// ParseCookie 解析 Cookie 头，按分号切分后在第一个等号处分割，两侧去空白
func ParseCookie(s string) []Cookie {
	var out []Cookie
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			continue
		}
		out = append(out, Cookie{
			Name:  strings.TrimSpace(part[:eq]),
			Value: strings.TrimSpace(part[eq+1:]),
		})
	}
	return out
}

// ParseSetCookie 解析 Set-Cookie 头的首个键值对
func ParseSetCookie(s string) (string, string) {
	first := strings.TrimSpace(strings.SplitN(s, ";", 2)[0])
	kv := strings.SplitN(first, "=", 2)
	if len(kv) == 2 {
		return strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
	}
	return "", ""
}
