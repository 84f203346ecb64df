package endpoints

import "strings"

// IDPlaceholder 路径中 ID 段的占位符
const IDPlaceholder = "{id}"

// Normalize 将路径中的数字、UUID、长哈希段替换为 {id}
func Normalize(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		if s != "" && isIDSegment(s) {
			segs[i] = IDPlaceholder
		}
	}
	return strings.Join(segs, "/")
}

// Key 接口聚合键 "METHOD /pattern"
func Key(method, p string) string {
	if method == "" {
		method = "GET"
	}
	return method + " " + Normalize(p)
}

func isIDSegment(s string) bool {
	digits, hex, hexDash := true, true, true
	for i := 0; i < len(s); i++ {
		c := s[i]
		isDigit := c >= '0' && c <= '9'
		isHex := isDigit || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
		if !isDigit {
			digits = false
		}
		if !isHex {
			hex = false
			if c != '-' {
				hexDash = false
			}
		}
	}
	return digits || (len(s) >= 32 && hexDash) || (len(s) >= 20 && hex)
}
