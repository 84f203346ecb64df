package endpoints

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"
)

const (
	maxShapeKeys  = 10
	maxShapeDepth = 2
	ellipsis      = `"..."`
)

// Shape 提取 JSON 结构样本：叶子替换为类型标记，对象保留前 10 个键（文档顺序），
// 数组只保留首元素，超过 3 层的子树替换为 "..."
func Shape(body string) (json.RawMessage, bool) {
	if !gjson.Valid(body) {
		return nil, false
	}
	var b bytes.Buffer
	writeShape(&b, gjson.Parse(body), 0)
	return b.Bytes(), true
}

func writeShape(b *bytes.Buffer, v gjson.Result, depth int) {
	if depth > maxShapeDepth {
		b.WriteString(ellipsis)
		return
	}
	switch {
	case v.IsObject():
		b.WriteByte('{')
		seen := make(map[string]struct{})
		v.ForEach(func(k, val gjson.Result) bool {
			if len(seen) >= maxShapeKeys {
				return false
			}
			key := k.String()
			if _, dup := seen[key]; dup {
				return true
			}
			if len(seen) > 0 {
				b.WriteByte(',')
			}
			seen[key] = struct{}{}
			enc, _ := json.Marshal(key)
			b.Write(enc)
			b.WriteByte(':')
			writeShape(b, val, depth+1)
			return true
		})
		b.WriteByte('}')
	case v.IsArray():
		b.WriteByte('[')
		first := true
		v.ForEach(func(_, val gjson.Result) bool {
			if first {
				writeShape(b, val, depth+1)
				first = false
			}
			return false
		})
		b.WriteByte(']')
	case v.Type == gjson.String:
		b.WriteString(`"str"`)
	case v.Type == gjson.Number:
		b.WriteString(`"num"`)
	case v.Type == gjson.True || v.Type == gjson.False:
		b.WriteString(`"bool"`)
	default:
		b.WriteString("null")
	}
}
