package cleanup

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"apiharvest/internal/endpoints"
	"apiharvest/internal/logger"
	"apiharvest/internal/store"
)

const (
	// minTimesSeen 超过该次数的接口视为样本充足
	minTimesSeen  = 3
	trimmedPrefix = "[trimmed"
)

var bodyFields = []string{"responseBody", "requestBody"}

// Trimmer 对样本充足接口的旧日志脱去请求/响应体
type Trimmer struct {
	layout *store.Layout
	log    logger.Logger
}

// NewTrimmer 创建 Trimmer
func NewTrimmer(layout *store.Layout, l logger.Logger) *Trimmer {
	if l == nil {
		l = logger.NewNop()
	}
	return &Trimmer{layout: layout, log: l}
}

// Trim 处理应用的所有非当前会话日志，返回被改写的文件数
func (t *Trimmer) Trim(app, activeSession string) int {
	cat, err := endpoints.LoadCatalog(t.layout, app)
	if err != nil {
		return 0
	}
	sampled := make(map[string]struct{})
	for _, ep := range cat.Endpoints {
		if ep.TimesSeen > minTimesSeen {
			sampled[ep.Pattern] = struct{}{}
		}
	}
	if len(sampled) == 0 {
		return 0
	}

	files, err := t.layout.CaptureFiles(app)
	if err != nil {
		return 0
	}
	current := store.CaptureFileName(activeSession)
	rewritten := 0
	for _, f := range files {
		if filepath.Base(f) == current {
			continue
		}
		changed, err := trimFile(f, sampled)
		if err != nil {
			t.log.Warn("日志瘦身失败", "file", f, "error", err)
			continue
		}
		if changed {
			rewritten++
		}
	}
	if rewritten > 0 {
		t.log.Debug("日志瘦身完成", "app", app, "files", rewritten)
	}
	return rewritten
}

func trimFile(path string, sampled map[string]struct{}) (bool, error) {
	var out bytes.Buffer
	modified := false
	err := store.ScanLines(path, func(line []byte) {
		next, changed := trimLine(line, sampled)
		modified = modified || changed
		out.Write(next)
		out.WriteByte('\n')
	})
	if err != nil || !modified {
		return false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	if err := store.WriteFileAtomic(path, out.Bytes(), info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("rewrite %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

// trimLine 无法解析或不在集合内的行原样返回
func trimLine(line []byte, sampled map[string]struct{}) ([]byte, bool) {
	if !gjson.ValidBytes(line) {
		return line, false
	}
	doc := gjson.ParseBytes(line)
	if !doc.IsObject() {
		return line, false
	}
	raw := doc.Get("url")
	if raw.Type != gjson.String {
		return line, false
	}
	u, err := url.Parse(raw.Str)
	if err != nil {
		return line, false
	}
	if _, ok := sampled[endpoints.Key(doc.Get("method").String(), u.Path)]; !ok {
		return line, false
	}

	changed := false
	for _, field := range bodyFields {
		v := doc.Get(field)
		if v.Type != gjson.String || strings.HasPrefix(v.Str, trimmedPrefix) {
			continue
		}
		next, err := sjson.SetBytes(line, field, Marker(len(v.Str)))
		if err != nil {
			continue
		}
		line = next
		changed = true
	}
	return line, changed
}

// Marker 脱敏后的占位文本
func Marker(n int) string {
	return fmt.Sprintf("%s: %d bytes]", trimmedPrefix, n)
}
