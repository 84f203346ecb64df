package store

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"sync"
)

// CaptureStore 按应用、按会话的追加式捕获日志
type CaptureStore struct {
	layout *Layout
	mu     sync.Mutex
}

// NewCaptureStore 创建捕获日志存储
func NewCaptureStore(l *Layout) *CaptureStore {
	return &CaptureStore{layout: l}
}

// Append 以追加模式写入一行，每行一次 Write 调用
func (s *CaptureStore) Append(app, session string, raw []byte) error {
	line := bytes.TrimSpace(raw)
	if len(line) == 0 {
		return errors.New("empty capture")
	}
	if bytes.IndexByte(line, '\n') >= 0 {
		line = bytes.ReplaceAll(line, []byte("\n"), nil)
	}
	buf := make([]byte, 0, len(line)+1)
	buf = append(append(buf, line...), '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.layout.EnsureAppDirs(app); err != nil {
		return err
	}
	f, err := os.OpenFile(s.layout.CaptureFile(app, session), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ScanLines 逐行回调，不限制单行长度，空行跳过
func ScanLines(path string, fn func(line []byte)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 64*1024)
	for {
		line, err := r.ReadBytes('\n')
		if trimmed := bytes.TrimRight(line, "\r\n"); len(bytes.TrimSpace(trimmed)) > 0 {
			fn(trimmed)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
