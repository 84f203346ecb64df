package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 键值对风格的日志接口
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	Err(err error, msg string, kv ...any)
	With(kv ...any) Logger
}

// Options 日志输出配置
type Options struct {
	Level   string
	Writers []string // console / file
	File    string
}

type zeroLogger struct {
	l zerolog.Logger
}

// New 按配置创建 zerolog 实现
func New(opts Options) Logger {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer
	for _, w := range opts.Writers {
		switch w {
		case "console":
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime})
		case "file":
			if opts.File == "" {
				continue
			}
			_ = os.MkdirAll(filepath.Dir(opts.File), 0o755)
			writers = append(writers, &lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    20,
				MaxBackups: 5,
				MaxAge:     14,
				Compress:   true,
			})
		}
	}
	if len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime})
	}

	l := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp().Logger()
	return &zeroLogger{l: l}
}

// NewWriter 输出到指定 writer，测试中使用
func NewWriter(w io.Writer, level zerolog.Level) Logger {
	return &zeroLogger{l: zerolog.New(w).Level(level).With().Timestamp().Logger()}
}

func (z *zeroLogger) Debug(msg string, kv ...any) { z.l.Debug().Fields(kv).Msg(msg) }
func (z *zeroLogger) Info(msg string, kv ...any)  { z.l.Info().Fields(kv).Msg(msg) }
func (z *zeroLogger) Warn(msg string, kv ...any)  { z.l.Warn().Fields(kv).Msg(msg) }
func (z *zeroLogger) Error(msg string, kv ...any) { z.l.Error().Fields(kv).Msg(msg) }

func (z *zeroLogger) Err(err error, msg string, kv ...any) {
	z.l.Error().Err(err).Fields(kv).Msg(msg)
}

func (z *zeroLogger) With(kv ...any) Logger {
	return &zeroLogger{l: z.l.With().Fields(kv).Logger()}
}

type nop struct{}

// NewNop 丢弃所有日志
func NewNop() Logger { return nop{} }

func (nop) Debug(string, ...any)      {}
func (nop) Info(string, ...any)       {}
func (nop) Warn(string, ...any)       {}
func (nop) Error(string, ...any)      {}
func (nop) Err(error, string, ...any) {}
func (n nop) With(...any) Logger      { return n }
