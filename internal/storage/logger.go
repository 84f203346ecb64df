package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"apiharvest/internal/ctxkeys"
	"apiharvest/internal/logger"
)

const defaultSlowThreshold = 200 * time.Millisecond

// GormLogger 将 GORM 日志转发到应用日志，每行附带命令追踪 ID
type GormLogger struct {
	log           logger.Logger
	LogLevel      gormlogger.LogLevel
	SlowThreshold time.Duration
}

// NewGormLogger 默认只输出告警与错误
func NewGormLogger(l logger.Logger) *GormLogger {
	return &GormLogger{log: l, LogLevel: gormlogger.Warn, SlowThreshold: defaultSlowThreshold}
}

// LogMode 返回指定级别的副本
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.LogLevel = level
	return &next
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= gormlogger.Info {
		l.log.Info(msg, l.fields(ctx, "data", data)...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= gormlogger.Warn {
		l.log.Warn(msg, l.fields(ctx, "data", data)...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= gormlogger.Error {
		l.log.Error(msg, l.fields(ctx, "data", data)...)
	}
}

// Trace 记录 SQL；记录不存在不算错误
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	kv := l.fields(ctx, "sql", sql, "rows", rows, "elapsedMs", elapsed.Milliseconds())

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.LogLevel >= gormlogger.Error:
		l.log.Err(err, "SQL 执行失败", kv...)
	case l.SlowThreshold > 0 && elapsed > l.SlowThreshold && l.LogLevel >= gormlogger.Warn:
		l.log.Warn("慢 SQL", append(kv, "threshold", l.SlowThreshold.String())...)
	case l.LogLevel >= gormlogger.Info:
		l.log.Debug("SQL", kv...)
	}
}

func (l *GormLogger) fields(ctx context.Context, kv ...any) []any {
	return append([]any{"traceId", ctxkeys.TraceID(ctx)}, kv...)
}
