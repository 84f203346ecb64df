package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"apiharvest/internal/ctxkeys"
	"apiharvest/internal/logger"
	smodel "apiharvest/internal/storage/model"
	"apiharvest/pkg/model"
)

// Journal 基于 sqlite 的命令执行记录
type Journal struct {
	db  *gorm.DB
	now func() time.Time
}

// Open 打开（必要时创建）数据库并迁移表结构
func Open(dsn, prefix string, l logger.Logger) (*Journal, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite dsn is empty")
	}
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	if l == nil {
		l = logger.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         NewGormLogger(l).LogMode(gormlogger.Warn),
		NamingStrategy: schema.NamingStrategy{TablePrefix: prefix},
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.AutoMigrate(&smodel.CommandRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

// Log 记录一条命令结果
func (j *Journal) Log(ctx context.Context, action string, res model.Result, elapsed time.Duration) error {
	rec := &smodel.CommandRecord{
		ID:         uuid.NewString(),
		TraceID:    ctxkeys.TraceID(ctx),
		Action:     action,
		OK:         res.Error == "",
		Error:      res.Error,
		DurationMS: elapsed.Milliseconds(),
		CreatedAt:  j.now(),
	}
	return j.db.WithContext(ctx).Create(rec).Error
}

// Recent 按时间倒序返回最近的记录
func (j *Journal) Recent(ctx context.Context, limit int) ([]smodel.CommandRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var recs []smodel.CommandRecord
	err := j.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&recs).Error
	return recs, err
}

// Close 关闭底层连接
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
