package model

import "time"

// CommandRecord 控制命令执行记录
type CommandRecord struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	TraceID    string    `gorm:"size:36;index" json:"traceId"`
	Action     string    `gorm:"size:32;index" json:"action"`
	OK         bool      `json:"ok"`
	Error      string    `gorm:"type:text" json:"error,omitempty"`
	DurationMS int64     `json:"durationMs"`
	CreatedAt  time.Time `gorm:"index" json:"createdAt"`
}
