package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records every action attempt, accepted or rejected.
type AuditLog struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID    string         `gorm:"index:idx_audit_trace;size:36;not null" json:"trace_id"`
	Caller     string         `gorm:"index:idx_audit_caller;size:42" json:"caller"`
	WaifuID    *uint64        `json:"waifu_id"`
	Action     string         `gorm:"size:64;not null" json:"action"`
	Result     string         `gorm:"size:32;not null" json:"result"`
	Request    datatypes.JSON `json:"request"`
	Response   datatypes.JSON `json:"response"`
	Error      string         `gorm:"type:text" json:"error"`
	IP         string         `gorm:"size:45" json:"ip"`
	DurationMs int            `json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}
