package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records tool invocations and administrative actions.
type AuditLog struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID    string         `gorm:"index:idx_audit_trace;size:64;not null" json:"trace_id"`
	ClientID   *int64         `gorm:"index:idx_audit_client" json:"client_id"`
	Username   string         `gorm:"size:32" json:"username"`
	Action     string         `gorm:"size:64;not null" json:"action"`
	Transport  string         `gorm:"size:8" json:"transport"` // rest | ws | admin
	Request    datatypes.JSON `json:"request"`
	Response   datatypes.JSON `json:"response"`
	Error      string         `gorm:"type:text" json:"error"`
	IP         string         `gorm:"size:45" json:"ip"`
	DurationMs int            `json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}
