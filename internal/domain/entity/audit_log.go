package entity

import (
	"time"

	"gorm.io/datatypes"
)

// AuditStatus 审计状态
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailed  AuditStatus = "failed"
)

// AuditLogEntry 供应商调用审计记录，只追加
type AuditLogEntry struct {
	ID              string         `json:"id" gorm:"type:uuid;primaryKey"`
	ActorID         string         `json:"actor_id,omitempty" gorm:"type:varchar(64);index"`
	Kind            GenerationKind `json:"kind" gorm:"type:varchar(32);not null"`
	Provider        string         `json:"provider" gorm:"type:varchar(32);not null"`
	Model           string         `json:"model" gorm:"type:varchar(128);not null"`
	PromptSummary   string         `json:"prompt_summary" gorm:"type:text"`
	ResponseSummary string         `json:"response_summary" gorm:"type:text"`
	InputTokens     int            `json:"input_tokens" gorm:"not null;default:0"`
	OutputTokens    int            `json:"output_tokens" gorm:"not null;default:0"`
	Cost            float64        `json:"cost" gorm:"not null;default:0"`
	Status          AuditStatus    `json:"status" gorm:"type:varchar(16);not null;index"`
	ErrorMessage    string         `json:"error_message,omitempty" gorm:"type:text"`
	Metadata        datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb"`
	LatencyMs       int64          `json:"latency_ms" gorm:"not null;default:0"`
	CreatedAt       time.Time      `json:"created_at" gorm:"autoCreateTime;index"`
}

func (AuditLogEntry) TableName() string {
	return "generation_audit_logs"
}
