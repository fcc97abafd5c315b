// Package domain contains the anomaly trail written when inbound billing
// events cannot be applied: conflicts, id mismatches, bad signatures. The
// rows exist for manual review, never for control flow.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Kind string

const (
	KindConflict         Kind = "conflict"
	KindMismatch         Kind = "mismatch"
	KindInvalidSignature Kind = "invalid_signature"
	KindUnknownStatus    Kind = "unknown_status"
)

type AuditLog struct {
	ID        snowflake.ID   `gorm:"primaryKey"`
	Kind      Kind           `gorm:"type:text;not null;index"`
	AccountID snowflake.ID   `gorm:"index"`
	EventID   string         `gorm:"type:text"`
	Detail    string         `gorm:"type:text;not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

type Entry struct {
	Kind      Kind
	AccountID snowflake.ID
	EventID   string
	Detail    string
	// Payload is masked before persistence; pass the raw event body.
	Payload map[string]any
}

type Service interface {
	// Record never fails the caller: persistence errors are logged and
	// swallowed so an audit outage cannot block reconciliation.
	Record(ctx context.Context, entry Entry)
	ListRecent(ctx context.Context, limit int) ([]AuditLog, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	ListRecent(ctx context.Context, db *gorm.DB, limit int) ([]AuditLog, error)
}

var ErrInvalidKind = errors.New("invalid_audit_kind")
