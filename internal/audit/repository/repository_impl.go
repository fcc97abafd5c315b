package repository

import (
	"context"

	auditdomain "github.com/listingcraft/listingcraft/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() auditdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *auditdomain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO audit_logs (
			id, kind, account_id, event_id, detail, payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Kind,
		entry.AccountID,
		entry.EventID,
		entry.Detail,
		entry.Payload,
		entry.CreatedAt,
	).Error
}

func (r *repo) ListRecent(ctx context.Context, db *gorm.DB, limit int) ([]auditdomain.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []auditdomain.AuditLog
	err := db.WithContext(ctx).Raw(
		`SELECT id, kind, account_id, event_id, detail, payload, created_at
		 FROM audit_logs
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		limit,
	).Scan(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}
