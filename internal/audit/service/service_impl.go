package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/listingcraft/listingcraft/internal/audit/domain"
	"github.com/listingcraft/listingcraft/internal/audit/masking"
	"github.com/listingcraft/listingcraft/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Record implements domain.Service.
func (s *Service) Record(ctx context.Context, entry auditdomain.Entry) {
	detail := strings.TrimSpace(entry.Detail)
	if detail == "" {
		detail = string(entry.Kind)
	}

	row := &auditdomain.AuditLog{
		ID:        s.genID.Generate(),
		Kind:      entry.Kind,
		AccountID: entry.AccountID,
		EventID:   strings.TrimSpace(entry.EventID),
		Detail:    detail,
		CreatedAt: s.clock.Now(),
	}

	if masked := masking.MaskJSON(entry.Payload); masked != nil {
		if raw, err := json.Marshal(masked); err == nil {
			row.Payload = datatypes.JSON(raw)
		}
	}

	if err := s.repo.Insert(ctx, s.db, row); err != nil {
		s.log.Warn("audit write failed",
			zap.String("kind", string(entry.Kind)),
			zap.String("event_id", row.EventID),
			zap.Error(err),
		)
	}
}

// ListRecent implements domain.Service.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]auditdomain.AuditLog, error) {
	return s.repo.ListRecent(ctx, s.db, limit)
}
