package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gatehouse-idp/gatehouse/internal/interaction"
	"github.com/gatehouse-idp/gatehouse/internal/models"
	"github.com/gatehouse-idp/gatehouse/pkg/logger"
)

// AuditFilter narrows List results.
type AuditFilter struct {
	SubjectID string
	Action    string
	ClientID  string
	Limit     int
}

// AuditService appends interaction events to the audit log. It is the
// interaction layer's EventSink: Record never fails the calling flow.
type AuditService struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewAuditService constructs an AuditService.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db, log: logger.WithModule("audit")}, nil
}

// Record appends one interaction event. Persistence failures are logged and
// swallowed; the interaction outcome must not depend on the audit trail.
func (s *AuditService) Record(ctx context.Context, event interaction.Event) {
	entry := &models.AuditLog{
		SubjectID: event.SubjectID,
		Username:  event.Username,
		Action:    string(event.Kind),
		Result:    auditResult(event.Kind),
		ClientID:  event.ClientID,
		Reason:    event.Reason,
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		s.log.Error("audit append failed",
			zap.String("action", entry.Action),
			zap.String("subject_id", entry.SubjectID),
			zap.Error(err))
	}
}

// List returns audit entries matching the filter, newest first.
func (s *AuditService) List(ctx context.Context, filter AuditFilter) ([]models.AuditLog, error) {
	query := s.db.WithContext(ctx).Model(&models.AuditLog{}).Order("created_at DESC")

	if subject := strings.TrimSpace(filter.SubjectID); subject != "" {
		query = query.Where("subject_id = ?", subject)
	}
	if action := strings.TrimSpace(filter.Action); action != "" {
		query = query.Where("action = ?", action)
	}
	if clientID := strings.TrimSpace(filter.ClientID); clientID != "" {
		query = query.Where("client_id = ?", clientID)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query = query.Limit(limit)

	var entries []models.AuditLog
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("audit service: list: %w", err)
	}
	return entries, nil
}

// CleanupOlderThan removes audit entries created before the cutoff.
func (s *AuditService) CleanupOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func auditResult(kind interaction.EventKind) string {
	switch kind {
	case interaction.EventLoginSuccess, interaction.EventLogoutSuccess:
		return "success"
	case interaction.EventLoginFailure:
		return "failure"
	case interaction.EventAuthorizationDenied:
		return "denied"
	default:
		return "unknown"
	}
}
