package service

import (
	"context"
	"fmt"
	"time"

	"clinic-auth-service/internal/core/domain"
	"clinic-auth-service/internal/core/ports"
	"clinic-auth-service/pkg/apperror"

	"github.com/rs/zerolog"
)

// AuditServiceImpl implements ports.AuditService.
type AuditServiceImpl struct {
	repo ports.AuditRecordRepository
	log  zerolog.Logger
}

// NewAuditService creates a new AuditServiceImpl.
func NewAuditService(repo ports.AuditRecordRepository, log zerolog.Logger) *AuditServiceImpl {
	return &AuditServiceImpl{repo: repo, log: log}
}

// Record projects an AuditableEvent into the ledger. Redelivered events
// collapse on the event_id uniqueness constraint; a persistence failure is
// returned to the caller so the delivery is not acknowledged.
func (s *AuditServiceImpl) Record(ctx context.Context, event domain.AuditableEvent) error {
	record := domain.RecordFromEvent(event, time.Now().UTC())

	inserted, err := s.repo.Create(ctx, record)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("persist audit record: %w", err))
	}

	if !inserted {
		s.log.Debug().
			Str("event_id", event.EventID.String()).
			Str("event_type", event.EventType).
			Msg("duplicate audit event ignored")
		return nil
	}

	s.log.Info().
		Str("event_type", event.EventType).
		Str("action", event.Action).
		Str("resource_type", event.ResourceType).
		Str("source", event.SourceService).
		Msg("audit record stored")
	return nil
}

// Query returns one page of records matching the filter, newest first.
func (s *AuditServiceImpl) Query(ctx context.Context, filter ports.AuditFilter, page ports.PageRequest) ([]domain.AuditRecord, int64, error) {
	if page.Page < 1 {
		page.Page = 1
	}
	if page.PageSize < 1 || page.PageSize > 200 {
		page.PageSize = 20
	}

	records, total, err := s.repo.List(ctx, filter, page)
	if err != nil {
		return nil, 0, apperror.ErrDatabaseError(fmt.Errorf("query audit records: %w", err))
	}
	return records, total, nil
}
