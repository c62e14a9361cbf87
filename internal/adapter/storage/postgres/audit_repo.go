package postgres

import (
	"context"
	"fmt"
	"strings"

	"clinic-auth-service/internal/core/domain"
	"clinic-auth-service/internal/core/ports"
)

// AuditRecordRepo implements ports.AuditRecordRepository over the
// append-only audit_records table. The unique index on event_id makes
// ingestion idempotent under at-least-once delivery.
type AuditRecordRepo struct {
	pool Pool
}

// NewAuditRecordRepo creates a new AuditRecordRepo.
func NewAuditRecordRepo(pool Pool) *AuditRecordRepo {
	return &AuditRecordRepo{pool: pool}
}

const auditColumns = `id, event_id, occurred_on, event_type, user_id, user_email, action,
		resource_type, resource_id, previous_value, new_value, source_ip, source_service, received_at`

// Create inserts a record, ignoring redeliveries of an already stored
// event_id. Returns whether a row was actually inserted.
func (r *AuditRecordRepo) Create(ctx context.Context, rec *domain.AuditRecord) (bool, error) {
	query := `INSERT INTO audit_records (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (event_id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query,
		rec.ID, rec.EventID, rec.OccurredOn, rec.EventType, rec.UserID, rec.UserEmail,
		rec.Action, rec.ResourceType, rec.ResourceID, rec.PreviousValue, rec.NewValue,
		rec.SourceIP, rec.SourceService, rec.ReceivedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert audit record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// List returns one page of records matching the AND-combined filter, plus
// the total match count. Order is occurred_on descending with event_id as
// tiebreak so pagination is stable.
func (r *AuditRecordRepo) List(ctx context.Context, filter ports.AuditFilter, page ports.PageRequest) ([]domain.AuditRecord, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIdx))
		args = append(args, *filter.UserID)
		argIdx++
	}
	if filter.ResourceID != nil {
		conditions = append(conditions, fmt.Sprintf("resource_id = $%d", argIdx))
		args = append(args, *filter.ResourceID)
		argIdx++
	}
	if filter.ResourceType != nil {
		conditions = append(conditions, fmt.Sprintf("resource_type = $%d", argIdx))
		args = append(args, *filter.ResourceType)
		argIdx++
	}
	if filter.Action != nil {
		conditions = append(conditions, fmt.Sprintf("action = $%d", argIdx))
		args = append(args, *filter.Action)
		argIdx++
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("occurred_on >= $%d", argIdx))
		args = append(args, *filter.From)
		argIdx++
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("occurred_on <= $%d", argIdx))
		args = append(args, *filter.To)
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Count total
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM audit_records %s", where)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit records: %w", err)
	}

	// Fetch page
	dataQuery := fmt.Sprintf(`SELECT `+auditColumns+`
		FROM audit_records %s ORDER BY occurred_on DESC, event_id DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, page.PageSize, page.Offset())

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		rec := domain.AuditRecord{}
		err := rows.Scan(
			&rec.ID, &rec.EventID, &rec.OccurredOn, &rec.EventType, &rec.UserID, &rec.UserEmail,
			&rec.Action, &rec.ResourceType, &rec.ResourceID, &rec.PreviousValue, &rec.NewValue,
			&rec.SourceIP, &rec.SourceService, &rec.ReceivedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan audit record row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate audit record rows: %w", err)
	}
	return records, total, nil
}
