package handler

import (
	"strconv"
	"time"

	"clinic-auth-service/internal/adapter/http/dto"
	"clinic-auth-service/internal/core/ports"
	"clinic-auth-service/pkg/apperror"
	"clinic-auth-service/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditHandler handles audit trail query endpoints.
type AuditHandler struct {
	auditSvc ports.AuditService
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(auditSvc ports.AuditService) *AuditHandler {
	return &AuditHandler{auditSvc: auditSvc}
}

// Query handles GET /api/v1/audit. All filters are optional and combined
// with AND; desde/hasta are inclusive RFC3339 bounds on occurredOn.
func (h *AuditHandler) Query(c *gin.Context) {
	filter, err := parseAuditFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	page := ports.PageRequest{Page: 1, PageSize: 20}
	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			response.Error(c, apperror.Validation("page must be a positive integer"))
			return
		}
		page.Page = n
	}
	if v := c.Query("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			response.Error(c, apperror.Validation("page_size must be a positive integer"))
			return
		}
		page.PageSize = n
	}

	records, total, err := h.auditSvc.Query(c.Request.Context(), filter, page)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.AuditRecordResponse, 0, len(records))
	for i := range records {
		items = append(items, dto.NewAuditRecordResponse(&records[i]))
	}

	totalPages := 0
	if page.PageSize > 0 {
		totalPages = int((total + int64(page.PageSize) - 1) / int64(page.PageSize))
	}

	response.OK(c, dto.AuditPageResponse{
		Items:      items,
		Total:      total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: totalPages,
	})
}

func parseAuditFilter(c *gin.Context) (ports.AuditFilter, error) {
	var filter ports.AuditFilter

	if v := c.Query("userId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, apperror.Validation("userId must be a valid UUID")
		}
		filter.UserID = &id
	}
	if v := c.Query("resourceId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, apperror.Validation("resourceId must be a valid UUID")
		}
		filter.ResourceID = &id
	}
	if v := c.Query("resourceType"); v != "" {
		filter.ResourceType = &v
	}
	if v := c.Query("action"); v != "" {
		filter.Action = &v
	}
	if v := c.Query("desde"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, apperror.Validation("desde must be an RFC3339 timestamp")
		}
		filter.From = &t
	}
	if v := c.Query("hasta"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, apperror.Validation("hasta must be an RFC3339 timestamp")
		}
		filter.To = &t
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return filter, apperror.Validation("hasta must not precede desde")
	}
	return filter, nil
}
