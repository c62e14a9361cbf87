package dto

import (
	"time"

	"clinic-auth-service/internal/core/domain"
)

// RegisterRequest is the request body for user registration.
type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email,max=150"`
	Password  string `json:"password" binding:"required,min=8,max=128" sanitize:"-"`
	FirstName string `json:"nombre" binding:"required,min=1,max=100"`
	LastName  string `json:"apellido" binding:"required,min=1,max=100"`
	Role      string `json:"rol" binding:"required,oneof=OBSTETRA AUDITOR ADMIN"`
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required" sanitize:"-"`
}

// RefreshRequest is the optional request body for token refresh; the
// refresh token normally travels in the cookie.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// UserResponse is the response body for a registered user.
type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"nombre"`
	LastName  string `json:"apellido"`
	Role      string `json:"rol"`
	CreatedAt string `json:"created_at"`
}

// NewUserResponse maps a domain user.
func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID.String(),
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// TokenResponse is the response body for login/refresh. Only the access
// token travels in the body; the refresh token is cookie-only.
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresAt   int64  `json:"expiresAt"` // Unix timestamp
}

// AuditRecordResponse is one row of the audit query response.
type AuditRecordResponse struct {
	ID            string  `json:"id"`
	EventID       string  `json:"eventId"`
	OccurredOn    string  `json:"occurredOn"`
	EventType     string  `json:"eventType"`
	UserID        string  `json:"userId"`
	UserEmail     string  `json:"userEmail"`
	Action        string  `json:"action"`
	ResourceType  string  `json:"resourceType"`
	ResourceID    *string `json:"resourceId,omitempty"`
	PreviousValue *string `json:"previousValue,omitempty"`
	NewValue      *string `json:"newValue,omitempty"`
	SourceIP      string  `json:"sourceIp,omitempty"`
	SourceService string  `json:"sourceService"`
	ReceivedAt    string  `json:"receivedAt"`
}

// NewAuditRecordResponse maps a domain audit record.
func NewAuditRecordResponse(r *domain.AuditRecord) AuditRecordResponse {
	resp := AuditRecordResponse{
		ID:            r.ID.String(),
		EventID:       r.EventID.String(),
		OccurredOn:    r.OccurredOn.UTC().Format(time.RFC3339Nano),
		EventType:     r.EventType,
		UserID:        r.UserID.String(),
		UserEmail:     r.UserEmail,
		Action:        r.Action,
		ResourceType:  r.ResourceType,
		PreviousValue: r.PreviousValue,
		NewValue:      r.NewValue,
		SourceIP:      r.SourceIP,
		SourceService: r.SourceService,
		ReceivedAt:    r.ReceivedAt.UTC().Format(time.RFC3339Nano),
	}
	if r.ResourceID != nil {
		s := r.ResourceID.String()
		resp.ResourceID = &s
	}
	return resp
}

// AuditPageResponse wraps a paginated audit record list.
type AuditPageResponse struct {
	Items      []AuditRecordResponse `json:"items"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}
