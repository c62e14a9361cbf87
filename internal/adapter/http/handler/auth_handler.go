package handler

import (
	"net/http"

	"clinic-auth-service/internal/adapter/http/dto"
	"clinic-auth-service/internal/core/domain"
	"clinic-auth-service/internal/core/ports"
	"clinic-auth-service/pkg/apperror"
	"clinic-auth-service/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	refreshCookieName = "refreshToken"
	refreshCookiePath = "/api/v1/auth/refresh"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authSvc ports.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authSvc ports.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// Register handles POST /api/v1/auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	user, err := h.authSvc.Register(c.Request.Context(), ports.RegisterRequest{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      domain.Role(req.Role),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.NewUserResponse(user))
}

// Login handles POST /api/v1/auth/login. The access token is returned in
// the body; the refresh token only ever travels in an HttpOnly cookie
// scoped to the refresh path.
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	pair, err := h.authSvc.Login(c.Request.Context(), ports.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
		ClientIP: c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	setRefreshCookie(c, pair.RefreshToken)
	response.OK(c, dto.TokenResponse{
		AccessToken: pair.AccessToken,
		ExpiresAt:   pair.AccessExpiry.Unix(),
	})
}

// Refresh handles POST /api/v1/auth/refresh. The presented refresh token is
// taken from the cookie; a JSON body field is accepted as fallback for
// non-browser clients.
func (h *AuthHandler) Refresh(c *gin.Context) {
	presented, err := c.Cookie(refreshCookieName)
	if err != nil || presented == "" {
		var req dto.RefreshRequest
		if bindErr := c.ShouldBindJSON(&req); bindErr == nil {
			presented = req.RefreshToken
		}
	}
	if presented == "" {
		response.Error(c, apperror.ErrInvalidRefreshToken())
		return
	}

	pair, err := h.authSvc.Refresh(c.Request.Context(), presented)
	if err != nil {
		clearRefreshCookie(c)
		response.Error(c, err)
		return
	}

	setRefreshCookie(c, pair.RefreshToken)
	response.OK(c, dto.TokenResponse{
		AccessToken: pair.AccessToken,
		ExpiresAt:   pair.AccessExpiry.Unix(),
	})
}

func setRefreshCookie(c *gin.Context, value string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, value, int(domain.RefreshTokenTTL.Seconds()), refreshCookiePath, "", true, true)
}

func clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, "", -1, refreshCookiePath, "", true, true)
}
