package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	httpHandler "clinic-auth-service/internal/adapter/http/handler"
	"clinic-auth-service/internal/service"
	"clinic-auth-service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testApp builds the full application stack on in-memory storage and an
// in-memory event bus standing in for the broker. It exercises the real
// HTTP layer, middleware, handlers and services end-to-end.

type testApp struct {
	server    *httptest.Server
	userRepo  *inMemoryUserRepo
	tokenRepo *inMemoryRefreshTokenRepo
	auditRepo *inMemoryAuditRepo
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	userRepo := newInMemoryUserRepo()
	tokenRepo := newInMemoryRefreshTokenRepo()
	auditRepo := newInMemoryAuditRepo()
	transactor := newLockingTransactor()

	log := logger.New("error", false)

	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService("test-jwt-secret-key-32bytes!!", 15*time.Minute, "test-issuer")

	auditSvc := service.NewAuditService(auditRepo, log)
	bus := newInMemoryEventBus(auditSvc)
	authSvc := service.NewAuthService(userRepo, tokenRepo, transactor, hashSvc, tokenSvc, bus, time.Second, log)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:  authSvc,
		AuditSvc: auditSvc,
		TokenSvc: tokenSvc,
		Logger:   log,
	})

	return &testApp{
		server:    httptest.NewServer(router),
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		auditRepo: auditRepo,
	}
}

func (a *testApp) close() {
	a.server.Close()
}

func (a *testApp) register(t *testing.T, email, password, role string) {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":%q,"nombre":"Ana","apellido":"Torres","rol":%q}`, email, password, role)
	resp, err := http.Post(a.server.URL+"/api/v1/auth/register", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

// login returns the access token and the refresh cookie.
func (a *testApp) login(t *testing.T, email, password string) (string, *http.Cookie) {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":%q}`, email, password)
	resp, err := http.Post(a.server.URL+"/api/v1/auth/login", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data struct {
			AccessToken string `json:"accessToken"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))

	var refreshCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "refreshToken" {
			refreshCookie = c
		}
	}
	require.NotNil(t, refreshCookie, "login must set the refresh cookie")
	return result.Data.AccessToken, refreshCookie
}

// --- Integration Tests ---

func TestIntegration_HealthCheck(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp, err := http.Get(app.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestIntegration_RegisterLoginRefresh(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	app.register(t, "ana@clinic.pe", "StrongPass123!", "OBSTETRA")

	accessToken, refreshCookie := app.login(t, "ana@clinic.pe", "StrongPass123!")
	assert.NotEmpty(t, accessToken)
	assert.True(t, refreshCookie.HttpOnly)
	assert.Equal(t, "/api/v1/auth/refresh", refreshCookie.Path)

	// Refresh with the cookie: new pair, old token revoked.
	req, _ := http.NewRequest(http.MethodPost, app.server.URL+"/api/v1/auth/refresh", nil)
	req.AddCookie(refreshCookie)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var newCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "refreshToken" {
			newCookie = c
		}
	}
	require.NotNil(t, newCookie)
	assert.NotEqual(t, refreshCookie.Value, newCookie.Value, "refresh must rotate the token value")

	// The old token is now revoked: replaying it fails.
	replay, _ := http.NewRequest(http.MethodPost, app.server.URL+"/api/v1/auth/refresh", nil)
	replay.AddCookie(refreshCookie)
	resp2, err := http.DefaultClient.Do(replay)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)

	// The rotated token still works.
	again, _ := http.NewRequest(http.MethodPost, app.server.URL+"/api/v1/auth/refresh", nil)
	again.AddCookie(&http.Cookie{Name: "refreshToken", Value: newCookie.Value})
	resp3, err := http.DefaultClient.Do(again)
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusOK, resp3.StatusCode)
}

func TestIntegration_RegisterDuplicateEmail(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	app.register(t, "dup@clinic.pe", "StrongPass123!", "OBSTETRA")

	body := `{"email":"dup@clinic.pe","password":"OtherPass456!","nombre":"Eva","apellido":"Rios","rol":"AUDITOR"}`
	resp, err := http.Post(app.server.URL+"/api/v1/auth/register", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestIntegration_LoginWrongPassword(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	app.register(t, "ana@clinic.pe", "StrongPass123!", "OBSTETRA")

	body := `{"email":"ana@clinic.pe","password":"WrongPass!"}`
	resp, err := http.Post(app.server.URL+"/api/v1/auth/login", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var errBody map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
	assert.Equal(t, "AUTH_001", errBody["error_code"])
}

func TestIntegration_AuditTrail(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	app.register(t, "ana@clinic.pe", "StrongPass123!", "OBSTETRA")
	app.register(t, "auditor@clinic.pe", "StrongPass123!", "AUDITOR")
	app.login(t, "ana@clinic.pe", "StrongPass123!")
	auditorToken, _ := app.login(t, "auditor@clinic.pe", "StrongPass123!")

	// Two registrations and two logins flowed through the bus.
	req, _ := http.NewRequest(http.MethodGet, app.server.URL+"/api/v1/audit", nil)
	req.Header.Set("Authorization", "Bearer "+auditorToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data struct {
			Items []struct {
				EventType string `json:"eventType"`
				UserEmail string `json:"userEmail"`
				Action    string `json:"action"`
			} `json:"items"`
			Total int64 `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.EqualValues(t, 4, result.Data.Total)

	// Refreshing is deliberately silent: the ledger must not grow.
	_, cookie := app.login(t, "ana@clinic.pe", "StrongPass123!")
	refresh, _ := http.NewRequest(http.MethodPost, app.server.URL+"/api/v1/auth/refresh", nil)
	refresh.AddCookie(cookie)
	r2, err := http.DefaultClient.Do(refresh)
	require.NoError(t, err)
	r2.Body.Close()
	require.Equal(t, http.StatusOK, r2.StatusCode)

	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	var after struct {
		Data struct {
			Total int64 `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&after))
	assert.EqualValues(t, 5, after.Data.Total, "third login adds one event, refresh adds none")
}

func TestIntegration_AuditFilterByAction(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	app.register(t, "ana@clinic.pe", "StrongPass123!", "OBSTETRA")
	app.register(t, "auditor@clinic.pe", "StrongPass123!", "AUDITOR")
	auditorToken, _ := app.login(t, "auditor@clinic.pe", "StrongPass123!")

	req, _ := http.NewRequest(http.MethodGet, app.server.URL+"/api/v1/audit?action=CREATE", nil)
	req.Header.Set("Authorization", "Bearer "+auditorToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data struct {
			Items []struct {
				Action    string `json:"action"`
				EventType string `json:"eventType"`
			} `json:"items"`
			Total int64 `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.EqualValues(t, 2, result.Data.Total)
	for _, item := range result.Data.Items {
		assert.Equal(t, "CREATE", item.Action)
		assert.Equal(t, "identity.user.created", item.EventType)
	}
}

func TestIntegration_AuditForbiddenForObstetra(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	app.register(t, "ana@clinic.pe", "StrongPass123!", "OBSTETRA")
	token, _ := app.login(t, "ana@clinic.pe", "StrongPass123!")

	req, _ := http.NewRequest(http.MethodGet, app.server.URL+"/api/v1/audit", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestIntegration_AuditRequiresToken(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp, err := http.Get(app.server.URL + "/api/v1/audit")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
