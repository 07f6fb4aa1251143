package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskflow/backend/internal/config"
	"taskflow/backend/internal/middleware"
	"taskflow/backend/internal/models"
	"taskflow/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"golang.org/x/crypto/bcrypt"
)

func testAuthService() services.AuthService {
	return services.NewAuthService(config.AuthConfig{
		JWTSecret:       "test-secret",
		Issuer:          "taskflow-backend",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
		BCryptCost:      bcrypt.MinCost,
	})
}

func protectedRouter(authService services.AuthService, roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	group := router.Group("", middleware.RequireAuth(authService))
	if len(roles) > 0 {
		group.Use(middleware.RequireRole(roles...))
	}
	group.GET("/protected", func(c *gin.Context) {
		caller, ok := middleware.CallerFromContext(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "no caller"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"caller_id": caller.ID.String(), "role": caller.Role})
	})
	return router
}

func tokenFor(t *testing.T, authService services.AuthService, role string) (string, uuid.UUID) {
	t.Helper()
	user := &models.User{
		ID:       uuid.Must(uuid.NewV4()),
		Username: "tester",
		Role:     role,
	}
	pair, err := authService.GenerateTokenPair(user)
	if err != nil {
		t.Fatalf("failed to generate token pair: %v", err)
	}
	return pair.AccessToken, user.ID
}

func TestRequireAuthNoToken(t *testing.T) {
	router := protectedRouter(testAuthService())

	req, _ := http.NewRequest("GET", "/protected", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["error"] != "missing_token" {
		t.Errorf("Expected missing_token, got %q", resp["error"])
	}
}

func TestRequireAuthInvalidToken(t *testing.T) {
	router := protectedRouter(testAuthService())

	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["error"] != "invalid_token" {
		t.Errorf("Expected invalid_token, got %q", resp["error"])
	}
}

func TestRequireAuthExpiredToken(t *testing.T) {
	expiredService := services.NewAuthService(config.AuthConfig{
		JWTSecret:      "test-secret",
		Issuer:         "taskflow-backend",
		AccessTokenTTL: -time.Minute,
	})
	token, _ := tokenFor(t, expiredService, models.RoleMember)

	router := protectedRouter(testAuthService())
	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["error"] != "expired_token" {
		t.Errorf("Expected expired_token, got %q", resp["error"])
	}
}

func TestRequireAuthValidToken(t *testing.T) {
	authService := testAuthService()
	token, userID := tokenFor(t, authService, models.RoleMember)

	router := protectedRouter(authService)
	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["caller_id"] != userID.String() {
		t.Errorf("Expected caller id %s, got %s", userID, resp["caller_id"])
	}
}

func TestRequireRoleBlocksMember(t *testing.T) {
	authService := testAuthService()
	token, _ := tokenFor(t, authService, models.RoleMember)

	router := protectedRouter(authService, models.RoleAdmin)
	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status %d, got %d", http.StatusForbidden, w.Code)
	}
}

func TestRequireRoleAdminPasses(t *testing.T) {
	authService := testAuthService()
	token, _ := tokenFor(t, authService, models.RoleAdmin)

	router := protectedRouter(authService, models.RoleAdmin)
	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
}
