package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"taskflow/backend/internal/handlers"
	"taskflow/backend/internal/models"
	"taskflow/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type MockAuthService struct {
	user     *models.User
	loginErr error
}

func (m *MockAuthService) LoginUser(db *gorm.DB, username, password string) (*models.User, error) {
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	return m.user, nil
}

func (m *MockAuthService) GenerateTokenPair(user *models.User) (*services.TokenPair, error) {
	return &services.TokenPair{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		TokenType:    "Bearer",
		ExpiresIn:    3600,
	}, nil
}

func (m *MockAuthService) VerifyAccessToken(tokenStr string) (*services.Claims, error) {
	if tokenStr != "access-token" {
		return nil, services.ErrMalformedCredential
	}
	return &services.Claims{UserID: m.user.ID, Username: m.user.Username, Role: m.user.Role}, nil
}

func (m *MockAuthService) RefreshTokenPair(db *gorm.DB, refreshToken string) (*services.TokenPair, error) {
	if refreshToken != "refresh-token" {
		return nil, services.ErrMalformedCredential
	}
	return m.GenerateTokenPair(m.user)
}

func (m *MockAuthService) ChangePassword(db *gorm.DB, userID uuid.UUID, currentPassword, newPassword string) error {
	if currentPassword != "secret123" {
		return services.ErrInvalidCredentials
	}
	return nil
}

type MockUserService struct {
	user        *models.User
	registerErr error
}

func (m *MockUserService) RegisterUser(db *gorm.DB, req services.RegistrationRequest, bcryptCost int) (*models.User, error) {
	if m.registerErr != nil {
		return nil, m.registerErr
	}
	return &models.User{ID: uuid.Must(uuid.NewV4()), Username: req.Username, Email: req.Email}, nil
}

func (m *MockUserService) GetUser(db *gorm.DB, id uuid.UUID) (*models.User, error) {
	if m.user == nil || m.user.ID != id {
		return nil, services.ErrNotFound
	}
	return m.user, nil
}

func (m *MockUserService) GetUserByUsername(db *gorm.DB, username string) (*models.User, error) {
	if m.user == nil || m.user.Username != username {
		return nil, services.ErrNotFound
	}
	return m.user, nil
}

func (m *MockUserService) ListUsers(db *gorm.DB, filter services.UserFilter) ([]models.User, int64, error) {
	if m.user == nil {
		return nil, 0, nil
	}
	return []models.User{*m.user}, 1, nil
}

func (m *MockUserService) SetActive(db *gorm.DB, id uuid.UUID, active bool) (*models.User, error) {
	if m.user == nil || m.user.ID != id {
		return nil, services.ErrNotFound
	}
	m.user.IsActive = active
	return m.user, nil
}

func setupAuthHandler() (*MockAuthService, *gin.Engine) {
	gin.SetMode(gin.TestMode)
	user := &models.User{
		ID:       uuid.Must(uuid.NewV4()),
		Username: "alice",
		Role:     models.RoleMember,
		IsActive: true,
	}
	mockAuth := &MockAuthService{user: user}
	handler := handlers.NewAuthHandler(nil, mockAuth, &MockUserService{user: user})

	router := gin.New()
	router.POST("/auth/login", handler.Login)
	router.POST("/auth/refresh", handler.Refresh)
	return mockAuth, router
}

func TestLoginReturnsTokenPair(t *testing.T) {
	_, router := setupAuthHandler()

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "secret123"})
	req, _ := http.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["access_token"] != "access-token" || resp["token_type"] != "Bearer" {
		t.Errorf("unexpected token payload: %v", resp)
	}
	if _, ok := resp["user"]; !ok {
		t.Error("login response should include the user")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	mockAuth, router := setupAuthHandler()
	mockAuth.loginErr = services.ErrInvalidCredentials

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "wrong"})
	req, _ := http.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["error"] != "invalid_credentials" {
		t.Errorf("unexpected error kind %q", resp["error"])
	}
}

func TestLoginDisabledAccount(t *testing.T) {
	mockAuth, router := setupAuthHandler()
	mockAuth.loginErr = services.ErrAccountDisabled

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "secret123"})
	req, _ := http.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status %d, got %d", http.StatusForbidden, w.Code)
	}
}

func TestLoginMissingFields(t *testing.T) {
	_, router := setupAuthHandler()

	req, _ := http.NewRequest("POST", "/auth/login", bytes.NewBufferString(`{"username":"alice"}`))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestRefresh(t *testing.T) {
	_, router := setupAuthHandler()

	body, _ := json.Marshal(map[string]string{"refresh_token": "refresh-token"})
	req, _ := http.NewRequest("POST", "/auth/refresh", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
}

func TestRefreshWithBadToken(t *testing.T) {
	_, router := setupAuthHandler()

	body, _ := json.Marshal(map[string]string{"refresh_token": "garbage"})
	req, _ := http.NewRequest("POST", "/auth/refresh", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}
