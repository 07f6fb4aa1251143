package services

import (
	"errors"
	"time"

	"taskflow/backend/internal/config"
	"taskflow/backend/internal/models"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

// Claims is what a verified access token carries. Validity is determined
// entirely by signature and expiry; nothing is looked up server-side.
type Claims struct {
	UserID   uuid.UUID
	Username string
	Role     string
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type AuthService interface {
	LoginUser(db *gorm.DB, username, password string) (*models.User, error)
	GenerateTokenPair(user *models.User) (*TokenPair, error)
	VerifyAccessToken(tokenStr string) (*Claims, error)
	RefreshTokenPair(db *gorm.DB, refreshToken string) (*TokenPair, error)
	ChangePassword(db *gorm.DB, userID uuid.UUID, currentPassword, newPassword string) error
}

type AuthServiceImpl struct {
	cfg config.AuthConfig
}

func NewAuthService(cfg config.AuthConfig) *AuthServiceImpl {
	return &AuthServiceImpl{cfg: cfg}
}

func (s *AuthServiceImpl) LoginUser(db *gorm.DB, username, password string) (*models.User, error) {
	var user models.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Unknown user and wrong password are indistinguishable.
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.CheckPassword(password) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := db.Model(&user).UpdateColumn("last_login_at", now).Error; err != nil {
		return nil, err
	}

	return &user, nil
}

func (s *AuthServiceImpl) GenerateTokenPair(user *models.User) (*TokenPair, error) {
	now := time.Now()

	accessClaims := jwt.MapClaims{
		"user_id":  user.ID.String(),
		"username": user.Username,
		"role":     user.Role,
		"iss":      s.cfg.Issuer,
		"iat":      now.Unix(),
		"exp":      now.Add(s.cfg.AccessTokenTTL).Unix(),
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).
		SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return nil, err
	}

	refreshClaims := jwt.MapClaims{
		"user_id": user.ID.String(),
		"typ":     "refresh",
		"iss":     s.cfg.Issuer,
		"iat":     now.Unix(),
		"exp":     now.Add(s.cfg.RefreshTokenTTL).Unix(),
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).
		SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

func (s *AuthServiceImpl) VerifyAccessToken(tokenStr string) (*Claims, error) {
	claims, err := s.parseToken(tokenStr)
	if err != nil {
		return nil, err
	}

	if typ, _ := claims["typ"].(string); typ == "refresh" {
		return nil, ErrMalformedCredential
	}

	userIDStr, _ := claims["user_id"].(string)
	userID, err := uuid.FromString(userIDStr)
	if err != nil {
		return nil, ErrMalformedCredential
	}

	username, _ := claims["username"].(string)
	role, _ := claims["role"].(string)
	if !models.ValidRole(role) {
		return nil, ErrMalformedCredential
	}

	return &Claims{UserID: userID, Username: username, Role: role}, nil
}

func (s *AuthServiceImpl) RefreshTokenPair(db *gorm.DB, refreshToken string) (*TokenPair, error) {
	claims, err := s.parseToken(refreshToken)
	if err != nil {
		return nil, err
	}

	if typ, _ := claims["typ"].(string); typ != "refresh" {
		return nil, ErrMalformedCredential
	}

	userIDStr, _ := claims["user_id"].(string)
	userID, err := uuid.FromString(userIDStr)
	if err != nil {
		return nil, ErrMalformedCredential
	}

	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	return s.GenerateTokenPair(&user)
}

func (s *AuthServiceImpl) ChangePassword(db *gorm.DB, userID uuid.UUID, currentPassword, newPassword string) error {
	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if !user.CheckPassword(currentPassword) {
		return ErrInvalidCredentials
	}
	if err := user.SetPassword(newPassword, s.cfg.BCryptCost); err != nil {
		return err
	}
	return db.Model(&user).UpdateColumn("password", user.Password).Error
}

func (s *AuthServiceImpl) parseToken(tokenStr string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredCredential
		}
		return nil, ErrMalformedCredential
	}
	if !token.Valid {
		return nil, ErrMalformedCredential
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrMalformedCredential
	}

	if iss, _ := claims["iss"].(string); iss != s.cfg.Issuer {
		return nil, ErrMalformedCredential
	}

	return claims, nil
}
