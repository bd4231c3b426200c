package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"fscabinet/server/internal/models"
)

const tokenIssuer = "fscabinet"

// StaffClaims - полезная нагрузка JWT сотрудника
type StaffClaims struct {
	StaffID     string `json:"staff_id"`
	Username    string `json:"username"`
	IsSuperuser bool   `json:"is_superuser"`
	jwt.RegisteredClaims
}

// LoginRequest - вход сотрудника
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse - токен и данные сотрудника
type LoginResponse struct {
	Token     string                 `json:"token"`
	ExpiresAt int64                  `json:"expires_at"`
	Staff     map[string]interface{} `json:"staff"`
}

// CreateStaffRequest - новый сотрудник
type CreateStaffRequest struct {
	Username    string `json:"username" binding:"required,max=150"`
	Password    string `json:"password" binding:"required,min=8"`
	Email       string `json:"email" binding:"omitempty,email"`
	IsSuperuser bool   `json:"is_superuser"`
}

// UpdateStaffRequest - изменение сотрудника (nil - поле не меняется)
type UpdateStaffRequest struct {
	Email       *string `json:"email" binding:"omitempty,email"`
	Password    *string `json:"password" binding:"omitempty,min=8"`
	IsActive    *bool   `json:"is_active"`
	IsSuperuser *bool   `json:"is_superuser"`
}

// AuthService проверяет пароли сотрудников и выдает JWT
type AuthService struct {
	db     *gorm.DB
	secret []byte
	ttl    time.Duration
	clock  Clock
}

// NewAuthService создает сервис авторизации
func NewAuthService(db *gorm.DB, secret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &AuthService{db: db, secret: []byte(secret), ttl: ttl, clock: time.Now}
}

// SetClock подменяет источник времени
func (s *AuthService) SetClock(c Clock) {
	s.clock = c
}

// Login проверяет логин/пароль и выдает токен
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	db := s.db.WithContext(ctx)

	var staff models.Staff
	if err := db.Where("username = ? AND is_active = ?", req.Username, true).First(&staff).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load staff: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(staff.PasswordHash), []byte(req.Password)); err != nil {
		log.Warn().Str("username", req.Username).Msg("⚠️ Неудачная попытка входа")
		return nil, ErrInvalidCredentials
	}

	now := s.clock()
	staff.LastLoginAt = &now
	if err := db.Model(&staff).Update("last_login_at", now).Error; err != nil {
		log.Warn().Err(err).Msg("⚠️ Не удалось обновить время входа")
	}

	token, expiresAt, err := s.IssueToken(&staff)
	if err != nil {
		return nil, err
	}

	log.Info().Str("username", staff.Username).Msg("🔐 Сотрудник вошел")
	return &LoginResponse{Token: token, ExpiresAt: expiresAt.Unix(), Staff: staff.ToMap()}, nil
}

// IssueToken подписывает JWT для сотрудника
func (s *AuthService) IssueToken(staff *models.Staff) (string, time.Time, error) {
	now := s.clock()
	expiresAt := now.Add(s.ttl)
	claims := &StaffClaims{
		StaffID:     staff.ID,
		Username:    staff.Username,
		IsSuperuser: staff.IsSuperuser,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   staff.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expiresAt, nil
}

// ParseToken проверяет подпись и срок токена
func (s *AuthService) ParseToken(tokenString string) (*StaffClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &StaffClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(s.clock))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*StaffClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// ActiveStaff возвращает активного сотрудника по id из токена
func (s *AuthService) ActiveStaff(ctx context.Context, staffID string) (*models.Staff, error) {
	var staff models.Staff
	err := s.db.WithContext(ctx).Where("id = ? AND is_active = ?", staffID, true).First(&staff).Error
	if err != nil {
		return nil, notFoundOr(err, "failed to load staff: %w")
	}
	return &staff, nil
}

// ListStaff - все сотрудники
func (s *AuthService) ListStaff(ctx context.Context) ([]models.Staff, error) {
	var staff []models.Staff
	if err := s.db.WithContext(ctx).Order("username").Find(&staff).Error; err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	return staff, nil
}

// CreateStaff создает сотрудника с захешированным паролем
func (s *AuthService) CreateStaff(ctx context.Context, req CreateStaffRequest) (*models.Staff, error) {
	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&models.Staff{}).Where("username = ?", req.Username).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if count > 0 {
		return nil, NewFieldError("username", CodeInvalid, "A user with that username already exists.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	staff := models.Staff{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		IsActive:     true,
		IsSuperuser:  req.IsSuperuser,
	}
	if err := db.Create(&staff).Error; err != nil {
		return nil, fmt.Errorf("failed to create staff: %w", err)
	}
	log.Info().Str("username", staff.Username).Msg("✅ Сотрудник создан")
	return &staff, nil
}

// UpdateStaff изменяет сотрудника
func (s *AuthService) UpdateStaff(ctx context.Context, id string, req UpdateStaffRequest) (*models.Staff, error) {
	db := s.db.WithContext(ctx)

	var staff models.Staff
	if err := db.First(&staff, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "failed to load staff: %w")
	}

	updates := map[string]interface{}{}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.IsSuperuser != nil {
		updates["is_superuser"] = *req.IsSuperuser
	}
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		updates["password_hash"] = string(hash)
	}
	if len(updates) > 0 {
		if err := db.Model(&staff).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update staff: %w", err)
		}
	}
	if err := db.First(&staff, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to reload staff: %w", err)
	}
	return &staff, nil
}
