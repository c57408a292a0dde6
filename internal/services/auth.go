package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"studyflow/internal/middleware"
	"studyflow/internal/models"
)

const (
	refreshTokenTTL = 7 * 24 * time.Hour
	bcryptCost      = 12
)

type userStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateLastLogin(ctx context.Context, userID uuid.UUID) error
}

type AuthService struct {
	userRepo   userStore
	redis      *redis.Client
	jwt        *middleware.JWTAuth
	bcryptCost int
}

func NewAuthService(userRepo userStore, redisClient *redis.Client, jwt *middleware.JWTAuth) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		redis:      redisClient,
		jwt:        jwt,
		bcryptCost: bcryptCost,
	}
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, *models.AuthTokens, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	// Validate all fields at once
	fieldErrors := make(map[string]string)

	if strings.TrimSpace(req.FullName) == "" {
		fieldErrors["full_name"] = "Full name is required"
	}
	if !emailRegex.MatchString(req.Email) {
		fieldErrors["email"] = "Invalid email format"
	}
	if err := validatePassword(req.Password); err != nil {
		fieldErrors["password"] = err.Error()
	}

	if len(fieldErrors) > 0 {
		return nil, nil, &ValidationError{Fields: fieldErrors}
	}

	// Check uniqueness
	_, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err == nil {
		return nil, nil, &ConflictError{Message: "Email already in use"}
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(req.FullName),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, nil, err
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, tokens, nil
}

func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthTokens, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &UnauthorizedError{Message: "Invalid email or password"}
		}
		return nil, err
	}

	if !user.IsActive {
		return nil, &UnauthorizedError{Message: "Account is deactivated"}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, &UnauthorizedError{Message: "Invalid email or password"}
	}

	s.userRepo.UpdateLastLogin(ctx, user.ID)

	return s.issueTokens(ctx, user)
}

func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*models.AuthTokens, error) {
	// GETDEL claims the token atomically, so concurrent refreshes with the
	// same token cannot both rotate it.
	userIDStr, err := s.redis.GetDel(ctx, "refresh:"+refreshToken).Result()
	if errors.Is(err, redis.Nil) {
		return nil, &UnauthorizedError{Message: "Invalid or expired refresh token. Please log in again."}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh token: %w", err)
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID: %w", err)
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !user.IsActive {
		return nil, &UnauthorizedError{Message: "Account is deactivated"}
	}

	return s.issueTokens(ctx, user)
}

func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.redis.Del(ctx, "refresh:"+refreshToken).Err()
}

func (s *AuthService) issueTokens(ctx context.Context, user *models.User) (*models.AuthTokens, error) {
	accessToken, err := s.jwt.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := generateToken(64)
	if err != nil {
		return nil, err
	}

	err = s.redis.Set(ctx, "refresh:"+refreshToken, user.ID.String(), refreshTokenTTL).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &models.AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(middleware.AccessTokenTTL / time.Second),
	}, nil
}

func generateToken(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func validatePassword(pw string) error {
	if len(pw) < 8 {
		return fmt.Errorf("Password must be at least 8 characters")
	}
	hasNumber := false
	for _, ch := range pw {
		if unicode.IsDigit(ch) {
			hasNumber = true
			break
		}
	}
	if !hasNumber {
		return fmt.Errorf("Password must contain at least one number")
	}
	return nil
}

// Custom errors
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }
