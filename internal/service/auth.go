package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/brunogleite/cro-analyzer-backend/internal/auth"
	"github.com/brunogleite/cro-analyzer-backend/internal/models"
	"github.com/brunogleite/cro-analyzer-backend/internal/repository"
	"github.com/brunogleite/cro-analyzer-backend/internal/store"
)

const minPasswordLen = 8

// AuthService handles registration, login, and token lifecycle.
type AuthService struct {
	users  *repository.Users
	signer *auth.Signer
	logger *zap.Logger
}

// NewAuthService wires the service to its repository and signer.
func NewAuthService(users *repository.Users, signer *auth.Signer, logger *zap.Logger) *AuthService {
	return &AuthService{users: users, signer: signer, logger: logger}
}

// RegisterInput carries a registration request.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Register creates a user account with the default role.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	}
	if len(in.Password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	user, err := s.users.Create(ctx, repository.CreateUserParams{
		Email:     email,
		Password:  in.Password,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Role:      models.RoleUser,
	})
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user registered", zap.Int64("user_id", user.ID), zap.String("email", user.Email))
	return user, nil
}

// LoginResult carries the issued token and the authenticated user.
type LoginResult struct {
	Token string
	User  *models.User
}

// Login verifies credentials, stamps the login time, and issues a token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}
	if !s.users.VerifyPassword(user, password) {
		return nil, ErrInvalidCredentials
	}
	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		// Login still succeeds; the stamp is best effort.
		s.logger.Warn("stamp last login", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	token, err := s.signer.Sign(user)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &LoginResult{Token: token, User: user}, nil
}

// VerifyToken validates a bearer token and re-confirms the referenced user
// still exists and is active, so deactivation immediately revokes
// outstanding tokens.
func (s *AuthService) VerifyToken(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.signer.Parse(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrInvalidToken
	}
	return user, nil
}

// Refresh reissues a token for a still-active user without re-checking
// credentials.
func (s *AuthService) Refresh(ctx context.Context, user *models.User) (string, error) {
	current, err := s.users.FindByID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("find user: %w", err)
	}
	if !current.IsActive {
		return "", ErrInvalidToken
	}
	token, err := s.signer.Sign(current)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// Profile returns the user's own record.
func (s *AuthService) Profile(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

// ChangePassword verifies the current password before storing a new hash.
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	if len(next) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("find user: %w", err)
	}
	if !s.users.VerifyPassword(user, current) {
		return ErrInvalidCredentials
	}
	if err := s.users.ChangePassword(ctx, userID, next); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	return nil
}

// ListUsers returns accounts matching the filter; the API layer restricts
// this to admins.
func (s *AuthService) ListUsers(ctx context.Context, filter repository.UserFilter) ([]*models.User, error) {
	users, err := s.users.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}
