package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/vharitonov/marketplace/internal/events"
	"github.com/vharitonov/marketplace/internal/hash"
	"github.com/vharitonov/marketplace/internal/logging"
	"github.com/vharitonov/marketplace/internal/models"
	"github.com/vharitonov/marketplace/internal/repo"
	"github.com/vharitonov/marketplace/internal/tokens"
)

type AuthService struct {
	Repo          *repo.GormRepo
	JWTSecret     []byte
	RefreshSecret []byte
	Events        *events.Producer
}

type SessionResult struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
}

func (s *AuthService) Register(ctx context.Context, username, email, password, role string) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	if username == "" || email == "" || password == "" {
		return nil, fmt.Errorf("username, email and password are required: %w", ErrValidation)
	}
	parsedRole, ok := models.ParseRole(role)
	if !ok {
		return nil, fmt.Errorf("role must be vendor or customer: %w", ErrValidation)
	}

	pwHash, err := hash.HashPassword(password)
	if err != nil {
		l.Error("register_failed", "reason", "cannot hash password", "error", err)
		return nil, err
	}

	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: pwHash,
		Role:         parsedRole,
	}
	if err := s.Repo.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, repo.ErrEmailTaken) {
			l.Warn("register_failed", "reason", "email taken")
			return nil, ErrEmailTaken
		}
		l.Error("register_failed", "reason", "db error", "error", err)
		return nil, err
	}

	if err := s.Events.Publish(ctx, events.TopicUsers, fmt.Sprint(user.ID), map[string]any{
		"type":     "user_registered",
		"user_id":  user.ID,
		"username": user.Username,
		"role":     user.Role,
	}); err != nil {
		l.Warn("event_publish_failed", "error", err)
	}

	l.Info("register_success", "user_id", user.ID, "role", user.Role)
	return &user, nil
}

// Login resolves the user by email and verifies the password. A missing
// account and a wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*SessionResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")

	user, err := s.Repo.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			l.Warn("login_failed", "reason", "unknown email")
			return nil, ErrInvalidCredentials
		}
		l.Error("login_failed", "reason", "db error", "error", err)
		return nil, err
	}
	if !hash.CheckPassword(user.PasswordHash, password) {
		l.Warn("login_failed", "reason", "wrong password")
		return nil, ErrInvalidCredentials
	}

	result, err := s.issueSession(ctx, user)
	if err != nil {
		l.Error("login_failed", "reason", "cannot issue session", "error", err)
		return nil, err
	}

	if err := s.Events.Publish(ctx, events.TopicUsers, fmt.Sprint(user.ID), map[string]any{
		"type":     "user_logged_in",
		"user_id":  user.ID,
		"username": user.Username,
	}); err != nil {
		l.Warn("event_publish_failed", "error", err)
	}

	l.Info("login_success", "user_id", user.ID)
	return result, nil
}

func (s *AuthService) Logout(ctx context.Context, rawRefresh string) error {
	if rawRefresh == "" {
		return nil
	}
	return s.Repo.RevokeRefreshToken(ctx, rawRefresh)
}

// Rotate exchanges a valid stored refresh token for a fresh token pair and
// revokes the old one.
func (s *AuthService) Rotate(ctx context.Context, rawRefresh string) (*SessionResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.rotate")

	claims, err := tokens.RefreshClaimsFromToken(rawRefresh, s.RefreshSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}

	stored, err := s.Repo.LookupRefreshToken(ctx, rawRefresh)
	if err != nil {
		if errors.Is(err, repo.ErrRefreshInvalid) {
			return nil, ErrSessionInvalid
		}
		return nil, err
	}
	if stored.JTI != claims.ID {
		return nil, ErrSessionInvalid
	}

	userID, err := claims.UserID()
	if err != nil {
		return nil, ErrSessionInvalid
	}
	user, err := s.Repo.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, err
	}

	if err := s.Repo.RevokeRefreshToken(ctx, rawRefresh); err != nil {
		l.Error("rotate_failed", "reason", "cannot revoke old token", "error", err)
		return nil, err
	}

	result, err := s.issueSession(ctx, user)
	if err != nil {
		l.Error("rotate_failed", "reason", "cannot issue session", "error", err)
		return nil, err
	}
	return result, nil
}

func (s *AuthService) Profile(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.Repo.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *AuthService) issueSession(ctx context.Context, user *models.User) (*SessionResult, error) {
	accessExp := time.Now().Add(tokens.AccessTTL)
	accessToken, err := tokens.SignAccess(user.ID, user.Role, s.JWTSecret, accessExp)
	if err != nil {
		return nil, err
	}

	refreshExp := time.Now().Add(tokens.RefreshTTL)
	refreshToken, jti, err := tokens.SignRefresh(user.ID, s.RefreshSecret, refreshExp)
	if err != nil {
		return nil, err
	}

	if err := s.Repo.SaveRefreshToken(ctx, refreshToken, user.ID, jti, refreshExp); err != nil {
		return nil, err
	}

	return &SessionResult{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}
