package auth

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"license-server/internal/cache"
	"license-server/internal/database"
	"license-server/internal/logging"
)

// Service handles authentication operations
type Service struct {
	repo     *database.Repository
	sessions cache.SessionStore
	jwt      *JWTManager
	password *PasswordManager
	log      zerolog.Logger
}

// NewService creates a new authentication service
func NewService(repo *database.Repository, sessions cache.SessionStore, cfg Config) *Service {
	return &Service{
		repo:     repo,
		sessions: sessions,
		jwt:      NewJWTManager(cfg.JWTSecret, cfg.AccessTokenDuration, cfg.RefreshTokenDuration),
		password: NewPasswordManager(cfg.BcryptCost),
		log:      logging.Component("auth"),
	}
}

// GetJWTManager exposes the JWT manager for middleware wiring
func (s *Service) GetJWTManager() *JWTManager {
	return s.jwt
}

// Login verifies credentials, issues a token pair, and appends a login audit
// row. Failed attempts are not audited; only successful logins feed the
// dashboard's daily login count.
func (s *Service) Login(ctx context.Context, req LoginRequest, ipAddress, userAgent string) (*LoginResponse, error) {
	user, err := s.repo.GetUserByUsername(ctx, req.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil || !s.password.VerifyPassword(req.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountSuspended
	}

	accessToken, err := s.jwt.GenerateAccessToken(UserClaims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     string(user.Role),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.jwt.GenerateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	if err := s.sessions.SaveRefreshToken(ctx, refreshToken, user.ID, s.jwt.RefreshTokenDuration()); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	audit := &database.ActivityLog{
		Action:    database.ActionLogin,
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
	if err := s.repo.CreateActivityLog(ctx, audit); err != nil {
		// Login audit failures should not lock users out.
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to record login audit")
	}

	s.log.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("user logged in")

	return &LoginResponse{
		User: UserResponse{
			ID:       user.ID,
			Username: user.Username,
			Role:     user.Role,
			IsActive: user.IsActive,
		},
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwt.AccessTokenDuration().Seconds()),
	}, nil
}

// RefreshTokens rotates a refresh token and issues a new access token
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	userID, err := s.sessions.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if userID == "" {
		return nil, ErrInvalidToken
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, ErrInvalidToken
	}

	accessToken, err := s.jwt.GenerateAccessToken(UserClaims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     string(user.Role),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	newRefreshToken, err := s.jwt.GenerateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	if err := s.sessions.SaveRefreshToken(ctx, newRefreshToken, user.ID, s.jwt.RefreshTokenDuration()); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}
	if err := s.sessions.DeleteRefreshToken(ctx, refreshToken); err != nil {
		s.log.Warn().Err(err).Msg("failed to revoke rotated refresh token")
	}

	return &RefreshResponse{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		ExpiresIn:    int64(s.jwt.AccessTokenDuration().Seconds()),
	}, nil
}

// Logout revokes a refresh token
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if err := s.sessions.DeleteRefreshToken(ctx, refreshToken); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// ChangePassword verifies the current password and stores a new hash
func (s *Service) ChangePassword(ctx context.Context, userID string, req ChangePasswordRequest) error {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return ErrInvalidCredentials
	}
	if !s.password.VerifyPassword(req.CurrentPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	if err := s.password.ValidatePasswordStrength(req.NewPassword); err != nil {
		return AuthError{Code: ErrWeakPassword.Code, Message: err.Error()}
	}

	hash, err := s.password.HashPassword(req.NewPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.repo.UpdateUserPassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.log.Info().Str("user_id", userID).Msg("password changed")
	return nil
}

// HashPassword exposes password hashing for the user management handlers
func (s *Service) HashPassword(password string) (string, error) {
	if err := s.password.ValidatePasswordStrength(password); err != nil {
		return "", AuthError{Code: ErrWeakPassword.Code, Message: err.Error()}
	}
	return s.password.HashPassword(password)
}
