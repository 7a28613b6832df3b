package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service errors.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserDisabled       = errors.New("user account is disabled")
	ErrAccountLocked      = errors.New("account temporarily locked")
	ErrUserExists         = errors.New("username or email already exists")
	ErrSetupComplete      = errors.New("setup already completed")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidRole        = errors.New("role must be admin, analyst or viewer")
	ErrLastAdmin          = errors.New("cannot remove the last enabled admin")
)

// Lockout policy.
const (
	maxFailedLogins = 5
	lockoutDuration = 15 * time.Minute
)

// TokenPair contains an access token and refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"` // access token TTL in seconds
}

// Service provides authentication business logic.
type Service struct {
	store  *UserStore
	tokens *TokenService
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates an auth Service.
func NewService(store *UserStore, tokens *TokenService, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		tokens: tokens,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Tokens returns the token service for middleware use.
func (s *Service) Tokens() *TokenService {
	return s.tokens
}

// Login authenticates a user and returns a token pair. After maxFailedLogins
// consecutive bad passwords the account is locked for lockoutDuration.
func (s *Service) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	now := s.now()
	if user.Disabled {
		return nil, ErrUserDisabled
	}
	if user.Locked(now) {
		return nil, ErrAccountLocked
	}

	if !CheckPassword(user.PasswordHash, password) {
		s.recordFailure(ctx, user, now)
		return nil, ErrInvalidCredentials
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to record last login", zap.String("user_id", user.ID), zap.Error(err))
	}
	s.logger.Info("user logged in", zap.String("username", username), zap.String("user_id", user.ID))
	return pair, nil
}

func (s *Service) recordFailure(ctx context.Context, user *User, now time.Time) {
	attempts, err := s.store.RecordFailedLogin(ctx, user.ID)
	if err != nil {
		s.logger.Warn("failed to record failed login", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	if attempts < maxFailedLogins {
		return
	}
	until := now.Add(lockoutDuration)
	if err := s.store.LockAccount(ctx, user.ID, until); err != nil {
		s.logger.Warn("failed to lock account", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	s.logger.Warn("account locked after repeated failed logins",
		zap.String("username", user.Username),
		zap.Int("attempts", attempts),
		zap.Time("locked_until", until),
	)
}

// Setup creates the initial admin account. Only works when no users exist.
func (s *Service) Setup(ctx context.Context, username, email, password string) (*User, error) {
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil, ErrSetupComplete
	}

	user, err := s.createUser(ctx, username, email, password, RoleAdmin)
	if err != nil {
		return nil, err
	}
	s.logger.Info("initial admin account created", zap.String("username", username))
	return user, nil
}

// CreateUser adds an account with the given role.
func (s *Service) CreateUser(ctx context.Context, username, email, password string, role Role) (*User, error) {
	if !ValidRoles[role] {
		return nil, ErrInvalidRole
	}
	user, err := s.createUser(ctx, username, email, password, role)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user created", zap.String("username", username), zap.String("role", string(role)))
	return user, nil
}

func (s *Service) createUser(ctx context.Context, username, email, password string, role Role) (*User, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := HashPassword(password, 0)
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:           uuid.NewString(),
		Username:     strings.TrimSpace(username),
		Email:        strings.TrimSpace(email),
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	return user, nil
}

// Refresh validates a refresh token and returns a new token pair. The old
// token is revoked; presenting it again fails.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	rt, err := s.store.GetRefreshToken(ctx, HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	if rt.Revoked || rt.ExpiresAt.Before(s.now()) {
		return nil, ErrInvalidToken
	}

	revoked, err := s.store.RevokeRefreshToken(ctx, rt.ID)
	if err != nil {
		return nil, err
	}
	if !revoked {
		// Lost a race with a concurrent refresh of the same token.
		return nil, ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, rt.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup user for refresh: %w", err)
	}
	if user.Disabled {
		return nil, ErrUserDisabled
	}
	return s.issueTokenPair(ctx, user)
}

// Logout revokes a refresh token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	rt, err := s.store.GetRefreshToken(ctx, HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("lookup refresh token: %w", err)
	}
	_, err = s.store.RevokeRefreshToken(ctx, rt.ID)
	return err
}

// NeedsSetup returns true if no users exist (first-run state).
func (s *Service) NeedsSetup(ctx context.Context) (bool, error) {
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.store.ListUsers(ctx)
}

// GetUser returns a user by ID.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// UpdateUser changes a user's email, role and disabled flag. Disabling a
// user revokes its refresh tokens. The last enabled admin cannot be demoted
// or disabled.
func (s *Service) UpdateUser(ctx context.Context, id, email string, role Role, disabled bool) (*User, error) {
	if !ValidRoles[role] {
		return nil, ErrInvalidRole
	}
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	losesAdmin := user.Role == RoleAdmin && !user.Disabled && (role != RoleAdmin || disabled)
	if losesAdmin {
		if err := s.ensureAnotherAdmin(ctx); err != nil {
			return nil, err
		}
	}

	if email != "" {
		user.Email = email
	}
	user.Role = role
	user.Disabled = disabled
	if err := s.store.UpdateUser(ctx, user); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	if disabled {
		if err := s.store.RevokeUserRefreshTokens(ctx, id); err != nil {
			s.logger.Warn("failed to revoke tokens of disabled user", zap.String("user_id", id), zap.Error(err))
		}
	}
	return user, nil
}

// DeleteUser removes a user by ID. The last enabled admin cannot be deleted.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if user.Role == RoleAdmin && !user.Disabled {
		if err := s.ensureAnotherAdmin(ctx); err != nil {
			return err
		}
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// CleanExpiredTokens purges revoked and expired refresh tokens.
func (s *Service) CleanExpiredTokens(ctx context.Context) (int64, error) {
	return s.store.CleanExpiredTokens(ctx, s.now())
}

func (s *Service) ensureAnotherAdmin(ctx context.Context) error {
	admins, err := s.store.CountAdmins(ctx)
	if err != nil {
		return fmt.Errorf("count admins: %w", err)
	}
	if admins <= 1 {
		return ErrLastAdmin
	}
	return nil
}

func (s *Service) issueTokenPair(ctx context.Context, user *User) (*TokenPair, error) {
	accessToken, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}

	rawRefresh, hashRefresh, expiresAt, err := s.tokens.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveRefreshToken(ctx, uuid.NewString(), user.ID, hashRefresh, expiresAt); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: rawRefresh,
		ExpiresIn:    int(s.tokens.AccessTokenTTL().Seconds()),
	}, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
