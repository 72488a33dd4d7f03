package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/domushq/domus/internal/models"
	"github.com/domushq/domus/internal/rbac"
	"github.com/domushq/domus/pkg/crypto"
	apperrors "github.com/domushq/domus/pkg/errors"
	"github.com/domushq/domus/pkg/logger"
	"github.com/domushq/domus/pkg/metrics"
)

// Authorizer computes the snapshot embedded into access tokens.
type Authorizer interface {
	EffectivePermissions(ctx context.Context, userID string) (rbac.PermissionSet, error)
	UserScope(ctx context.Context, userID string) (rbac.Scope, error)
}

// SessionConfig describes tunable behaviour for the SessionService.
type SessionConfig struct {
	Clock func() time.Time
}

// SessionMetadata captures contextual information about the client.
type SessionMetadata struct {
	IPAddress string
	UserAgent string
}

// TokenPair represents an access token and refresh token pair.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
	UserID           string
	SessionID        string
}

var (
	// ErrSessionNotFound indicates that no session matches the provided identifier.
	ErrSessionNotFound = errors.New("session: not found")
)

// SessionService implements login, refresh rotation and logout.
type SessionService struct {
	db   *gorm.DB
	jwt  *JWTService
	rbac Authorizer
	now  func() time.Time
	log  *zap.Logger
}

// NewSessionService constructs a session manager backed by the provided database and JWT service.
func NewSessionService(db *gorm.DB, jwtService *JWTService, authorizer Authorizer, cfg SessionConfig) (*SessionService, error) {
	if db == nil {
		return nil, errors.New("session service: db is required")
	}
	if jwtService == nil {
		return nil, errors.New("session service: jwt service is required")
	}
	if authorizer == nil {
		return nil, errors.New("session service: authorizer is required")
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &SessionService{
		db:   db,
		jwt:  jwtService,
		rbac: authorizer,
		now:  clock,
		log:  logger.WithModule("auth"),
	}, nil
}

// Login verifies credentials of an active user and issues a token pair.
// Every failure is reported as INVALID_CREDENTIALS.
func (s *SessionService) Login(ctx context.Context, email, password string, meta SessionMetadata) (TokenPair, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		crypto.BurnPasswordCheck(password)
		metrics.AuthAttempts.WithLabelValues("login", "failure").Inc()
		return TokenPair{}, apperrors.ErrInvalidCredentials
	}

	var user models.User
	err := s.db.WithContext(ctx).
		Where("email = ? AND is_active = ?", email, true).
		Take(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		crypto.BurnPasswordCheck(password)
		metrics.AuthAttempts.WithLabelValues("login", "failure").Inc()
		return TokenPair{}, apperrors.ErrInvalidCredentials
	case err != nil:
		return TokenPair{}, apperrors.ErrInternalServer.WithInternal(fmt.Errorf("session service: find user: %w", err))
	}

	if !crypto.VerifyPassword(user.PasswordHash, password) {
		metrics.AuthAttempts.WithLabelValues("login", "failure").Inc()
		return TokenPair{}, apperrors.ErrInvalidCredentials
	}

	snap, err := s.snapshot(ctx, user.ID)
	if err != nil {
		return TokenPair{}, err
	}

	now := s.now()
	pair, err := s.issue(s.db.WithContext(ctx), user.ID, uuid.NewString(), snap, meta)
	if err != nil {
		return TokenPair{}, err
	}

	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Update("last_login_at", now).Error; err != nil {
		s.log.Warn("failed to record last login", zap.String("user_id", user.ID), zap.Error(err))
	}

	metrics.AuthAttempts.WithLabelValues("login", "success").Inc()
	return pair, nil
}

// Refresh exchanges a refresh token for a new pair. Permissions and scope are
// recomputed from current state. The presented session is revoked; presenting
// an already revoked session revokes every session of the user.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string, meta SessionMetadata) (TokenPair, error) {
	pair, err := s.refresh(ctx, strings.TrimSpace(refreshToken), meta)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("refresh", "failure").Inc()
		return TokenPair{}, err
	}
	metrics.AuthAttempts.WithLabelValues("refresh", "success").Inc()
	return pair, nil
}

func (s *SessionService) refresh(ctx context.Context, refreshToken string, meta SessionMetadata) (TokenPair, error) {
	if refreshToken == "" {
		return TokenPair{}, apperrors.ErrInvalidRefresh
	}

	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, apperrors.ErrInvalidRefresh.WithInternal(err)
	}

	var session models.Session
	err = s.db.WithContext(ctx).Where("id = ?", claims.ID).Take(&session).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return TokenPair{}, apperrors.ErrInvalidRefresh.WithInternal(ErrSessionNotFound)
	case err != nil:
		return TokenPair{}, apperrors.ErrInternalServer.WithInternal(fmt.Errorf("session service: find session: %w", err))
	}

	if session.UserID != claims.Subject {
		return TokenPair{}, apperrors.ErrInvalidRefresh
	}

	now := s.now()
	if session.RevokedAt != nil {
		s.log.Warn("revoked refresh token presented, revoking user sessions",
			zap.String("user_id", session.UserID),
			zap.String("session_id", session.ID),
		)
		if err := s.RevokeUserSessions(ctx, session.UserID); err != nil {
			s.log.Error("failed to revoke sessions after reuse", zap.Error(err))
		}
		return TokenPair{}, apperrors.ErrInvalidRefresh
	}
	if !session.Active(now) {
		return TokenPair{}, apperrors.ErrInvalidRefresh
	}

	var active int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND is_active = ?", session.UserID, true).
		Count(&active).Error; err != nil {
		return TokenPair{}, apperrors.ErrInternalServer.WithInternal(fmt.Errorf("session service: check user: %w", err))
	}
	if active == 0 {
		return TokenPair{}, apperrors.ErrInvalidRefresh
	}

	snap, err := s.snapshot(ctx, session.UserID)
	if err != nil {
		return TokenPair{}, err
	}

	var pair TokenPair
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		nextID := uuid.NewString()
		result := tx.Model(&models.Session{}).
			Where("id = ? AND revoked_at IS NULL", session.ID).
			Updates(map[string]any{
				"revoked_at":   now,
				"last_used_at": now,
				"replaced_by":  nextID,
			})
		if result.Error != nil {
			return fmt.Errorf("session service: rotate session: %w", result.Error)
		}
		if result.RowsAffected != 1 {
			return apperrors.ErrInvalidRefresh
		}
		metrics.ActiveSessions.Dec()

		issued, err := s.issue(tx, session.UserID, nextID, snap, meta)
		if err != nil {
			return err
		}
		pair = issued
		return nil
	})
	if err != nil {
		return TokenPair{}, apperrors.FromError(err)
	}
	return pair, nil
}

// Logout revokes the session behind the refresh token when it can be
// identified. It never fails for unknown or invalid tokens.
func (s *SessionService) Logout(ctx context.Context, refreshToken string) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return
	}

	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return
	}

	if err := s.RevokeSession(ctx, claims.ID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		s.log.Warn("failed to revoke session on logout", zap.String("session_id", claims.ID), zap.Error(err))
	}
}

// RevokeSession marks a session as revoked, preventing further refresh operations.
func (s *SessionService) RevokeSession(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrSessionNotFound
	}

	result := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND revoked_at IS NULL", sessionID).
		Update("revoked_at", s.now())
	if result.Error != nil {
		return fmt.Errorf("session service: revoke session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}

	metrics.ActiveSessions.Sub(float64(result.RowsAffected))
	return nil
}

// RevokeUserSessions revokes every active session belonging to a user.
func (s *SessionService) RevokeUserSessions(ctx context.Context, userID string) error {
	affected, err := RevokeUserSessionsTx(s.db.WithContext(ctx), userID, s.now())
	if err != nil {
		return err
	}
	if affected > 0 {
		metrics.ActiveSessions.Sub(float64(affected))
	}
	return nil
}

// RevokeUserSessionsTx revokes sessions inside a caller-owned transaction.
func RevokeUserSessionsTx(tx *gorm.DB, userID string, now time.Time) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, errors.New("session service: user id is required")
	}
	result := tx.Model(&models.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", now)
	if result.Error != nil {
		return 0, fmt.Errorf("session service: revoke user sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CleanupExpired removes expired and revoked sessions and resets the active session gauge.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	now := s.now()
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Or("revoked_at IS NOT NULL").
		Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("session service: cleanup expired sessions: %w", result.Error)
	}

	var active int64
	if err := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("expires_at >= ? AND revoked_at IS NULL", now).
		Count(&active).Error; err != nil {
		return result.RowsAffected, fmt.Errorf("session service: count active sessions: %w", err)
	}
	metrics.ActiveSessions.Set(float64(active))

	return result.RowsAffected, nil
}

type tokenSnapshot struct {
	perms rbac.PermissionSet
	scope rbac.Scope
}

// snapshot must run outside of any open transaction: the engine reads through
// its own handle.
func (s *SessionService) snapshot(ctx context.Context, userID string) (tokenSnapshot, error) {
	perms, err := s.rbac.EffectivePermissions(ctx, userID)
	if err != nil {
		return tokenSnapshot{}, apperrors.ErrInternalServer.WithInternal(err)
	}
	scope, err := s.rbac.UserScope(ctx, userID)
	if err != nil {
		return tokenSnapshot{}, apperrors.ErrInternalServer.WithInternal(err)
	}
	return tokenSnapshot{perms: perms, scope: scope}, nil
}

func (s *SessionService) issue(tx *gorm.DB, userID, sessionID string, snap tokenSnapshot, meta SessionMetadata) (TokenPair, error) {
	now := s.now()
	session := &models.Session{
		ID:         sessionID,
		UserID:     userID,
		IPAddress:  strings.TrimSpace(meta.IPAddress),
		UserAgent:  strings.TrimSpace(meta.UserAgent),
		ExpiresAt:  now.Add(s.jwt.RefreshTTL()),
		LastUsedAt: now,
	}
	if err := tx.Create(session).Error; err != nil {
		return TokenPair{}, apperrors.ErrInternalServer.WithInternal(fmt.Errorf("session service: create session: %w", err))
	}
	metrics.ActiveSessions.Inc()

	access, err := s.jwt.GenerateAccessToken(AccessTokenInput{UserID: userID, Permissions: snap.perms, Scope: snap.scope})
	if err != nil {
		return TokenPair{}, apperrors.ErrInternalServer.WithInternal(err)
	}
	refresh, err := s.jwt.GenerateRefreshToken(userID, session.ID, session.ExpiresAt)
	if err != nil {
		return TokenPair{}, apperrors.ErrInternalServer.WithInternal(err)
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		RefreshExpiresAt: session.ExpiresAt,
		UserID:           userID,
		SessionID:        session.ID,
	}, nil
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
