package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AnchalDevBytes/challan-maker/internal/models"
	"github.com/AnchalDevBytes/challan-maker/internal/repository"
	"github.com/AnchalDevBytes/challan-maker/pkg/config"
	appErrors "github.com/AnchalDevBytes/challan-maker/pkg/errors"
)

// SecretKind selects which signing secret a token is bound to. Access and
// refresh tokens use distinct secrets so a leaked access key cannot forge
// refresh tokens and vice versa.
type SecretKind int

const (
	SecretAccess SecretKind = iota
	SecretRefresh
)

type tokenLedger interface {
	Insert(ctx context.Context, token *models.RefreshToken) error
	FindByToken(ctx context.Context, token string) (*models.RefreshToken, error)
	Revoke(ctx context.Context, token string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	Rotate(ctx context.Context, oldToken string, next *models.RefreshToken) error
}

// TokenService owns the session lifecycle: it mints and verifies the signed
// tokens, issues access/refresh pairs, rotates refresh tokens one-time-use,
// and detects replay of already-rotated tokens.
type TokenService struct {
	ledger  tokenLedger
	logger  *zap.Logger
	metrics *MetricsService
	config  config.AuthConfig
	now     func() time.Time
}

// NewTokenService constructs a TokenService instance.
func NewTokenService(ledger tokenLedger, logger *zap.Logger, metrics *MetricsService, cfg config.AuthConfig) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AccessExpiry <= 0 {
		cfg.AccessExpiry = 15 * time.Minute
	}
	if cfg.RefreshExpiry <= 0 {
		cfg.RefreshExpiry = 7 * 24 * time.Hour
	}
	return &TokenService{
		ledger:  ledger,
		logger:  logger,
		metrics: metrics,
		config:  cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Mint produces a signed token binding the subject to a fixed-policy expiry.
// Lifetimes are not caller-supplied: access tokens live for AccessExpiry,
// refresh tokens for RefreshExpiry.
func (s *TokenService) Mint(subjectID string, kind SecretKind) (string, error) {
	now := s.now()
	claims := &models.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl(kind))),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret(kind))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the subject id. It fails
// closed: malformed, wrongly signed and expired tokens all collapse into the
// same generic auth failure so callers cannot be used as a signing oracle.
func (s *TokenService) Verify(tokenString string, kind SecretKind) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret(kind), nil
	})
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInvalidToken.Code, appErrors.ErrInvalidToken.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.AccessClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", appErrors.Clone(appErrors.ErrInvalidToken, "invalid token claims")
	}
	return claims.Subject, nil
}

// Issue creates a fresh access/refresh pair for a verified subject and
// records the refresh half in the ledger. It never touches other records;
// chain linking on rotation is Refresh's job.
func (s *TokenService) Issue(ctx context.Context, subjectID, ipAddress string) (*models.TokenPair, error) {
	pair, record, err := s.mintPair(subjectID, ipAddress)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.Insert(ctx, record); err != nil {
		// Token strings carry a random jti, so a collision means something is
		// deeply wrong; retry once and then give up.
		if appErrors.Is(err, appErrors.ErrDuplicateToken) {
			s.logger.Warn("refresh token collision on issue, retrying", zap.String("user_id", subjectID))
			pair, record, err = s.mintPair(subjectID, ipAddress)
			if err != nil {
				return nil, err
			}
			if err := s.ledger.Insert(ctx, record); err != nil {
				return nil, err
			}
		} else {
			return nil, err
		}
	}

	s.logger.Info("session issued",
		zap.String("user_id", subjectID),
		zap.Time("refresh_expires_at", record.ExpiresAt))
	return pair, nil
}

// Refresh validates an incoming refresh token and rotates it to a new pair.
//
// State machine per ledger lookup: unknown token fails with InvalidToken;
// a revoked record means the token was already rotated away or logged out, so
// a second presentation is treated as theft and every session of the owning
// user is revoked; an expired record fails with TokenExpired (checked after
// the reuse check, reuse being the more severe condition); otherwise the
// record is atomically superseded by a new pair.
func (s *TokenService) Refresh(ctx context.Context, incomingToken, ipAddress string) (*models.TokenPair, error) {
	record, err := s.ledger.FindByToken(ctx, incomingToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidToken, "refresh token not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch refresh token")
	}

	if record.Revoked {
		return nil, s.handleReuse(ctx, record)
	}

	if s.now().After(record.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrTokenExpired, "refresh token expired")
	}

	pair, next, err := s.mintPair(record.UserID, ipAddress)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.Rotate(ctx, incomingToken, next); err != nil {
		if errors.Is(err, repository.ErrRotationConflict) {
			// A concurrent rotation of the same token won the race. The
			// winner's pair stays live; the loser is rejected without the
			// family sweep so a benign double-submit does not log the user
			// out everywhere.
			s.logger.Warn("concurrent refresh rotation lost race",
				zap.String("user_id", record.UserID))
			return nil, appErrors.Clone(appErrors.ErrInvalidToken, "refresh token already rotated")
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordTokenRotation()
	}
	s.logger.Info("refresh token rotated", zap.String("user_id", record.UserID))
	return pair, nil
}

// Revoke terminates a single refresh token (logout). It is idempotent and
// tolerant of unknown tokens: logout never fails visibly to the caller.
func (s *TokenService) Revoke(ctx context.Context, token string) {
	if token == "" {
		return
	}
	if err := s.ledger.Revoke(ctx, token); err != nil {
		s.logger.Warn("failed to revoke refresh token on logout", zap.Error(err))
	}
}

// RevokeAllForUser kills every live session for a user, e.g. after a
// password reset.
func (s *TokenService) RevokeAllForUser(ctx context.Context, userID string) error {
	return s.ledger.RevokeAllForUser(ctx, userID)
}

func (s *TokenService) handleReuse(ctx context.Context, record *models.RefreshToken) error {
	s.logger.Warn("refresh token reuse detected, revoking session family",
		zap.String("user_id", record.UserID))

	if err := s.ledger.RevokeAllForUser(ctx, record.UserID); err != nil {
		s.logger.Error("failed to revoke session family after reuse detection",
			zap.String("user_id", record.UserID), zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.RecordTokenReuseDetected()
	}
	return appErrors.Clone(appErrors.ErrTokenReuseDetected, "")
}

func (s *TokenService) mintPair(subjectID, ipAddress string) (*models.TokenPair, *models.RefreshToken, error) {
	accessToken, err := s.Mint(subjectID, SecretAccess)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mint access token")
	}
	refreshToken, err := s.Mint(subjectID, SecretRefresh)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mint refresh token")
	}

	now := s.now()
	var ip *string
	if ipAddress != "" {
		ip = &ipAddress
	}
	record := &models.RefreshToken{
		Token:     refreshToken,
		UserID:    subjectID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.config.RefreshExpiry),
		Revoked:   false,
		IPAddress: ip,
	}
	return &models.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, record, nil
}

func (s *TokenService) ttl(kind SecretKind) time.Duration {
	if kind == SecretRefresh {
		return s.config.RefreshExpiry
	}
	return s.config.AccessExpiry
}

func (s *TokenService) secret(kind SecretKind) []byte {
	if kind == SecretRefresh {
		return []byte(s.config.RefreshSecret)
	}
	return []byte(s.config.AccessSecret)
}
