package service

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tasktrack-api/internal/models"
	"github.com/noah-isme/tasktrack-api/pkg/cryptox"
	appErrors "github.com/noah-isme/tasktrack-api/pkg/errors"
	"github.com/noah-isme/tasktrack-api/pkg/password"
)

// bcrypt only considers the first 72 bytes of input; 48 random bytes encode
// to 64 characters.
const maxSecretBytes = 48

type refreshTokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	FindByLookupKey(ctx context.Context, lookupKey string) ([]models.RefreshToken, error)
	ListAll(ctx context.Context) ([]models.RefreshToken, error)
	MarkRevoked(ctx context.Context, id string, revokedAt time.Time) error
	RevokeByUserID(ctx context.Context, userID int64, revokedAt time.Time) (int64, error)
	Delete(ctx context.Context, id string) error
	DeleteByUserID(ctx context.Context, userID int64) (int64, error)
	Rotate(ctx context.Context, oldID string, revokedAt time.Time, next *models.RefreshToken) error
}

type secretHasher interface {
	Hash(secret string) (string, error)
	Verify(secret, hash string) bool
}

// RefreshTokenConfig defines the refresh session policy.
type RefreshTokenConfig struct {
	TTL time.Duration
	// IndexedLookup narrows candidates by fingerprint. When false every
	// stored record is checked against the submitted secret.
	IndexedLookup bool
	SecretBytes   int
}

// RefreshTokenService issues, validates and revokes refresh sessions. Raw
// secrets are returned to the caller once and never stored or logged.
type RefreshTokenService struct {
	repo   refreshTokenRepository
	hasher secretHasher
	cfg    RefreshTokenConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewRefreshTokenService constructs a RefreshTokenService.
func NewRefreshTokenService(repo refreshTokenRepository, hasher secretHasher, cfg RefreshTokenConfig, logger *zap.Logger) *RefreshTokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hasher == nil {
		hasher = password.NewHasher(0)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	if cfg.SecretBytes < 16 || cfg.SecretBytes > maxSecretBytes {
		cfg.SecretBytes = cryptox.DefaultTokenSize
	}
	return &RefreshTokenService{repo: repo, hasher: hasher, cfg: cfg, logger: logger, now: time.Now}
}

// TTL reports the lifetime given to new sessions.
func (s *RefreshTokenService) TTL() time.Duration {
	return s.cfg.TTL
}

// Create opens a new session for userID and returns its raw secret.
func (s *RefreshTokenService) Create(ctx context.Context, userID int64, meta models.ClientMeta) (string, *models.RefreshToken, error) {
	raw, record, err := s.build(userID, meta)
	if err != nil {
		return "", nil, err
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}
	return raw, record, nil
}

// Validate returns the live record matching raw. Not found, revoked and
// expired are reported as distinct errors; an expired record is deleted.
func (s *RefreshTokenService) Validate(ctx context.Context, raw string) (*models.RefreshToken, error) {
	record, err := s.match(ctx, raw)
	if err != nil {
		return nil, err
	}
	if record.Revoked {
		return nil, appErrors.ErrTokenRevoked
	}
	if record.ExpiredAt(s.now()) {
		if err := s.repo.Delete(ctx, record.ID); err != nil {
			s.logger.Warn("failed to delete expired refresh token", zap.String("token_id", record.ID), zap.Error(err))
		}
		return nil, appErrors.ErrTokenExpired
	}
	return record, nil
}

// RevokeByToken revokes the session matching raw. A session that is already
// revoked or expired is left as is and reported as success.
func (s *RefreshTokenService) RevokeByToken(ctx context.Context, raw string) (*models.RefreshToken, error) {
	record, err := s.match(ctx, raw)
	if err != nil {
		return nil, err
	}
	if record.Revoked || record.ExpiredAt(s.now()) {
		return record, nil
	}
	revokedAt := s.now().UTC()
	if err := s.repo.MarkRevoked(ctx, record.ID, revokedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke refresh token")
	}
	record.Revoked = true
	record.RevokedAt = &revokedAt
	return record, nil
}

// RevokeByUserID revokes every live session of userID and returns how many changed.
func (s *RefreshTokenService) RevokeByUserID(ctx context.Context, userID int64) (int64, error) {
	n, err := s.repo.RevokeByUserID(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke refresh tokens")
	}
	return n, nil
}

// DeleteByUserID removes every session of userID, used when the user is deleted.
func (s *RefreshTokenService) DeleteByUserID(ctx context.Context, userID int64) error {
	n, err := s.repo.DeleteByUserID(ctx, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete refresh tokens")
	}
	s.logger.Debug("refresh tokens deleted", zap.Int64("user_id", userID), zap.Int64("count", n))
	return nil
}

// Rotate revokes current and issues its replacement atomically. A concurrent
// rotation of the same record loses and sees ErrTokenRevoked.
func (s *RefreshTokenService) Rotate(ctx context.Context, current *models.RefreshToken, meta models.ClientMeta) (string, *models.RefreshToken, error) {
	raw, next, err := s.build(current.UserID, meta)
	if err != nil {
		return "", nil, err
	}
	if err := s.repo.Rotate(ctx, current.ID, s.now().UTC(), next); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil, appErrors.ErrTokenRevoked
		}
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rotate refresh token")
	}
	return raw, next, nil
}

func (s *RefreshTokenService) build(userID int64, meta models.ClientMeta) (string, *models.RefreshToken, error) {
	raw, err := cryptox.GenerateToken(s.cfg.SecretBytes)
	if err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate refresh token")
	}
	hash, err := s.hasher.Hash(raw)
	if err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash refresh token")
	}
	now := s.now().UTC()
	return raw, &models.RefreshToken{
		TokenHash: hash,
		LookupKey: cryptox.FingerprintToken(raw),
		UserID:    userID,
		ExpiresAt: now.Add(s.cfg.TTL),
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
		CreatedAt: now,
	}, nil
}

// match finds the record whose hash verifies against raw.
func (s *RefreshTokenService) match(ctx context.Context, raw string) (*models.RefreshToken, error) {
	if !wellFormedSecret(raw) {
		return nil, appErrors.ErrTokenMalformed
	}

	var (
		candidates []models.RefreshToken
		err        error
	)
	if s.cfg.IndexedLookup {
		candidates, err = s.repo.FindByLookupKey(ctx, cryptox.FingerprintToken(raw))
	} else {
		candidates, err = s.repo.ListAll(ctx)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load refresh tokens")
	}

	for i := range candidates {
		if s.hasher.Verify(raw, candidates[i].TokenHash) {
			return &candidates[i], nil
		}
	}
	return nil, appErrors.ErrTokenNotFound
}

func wellFormedSecret(raw string) bool {
	if raw == "" || len(raw) > 128 {
		return false
	}
	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	return err == nil && len(decoded) >= 16
}
