package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tasktrack-api/internal/models"
)

const refreshTokenColumns = `id, token_hash, lookup_key, user_id, expires_at, revoked, revoked_at, ip_address, user_agent, created_at`

// RefreshTokenRepository persists refresh sessions. Every mutation is a
// single statement (or one transaction for rotation) so a committed
// revocation is visible to every later read.
type RefreshTokenRepository struct {
	db *sqlx.DB
}

// NewRefreshTokenRepository creates a new instance of RefreshTokenRepository.
func NewRefreshTokenRepository(db *sqlx.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create persists a refresh token entry.
func (r *RefreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	return insertRefreshToken(ctx, r.db, token)
}

// FindByLookupKey returns the records sharing a fingerprint, oldest first.
func (r *RefreshTokenRepository) FindByLookupKey(ctx context.Context, lookupKey string) ([]models.RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE lookup_key = $1 ORDER BY created_at`
	var tokens []models.RefreshToken
	if err := r.db.SelectContext(ctx, &tokens, query, lookupKey); err != nil {
		return nil, fmt.Errorf("find refresh tokens by lookup key: %w", err)
	}
	return tokens, nil
}

// ListAll returns every stored record. Used when indexed lookup is disabled.
func (r *RefreshTokenRepository) ListAll(ctx context.Context) ([]models.RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens ORDER BY created_at`
	var tokens []models.RefreshToken
	if err := r.db.SelectContext(ctx, &tokens, query); err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}
	return tokens, nil
}

// MarkRevoked flips a single record to revoked.
func (r *RefreshTokenRepository) MarkRevoked(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, id, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeByUserID revokes every live record owned by userID.
func (r *RefreshTokenRepository) RevokeByUserID(ctx context.Context, userID int64, revokedAt time.Time) (int64, error) {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE`
	res, err := r.db.ExecContext(ctx, query, userID, revokedAt)
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return affected, nil
}

// Delete removes a single record.
func (r *RefreshTokenRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM refresh_tokens WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

// DeleteByUserID removes every record owned by userID.
func (r *RefreshTokenRepository) DeleteByUserID(ctx context.Context, userID int64) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE user_id = $1`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user refresh tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete user refresh tokens: %w", err)
	}
	return affected, nil
}

// Rotate revokes oldID and inserts next in one transaction. It fails without
// inserting when oldID was already revoked by a concurrent caller.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, oldID string, revokedAt time.Time, next *models.RefreshToken) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rotate: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1 AND revoked = FALSE`, oldID, revokedAt)
	if err != nil {
		return fmt.Errorf("rotate revoke: %w", err)
	}
	if err = requireAffected(res); err != nil {
		return err
	}
	if err = insertRefreshToken(ctx, tx, next); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit rotate: %w", err)
	}
	return nil
}

func insertRefreshToken(ctx context.Context, exec sqlx.ExtContext, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO refresh_tokens (id, token_hash, lookup_key, user_id, expires_at, revoked, revoked_at, ip_address, user_agent, created_at) VALUES (:id, :token_hash, :lookup_key, :user_id, :expires_at, :revoked, :revoked_at, :ip_address, :user_agent, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}
