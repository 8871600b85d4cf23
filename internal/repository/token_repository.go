package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/AnchalDevBytes/challan-maker/internal/models"
	appErrors "github.com/AnchalDevBytes/challan-maker/pkg/errors"
)

// ErrRotationConflict is returned by Rotate when the compare-and-swap on the
// old record finds it already revoked, meaning a concurrent rotation of the
// same token committed first.
var ErrRotationConflict = errors.New("refresh token already rotated")

const pqUniqueViolation = "23505"

// TokenRepository is the durable ledger of issued refresh tokens. The token
// string is the primary key; records are never deleted, only revoked.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository creates a new instance of TokenRepository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Insert persists a freshly issued refresh token record.
func (r *TokenRepository) Insert(ctx context.Context, token *models.RefreshToken) error {
	const query = `INSERT INTO refresh_tokens (token, user_id, issued_at, expires_at, revoked, replaced_by_token, ip_address) VALUES (:token, :user_id, :issued_at, :expires_at, :revoked, :replaced_by_token, :ip_address)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		if isUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrDuplicateToken, "refresh token collision")
		}
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// FindByToken returns the ledger record for a token string. sql.ErrNoRows is
// passed through so callers can classify unknown tokens.
func (r *TokenRepository) FindByToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT token, user_id, issued_at, expires_at, revoked, replaced_by_token, ip_address FROM refresh_tokens WHERE token = $1 LIMIT 1`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

// Revoke marks a single token revoked. Revoking an already-revoked or unknown
// token is a no-op.
func (r *TokenRepository) Revoke(ctx context.Context, token string) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1`
	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every token owned by the user in one statement.
// Used by reuse detection to kill a compromised session family.
func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}

// Rotate atomically supersedes oldToken with next. The predecessor update is a
// compare-and-swap on revoked=FALSE so two concurrent rotations of the same
// token cannot both succeed; the successor insert shares the transaction so a
// crash can never leave two live records in one lineage.
func (r *TokenRepository) Rotate(ctx context.Context, oldToken string, next *models.RefreshToken) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rotation: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const revokeQuery = `UPDATE refresh_tokens SET revoked = TRUE, replaced_by_token = $2 WHERE token = $1 AND revoked = FALSE`
	res, err := tx.ExecContext(ctx, revokeQuery, oldToken, next.Token)
	if err != nil {
		return fmt.Errorf("mark rotated: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark rotated: %w", err)
	}
	if affected == 0 {
		return ErrRotationConflict
	}

	const insertQuery = `INSERT INTO refresh_tokens (token, user_id, issued_at, expires_at, revoked, replaced_by_token, ip_address) VALUES (:token, :user_id, :issued_at, :expires_at, :revoked, :replaced_by_token, :ip_address)`
	if _, err := tx.NamedExecContext(ctx, insertQuery, next); err != nil {
		if isUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrDuplicateToken, "refresh token collision")
		}
		return fmt.Errorf("insert rotated token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rotation: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
