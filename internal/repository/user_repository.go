package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/AnchalDevBytes/challan-maker/internal/models"
)

// UserRepository provides database access for users and the OTP staging
// tables (pending signups and password resets).
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	const query = `SELECT id, email, password_hash, name, avatar, google_id, created_at, updated_at FROM users WHERE email = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	const query = `SELECT id, email, password_hash, name, avatar, google_id, created_at, updated_at FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// UpdatePassword updates the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// UpsertPendingSignup stages a signup awaiting OTP verification, replacing any
// earlier attempt for the same email.
func (r *UserRepository) UpsertPendingSignup(ctx context.Context, pending *models.PendingSignup) error {
	if pending.CreatedAt.IsZero() {
		pending.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO pending_signups (email, password_hash, name, otp_hash, expires_at, created_at)
		VALUES (:email, :password_hash, :name, :otp_hash, :expires_at, :created_at)
		ON CONFLICT (email) DO UPDATE SET password_hash = EXCLUDED.password_hash, name = EXCLUDED.name, otp_hash = EXCLUDED.otp_hash, expires_at = EXCLUDED.expires_at`
	if _, err := r.db.NamedExecContext(ctx, query, pending); err != nil {
		return fmt.Errorf("upsert pending signup: %w", err)
	}
	return nil
}

// FindPendingSignup returns the staged signup for an email.
func (r *UserRepository) FindPendingSignup(ctx context.Context, email string) (*models.PendingSignup, error) {
	const query = `SELECT email, password_hash, name, otp_hash, expires_at, created_at FROM pending_signups WHERE email = $1 LIMIT 1`
	var pending models.PendingSignup
	if err := r.db.GetContext(ctx, &pending, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find pending signup: %w", err)
	}
	return &pending, nil
}

// PromotePendingSignup creates the user and removes the staged signup in one
// transaction, returning the created user.
func (r *UserRepository) PromotePendingSignup(ctx context.Context, pending *models.PendingSignup) (*models.User, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin promote signup: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        pending.Email,
		PasswordHash: &pending.PasswordHash,
		Name:         pending.Name,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	const insertQuery = `INSERT INTO users (id, email, password_hash, name, avatar, google_id, created_at, updated_at) VALUES (:id, :email, :password_hash, :name, :avatar, :google_id, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertQuery, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	const deleteQuery = `DELETE FROM pending_signups WHERE email = $1`
	if _, err := tx.ExecContext(ctx, deleteQuery, pending.Email); err != nil {
		return nil, fmt.Errorf("delete pending signup: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit promote signup: %w", err)
	}
	return user, nil
}

// UpsertPasswordReset stages a reset OTP for an email, replacing any earlier one.
func (r *UserRepository) UpsertPasswordReset(ctx context.Context, reset *models.PasswordReset) error {
	if reset.CreatedAt.IsZero() {
		reset.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO password_resets (email, otp_hash, expires_at, created_at)
		VALUES (:email, :otp_hash, :expires_at, :created_at)
		ON CONFLICT (email) DO UPDATE SET otp_hash = EXCLUDED.otp_hash, expires_at = EXCLUDED.expires_at`
	if _, err := r.db.NamedExecContext(ctx, query, reset); err != nil {
		return fmt.Errorf("upsert password reset: %w", err)
	}
	return nil
}

// FindPasswordReset returns the staged reset for an email.
func (r *UserRepository) FindPasswordReset(ctx context.Context, email string) (*models.PasswordReset, error) {
	const query = `SELECT email, otp_hash, expires_at, created_at FROM password_resets WHERE email = $1 LIMIT 1`
	var reset models.PasswordReset
	if err := r.db.GetContext(ctx, &reset, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find password reset: %w", err)
	}
	return &reset, nil
}

// DeletePasswordReset removes the staged reset after it has been consumed.
func (r *UserRepository) DeletePasswordReset(ctx context.Context, email string) error {
	const query = `DELETE FROM password_resets WHERE email = $1`
	if _, err := r.db.ExecContext(ctx, query, email); err != nil {
		return fmt.Errorf("delete password reset: %w", err)
	}
	return nil
}
