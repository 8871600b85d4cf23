package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnchalDevBytes/challan-maker/internal/models"
	appErrors "github.com/AnchalDevBytes/challan-maker/pkg/errors"
)

func newTokenRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func sampleToken(token string) *models.RefreshToken {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.RefreshToken{
		Token:     token,
		UserID:    "user-1",
		IssuedAt:  now,
		ExpiresAt: now.Add(7 * 24 * time.Hour),
	}
}

func TestTokenRepositoryInsert(t *testing.T) {
	db, mock, cleanup := newTokenRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs("tok-1", "user-1", sqlmock.AnyArg(), sqlmock.AnyArg(), false, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Insert(context.Background(), sampleToken("tok-1"))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryInsertDuplicate(t *testing.T) {
	db, mock, cleanup := newTokenRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").
		WillReturnError(&pq.Error{Code: pqUniqueViolation})

	err := repo.Insert(context.Background(), sampleToken("tok-1"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrDuplicateToken))
}

func TestTokenRepositoryFindByToken(t *testing.T) {
	db, mock, cleanup := newTokenRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"token", "user_id", "issued_at", "expires_at", "revoked", "replaced_by_token", "ip_address"}).
		AddRow("tok-1", "user-1", now, now.Add(time.Hour), false, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT token, user_id, issued_at, expires_at, revoked, replaced_by_token, ip_address FROM refresh_tokens WHERE token = $1")).
		WithArgs("tok-1").
		WillReturnRows(rows)

	rt, err := repo.FindByToken(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", rt.UserID)
	assert.False(t, rt.Revoked)
	assert.Nil(t, rt.ReplacedByToken)
}

func TestTokenRepositoryFindByTokenMissing(t *testing.T) {
	db, mock, cleanup := newTokenRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectQuery("SELECT .+ FROM refresh_tokens").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByToken(context.Background(), "ghost")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestTokenRepositoryRevokeAllForUser(t *testing.T) {
	db, mock, cleanup := newTokenRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1 AND revoked = FALSE")).
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	err := repo.RevokeAllForUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryRotate(t *testing.T) {
	db, mock, cleanup := newTokenRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked = TRUE, replaced_by_token = $2 WHERE token = $1 AND revoked = FALSE")).
		WithArgs("tok-old", "tok-new").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs("tok-new", "user-1", sqlmock.AnyArg(), sqlmock.AnyArg(), false, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Rotate(context.Background(), "tok-old", sampleToken("tok-new"))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryRotateConflict(t *testing.T) {
	db, mock, cleanup := newTokenRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	// CAS touches zero rows when the token was already rotated; the successor
	// insert must never run.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE refresh_tokens SET revoked = TRUE, replaced_by_token").
		WithArgs("tok-old", "tok-new").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Rotate(context.Background(), "tok-old", sampleToken("tok-new"))
	assert.ErrorIs(t, err, ErrRotationConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}
