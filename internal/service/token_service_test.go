package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnchalDevBytes/challan-maker/internal/models"
	"github.com/AnchalDevBytes/challan-maker/internal/repository"
	"github.com/AnchalDevBytes/challan-maker/pkg/config"
	appErrors "github.com/AnchalDevBytes/challan-maker/pkg/errors"
)

// memoryLedger mirrors TokenRepository semantics in memory, including the
// compare-and-swap behaviour of Rotate.
type memoryLedger struct {
	mu      sync.Mutex
	records map[string]*models.RefreshToken
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{records: make(map[string]*models.RefreshToken)}
}

func (m *memoryLedger) Insert(_ context.Context, token *models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[token.Token]; exists {
		return appErrors.Clone(appErrors.ErrDuplicateToken, "")
	}
	cp := *token
	m.records[token.Token] = &cp
	return nil
}

func (m *memoryLedger) FindByToken(_ context.Context, token string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *rec
	return &cp, nil
}

func (m *memoryLedger) Revoke(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[token]; ok {
		rec.Revoked = true
	}
	return nil
}

func (m *memoryLedger) RevokeAllForUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.UserID == userID {
			rec.Revoked = true
		}
	}
	return nil
}

func (m *memoryLedger) Rotate(_ context.Context, oldToken string, next *models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[oldToken]
	if !ok || rec.Revoked {
		return repository.ErrRotationConflict
	}
	rec.Revoked = true
	nextToken := next.Token
	rec.ReplacedByToken = &nextToken
	cp := *next
	m.records[next.Token] = &cp
	return nil
}

func (m *memoryLedger) get(token string) *models.RefreshToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[token]; ok {
		cp := *rec
		return &cp
	}
	return nil
}

func (m *memoryLedger) liveCountForUser(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, rec := range m.records {
		if rec.UserID == userID && !rec.Revoked {
			count++
		}
	}
	return count
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		AccessSecret:  "test-access-secret",
		RefreshSecret: "test-refresh-secret",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 7 * 24 * time.Hour,
		Issuer:        "challan-maker-test",
	}
}

func newTestTokenService(ledger tokenLedger) *TokenService {
	return NewTokenService(ledger, nil, nil, testAuthConfig())
}

func TestIssueCreatesSingleLiveRecord(t *testing.T) {
	ledger := newMemoryLedger()
	svc := newTestTokenService(ledger)

	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issuedAt }

	pair, err := svc.Issue(context.Background(), "u1", "10.0.0.1")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	assert.Equal(t, 1, ledger.liveCountForUser("u1"))
	rec := ledger.get(pair.RefreshToken)
	require.NotNil(t, rec)
	assert.Equal(t, "u1", rec.UserID)
	assert.False(t, rec.Revoked)
	assert.Equal(t, issuedAt, rec.IssuedAt)
	assert.Equal(t, issuedAt.Add(7*24*time.Hour), rec.ExpiresAt)
	require.NotNil(t, rec.IPAddress)
	assert.Equal(t, "10.0.0.1", *rec.IPAddress)
}

func TestRefreshRotationChain(t *testing.T) {
	ledger := newMemoryLedger()
	svc := newTestTokenService(ledger)

	first, err := svc.Issue(context.Background(), "u1", "")
	require.NoError(t, err)

	second, err := svc.Refresh(context.Background(), first.RefreshToken, "")
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	old := ledger.get(first.RefreshToken)
	require.NotNil(t, old)
	assert.True(t, old.Revoked)
	require.NotNil(t, old.ReplacedByToken)
	assert.Equal(t, second.RefreshToken, *old.ReplacedByToken)

	next := ledger.get(second.RefreshToken)
	require.NotNil(t, next)
	assert.False(t, next.Revoked)
	assert.Equal(t, 1, ledger.liveCountForUser("u1"))
}

func TestRefreshReplayKillsSessionFamily(t *testing.T) {
	ledger := newMemoryLedger()
	svc := newTestTokenService(ledger)
	ctx := context.Background()

	first, err := svc.Issue(ctx, "u1", "")
	require.NoError(t, err)
	second, err := svc.Refresh(ctx, first.RefreshToken, "")
	require.NoError(t, err)

	// Attacker replays the rotated-away token.
	_, err = svc.Refresh(ctx, first.RefreshToken, "")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrTokenReuseDetected))
	assert.Equal(t, 0, ledger.liveCountForUser("u1"))

	// The legitimate client's token was collateral damage.
	next := ledger.get(second.RefreshToken)
	require.NotNil(t, next)
	assert.True(t, next.Revoked)

	_, err = svc.Refresh(ctx, second.RefreshToken, "")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrTokenReuseDetected))
}

func TestRefreshExpiredToken(t *testing.T) {
	ledger := newMemoryLedger()
	svc := newTestTokenService(ledger)
	ctx := context.Background()

	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issuedAt }
	pair, err := svc.Issue(ctx, "u1", "")
	require.NoError(t, err)

	svc.now = func() time.Time { return issuedAt.Add(7*24*time.Hour + time.Minute) }
	_, err = svc.Refresh(ctx, pair.RefreshToken, "")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrTokenExpired))
	assert.False(t, appErrors.Is(err, appErrors.ErrTokenReuseDetected))
}

func TestRefreshReusePrecedesExpiry(t *testing.T) {
	ledger := newMemoryLedger()
	svc := newTestTokenService(ledger)
	ctx := context.Background()

	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issuedAt }
	pair, err := svc.Issue(ctx, "u1", "")
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, pair.RefreshToken, "")
	require.NoError(t, err)

	// The replayed token is both revoked and past its expiry; theft wins.
	svc.now = func() time.Time { return issuedAt.Add(8 * 24 * time.Hour) }
	_, err = svc.Refresh(ctx, pair.RefreshToken, "")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrTokenReuseDetected))
}

func TestRefreshUnknownToken(t *testing.T) {
	svc := newTestTokenService(newMemoryLedger())

	_, err := svc.Refresh(context.Background(), "garbage-token-never-issued", "")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidToken))
}

func TestRevokeIsIdempotent(t *testing.T) {
	ledger := newMemoryLedger()
	svc := newTestTokenService(ledger)
	ctx := context.Background()

	pair, err := svc.Issue(ctx, "u1", "")
	require.NoError(t, err)

	svc.Revoke(ctx, pair.RefreshToken)
	svc.Revoke(ctx, pair.RefreshToken)
	svc.Revoke(ctx, "never-issued")
	svc.Revoke(ctx, "")

	rec := ledger.get(pair.RefreshToken)
	require.NotNil(t, rec)
	assert.True(t, rec.Revoked)
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	ledger := newMemoryLedger()
	svc := newTestTokenService(ledger)
	ctx := context.Background()

	pair, err := svc.Issue(ctx, "u1", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Refresh(ctx, pair.RefreshToken, "")
		}(i)
	}
	wg.Wait()

	var successes int
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		loserRejected := appErrors.Is(err, appErrors.ErrInvalidToken) ||
			appErrors.Is(err, appErrors.ErrTokenReuseDetected)
		assert.True(t, loserRejected, "unexpected loser error: %v", err)
	}
	assert.Equal(t, 1, successes)

	// The winner's successor is the only live record unless the loser hit the
	// reuse path, which sweeps the family.
	assert.LessOrEqual(t, ledger.liveCountForUser("u1"), 1)
}

func TestVerifyAccessToken(t *testing.T) {
	svc := newTestTokenService(newMemoryLedger())

	token, err := svc.Mint("u1", SecretAccess)
	require.NoError(t, err)

	subject, err := svc.Verify(token, SecretAccess)
	require.NoError(t, err)
	assert.Equal(t, "u1", subject)
}

func TestVerifyRejectsWrongSecretKind(t *testing.T) {
	svc := newTestTokenService(newMemoryLedger())

	refresh, err := svc.Mint("u1", SecretRefresh)
	require.NoError(t, err)

	_, err = svc.Verify(refresh, SecretAccess)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidToken))
}

func TestVerifyRejectsExpiredAndGarbage(t *testing.T) {
	svc := newTestTokenService(newMemoryLedger())

	svc.now = func() time.Time { return time.Now().UTC().Add(-time.Hour) }
	expired, err := svc.Mint("u1", SecretAccess)
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Now().UTC() }

	_, err = svc.Verify(expired, SecretAccess)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidToken))

	_, err = svc.Verify("not-a-jwt", SecretAccess)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidToken))
}

func TestMintedTokensAreUnique(t *testing.T) {
	svc := newTestTokenService(newMemoryLedger())
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	a, err := svc.Mint("u1", SecretRefresh)
	require.NoError(t, err)
	b, err := svc.Mint("u1", SecretRefresh)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
