package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/AnchalDevBytes/challan-maker/pkg/errors"
)

func newCacheRepo(t *testing.T) (*CacheRepository, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCacheRepository(client), mr
}

func TestCacheRepositoryRoundTrip(t *testing.T) {
	repo, _ := newCacheRepo(t)
	ctx := context.Background()

	type entry struct {
		ID    string  `json:"id"`
		Total float64 `json:"total"`
	}

	err := repo.Set(ctx, "invoices:list:u1", []entry{{ID: "inv-1", Total: 1228}}, time.Minute)
	require.NoError(t, err)

	var got []entry
	require.NoError(t, repo.Get(ctx, "invoices:list:u1", &got))
	require.Len(t, got, 1)
	assert.Equal(t, "inv-1", got[0].ID)
	assert.InDelta(t, 1228.0, got[0].Total, 0.001)
}

func TestCacheRepositoryMiss(t *testing.T) {
	repo, _ := newCacheRepo(t)

	var dest map[string]string
	err := repo.Get(context.Background(), "missing", &dest)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrCacheMiss))
}

func TestCacheRepositoryExpiry(t *testing.T) {
	repo, mr := newCacheRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "key", "value", time.Minute))
	mr.FastForward(2 * time.Minute)

	var dest string
	err := repo.Get(ctx, "key", &dest)
	assert.True(t, appErrors.Is(err, appErrors.ErrCacheMiss))
}

func TestCacheRepositoryDelete(t *testing.T) {
	repo, _ := newCacheRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "key", "value", time.Minute))
	require.NoError(t, repo.Delete(ctx, "key"))
	require.NoError(t, repo.Delete(ctx, "key"))

	var dest string
	err := repo.Get(ctx, "key", &dest)
	assert.True(t, appErrors.Is(err, appErrors.ErrCacheMiss))
}
