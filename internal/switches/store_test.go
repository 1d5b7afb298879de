package switches

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	require.NoError(t, client.FlushDB(ctx).Err())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.FlushDB(ctx).Err()
		_ = client.Close()
	})
	return client
}

func TestNewStore_NilClient(t *testing.T) {
	_, err := NewStore(nil)
	assert.Error(t, err)
}

func TestValidateVenueID(t *testing.T) {
	for _, id := range []string{"orca-whirlpool", "jupiter.raydium", "book_1"} {
		assert.NoError(t, ValidateVenueID(id), id)
	}
	for _, id := range []string{"", " ", "a:b", "with space", "tab\tbed"} {
		assert.Error(t, ValidateVenueID(id), id)
	}
}

func TestStore_DisableEnable(t *testing.T) {
	store, err := NewStore(setupTestRedis(t))
	require.NoError(t, err)
	ctx := context.Background()

	disabled, err := store.IsDisabled(ctx, "orca-whirlpool")
	require.NoError(t, err)
	assert.False(t, disabled)

	sw, err := store.Disable(ctx, "orca-whirlpool", "stale pool state")
	require.NoError(t, err)
	assert.True(t, sw.Disabled)
	assert.NotZero(t, sw.UpdatedAt)

	got, err := store.Get(ctx, "orca-whirlpool")
	require.NoError(t, err)
	assert.Equal(t, "stale pool state", got.Reason)

	disabled, err = store.IsDisabled(ctx, "orca-whirlpool")
	require.NoError(t, err)
	assert.True(t, disabled)

	require.NoError(t, store.Enable(ctx, "orca-whirlpool"))
	_, err = store.Get(ctx, "orca-whirlpool")
	assert.ErrorIs(t, err, ErrNotFound)

	// enabling twice is fine
	assert.NoError(t, store.Enable(ctx, "orca-whirlpool"))
}

func TestStore_List(t *testing.T) {
	store, err := NewStore(setupTestRedis(t))
	require.NoError(t, err)
	ctx := context.Background()

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	for _, id := range []string{"c", "a", "b"} {
		_, err := store.Disable(ctx, id, "")
		require.NoError(t, err)
	}

	list, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].VenueID)
	assert.Equal(t, "c", list[2].VenueID)
}

func TestStore_Concurrent(t *testing.T) {
	store, err := NewStore(setupTestRedis(t))
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				venue := fmt.Sprintf("venue.%d.%d", id, j)
				_, err := store.Disable(ctx, venue, "load")
				assert.NoError(t, err)
				disabled, err := store.IsDisabled(ctx, venue)
				assert.NoError(t, err)
				assert.True(t, disabled)
			}
		}(i)
	}
	wg.Wait()

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 200)
}
