package repository

import (
	"context"
	"testing"

	"insightquest/repository/testutil"
	"insightquest/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ service.SessionMemory = (*SessionMemoryRepository)(nil)
	_ service.SessionMemory = (*RedisSessionMemory)(nil)
)

// exerciseSessionMemory runs the shared behaviour every SessionMemory must have
func exerciseSessionMemory(t *testing.T, memory, other service.SessionMemory) {
	ctx := context.Background()

	address, err := memory.Recall(ctx)
	require.NoError(t, err)
	assert.Empty(t, address)

	require.NoError(t, memory.Remember(ctx, testAddress))
	address, err = memory.Recall(ctx)
	require.NoError(t, err)
	assert.Equal(t, testAddress, address)

	// another client does not see it
	address, err = other.Recall(ctx)
	require.NoError(t, err)
	assert.Empty(t, address)

	second := "0x2222222222222222222222222222222222222222"
	require.NoError(t, memory.Remember(ctx, second))
	address, err = memory.Recall(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, address)

	require.NoError(t, memory.Forget(ctx))
	address, err = memory.Recall(ctx)
	require.NoError(t, err)
	assert.Empty(t, address)

	// forgetting twice is fine
	require.NoError(t, memory.Forget(ctx))
}

func TestSessionMemoryRepository(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	exerciseSessionMemory(t,
		NewSessionMemoryRepository(testDB.DB, "desktop"),
		NewSessionMemoryRepository(testDB.DB, "laptop"),
	)
}

func TestRedisSessionMemory(t *testing.T) {
	t.Parallel()
	client := testutil.SetupTestRedis(t)

	exerciseSessionMemory(t,
		NewRedisSessionMemory(client, "desktop"),
		NewRedisSessionMemory(client, "laptop"),
	)
}
