package repository

import (
	"context"
	"testing"
	"time"

	"insightquest/repository/testutil"
	"insightquest/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ service.UserRecordStore = (*UserRepository)(nil)

const testAddress = "0xabcdef0123456789abcdef0123456789abcdef01"

func TestUserRepository_Get(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewUserRepository(testDB.DB)
	ctx := context.Background()

	t.Run("user not found", func(t *testing.T) {
		user, err := repo.Get(ctx, "0x0000000000000000000000000000000000000000")
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("user found", func(t *testing.T) {
		testUser := testutil.CreateTestUser(testAddress, "quester")
		require.NoError(t, repo.Save(ctx, testUser))

		user, err := repo.Get(ctx, testAddress)
		require.NoError(t, err)
		require.NotNil(t, user)

		assert.Equal(t, testAddress, user.ID)
		assert.Equal(t, testAddress, user.Address)
		assert.Equal(t, "quester", user.Username)
		assert.Equal(t, testUser.AvatarURL, user.AvatarURL)
		assert.Equal(t, int64(100), user.XP)
		assert.Equal(t, 2, user.Level)
		assert.Equal(t, "Novice", user.Stage)
		assert.Equal(t, 1, user.LoginStreak)
		require.NotNil(t, user.LastLogin)
		assert.True(t, testUser.LastLogin.Equal(*user.LastLogin))
		assert.False(t, user.CreatedAt.IsZero())
	})
}

func TestUserRepository_Save(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewUserRepository(testDB.DB)
	ctx := context.Background()

	t.Run("insert without last login", func(t *testing.T) {
		address := "0x1111111111111111111111111111111111111111"
		user := testutil.CreateTestUserWithXP(address, 0, 1)
		user.LastLogin = nil
		user.LoginStreak = 0

		require.NoError(t, repo.Save(ctx, user))
		assert.False(t, user.CreatedAt.IsZero())

		stored, err := repo.Get(ctx, address)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Nil(t, stored.LastLogin)
		assert.Equal(t, "user_111111", stored.Username)
	})

	t.Run("replaces the full record", func(t *testing.T) {
		address := "0x2222222222222222222222222222222222222222"
		user := testutil.CreateTestUserWithXP(address, 100, 2)
		require.NoError(t, repo.Save(ctx, user))
		createdAt := user.CreatedAt

		nextDay := user.LastLogin.AddDate(0, 0, 1)
		user.XP = 400
		user.Level = 3
		user.Username = "renamed"
		user.LastLogin = &nextDay
		user.LoginStreak = 2
		require.NoError(t, repo.Save(ctx, user))

		stored, err := repo.Get(ctx, address)
		require.NoError(t, err)
		assert.Equal(t, int64(400), stored.XP)
		assert.Equal(t, 3, stored.Level)
		assert.Equal(t, "renamed", stored.Username)
		assert.Equal(t, 2, stored.LoginStreak)
		assert.True(t, nextDay.Equal(*stored.LastLogin))
		assert.True(t, createdAt.Equal(stored.CreatedAt))
		assert.False(t, stored.UpdatedAt.Before(createdAt))
	})

	t.Run("rejects negative xp", func(t *testing.T) {
		user := testutil.CreateTestUserWithXP("0x3333333333333333333333333333333333333333", -1, 1)
		assert.Error(t, repo.Save(ctx, user))
	})

	t.Run("rejects uppercase address", func(t *testing.T) {
		user := testutil.CreateTestUserWithXP("0xABCDEF0000000000000000000000000000000000", 0, 1)
		assert.Error(t, repo.Save(ctx, user))
	})

	t.Run("last login is stored as a date", func(t *testing.T) {
		address := "0x4444444444444444444444444444444444444444"
		user := testutil.CreateTestUserWithXP(address, 0, 1)
		late := time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC)
		user.LastLogin = &late
		require.NoError(t, repo.Save(ctx, user))

		stored, err := repo.Get(ctx, address)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), stored.LastLogin.UTC())
	})
}
