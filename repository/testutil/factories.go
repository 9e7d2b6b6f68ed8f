package testutil

import (
	"time"

	"insightquest/models"
)

// CreateTestUser creates a first-login user record for address
func CreateTestUser(address, username string) *models.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return &models.User{
		ID:          address,
		Address:     address,
		Username:    username,
		AvatarURL:   "https://api.dicebear.com/6.x/avataaars/svg?seed=test",
		XP:          100,
		Level:       2,
		Stage:       "Novice",
		LastLogin:   &today,
		LoginStreak: 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// CreateTestUserWithXP creates a user record with a specific xp and level
func CreateTestUserWithXP(address string, xp int64, level int) *models.User {
	user := CreateTestUser(address, "user_"+address[2:8])
	user.XP = xp
	user.Level = level
	return user
}
