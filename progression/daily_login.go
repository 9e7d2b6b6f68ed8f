package progression

import (
	"time"

	"insightquest/models"
)

const (
	BaseLoginReward   int64 = 100
	ShortStreakBonus  int64 = 50  // streak of 3 to 6 days
	LongStreakBonus   int64 = 100 // streak of 7 days or more
	ShortStreakLength       = 3
	LongStreakLength        = 7
)

// LoginOutcome describes what a daily login transition did
type LoginOutcome struct {
	Applied   bool
	Reward    int64
	Streak    int
	OldLevel  int
	NewLevel  int
	LeveledUp bool
}

// Day truncates t to its UTC calendar date
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same UTC calendar date
func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}

// DailyReward is the xp granted for a login that produces the given streak
func DailyReward(streak int) int64 {
	switch {
	case streak >= LongStreakLength:
		return BaseLoginReward + LongStreakBonus
	case streak >= ShortStreakLength:
		return BaseLoginReward + ShortStreakBonus
	default:
		return BaseLoginReward
	}
}

// NextStreak computes the streak after a login on today. A login on the day after
// lastLogin continues the streak, anything else starts over at 1.
func NextStreak(lastLogin *time.Time, streak int, today time.Time) int {
	if lastLogin == nil {
		return 1
	}
	yesterday := Day(today).AddDate(0, 0, -1)
	if Day(*lastLogin).Equal(yesterday) {
		return streak + 1
	}
	return 1
}

// Normalize recomputes level from xp and stage from level
func Normalize(user models.User) models.User {
	user.Level = LevelForXP(user.XP)
	user.Stage = string(StageForLevel(user.Level))
	return user
}

// ApplyDailyLogin processes a login on today. If the user already logged in on
// today the record is returned unchanged and Applied is false.
func ApplyDailyLogin(user models.User, today time.Time) (models.User, LoginOutcome) {
	today = Day(today)
	if user.LastLogin != nil && Day(*user.LastLogin).Equal(today) {
		return user, LoginOutcome{Streak: user.LoginStreak, OldLevel: user.Level, NewLevel: user.Level}
	}

	streak := NextStreak(user.LastLogin, user.LoginStreak, today)
	reward := DailyReward(streak)
	oldLevel := user.Level

	user.XP += reward
	user.Level = LevelForXP(user.XP)
	user.Stage = string(StageForLevel(user.Level))
	user.LastLogin = &today
	user.LoginStreak = streak

	return user, LoginOutcome{
		Applied:   true,
		Reward:    reward,
		Streak:    streak,
		OldLevel:  oldLevel,
		NewLevel:  user.Level,
		LeveledUp: user.Level != oldLevel,
	}
}

// AwardXP adds amount to the user's xp and recomputes level and stage
func AwardXP(user models.User, amount int64) (models.User, bool) {
	oldLevel := user.Level
	user.XP += amount
	user.Level = LevelForXP(user.XP)
	user.Stage = string(StageForLevel(user.Level))
	return user, user.Level > oldLevel
}
