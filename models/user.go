package models

import (
	"time"
)

// User represents a wallet holder and their progression record
type User struct {
	ID          string     `db:"id"` // always equal to Address
	Address     string     `db:"address"`
	Username    string     `db:"username"`
	AvatarURL   string     `db:"avatar_url"`
	XP          int64      `db:"xp"`
	Level       int        `db:"level"`
	Stage       string     `db:"stage"`
	LastLogin   *time.Time `db:"last_login"` // calendar date, nil before the first processed login
	LoginStreak int        `db:"login_streak"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

// Clone returns a deep copy so callers can mutate without touching the original
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.LastLogin != nil {
		d := *u.LastLogin
		c.LastLogin = &d
	}
	return &c
}
