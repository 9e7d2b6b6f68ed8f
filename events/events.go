package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeLoggedIn        EventType = "logged_in"
	EventTypeLevelChanged    EventType = "level_changed"
	EventTypeBalanceUpdated  EventType = "balance_updated"
	EventTypeSessionEnded    EventType = "session_ended"
	EventTypeNetworkMismatch EventType = "network_mismatch"
	EventTypeXPAwarded       EventType = "xp_awarded"
)

// AllEventTypes lists every event type the session core emits
func AllEventTypes() []EventType {
	return []EventType{
		EventTypeLoggedIn,
		EventTypeLevelChanged,
		EventTypeBalanceUpdated,
		EventTypeSessionEnded,
		EventTypeNetworkMismatch,
		EventTypeXPAwarded,
	}
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
	// SessionGeneration is the generation of the session that caused the event
	SessionGeneration() uint64
}

// Publisher accepts events without blocking the caller
type Publisher interface {
	Publish(event Event)
}

// LoggedInEvent is emitted once a session has been established
type LoggedInEvent struct {
	Address     string `json:"address"`
	Generation  uint64 `json:"generation"`
	Restored    bool   `json:"restored"`
	NewUser     bool   `json:"newUser"`
	Reward      int64  `json:"reward"` // zero when the daily login was already processed today
	LoginStreak int    `json:"loginStreak"`
	XP          int64  `json:"xp"`
	Level       int    `json:"level"`
	Stage       string `json:"stage"`
}

func (e LoggedInEvent) Type() EventType           { return EventTypeLoggedIn }
func (e LoggedInEvent) SessionGeneration() uint64 { return e.Generation }

// LevelChangedEvent is emitted after a persisted record moved to a higher level
type LevelChangedEvent struct {
	Address    string `json:"address"`
	Generation uint64 `json:"generation"`
	OldLevel   int    `json:"oldLevel"`
	NewLevel   int    `json:"newLevel"`
	Stage      string `json:"stage"`
}

func (e LevelChangedEvent) Type() EventType           { return EventTypeLevelChanged }
func (e LevelChangedEvent) SessionGeneration() uint64 { return e.Generation }

// XPAwardedEvent is emitted after an xp award has been persisted
type XPAwardedEvent struct {
	Address    string `json:"address"`
	Generation uint64 `json:"generation"`
	Amount     int64  `json:"amount"`
	XP         int64  `json:"xp"`
}

func (e XPAwardedEvent) Type() EventType           { return EventTypeXPAwarded }
func (e XPAwardedEvent) SessionGeneration() uint64 { return e.Generation }

// BalanceUpdatedEvent carries a freshly fetched token balance
type BalanceUpdatedEvent struct {
	Address       string          `json:"address"`
	Generation    uint64          `json:"generation"`
	Amount        decimal.Decimal `json:"amount"`
	LastRefreshed time.Time       `json:"lastRefreshed"`
}

func (e BalanceUpdatedEvent) Type() EventType           { return EventTypeBalanceUpdated }
func (e BalanceUpdatedEvent) SessionGeneration() uint64 { return e.Generation }

// SessionEndedEvent is emitted when a connected session is torn down
type SessionEndedEvent struct {
	Address    string `json:"address"`
	Generation uint64 `json:"generation"`
	Reason     string `json:"reason"`
}

func (e SessionEndedEvent) Type() EventType           { return EventTypeSessionEnded }
func (e SessionEndedEvent) SessionGeneration() uint64 { return e.Generation }

// NetworkMismatchEvent warns that the wallet reports a network other than the required one
type NetworkMismatchEvent struct {
	Address    string `json:"address"`
	Generation uint64 `json:"generation"`
	Required   string `json:"required"`
	Actual     string `json:"actual"`
}

func (e NetworkMismatchEvent) Type() EventType           { return EventTypeNetworkMismatch }
func (e NetworkMismatchEvent) SessionGeneration() uint64 { return e.Generation }
