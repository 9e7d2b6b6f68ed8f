package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionState is the life cycle state of the wallet session
type SessionState string

const (
	SessionStateDisconnected SessionState = "disconnected"
	SessionStateConnecting   SessionState = "connecting"
	SessionStateConnected    SessionState = "connected"
)

// Session is the in-memory binding between this client and one verified wallet address.
// It is never persisted.
type Session struct {
	Address           string       `json:"address"`
	Connected         bool         `json:"connected"`
	NetworkID         string       `json:"networkId"`
	ObservedNetworkID string       `json:"observedNetworkId,omitempty"`
	NetworkMismatch   bool         `json:"networkMismatch"`
	Generation        uint64       `json:"generation"`
	State             SessionState `json:"state"`
	ConnectedAt       time.Time    `json:"connectedAt"`
}

// BalanceCache is the last known token balance for the connected address
type BalanceCache struct {
	Amount        decimal.Decimal `json:"amount"`
	LastRefreshed time.Time       `json:"lastRefreshed"`
}

// IsZero reports whether the cache has never been filled
func (b BalanceCache) IsZero() bool {
	return b.LastRefreshed.IsZero()
}
