package service

import (
	"context"
	"time"

	"insightquest/models"

	"github.com/shopspring/decimal"
)

// UserRecordStore defines the interface for user record persistence
type UserRecordStore interface {
	// Get retrieves a user by normalized address, returning nil if absent
	Get(ctx context.Context, address string) (*models.User, error)

	// Save inserts or replaces the full record
	Save(ctx context.Context, user *models.User) error
}

// LedgerClient defines the token ledger operations the session uses
type LedgerClient interface {
	// BalanceOf returns the token balance for an address on the configured network
	BalanceOf(ctx context.Context, address string) (decimal.Decimal, error)
}

// WalletProvider is the injected wallet capability
type WalletProvider interface {
	// Available reports whether a wallet is present and reachable
	Available() bool

	// CurrentNetworkID returns the chain id the wallet is on, lowercase hex
	CurrentNetworkID(ctx context.Context) (string, error)

	// RequestNetworkSwitch asks the wallet to switch to the given chain
	RequestNetworkSwitch(ctx context.Context, networkID string) (models.SwitchResult, error)

	// RequestAddNetwork asks the wallet to add a chain; false means the user or provider refused
	RequestAddNetwork(ctx context.Context, network models.NetworkDescriptor) (bool, error)

	// RequestAccounts asks the wallet for authorized accounts
	RequestAccounts(ctx context.Context) ([]string, error)

	// WatchAsset asks the wallet to track a token
	WatchAsset(ctx context.Context, asset models.TokenAsset) (bool, error)

	// OnNetworkOrAccountChanged registers a listener and returns a function that removes it
	OnNetworkOrAccountChanged(listener func(models.WalletChange)) func()
}

// SessionMemory remembers the last connected address across restarts
type SessionMemory interface {
	Remember(ctx context.Context, address string) error

	// Recall returns the remembered address or an empty string
	Recall(ctx context.Context) (string, error)

	Forget(ctx context.Context) error
}

// Metrics records session core measurements
type Metrics interface {
	RecordLogin(restored bool, reward int64)
	RecordXPAwarded(amount int64)
	RecordLevelUp(level int)
	RecordBalanceFetch(outcome string, duration time.Duration)
}

// Clock returns the current time
type Clock func() time.Time

// Balance fetch outcomes reported to Metrics
const (
	FetchOutcomeSuccess   = "success"
	FetchOutcomeFailure   = "failure"
	FetchOutcomeDiscarded = "discarded"
)

type noopMetrics struct{}

func (noopMetrics) RecordLogin(bool, int64) {}
func (noopMetrics) RecordXPAwarded(int64) {}
func (noopMetrics) RecordLevelUp(int) {}
func (noopMetrics) RecordBalanceFetch(string, time.Duration) {}
