package service

import (
	"context"
	"sync"
	"time"

	"insightquest/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockUserRecordStore is a mock implementation of UserRecordStore
type MockUserRecordStore struct {
	mock.Mock
}

func (m *MockUserRecordStore) Get(ctx context.Context, address string) (*models.User, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// hand out a copy so callers cannot mutate the stubbed record
	return args.Get(0).(*models.User).Clone(), args.Error(1)
}

func (m *MockUserRecordStore) Save(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user.Clone())
	return args.Error(0)
}

// MockLedgerClient is a mock implementation of LedgerClient
type MockLedgerClient struct {
	mock.Mock
}

func (m *MockLedgerClient) BalanceOf(ctx context.Context, address string) (decimal.Decimal, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// MockWalletProvider is a mock implementation of WalletProvider.
// Listeners registered through OnNetworkOrAccountChanged can be fired with Emit.
type MockWalletProvider struct {
	mock.Mock

	listenerMu sync.Mutex
	listeners  map[int]func(models.WalletChange)
	nextID     int
}

func (m *MockWalletProvider) Available() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockWalletProvider) CurrentNetworkID(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockWalletProvider) RequestNetworkSwitch(ctx context.Context, networkID string) (models.SwitchResult, error) {
	args := m.Called(ctx, networkID)
	return args.Get(0).(models.SwitchResult), args.Error(1)
}

func (m *MockWalletProvider) RequestAddNetwork(ctx context.Context, network models.NetworkDescriptor) (bool, error) {
	args := m.Called(ctx, network)
	return args.Bool(0), args.Error(1)
}

func (m *MockWalletProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockWalletProvider) WatchAsset(ctx context.Context, asset models.TokenAsset) (bool, error) {
	args := m.Called(ctx, asset)
	return args.Bool(0), args.Error(1)
}

func (m *MockWalletProvider) OnNetworkOrAccountChanged(listener func(models.WalletChange)) func() {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	if m.listeners == nil {
		m.listeners = make(map[int]func(models.WalletChange))
	}
	id := m.nextID
	m.nextID++
	m.listeners[id] = listener

	return func() {
		m.listenerMu.Lock()
		defer m.listenerMu.Unlock()
		delete(m.listeners, id)
	}
}

// Emit delivers change to every registered listener
func (m *MockWalletProvider) Emit(change models.WalletChange) {
	m.listenerMu.Lock()
	listeners := make([]func(models.WalletChange), 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.listenerMu.Unlock()

	for _, l := range listeners {
		l(change)
	}
}

// ListenerCount returns the number of registered listeners
func (m *MockWalletProvider) ListenerCount() int {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	return len(m.listeners)
}

// MockSessionMemory is a mock implementation of SessionMemory
type MockSessionMemory struct {
	mock.Mock
}

func (m *MockSessionMemory) Remember(ctx context.Context, address string) error {
	args := m.Called(ctx, address)
	return args.Error(0)
}

func (m *MockSessionMemory) Recall(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockSessionMemory) Forget(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockMetrics is a mock implementation of Metrics
type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) RecordLogin(restored bool, reward int64) {
	m.Called(restored, reward)
}

func (m *MockMetrics) RecordXPAwarded(amount int64) {
	m.Called(amount)
}

func (m *MockMetrics) RecordLevelUp(level int) {
	m.Called(level)
}

func (m *MockMetrics) RecordBalanceFetch(outcome string, duration time.Duration) {
	m.Called(outcome, duration)
}
