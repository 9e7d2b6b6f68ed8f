package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"insightquest/events"
	"insightquest/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testChainID = "0xaa36a7"
	testAddress = "0xabcdef0123456789abcdef0123456789abcdef01"
	// as a wallet would report it
	testChecksumAddress = "0xABCDEF0123456789abcdef0123456789ABCDEF01"
)

var testNetwork = models.NetworkDescriptor{
	ChainID:        testChainID,
	ChainName:      "Sepolia",
	RPCURLs:        []string{"https://rpc.sepolia.org"},
	CurrencyName:   "Sepolia Ether",
	CurrencySymbol: "ETH",
	Decimals:       18,
	ExplorerURLs:   []string{"https://sepolia.etherscan.io"},
}

var testToken = models.TokenAsset{
	Address:  "0x1111111111111111111111111111111111111111",
	Symbol:   "TASK",
	Decimals: 18,
}

// recordingPublisher keeps every published event plus markers for store writes,
// so tests can check that events follow the write that caused them.
type recordingPublisher struct {
	mu       sync.Mutex
	events   []events.Event
	sequence []string
}

func (p *recordingPublisher) Publish(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	p.sequence = append(p.sequence, string(e.Type()))
}

func (p *recordingPublisher) mark(label string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sequence = append(p.sequence, label)
}

func (p *recordingPublisher) Events() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

func (p *recordingPublisher) OfType(t events.EventType) []events.Event {
	var out []events.Event
	for _, e := range p.Events() {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

// Sequence returns markers and event types in order, leaving out balance updates
// which arrive from the synchronizer goroutine.
func (p *recordingPublisher) Sequence() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, s := range p.sequence {
		if s != string(events.EventTypeBalanceUpdated) {
			out = append(out, s)
		}
	}
	return out
}

// recordingMetrics reports balance fetch outcomes on a channel
type recordingMetrics struct {
	noopMetrics
	fetches chan string
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{fetches: make(chan string, 64)}
}

func (m *recordingMetrics) RecordBalanceFetch(outcome string, _ time.Duration) {
	select {
	case m.fetches <- outcome:
	default:
	}
}

func (m *recordingMetrics) waitFetch(t *testing.T) string {
	t.Helper()
	select {
	case outcome := <-m.fetches:
		return outcome
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for balance fetch")
		return ""
	}
}

// testClock is a settable clock safe for use from background goroutines
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(now time.Time) *testClock {
	return &testClock{now: now}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

type sessionFixture struct {
	wallet    *MockWalletProvider
	store     *MockUserRecordStore
	ledger    *MockLedgerClient
	memory    *MockSessionMemory
	publisher *recordingPublisher
	metrics   *recordingMetrics
	clock     *testClock
	manager   *SessionManager
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	f := &sessionFixture{
		wallet:    new(MockWalletProvider),
		store:     new(MockUserRecordStore),
		ledger:    new(MockLedgerClient),
		memory:    new(MockSessionMemory),
		publisher: &recordingPublisher{},
		metrics:   newRecordingMetrics(),
		clock:     newTestClock(time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)),
	}

	f.wallet.On("WatchAsset", mock.Anything, testToken).Return(true, nil).Maybe()
	f.memory.On("Remember", mock.Anything, testAddress).Return(nil).Maybe()
	f.memory.On("Forget", mock.Anything).Return(nil).Maybe()

	f.useMemory(t, f.memory)
	return f
}

// useMemory replaces the manager with one backed by memory, which may be nil
func (f *sessionFixture) useMemory(t *testing.T, memory SessionMemory) {
	t.Helper()
	if f.manager != nil {
		f.manager.Close()
	}

	f.manager = NewSessionManager(SessionManagerConfig{
		Wallet:       f.wallet,
		Store:        f.store,
		Ledger:       f.ledger,
		Memory:       memory,
		Publisher:    f.publisher,
		Metrics:      f.metrics,
		Clock:        f.clock.Now,
		Network:      testNetwork,
		Token:        testToken,
		PollInterval: time.Hour,
	})
	t.Cleanup(f.manager.Close)
}

// slowMemory holds a single remembered address and parks Remember until released
type slowMemory struct {
	mu      sync.Mutex
	address string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newSlowMemory() *slowMemory {
	return &slowMemory{entered: make(chan struct{}), release: make(chan struct{})}
}

func (m *slowMemory) Remember(_ context.Context, address string) error {
	m.once.Do(func() { close(m.entered) })
	<-m.release

	m.mu.Lock()
	defer m.mu.Unlock()
	m.address = address
	return nil
}

func (m *slowMemory) Recall(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.address, nil
}

func (m *slowMemory) Forget(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.address = ""
	return nil
}

func (f *sessionFixture) stubBalance(amount string) {
	f.ledger.On("BalanceOf", mock.Anything, testAddress).Return(decimal.RequireFromString(amount), nil).Maybe()
}

// walletReady stubs a wallet already on the required network with one authorized account
func (f *sessionFixture) walletReady() {
	f.wallet.On("Available").Return(true).Maybe()
	f.wallet.On("CurrentNetworkID", mock.Anything).Return(testChainID, nil).Maybe()
	f.wallet.On("RequestAccounts", mock.Anything).Return([]string{testChecksumAddress}, nil).Maybe()
}

func (f *sessionFixture) today() time.Time {
	t := f.clock.Now()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// returningUser is a stored record whose last login was daysAgo days before today
func (f *sessionFixture) returningUser(xp int64, level, streak, daysAgo int) *models.User {
	last := f.today().AddDate(0, 0, -daysAgo)
	return &models.User{
		ID:          testAddress,
		Address:     testAddress,
		Username:    "quester",
		AvatarURL:   AvatarURL(testAddress),
		XP:          xp,
		Level:       level,
		Stage:       "Novice",
		LastLogin:   &last,
		LoginStreak: streak,
	}
}

func (f *sessionFixture) connect(t *testing.T) *models.User {
	t.Helper()
	user, err := f.manager.Connect(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.SessionStateConnected, f.manager.State())
	return user
}
