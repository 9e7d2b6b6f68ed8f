package service

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"insightquest/events"
	"insightquest/models"
	"insightquest/progression"

	log "github.com/sirupsen/logrus"
)

// Reasons carried by SessionEndedEvent
const (
	EndReasonDisconnect     = "disconnect"
	EndReasonReconnect      = "reconnect"
	EndReasonAccountChanged = "account_changed"
	EndReasonShutdown       = "shutdown"
)

const (
	watchAssetTimeout = 2 * time.Minute
	forgetTimeout     = 5 * time.Second
)

// SessionManagerConfig holds the collaborators of a SessionManager
type SessionManagerConfig struct {
	Wallet    WalletProvider
	Store     UserRecordStore
	Ledger    LedgerClient
	Memory    SessionMemory // optional; restore is unavailable without it
	Publisher events.Publisher
	Metrics   Metrics
	Clock     Clock

	// Network is the chain every session must be on
	Network models.NetworkDescriptor
	// Token is offered to the wallet for tracking after login
	Token models.TokenAsset

	PollInterval time.Duration
}

// SessionManager owns the wallet session and the in-memory copy of the connected user.
// All user record mutations go through it.
type SessionManager struct {
	wallet       WalletProvider
	store        UserRecordStore
	ledger       LedgerClient
	memory       SessionMemory
	publisher    events.Publisher
	metrics      Metrics
	clock        Clock
	network      models.NetworkDescriptor
	token        models.TokenAsset
	pollInterval time.Duration

	locks *addressLocks

	// serializes Remember and Forget so a late Remember cannot outlive a disconnect
	memoryMu sync.Mutex

	// background work outlives the request that started the session
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.RWMutex
	state        models.SessionState
	session      models.Session
	user         *models.User
	generation   uint64
	synchronizer *BalanceSynchronizer
	unsubscribe  func()
}

// NewSessionManager creates a disconnected session manager
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultBalancePollInterval
	}
	cfg.Network.ChainID = NormalizeAddress(cfg.Network.ChainID)

	ctx, cancel := context.WithCancel(context.Background())
	return &SessionManager{
		wallet:       cfg.Wallet,
		store:        cfg.Store,
		ledger:       cfg.Ledger,
		memory:       cfg.Memory,
		publisher:    cfg.Publisher,
		metrics:      cfg.Metrics,
		clock:        cfg.Clock,
		network:      cfg.Network,
		token:        cfg.Token,
		pollInterval: cfg.PollInterval,
		locks:        newAddressLocks(),
		ctx:          ctx,
		cancel:       cancel,
		state:        models.SessionStateDisconnected,
	}
}

// Connect authorizes the wallet on the required network, loads the user record and
// processes the daily login. A call made while another connect is running is rejected.
func (m *SessionManager) Connect(ctx context.Context) (*models.User, error) {
	gen, err := m.beginConnect()
	if err != nil {
		return nil, err
	}

	log.WithField("generation", gen).Info("Connecting wallet session")

	user, err := m.connect(ctx, gen)
	if err != nil {
		m.abortConnect(gen)
		log.WithFields(log.Fields{
			"generation": gen,
			"error":      err,
		}).Warn("Wallet connect failed")
		return nil, err
	}
	return user, nil
}

// RestoreSession re-establishes the remembered session without asking the wallet for
// authorization. A wallet on the wrong network produces a NetworkMismatch event, not an error.
func (m *SessionManager) RestoreSession(ctx context.Context) (*models.User, error) {
	address, err := m.recall(ctx)
	if err != nil {
		return nil, err
	}

	gen, err := m.beginConnect()
	if err != nil {
		return nil, err
	}

	user, err := m.restore(ctx, gen, address)
	if err != nil {
		m.abortConnect(gen)
		log.WithFields(log.Fields{
			"generation": gen,
			"error":      err,
		}).Warn("Session restore failed")
		return nil, err
	}
	return user, nil
}

// Disconnect ends the current session and forgets the remembered address.
// In-flight work of the ended session is abandoned, not awaited.
func (m *SessionManager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case models.SessionStateDisconnected:
		m.mu.Unlock()
		return nil
	case models.SessionStateConnecting:
		aborted := m.generation
		m.generation++
		m.state = models.SessionStateDisconnected
		if m.publisher != nil {
			m.publisher.Publish(events.SessionEndedEvent{
				Generation: aborted,
				Reason:     EndReasonDisconnect,
			})
		}
		m.mu.Unlock()
		log.WithField("generation", aborted).Info("Cancelled connect in progress")
		return nil
	}
	ended := m.teardownLocked(EndReasonDisconnect)
	m.mu.Unlock()

	m.forget(ctx, ended.Address)
	return nil
}

// Close ends any session without forgetting it and stops background work
func (m *SessionManager) Close() {
	m.mu.Lock()
	switch m.state {
	case models.SessionStateConnected:
		m.teardownLocked(EndReasonShutdown)
	case models.SessionStateConnecting:
		m.generation++
		m.state = models.SessionStateDisconnected
	}
	m.mu.Unlock()
	m.cancel()
}

// AwardXP adds amount to the connected user's xp and persists the record
func (m *SessionManager) AwardXP(ctx context.Context, amount int64) (*models.User, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	gen, address, ok := m.current()
	if !ok {
		return nil, ErrNoActiveSession
	}

	release, err := m.locks.acquire(ctx, address)
	if err != nil {
		return nil, err
	}
	defer release()

	user, err := m.freshRecord(ctx, gen, address)
	if err != nil {
		return nil, err
	}

	if amount > math.MaxInt64-user.XP {
		return nil, fmt.Errorf("%w: xp %d cannot grow by %d", ErrInvalidAmount, user.XP, amount)
	}

	oldLevel := user.Level
	updated, leveledUp := progression.AwardXP(*user, amount)
	updated.UpdatedAt = m.clock()

	pending := events.NewPendingBus(m.publisherFor(gen))
	pending.Publish(events.XPAwardedEvent{
		Address:    address,
		Generation: gen,
		Amount:     amount,
		XP:         updated.XP,
	})
	if leveledUp {
		pending.Publish(events.LevelChangedEvent{
			Address:    address,
			Generation: gen,
			OldLevel:   oldLevel,
			NewLevel:   updated.Level,
			Stage:      updated.Stage,
		})
	}

	if err := m.store.Save(ctx, &updated); err != nil {
		pending.Discard()
		return nil, fmt.Errorf("%w: failed to save xp award: %v", ErrRecordStoreFailure, err)
	}

	m.setUser(gen, &updated)
	pending.Flush()

	m.metrics.RecordXPAwarded(amount)
	if leveledUp {
		m.metrics.RecordLevelUp(updated.Level)
	}

	log.WithFields(log.Fields{
		"address":    address,
		"generation": gen,
		"amount":     amount,
		"xp":         updated.XP,
		"userLevel":  updated.Level,
	}).Info("Awarded xp")

	return updated.Clone(), nil
}

// UpdateUsername renames the connected user
func (m *SessionManager) UpdateUsername(ctx context.Context, name string) (*models.User, error) {
	name, err := ValidateUsername(name)
	if err != nil {
		return nil, err
	}

	gen, address, ok := m.current()
	if !ok {
		return nil, ErrNoActiveSession
	}

	release, err := m.locks.acquire(ctx, address)
	if err != nil {
		return nil, err
	}
	defer release()

	user, err := m.freshRecord(ctx, gen, address)
	if err != nil {
		return nil, err
	}

	updated := *user
	updated.Username = name
	updated.UpdatedAt = m.clock()

	if err := m.store.Save(ctx, &updated); err != nil {
		return nil, fmt.Errorf("%w: failed to save username: %v", ErrRecordStoreFailure, err)
	}
	m.setUser(gen, &updated)

	log.WithFields(log.Fields{
		"address":  address,
		"username": name,
	}).Info("Updated username")

	return updated.Clone(), nil
}

// RefreshUser reloads the connected user from the store and requests a balance fetch
func (m *SessionManager) RefreshUser(ctx context.Context) (*models.User, error) {
	gen, address, ok := m.current()
	if !ok {
		return nil, ErrNoActiveSession
	}

	release, err := m.locks.acquire(ctx, address)
	if err != nil {
		return nil, err
	}
	defer release()

	stored, err := m.store.Get(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load user: %v", ErrRecordStoreFailure, err)
	}

	var user models.User
	changed := stored == nil
	if stored == nil {
		user = NewDefaultUser(address, m.clock())
	} else {
		user = progression.Normalize(*stored)
		changed = user.Level != stored.Level || user.Stage != stored.Stage
	}
	if user.AvatarURL == "" {
		user.AvatarURL = AvatarURL(address)
		changed = true
	}

	if changed {
		user.UpdatedAt = m.clock()
		if err := m.store.Save(ctx, &user); err != nil {
			return nil, fmt.Errorf("%w: failed to save refreshed user: %v", ErrRecordStoreFailure, err)
		}
	}

	if !m.setUser(gen, &user) {
		return nil, ErrNoActiveSession
	}
	_ = m.RefreshBalance()

	return user.Clone(), nil
}

// RefreshBalance requests an immediate balance fetch for the connected session
func (m *SessionManager) RefreshBalance() error {
	m.mu.RLock()
	synchronizer := m.synchronizer
	m.mu.RUnlock()

	if synchronizer == nil {
		return ErrNoActiveSession
	}
	synchronizer.Refresh()
	return nil
}

// EnsureNetwork re-runs the network switch for a connected session whose wallet moved away
func (m *SessionManager) EnsureNetwork(ctx context.Context) error {
	gen, _, ok := m.current()
	if !ok {
		return ErrNoActiveSession
	}

	if _, err := m.ensureNetwork(ctx); err != nil {
		return err
	}
	m.clearMismatch(gen)
	return nil
}

// State returns the life cycle state
func (m *SessionManager) State() models.SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Session returns a copy of the current session
func (m *SessionManager) Session() (models.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != models.SessionStateConnected {
		return models.Session{State: m.state, Generation: m.generation}, false
	}
	return m.session, true
}

// User returns a copy of the connected user
func (m *SessionManager) User() (*models.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil, false
	}
	return m.user.Clone(), true
}

// Balance returns the cached token balance of the connected address
func (m *SessionManager) Balance() (models.BalanceCache, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.synchronizer == nil {
		return models.BalanceCache{}, false
	}
	return m.synchronizer.Cache(), true
}

func (m *SessionManager) connect(ctx context.Context, gen uint64) (*models.User, error) {
	if m.wallet == nil || !m.wallet.Available() {
		return nil, ErrWalletUnavailable
	}

	networkID, err := m.ensureNetwork(ctx)
	if err != nil {
		return nil, err
	}
	if !m.isConnecting(gen) {
		return nil, ErrConnectAborted
	}

	accounts, err := m.wallet.RequestAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoAccount, err)
	}
	if len(accounts) == 0 || NormalizeAddress(accounts[0]) == "" {
		return nil, ErrNoAccount
	}
	address := NormalizeAddress(accounts[0])

	user, err := m.establish(ctx, gen, address, networkID, false)
	if err != nil {
		return nil, err
	}

	m.remember(ctx, gen, address)
	return user, nil
}

// recall reads the remembered address without touching the current session
func (m *SessionManager) recall(ctx context.Context) (string, error) {
	if m.memory == nil {
		return "", ErrNoRememberedSession
	}

	remembered, err := m.memory.Recall(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: failed to recall session: %v", ErrRecordStoreFailure, err)
	}
	address := NormalizeAddress(remembered)
	if address == "" {
		return "", ErrNoRememberedSession
	}
	return address, nil
}

func (m *SessionManager) restore(ctx context.Context, gen uint64, address string) (*models.User, error) {
	if m.wallet == nil || !m.wallet.Available() {
		return nil, ErrWalletUnavailable
	}

	log.WithFields(log.Fields{
		"address":    address,
		"generation": gen,
	}).Info("Restoring wallet session")

	observed, err := m.wallet.CurrentNetworkID(ctx)
	if err != nil {
		log.WithFields(log.Fields{
			"address": address,
			"error":   err,
		}).Warn("Could not read wallet network during restore")
	}
	observed = NormalizeAddress(observed)

	user, err := m.establish(ctx, gen, address, m.network.ChainID, true)
	if err != nil {
		return nil, err
	}

	if observed != m.network.ChainID {
		m.flagMismatch(gen, observed)
	}
	return user, nil
}

// ensureNetwork moves the wallet to the required network. An unknown network is added
// and the switch requested a second time.
func (m *SessionManager) ensureNetwork(ctx context.Context) (string, error) {
	required := m.network.ChainID

	current, err := m.wallet.CurrentNetworkID(ctx)
	if err == nil && NormalizeAddress(current) == required {
		return required, nil
	}

	result, err := m.wallet.RequestNetworkSwitch(ctx, required)
	if err != nil {
		return "", fmt.Errorf("%w: switch to %s: %v", ErrNetworkSetupFailed, required, err)
	}

	switch result {
	case models.SwitchOK:
		return required, nil
	case models.SwitchRejected:
		return "", fmt.Errorf("%w: switch to %s rejected", ErrNetworkSetupFailed, required)
	case models.SwitchUnknownNetwork:
	default:
		return "", fmt.Errorf("%w: unexpected switch result %s", ErrNetworkSetupFailed, result)
	}

	log.WithField("chainId", required).Info("Network unknown to wallet, requesting it be added")

	added, err := m.wallet.RequestAddNetwork(ctx, m.network)
	if err != nil {
		return "", fmt.Errorf("%w: add %s: %v", ErrNetworkSetupFailed, required, err)
	}
	if !added {
		return "", fmt.Errorf("%w: add %s rejected", ErrNetworkSetupFailed, required)
	}

	result, err = m.wallet.RequestNetworkSwitch(ctx, required)
	if err != nil {
		return "", fmt.Errorf("%w: switch to %s after add: %v", ErrNetworkSetupFailed, required, err)
	}
	if result != models.SwitchOK {
		return "", fmt.Errorf("%w: switch to %s after add: %s", ErrNetworkSetupFailed, required, result)
	}
	return required, nil
}

// establish loads or creates the record for address, applies the daily login, persists
// once if anything changed and moves the manager to Connected.
func (m *SessionManager) establish(ctx context.Context, gen uint64, address, networkID string, restored bool) (*models.User, error) {
	release, err := m.locks.acquire(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectAborted, err)
	}
	defer release()

	stored, err := m.store.Get(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load user: %v", ErrRecordStoreFailure, err)
	}

	now := m.clock()
	isNew := stored == nil

	var user models.User
	if isNew {
		user = NewDefaultUser(address, now)
	} else {
		user = *stored.Clone()
	}

	normalized := progression.Normalize(user)
	changed := isNew || normalized.Level != user.Level || normalized.Stage != user.Stage
	user = normalized

	if user.AvatarURL == "" {
		user.AvatarURL = AvatarURL(address)
		changed = true
	}

	user, outcome := progression.ApplyDailyLogin(user, now)
	changed = changed || outcome.Applied

	pending := events.NewPendingBus(m.publisherFor(gen))
	if outcome.LeveledUp {
		pending.Publish(events.LevelChangedEvent{
			Address:    address,
			Generation: gen,
			OldLevel:   outcome.OldLevel,
			NewLevel:   outcome.NewLevel,
			Stage:      user.Stage,
		})
	}

	if changed {
		if !m.isConnecting(gen) {
			pending.Discard()
			return nil, ErrConnectAborted
		}
		user.UpdatedAt = now
		if err := m.store.Save(ctx, &user); err != nil {
			pending.Discard()
			return nil, fmt.Errorf("%w: failed to save user: %v", ErrRecordStoreFailure, err)
		}
	}

	if err := m.commit(gen, address, networkID, &user); err != nil {
		pending.Discard()
		return nil, err
	}

	m.publishIfCurrent(gen, events.LoggedInEvent{
		Address:     address,
		Generation:  gen,
		Restored:    restored,
		NewUser:     isNew,
		Reward:      outcome.Reward,
		LoginStreak: user.LoginStreak,
		XP:          user.XP,
		Level:       user.Level,
		Stage:       user.Stage,
	})
	pending.Flush()
	m.startSynchronizer(gen)

	m.metrics.RecordLogin(restored, outcome.Reward)
	if outcome.LeveledUp {
		m.metrics.RecordLevelUp(outcome.NewLevel)
	}

	m.logWelcome(gen, &user, isNew, restored, outcome)
	go m.watchToken(gen, address)

	return user.Clone(), nil
}

// commit moves a connecting generation to Connected and starts its background work
func (m *SessionManager) commit(gen uint64, address, networkID string, user *models.User) error {
	unsubscribe := m.wallet.OnNetworkOrAccountChanged(func(change models.WalletChange) {
		m.handleWalletChange(gen, change)
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generation != gen || m.state != models.SessionStateConnecting {
		unsubscribe()
		return ErrConnectAborted
	}

	m.state = models.SessionStateConnected
	m.session = models.Session{
		Address:     address,
		Connected:   true,
		NetworkID:   m.network.ChainID,
		Generation:  gen,
		State:       models.SessionStateConnected,
		ConnectedAt: m.clock(),
	}
	if networkID != "" {
		m.session.ObservedNetworkID = networkID
	}
	m.user = user.Clone()
	m.unsubscribe = unsubscribe

	m.synchronizer = NewBalanceSynchronizer(m.ledger, address, gen, m.pollInterval, m.publisherFor(gen), m.metrics, m.clock)

	return nil
}

// startSynchronizer begins polling once the login events are out
func (m *SessionManager) startSynchronizer(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen || m.state != models.SessionStateConnected || m.synchronizer == nil {
		return
	}
	m.synchronizer.Start(m.ctx)
}

func (m *SessionManager) beginConnect() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case models.SessionStateConnecting:
		return 0, ErrConnectInProgress
	case models.SessionStateConnected:
		m.teardownLocked(EndReasonReconnect)
	}

	m.generation++
	m.state = models.SessionStateConnecting
	return m.generation, nil
}

func (m *SessionManager) abortConnect(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation == gen && m.state == models.SessionStateConnecting {
		m.state = models.SessionStateDisconnected
	}
}

// teardownLocked ends the connected session. The caller holds m.mu.
func (m *SessionManager) teardownLocked(reason string) models.Session {
	ended := m.session
	gen := m.generation

	m.generation++
	if m.synchronizer != nil {
		m.synchronizer.Stop()
		m.synchronizer = nil
	}
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.session = models.Session{}
	m.user = nil
	m.state = models.SessionStateDisconnected

	if m.publisher != nil {
		m.publisher.Publish(events.SessionEndedEvent{
			Address:    ended.Address,
			Generation: gen,
			Reason:     reason,
		})
	}

	log.WithFields(log.Fields{
		"address":    ended.Address,
		"generation": gen,
		"reason":     reason,
	}).Info("Wallet session ended")

	return ended
}

func (m *SessionManager) endSession(gen uint64, reason string) {
	m.mu.Lock()
	if m.generation != gen || m.state != models.SessionStateConnected {
		m.mu.Unlock()
		return
	}
	ended := m.teardownLocked(reason)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(m.ctx, forgetTimeout)
	defer cancel()
	m.forget(ctx, ended.Address)
}

// remember stores address only while gen is still the connected generation.
// A disconnect that ends gen forgets after this returns.
func (m *SessionManager) remember(ctx context.Context, gen uint64, address string) {
	if m.memory == nil {
		return
	}
	m.memoryMu.Lock()
	defer m.memoryMu.Unlock()

	if current, _, ok := m.current(); !ok || current != gen {
		log.WithFields(log.Fields{
			"address":    address,
			"generation": gen,
		}).Debug("Session ended before its address was remembered")
		return
	}
	if err := m.memory.Remember(ctx, address); err != nil {
		log.WithFields(log.Fields{
			"address": address,
			"error":   err,
		}).Warn("Failed to remember session address")
	}
}

func (m *SessionManager) forget(ctx context.Context, address string) {
	if m.memory == nil {
		return
	}
	m.memoryMu.Lock()
	defer m.memoryMu.Unlock()

	if err := m.memory.Forget(ctx); err != nil {
		log.WithFields(log.Fields{
			"address": address,
			"error":   err,
		}).Warn("Failed to forget session address")
	}
}

func (m *SessionManager) handleWalletChange(gen uint64, change models.WalletChange) {
	switch change.Kind {
	case models.WalletChangeNetwork:
		networkID := NormalizeAddress(change.NetworkID)
		if networkID == m.network.ChainID {
			m.clearMismatch(gen)
			return
		}
		m.flagMismatch(gen, networkID)

	case models.WalletChangeAccounts:
		m.mu.RLock()
		address := m.session.Address
		current := m.generation == gen && m.state == models.SessionStateConnected
		m.mu.RUnlock()
		if !current {
			return
		}
		if len(change.Accounts) > 0 && NormalizeAddress(change.Accounts[0]) == address {
			return
		}
		log.WithFields(log.Fields{
			"address":    address,
			"generation": gen,
		}).Info("Wallet account changed, ending session")
		m.endSession(gen, EndReasonAccountChanged)
	}
}

func (m *SessionManager) flagMismatch(gen uint64, observed string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen || m.state != models.SessionStateConnected {
		return
	}

	m.session.ObservedNetworkID = observed
	m.session.NetworkMismatch = true

	log.WithFields(log.Fields{
		"address":    m.session.Address,
		"generation": gen,
		"required":   m.network.ChainID,
		"actual":     observed,
	}).Warn("Wallet is on a different network than required")

	if m.publisher != nil {
		m.publisher.Publish(events.NetworkMismatchEvent{
			Address:    m.session.Address,
			Generation: gen,
			Required:   m.network.ChainID,
			Actual:     observed,
		})
	}
}

func (m *SessionManager) clearMismatch(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen || m.state != models.SessionStateConnected {
		return
	}
	m.session.ObservedNetworkID = m.network.ChainID
	m.session.NetworkMismatch = false
}

// freshRecord reads the record immediately before a write. Concurrent writers on other
// devices are resolved last-writer-wins.
func (m *SessionManager) freshRecord(ctx context.Context, gen uint64, address string) (*models.User, error) {
	stored, err := m.store.Get(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load user: %v", ErrRecordStoreFailure, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.generation != gen || m.state != models.SessionStateConnected {
		return nil, ErrNoActiveSession
	}
	if stored == nil {
		// removed behind our back; the in-memory copy recreates it on save
		return m.user.Clone(), nil
	}
	user := progression.Normalize(*stored)
	return &user, nil
}

func (m *SessionManager) setUser(gen uint64, user *models.User) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen || m.state != models.SessionStateConnected {
		return false
	}
	m.user = user.Clone()
	return true
}

func (m *SessionManager) current() (uint64, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != models.SessionStateConnected {
		return 0, "", false
	}
	return m.generation, m.session.Address, true
}

func (m *SessionManager) isConnecting(gen uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation == gen && m.state == models.SessionStateConnecting
}

// publishIfCurrent forwards e only while gen is the connected generation. Holding the
// read lock orders it before any SessionEnded published by a teardown.
func (m *SessionManager) publishIfCurrent(gen uint64, e events.Event) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.generation != gen || m.state != models.SessionStateConnected {
		log.WithFields(log.Fields{
			"eventType":  e.Type(),
			"generation": gen,
		}).Debug("Dropping event from stale session")
		return false
	}
	if m.publisher != nil {
		m.publisher.Publish(e)
	}
	return true
}

func (m *SessionManager) publisherFor(gen uint64) events.Publisher {
	return generationPublisher{manager: m, generation: gen}
}

type generationPublisher struct {
	manager    *SessionManager
	generation uint64
}

func (p generationPublisher) Publish(e events.Event) {
	p.manager.publishIfCurrent(p.generation, e)
}

func (m *SessionManager) watchToken(gen uint64, address string) {
	if m.token.Address == "" {
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, watchAssetTimeout)
	defer cancel()

	added, err := m.wallet.WatchAsset(ctx, m.token)
	if err != nil || !added {
		log.WithFields(log.Fields{
			"address":    address,
			"generation": gen,
			"token":      m.token.Symbol,
			"error":      err,
		}).Debug("Wallet did not add token to watch list")
	}
}

func (m *SessionManager) logWelcome(gen uint64, user *models.User, isNew, restored bool, outcome progression.LoginOutcome) {
	stage := progression.Stage(user.Stage)
	fields := log.Fields{
		"address":    user.Address,
		"generation": gen,
		"restored":   restored,
		"xp":         user.XP,
		"userLevel":  user.Level,
		"stage":      user.Stage,
		"streak":     user.LoginStreak,
		"reward":     outcome.Reward,
	}

	if isNew {
		log.WithFields(fields).Infof("Welcome %s, a new %s %s", user.Username, progression.StageGlyph(stage), stage)
		return
	}
	log.WithFields(fields).Infof("Welcome back %s %s %s", progression.StageGlyph(stage), stage, user.Username)
}
