package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"insightquest/events"
	"insightquest/models"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultBalancePollInterval is the delay between the end of one fetch and the start of the next
	DefaultBalancePollInterval = 30 * time.Second

	maxFetchTimeout = 10 * time.Second
)

// BalanceSynchronizer keeps the cached token balance of one session fresh.
// It is created per session and never writes to the user record.
type BalanceSynchronizer struct {
	ledger     LedgerClient
	address    string
	generation uint64
	interval   time.Duration
	publisher  events.Publisher
	metrics    Metrics
	clock      Clock

	mu    sync.RWMutex
	cache models.BalanceCache

	trigger chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewBalanceSynchronizer creates a synchronizer for address. publisher is expected
// to drop events whose generation is no longer current.
func NewBalanceSynchronizer(ledger LedgerClient, address string, generation uint64, interval time.Duration, publisher events.Publisher, metrics Metrics, clock Clock) *BalanceSynchronizer {
	if interval <= 0 {
		interval = DefaultBalancePollInterval
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if clock == nil {
		clock = time.Now
	}
	return &BalanceSynchronizer{
		ledger:     ledger,
		address:    address,
		generation: generation,
		interval:   interval,
		publisher:  publisher,
		metrics:    metrics,
		clock:      clock,
		trigger:    make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Start performs one immediate fetch in the background and then keeps polling
// until Stop is called or ctx is done.
func (s *BalanceSynchronizer) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		defer close(s.done)

		log.WithFields(log.Fields{
			"address":    s.address,
			"generation": s.generation,
			"interval":   s.interval,
		}).Info("Balance synchronizer started")

		s.fetch(ctx)

		timer := time.NewTimer(s.interval)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				log.WithFields(log.Fields{
					"address":    s.address,
					"generation": s.generation,
				}).Info("Balance synchronizer stopped")
				return
			case <-timer.C:
			case <-s.trigger:
				timer.Stop()
			}

			s.fetch(ctx)
			// next fetch is scheduled from completion, not from the previous tick
			timer.Reset(s.interval)
		}
	}()
}

// Stop cancels polling and any in-flight fetch. It does not wait for the
// background goroutine; a result arriving after Stop is discarded.
func (s *BalanceSynchronizer) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Done is closed once the polling goroutine has exited
func (s *BalanceSynchronizer) Done() <-chan struct{} {
	return s.done
}

// Refresh requests an out-of-band fetch. Requests made while a fetch is running
// collapse into a single follow-up fetch.
func (s *BalanceSynchronizer) Refresh() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Cache returns the last known balance
func (s *BalanceSynchronizer) Cache() models.BalanceCache {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache
}

func (s *BalanceSynchronizer) fetch(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	timeout := s.interval
	if timeout > maxFetchTimeout {
		timeout = maxFetchTimeout
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	amount, err := s.ledger.BalanceOf(fetchCtx, s.address)
	duration := time.Since(start)

	if ctx.Err() != nil {
		s.metrics.RecordBalanceFetch(FetchOutcomeDiscarded, duration)
		log.WithFields(log.Fields{
			"address":    s.address,
			"generation": s.generation,
		}).Debug("Discarding balance result for stopped session")
		return
	}

	if err != nil {
		s.metrics.RecordBalanceFetch(FetchOutcomeFailure, duration)
		log.WithFields(log.Fields{
			"address":    s.address,
			"generation": s.generation,
			"error":      fmt.Errorf("%w: %v", ErrLedgerFetchFailure, err),
		}).Warn("Balance fetch failed, keeping cached value")
		return
	}

	if amount.IsNegative() {
		s.metrics.RecordBalanceFetch(FetchOutcomeFailure, duration)
		log.WithFields(log.Fields{
			"address":    s.address,
			"generation": s.generation,
			"amount":     amount.String(),
		}).Warn("Ledger returned a negative balance, keeping cached value")
		return
	}

	s.mu.Lock()
	refreshed := s.clock()
	if refreshed.Before(s.cache.LastRefreshed) {
		refreshed = s.cache.LastRefreshed
	}
	s.cache = models.BalanceCache{Amount: amount, LastRefreshed: refreshed}
	s.mu.Unlock()

	s.metrics.RecordBalanceFetch(FetchOutcomeSuccess, duration)

	s.publisher.Publish(events.BalanceUpdatedEvent{
		Address:       s.address,
		Generation:    s.generation,
		Amount:        amount,
		LastRefreshed: refreshed,
	})
}
