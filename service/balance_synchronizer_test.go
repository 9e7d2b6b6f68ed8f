package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"insightquest/events"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestSynchronizer(ledger LedgerClient, publisher events.Publisher, metrics Metrics, clock Clock) *BalanceSynchronizer {
	return NewBalanceSynchronizer(ledger, testAddress, 7, time.Hour, publisher, metrics, clock)
}

func TestBalanceSynchronizer_FetchesImmediately(t *testing.T) {
	ledger := new(MockLedgerClient)
	publisher := &recordingPublisher{}
	metrics := newRecordingMetrics()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	ledger.On("BalanceOf", mock.Anything, testAddress).Return(decimal.RequireFromString("42.000000000000000001"), nil).Once()

	s := newTestSynchronizer(ledger, publisher, metrics, func() time.Time { return now })
	s.Start(context.Background())
	defer s.Stop()

	assert.Equal(t, FetchOutcomeSuccess, metrics.waitFetch(t))

	cache := s.Cache()
	assert.True(t, cache.Amount.Equal(decimal.RequireFromString("42.000000000000000001")))
	assert.Equal(t, now, cache.LastRefreshed)

	require.Eventually(t, func() bool {
		return len(publisher.OfType(events.EventTypeBalanceUpdated)) == 1
	}, time.Second, 10*time.Millisecond)

	updated := publisher.OfType(events.EventTypeBalanceUpdated)[0].(events.BalanceUpdatedEvent)
	assert.Equal(t, testAddress, updated.Address)
	assert.Equal(t, uint64(7), updated.Generation)
	assert.Equal(t, now, updated.LastRefreshed)
}

func TestBalanceSynchronizer_FailureKeepsCachedValue(t *testing.T) {
	ledger := new(MockLedgerClient)
	publisher := &recordingPublisher{}
	metrics := newRecordingMetrics()

	ledger.On("BalanceOf", mock.Anything, testAddress).Return(decimal.RequireFromString("10"), nil).Once()
	ledger.On("BalanceOf", mock.Anything, testAddress).Return(decimal.Zero, errors.New("rpc timeout")).Once()

	s := newTestSynchronizer(ledger, publisher, metrics, time.Now)
	s.Start(context.Background())
	defer s.Stop()

	require.Equal(t, FetchOutcomeSuccess, metrics.waitFetch(t))
	before := s.Cache()

	s.Refresh()
	require.Equal(t, FetchOutcomeFailure, metrics.waitFetch(t))

	after := s.Cache()
	assert.True(t, after.Amount.Equal(decimal.RequireFromString("10")))
	assert.Equal(t, before.LastRefreshed, after.LastRefreshed)
	assert.Len(t, publisher.OfType(events.EventTypeBalanceUpdated), 1)
}

func TestBalanceSynchronizer_RejectsNegativeBalance(t *testing.T) {
	ledger := new(MockLedgerClient)
	publisher := &recordingPublisher{}
	metrics := newRecordingMetrics()

	ledger.On("BalanceOf", mock.Anything, testAddress).Return(decimal.RequireFromString("-1"), nil)

	s := newTestSynchronizer(ledger, publisher, metrics, time.Now)
	s.Start(context.Background())
	defer s.Stop()

	assert.Equal(t, FetchOutcomeFailure, metrics.waitFetch(t))
	assert.True(t, s.Cache().IsZero())
	assert.Empty(t, publisher.Events())
}

func TestBalanceSynchronizer_StopDiscardsLateResult(t *testing.T) {
	ledger := new(MockLedgerClient)
	publisher := &recordingPublisher{}
	metrics := newRecordingMetrics()

	fetching := make(chan struct{})
	release := make(chan struct{})
	ledger.On("BalanceOf", mock.Anything, testAddress).Run(func(mock.Arguments) {
		close(fetching)
		<-release
	}).Return(decimal.RequireFromString("99"), nil).Once()

	s := newTestSynchronizer(ledger, publisher, metrics, time.Now)
	s.Start(context.Background())

	<-fetching
	s.Stop()
	close(release)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("synchronizer did not stop")
	}

	assert.Equal(t, FetchOutcomeDiscarded, metrics.waitFetch(t))
	assert.True(t, s.Cache().IsZero())
	assert.Empty(t, publisher.Events())
}

func TestBalanceSynchronizer_RefreshCoalescesWhileFetching(t *testing.T) {
	ledger := new(MockLedgerClient)
	publisher := &recordingPublisher{}
	metrics := newRecordingMetrics()

	fetching := make(chan struct{})
	release := make(chan struct{})
	ledger.On("BalanceOf", mock.Anything, testAddress).Run(func(mock.Arguments) {
		close(fetching)
		<-release
	}).Return(decimal.RequireFromString("1"), nil).Once()
	ledger.On("BalanceOf", mock.Anything, testAddress).Return(decimal.RequireFromString("2"), nil)

	s := newTestSynchronizer(ledger, publisher, metrics, time.Now)
	s.Start(context.Background())
	defer s.Stop()

	<-fetching
	s.Refresh()
	s.Refresh()
	s.Refresh()
	close(release)

	assert.Equal(t, FetchOutcomeSuccess, metrics.waitFetch(t))
	assert.Equal(t, FetchOutcomeSuccess, metrics.waitFetch(t))

	select {
	case outcome := <-metrics.fetches:
		t.Fatalf("unexpected extra fetch with outcome %s", outcome)
	case <-time.After(100 * time.Millisecond):
	}

	ledger.AssertNumberOfCalls(t, "BalanceOf", 2)
	assert.True(t, s.Cache().Amount.Equal(decimal.RequireFromString("2")))
}

func TestBalanceSynchronizer_LastRefreshedNeverGoesBack(t *testing.T) {
	ledger := new(MockLedgerClient)
	publisher := &recordingPublisher{}
	metrics := newRecordingMetrics()
	clock := newTestClock(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))

	ledger.On("BalanceOf", mock.Anything, testAddress).Return(decimal.RequireFromString("5"), nil)

	s := newTestSynchronizer(ledger, publisher, metrics, clock.Now)
	s.Start(context.Background())
	defer s.Stop()

	require.Equal(t, FetchOutcomeSuccess, metrics.waitFetch(t))
	first := s.Cache().LastRefreshed

	clock.Set(first.Add(-time.Minute))
	s.Refresh()
	require.Equal(t, FetchOutcomeSuccess, metrics.waitFetch(t))

	assert.False(t, s.Cache().LastRefreshed.Before(first))

	require.Eventually(t, func() bool {
		return len(publisher.OfType(events.EventTypeBalanceUpdated)) == 2
	}, time.Second, 10*time.Millisecond)
	updates := publisher.OfType(events.EventTypeBalanceUpdated)
	assert.False(t, updates[1].(events.BalanceUpdatedEvent).LastRefreshed.Before(updates[0].(events.BalanceUpdatedEvent).LastRefreshed))
}

func TestBalanceSynchronizer_PollsOnInterval(t *testing.T) {
	ledger := new(MockLedgerClient)
	metrics := newRecordingMetrics()

	ledger.On("BalanceOf", mock.Anything, testAddress).Return(decimal.RequireFromString("1"), nil)

	s := NewBalanceSynchronizer(ledger, testAddress, 1, 20*time.Millisecond, &recordingPublisher{}, metrics, time.Now)
	s.Start(context.Background())
	defer s.Stop()

	for i := 0; i < 3; i++ {
		assert.Equal(t, FetchOutcomeSuccess, metrics.waitFetch(t))
	}
}
