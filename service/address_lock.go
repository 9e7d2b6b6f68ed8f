package service

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// addressLocks gives each address an exclusive section for read-modify-write sequences
type addressLocks struct {
	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

func newAddressLocks() *addressLocks {
	return &addressLocks{locks: make(map[string]*semaphore.Weighted)}
}

// acquire blocks until the address is free or ctx is done
func (l *addressLocks) acquire(ctx context.Context, address string) (func(), error) {
	l.mu.Lock()
	sem, ok := l.locks[address]
	if !ok {
		sem = semaphore.NewWeighted(1)
		l.locks[address] = sem
	}
	l.mu.Unlock()

	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { sem.Release(1) }, nil
}
