package service

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// KeyedLock serializes work per key. Waiters queue on a weighted semaphore
// so a cancelled context abandons the wait instead of blocking forever.
type KeyedLock struct {
	mu    sync.Mutex
	locks map[string]*keyEntry
}

type keyEntry struct {
	sem  *semaphore.Weighted
	refs int
}

// NewKeyedLock creates an empty KeyedLock.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{locks: make(map[string]*keyEntry)}
}

// Lock blocks until key is free or ctx is done. The returned func releases
// the key and is safe to call more than once.
func (l *KeyedLock) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &keyEntry{sem: semaphore.NewWeighted(1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		l.release(key, e)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			l.release(key, e)
		})
	}, nil
}

func (l *KeyedLock) release(key string, e *keyEntry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

// size reports how many keys are held or waited on.
func (l *KeyedLock) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
