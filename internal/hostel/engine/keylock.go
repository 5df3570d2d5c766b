package engine

import (
	"context"
	"sync"
)

// keyLock is a mutex per card number. Entries are dropped once nobody holds
// or waits on them.
type keyLock struct {
	mu      sync.Mutex
	entries map[int64]*keyEntry
}

type keyEntry struct {
	sem  chan struct{} // holds one token while the key is locked
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{entries: make(map[int64]*keyEntry)}
}

// Lock waits until key is free or ctx is done. On success it returns the
// unlock func; otherwise it returns ctx.Err() and holds nothing.
func (k *keyLock) Lock(ctx context.Context, key int64) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyEntry{sem: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e)
		return nil, ctx.Err()
	}

	return func() {
		<-e.sem
		k.release(key, e)
	}, nil
}

func (k *keyLock) release(key int64, e *keyEntry) {
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()
}

func (k *keyLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
