package core

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/semaphore"

	"github.com/wotori/solana-donations/core/types"
)

// exclusiveWeight is the full capacity of an account semaphore. A writer takes
// all of it, a reader takes one unit, so any number of readers may share an
// account while a writer excludes everyone else.
const exclusiveWeight = int64(1) << 30

type lockEntry struct {
	sem  *semaphore.Weighted
	refs int
}

// lockTable hands out per-account reader/writer locks. Entries are reference
// counted and dropped once no transaction holds or waits for them.
type lockTable struct {
	mu      sync.Mutex
	entries map[solana.PublicKey]*lockEntry
}

func newLockTable() *lockTable {
	return &lockTable{entries: make(map[solana.PublicKey]*lockEntry)}
}

func (lt *lockTable) ref(addr solana.PublicKey) *semaphore.Weighted {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	entry, ok := lt.entries[addr]
	if !ok {
		entry = &lockEntry{sem: semaphore.NewWeighted(exclusiveWeight)}
		lt.entries[addr] = entry
	}
	entry.refs++
	return entry.sem
}

func (lt *lockTable) unref(addr solana.PublicKey) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	entry, ok := lt.entries[addr]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(lt.entries, addr)
	}
}

type heldLock struct {
	addr   solana.PublicKey
	sem    *semaphore.Weighted
	weight int64
}

// acquire takes every lock in the order given. Callers pass locks sorted by
// address (types.Transaction.Locks) so two transactions never wait on each
// other in opposite order. On cancellation every lock taken so far is
// released and the context error is returned.
func (lt *lockTable) acquire(ctx context.Context, locks []types.AccountLock) (func(), error) {
	held := make([]heldLock, 0, len(locks))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].sem.Release(held[i].weight)
			lt.unref(held[i].addr)
		}
		held = nil
	}
	for _, lock := range locks {
		weight := int64(1)
		if lock.Writable {
			weight = exclusiveWeight
		}
		sem := lt.ref(lock.Address)
		if err := sem.Acquire(ctx, weight); err != nil {
			lt.unref(lock.Address)
			release()
			return nil, err
		}
		held = append(held, heldLock{addr: lock.Address, sem: sem, weight: weight})
	}
	return release, nil
}

func (lt *lockTable) size() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return len(lt.entries)
}
