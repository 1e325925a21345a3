package manifestcache

import (
	"sync"

	"github.com/cuemby/parsec-core/pkg/types"
)

// UpdateGuard is the move-only handle returned by a successful lock
// acquisition. The spec's "guards are not RAII-safe across early
// returns" warning (§4.5.2, §9) means callers that resolve multiple
// entries must explicitly Release every guard they picked up on any
// abort path; PathResolver's AutoRelease accumulator does exactly
// that.
type UpdateGuard struct {
	table *lockTable
	id    types.EntryID

	mu       sync.Mutex
	released bool
}

// EntryID reports which manifest this guard owns.
func (g *UpdateGuard) EntryID() types.EntryID { return g.id }

// Release gives up the lock, waking the next FIFO waiter for this id
// if any. Calling Release more than once is a no-op.
func (g *UpdateGuard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return
	}
	g.released = true
	g.table.release(g.id)
}

// entryLock tracks one manifest id's {Free, Taken, Waiters(n)} state
// (spec §4.4). waiters is a FIFO queue of channels: release() pops the
// head and hands ownership directly to it, rather than going back to
// Free and letting waiters race, so acquisitions are served in strict
// per-id FIFO order (spec P5).
type entryLock struct {
	held    bool
	waiters []chan *UpdateGuard
}

// lockTable is ManifestCache's per-entry update-lock table, built the
// way the teacher's events.Broker builds subscriber bookkeeping: a
// map guarded by a short mutex, with waiters parked on buffered
// channels that get a value pushed (rather than merely closed) so the
// awoken waiter receives its guard directly instead of re-deriving it.
type lockTable struct {
	mu    sync.Mutex
	locks map[types.EntryID]*entryLock
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[types.EntryID]*entryLock)}
}

// stats reports how many entries are currently held versus how many
// waiters are parked across all of them, for metrics.Collector's gauges.
func (t *lockTable) stats() (held, pending int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, l := range t.locks {
		if l.held {
			held++
		}
		pending += len(l.waiters)
	}
	return held, pending
}

// Take attempts to acquire id's update lock. On immediate success,
// guard is non-nil and wait is nil. Otherwise guard is nil and wait
// fires with the caller's own guard once every earlier-queued waiter
// for id has released it.
func (t *lockTable) Take(id types.EntryID) (guard *UpdateGuard, wait <-chan *UpdateGuard) {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[id]
	if !ok {
		l = &entryLock{}
		t.locks[id] = l
	}
	if !l.held {
		l.held = true
		return &UpdateGuard{table: t, id: id}, nil
	}

	ch := make(chan *UpdateGuard, 1)
	l.waiters = append(l.waiters, ch)
	return nil, ch
}

// TryTake never enqueues a waiter: it reports false immediately if id
// is currently held, for callers that asked for a non-blocking lock
// (spec §7's WouldBlock kind).
func (t *lockTable) TryTake(id types.EntryID) (*UpdateGuard, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[id]
	if ok && l.held {
		return nil, false
	}
	if !ok {
		l = &entryLock{}
		t.locks[id] = l
	}
	l.held = true
	return &UpdateGuard{table: t, id: id}, true
}

func (t *lockTable) release(id types.EntryID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[id]
	if !ok || !l.held {
		return
	}

	if len(l.waiters) == 0 {
		l.held = false
		delete(t.locks, id)
		return
	}

	next := l.waiters[0]
	l.waiters = l.waiters[1:]
	// Ownership transfers directly to the head waiter; the lock
	// never passes through Free, preserving FIFO order even if
	// several goroutines are blocked on Take for the same id.
	next <- &UpdateGuard{table: t, id: id}
	close(next)
}
