package server

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Admission caps the number of concurrently active sessions. Acquisition is
// non-blocking: a connection arriving at capacity is rejected immediately
// rather than queued.
type Admission struct {
	capacity int64
	sem      *semaphore.Weighted
	active   atomic.Int64
}

// NewAdmission builds an admission pool with the given capacity.
func NewAdmission(capacity int) *Admission {
	return &Admission{
		capacity: int64(capacity),
		sem:      semaphore.NewWeighted(int64(capacity)),
	}
}

// TryAcquire attempts to claim a slot without blocking. On failure no slot is
// consumed and the caller must reject the connection.
func (a *Admission) TryAcquire() (*Ticket, bool) {
	if !a.sem.TryAcquire(1) {
		return nil, false
	}
	a.active.Add(1)
	return &Ticket{pool: a}, true
}

// Active reports the number of currently held slots.
func (a *Admission) Active() int {
	return int(a.active.Load())
}

// Capacity reports the pool size.
func (a *Admission) Capacity() int {
	return int(a.capacity)
}

// Ticket is one held admission slot. Release is exactly-once no matter how
// many paths call it; the sync.Once makes double-release structurally
// impossible.
type Ticket struct {
	pool *Admission
	once sync.Once
}

// Release returns the slot to the pool. Safe to call multiple times.
func (t *Ticket) Release() {
	t.once.Do(func() {
		t.pool.active.Add(-1)
		t.pool.sem.Release(1)
	})
}
