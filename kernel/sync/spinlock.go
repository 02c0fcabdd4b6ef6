// Package sync provides synchronization primitive implementations for spinlocks.
package sync

import "sync/atomic"

const (
	// attemptsBeforeYielding is the number of failed acquisition attempts
	// after which Acquire invokes yieldFn (if set).
	attemptsBeforeYielding = 64
)

var (
	// yieldFn is invoked while spinning on a contended lock. The kernel has
	// no scheduler so it stays nil and Acquire busy-waits; tests set it to
	// runtime.Gosched.
	yieldFn func()
)

// Spinlock implements a lock where each hart trying to acquire it busy-waits
// till the lock becomes available. The zero value is an unlocked Spinlock.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active hart.
// Any attempt to re-acquire a lock already held by the current hart will
// cause a deadlock.
func (l *Spinlock) Acquire() {
	for attempt := uint32(1); !atomic.CompareAndSwapUint32(&l.state, 0, 1); attempt++ {
		if yieldFn != nil && attempt%attemptsBeforeYielding == 0 {
			yieldFn()
		}
	}
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock allowing other harts to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}
