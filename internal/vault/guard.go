package vault

import "sync/atomic"

// guard is the non-reentrant lock around every balance-mutating entry point.
// Acquisition while held rejects the call instead of blocking: a blocked
// acquisition from a re-entrant callback would deadlock, and a queued one
// would defeat the point of the lock.
type guard struct {
	held atomic.Bool
}

func (g *guard) enter() error {
	if !g.held.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

func (g *guard) exit() {
	g.held.Store(false)
}
