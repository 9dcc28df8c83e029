package cancel

import (
	"sync"
	"sync/atomic"
	"time"
)

// Standalone is a Token owned by a single producer that can cancel it once.
// The zero value is a live, uncancelled token. Any number of successive
// waiters may block through it, but at most one at a time.
type Standalone struct {
	// slot is the hazard slot. It linearises register, deregister and
	// cancel: whoever swaps it owns what they took out. See token.go for
	// the value encoding.
	slot atomic.Pointer[Guard]

	cancelled atomic.Bool

	mu       sync.Mutex
	complete chan struct{} // closed once Cancel has finished with the handler
}

// New returns a fresh uncancelled token. Equivalent to new(Standalone).
func New() *Standalone { return new(Standalone) }

// IsCancelled reports whether Cancel has been called.
func (t *Standalone) IsCancelled() bool { return t.cancelled.Load() }

// Cancel transitions the token to cancelled and wakes the registered
// handler, if any. The first call wins; later calls return immediately.
// When Cancel returns, every waiter blocked through the token has been
// woken and every future registration will observe the cancelled state.
func (t *Standalone) Cancel() {
	t.mu.Lock()
	if t.cancelled.Load() {
		t.mu.Unlock()
		return
	}
	t.cancelled.Store(true)
	done := t.completionLocked()
	t.mu.Unlock()

	// The cancelled flag serialises cancellers, so the previous value is
	// either empty or a live registration, never a sentinel.
	if g := t.slot.Swap(&slotCancelled); g != nil {
		g.handler.Cancel()
	}

	close(done)
}

// Reset returns a cancelled token to its initial state so it can be used
// again. The token must be quiescent: no guard registered and no Cancel in
// flight. Violating that panics.
func (t *Standalone) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if g := t.slot.Load(); g != nil && g != &slotCancelled {
		panic("cancel: Reset with a handler registered")
	}
	if t.cancelled.Load() != t.completeLocked() {
		panic("cancel: Reset during cancellation")
	}

	t.cancelled.Store(false)
	t.complete = nil
	t.slot.Store(nil)
}

// completionLocked returns the channel closed when cancellation has fully
// finished, allocating it on first use. Callers must hold mu.
func (t *Standalone) completionLocked() chan struct{} {
	if t.complete == nil {
		t.complete = make(chan struct{})
	}
	return t.complete
}

// completeLocked reports whether a Cancel has run to completion. Callers
// must hold mu.
func (t *Standalone) completeLocked() bool {
	if t.complete == nil {
		return false
	}
	select {
	case <-t.complete:
		return true
	default:
		return false
	}
}

func (t *Standalone) register(g *Guard) bool {
	prev := t.slot.Swap(g)
	if prev == nil {
		return true
	}
	if prev != &slotCancelled {
		// Put the existing registration back before reporting the misuse so
		// that its own Release still finds it in the slot.
		t.slot.CompareAndSwap(g, prev)
		panic("cancel: handler already registered")
	}
	t.slot.Store(&slotCancelled)
	return false
}

func (t *Standalone) tryDeregister(g *Guard) bool {
	prev := t.slot.Swap(nil)
	if prev == g {
		return true
	}
	if prev != &slotCancelled {
		panic("cancel: hazard slot held by another guard")
	}
	t.slot.Store(&slotCancelled)
	return false
}

func (t *Standalone) deregister(g *Guard) {
	t.mu.Lock()
	done := t.completionLocked()
	t.mu.Unlock()

	// The canceller took our guard out of the slot and will invoke the
	// handler exactly once; wait for it to finish before touching the
	// handler again.
	<-done
	g.handler.Reset()
}

func (t *Standalone) sleep(d time.Duration) bool {
	t.mu.Lock()
	if t.cancelled.Load() {
		t.mu.Unlock()
		return false
	}
	done := t.completionLocked()
	t.mu.Unlock()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-done:
		return false
	case <-timer.C:
		return true
	}
}
