package cancel

import (
	"sync"
	"sync/atomic"
	"time"
)

// Source fans cancellation out to many tokens. Every call to Token returns
// an independent *Sourced sharing the source's state; Cancel cancels and
// wakes all of them at once. The zero value is a live source.
type Source struct {
	mu   sync.Mutex
	data *sourceData
}

// sourceData is the record shared by a Source and every token issued from
// it. It stays reachable as long as the source or any of its tokens is.
type sourceData struct {
	cancelled atomic.Bool
	complete  chan struct{} // closed once the cancel walk has finished

	mu     sync.Mutex
	tokens tokenList // registered tokens, guarded by mu
}

func newSourceData() *sourceData {
	return &sourceData{complete: make(chan struct{})}
}

// NewSource returns a fresh source. Equivalent to new(Source).
func NewSource() *Source { return new(Source) }

// current returns the active data block, allocating it on first use.
func (s *Source) current() *sourceData {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = newSourceData()
	}
	return s.data
}

// Token returns a new token tied to this source. The token reflects the
// source's state immediately: if the source is already cancelled, so is the
// token. Call Release on the token once it is no longer needed.
func (s *Source) Token() *Sourced {
	t := &Sourced{data: s.current()}
	t.slot.Store(&slotUnattached)
	return t
}

// IsCancelled reports whether Cancel has been called.
func (s *Source) IsCancelled() bool { return s.current().cancelled.Load() }

// Cancel cancels every token issued from this source, waking all of their
// blocked waiters. The first call wins; later calls return immediately.
func (s *Source) Cancel() { s.current().cancel() }

// Close cancels the source. It exists so a source can be armed with defer
// and always returns nil.
func (s *Source) Close() error {
	s.Cancel()
	return nil
}

// Reset replaces the source's shared state with a fresh one. The source
// must already be cancelled; tokens issued before Reset are detached and
// remain cancelled forever, while tokens issued after Reset start clean.
func (s *Source) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data != nil && !s.data.cancelled.Load() {
		panic("cancel: Reset of a source that is not cancelled")
	}
	s.data = newSourceData()
}

func (d *sourceData) cancel() {
	d.mu.Lock()
	if d.cancelled.Load() {
		d.mu.Unlock()
		return
	}
	d.cancelled.Store(true)

	// Drain the token list, reserving each slot in turn. Handlers run with
	// the source mutex released: they are allowed to take the waiter's own
	// locks, and those waiters may be blocked trying to attach or release
	// under this mutex.
	for {
		t := d.tokens.head
		if t == nil {
			break
		}
		d.tokens.remove(t)
		t.linked = false

		if g := t.slot.Swap(&slotCancelled); g != nil {
			d.mu.Unlock()
			g.handler.Cancel()
			d.mu.Lock()
		}
	}
	d.mu.Unlock()

	close(d.complete)
}

// Sourced is a Token issued by a Source. It shares the source's cancelled
// state; its own hazard slot makes the registration protocol per-token so
// that each blocked waiter is woken individually on source cancel.
type Sourced struct {
	slot atomic.Pointer[Guard]
	data *sourceData

	// intrusive list links, guarded by data.mu
	next, prev *Sourced
	linked     bool
}

// IsCancelled reports whether the source has been cancelled.
func (t *Sourced) IsCancelled() bool { return t.data.cancelled.Load() }

// Release detaches the token from its source. It must be called once the
// token is no longer used; no guard may be registered at that point.
func (t *Sourced) Release() {
	d := t.data
	d.mu.Lock()
	if t.linked {
		d.tokens.remove(t)
		t.linked = false
		// Back to the creation state so a later registration re-attaches
		// instead of bypassing the cancel walk.
		t.slot.CompareAndSwap(nil, &slotUnattached)
	}
	d.mu.Unlock()
}

func (t *Sourced) register(g *Guard) bool {
	prev := t.slot.Swap(g)
	switch prev {
	case nil:
		return true
	case &slotUnattached:
		// First registration: link into the source under its mutex so the
		// cancel walk can find us, unless the source already cancelled.
		return t.attach()
	case &slotCancelled:
		t.slot.Store(&slotCancelled)
		return false
	default:
		panic("cancel: handler already registered")
	}
}

// attach links the token into its source's list. The guard is already in
// the slot; if the source turns out to be cancelled the slot is committed
// to the cancelled sentinel instead and attach reports false.
func (t *Sourced) attach() bool {
	d := t.data
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancelled.Load() {
		t.slot.Store(&slotCancelled)
		return false
	}
	d.tokens.push(t)
	t.linked = true
	return true
}

func (t *Sourced) tryDeregister(g *Guard) bool {
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

func (t *Sourced) deregister(g *Guard) {
	<-t.data.complete
	g.handler.Reset()
}

func (t *Sourced) sleep(d time.Duration) bool {
	data := t.data
	if data.cancelled.Load() {
		return false
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-data.complete:
		return false
	case <-timer.C:
		return true
	}
}

// tokenList is an intrusive doubly linked list of sourced tokens. The links
// live inside the tokens themselves so that push and remove never allocate.
type tokenList struct {
	head, tail *Sourced
}

func (l *tokenList) push(t *Sourced) {
	t.prev = l.tail
	t.next = nil
	if l.tail != nil {
		l.tail.next = t
	} else {
		l.head = t
	}
	l.tail = t
}

func (l *tokenList) remove(t *Sourced) {
	if t.prev != nil {
		t.prev.next = t.next
	} else {
		l.head = t.next
	}
	if t.next != nil {
		t.next.prev = t.prev
	} else {
		l.tail = t.prev
	}
	t.next, t.prev = nil, nil
}
