package cancel

// Thread owns a goroutine together with the token that cancels it. It fixes
// the lifetime contract the rest of the package assumes: the token outlives
// every blocking call the goroutine makes through it, because Stop cancels
// before joining and the wrapper keeps the token reachable until then.
//
// The zero value is a stopped Thread: Stop and Join on it return
// immediately.
type Thread struct {
	token *Standalone
	done  chan struct{}
}

// Spawn runs fn in a new goroutine, passing it a token that Stop cancels.
// The goroutine should treat cancellation of the token as its request to
// return.
func Spawn(fn func(t Token)) *Thread {
	th := &Thread{token: New(), done: make(chan struct{})}
	go func() {
		defer close(th.done)
		fn(th.token)
	}()
	return th
}

// Join blocks until the goroutine returns, without cancelling it.
func (t *Thread) Join() {
	if t.done == nil {
		return
	}
	<-t.done
}

// Stop cancels the token and joins the goroutine. It is idempotent and
// safe to call from multiple goroutines.
func (t *Thread) Stop() {
	if t.token == nil {
		return
	}
	t.token.Cancel()
	<-t.done
}

// Reset stops the thread and returns the wrapper to its zero value, ready
// to be reassigned from Spawn.
func (t *Thread) Reset() {
	t.Stop()
	t.token, t.done = nil, nil
}
