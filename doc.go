// package cancel provides cooperative cancellation for blocking operations.
//
// Consider a worker goroutine that sleeps between polls of some resource:
//
//	func worker(stop chan struct{}) {
//		for {
//			select {
//			case <-stop:
//				return
//			case <-time.After(100 * time.Millisecond):
//			}
//			pollResource()
//		}
//	}
//
// Channels handle the sleep, but they do not help when the worker blocks in
// a condition variable wait or in poll(2) on a file descriptor. The types in
// this package make all of those waits cancellable through one primitive:
//
//	th := cancel.Spawn(func(t cancel.Token) {
//		for !t.IsCancelled() {
//			cancel.Sleep(t, 100*time.Millisecond)
//			pollResource()
//		}
//	})
//	...
//	th.Stop() // wakes the sleep and joins the goroutine
//
// A Token carries the cancellation state. Waiters check it cheaply with
// IsCancelled and make their blocking calls through the package functions.
// Wait, Poll and Read register a wake-up Handler with the token for the
// duration of the call; cancelling the token invokes the registered handler
// exactly once, waking the blocked call. Sleep registers no handler: it waits
// directly on the token's own cancellation signal.
//
// Registering and deregistering a handler costs a single atomic exchange
// each when no cancellation races the call. The slow path, taken only when
// a cancel is in flight, waits until the canceller has finished with the
// handler so the waiter can free it immediately afterwards.
//
// Custom blocking calls hook into the same protocol with a Guard:
//
//	var g cancel.Guard
//	g.Register(token, myHandler)
//	defer g.Release()
//	if g.IsCancelled() {
//		return
//	}
//	blockUntilWoken()
//
// A Source fans cancellation out to many tokens: each call to Token returns
// an independent token, and cancelling the source cancels and wakes all of
// them at once.
package cancel
