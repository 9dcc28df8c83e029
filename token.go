package cancel

import "time"

// Token is the read side of a cancellation. Waiters poll it with IsCancelled
// and bind wake-up handlers to it through a Guard; the write side (Cancel)
// lives on the concrete types Standalone and Source. A Token is cancelled at
// most once and IsCancelled is monotonic: once it reports true it keeps
// reporting true until an explicit Reset on the owning type.
//
// Only types in this package implement Token.
type Token interface {
	// IsCancelled reports whether the token has been cancelled. It is safe
	// to call from any goroutine and costs one atomic load.
	IsCancelled() bool

	// register installs g in the hazard slot. It reports false if the token
	// was already cancelled, in which case nothing was installed.
	register(g *Guard) bool

	// tryDeregister removes g from the hazard slot. It reports false if a
	// canceller reserved the slot first, in which case g is still live and
	// deregister must be called.
	tryDeregister(g *Guard) bool

	// deregister completes a release that lost the race against Cancel: it
	// blocks until the canceller has returned from g's handler and then
	// delivers the matching Reset.
	deregister(g *Guard)

	// sleep blocks for the duration or until the token is cancelled,
	// whichever comes first. It reports whether the full duration elapsed.
	sleep(d time.Duration) bool
}

// Handler wakes the blocking call associated with one Guard registration.
// Handlers live on the waiter's stack frame for the duration of a single
// blocking call and are invoked from arbitrary goroutines.
type Handler interface {
	// Cancel wakes the blocking call. It must not block indefinitely and
	// must not cancel tokens itself.
	Cancel()

	// Reset undoes the effect of Cancel so the handler could be used again.
	// For every Cancel there is exactly one Reset, and it is delivered
	// before the waiter's Release returns.
	Reset()
}

// Hazard slot states. nil means empty; the addresses of these two package
// variables are the reserved sentinels; any other value is the registered
// *Guard. The cancelled sentinel is terminal except for transient swaps
// that immediately restore it.
var (
	slotCancelled  Guard // token cancelled, no registration possible
	slotUnattached Guard // sourced token not yet linked to its source
)

// Guard binds a Handler to a Token for the duration of one blocking call.
// The zero value is inert: Release on it is a no-op. A Guard must not be
// copied after Register.
type Guard struct {
	token   Token
	handler Handler
	active  bool
	skipped bool
}

// Register installs h on t. In the common case this is a single atomic
// exchange. If the token was already cancelled nothing is installed and
// IsCancelled reports true; the blocking call must then be skipped.
// Registering a second guard on a token that already has one panics.
func (g *Guard) Register(t Token, h Handler) {
	g.token, g.handler = t, h
	g.active = t.register(g)
	g.skipped = !g.active
}

// IsCancelled reports whether the token was already cancelled when Register
// ran, meaning the handler was never installed.
func (g *Guard) IsCancelled() bool { return g.skipped }

// Release removes the handler from the token. In the common case this is a
// single atomic exchange. If a Cancel is in flight, Release blocks until the
// canceller has returned from the handler and then invokes the handler's
// Reset. Either way the handler is dead once Release returns and may be
// freed. Release is idempotent.
func (g *Guard) Release() {
	if g.tryRelease() {
		return
	}
	g.finishRelease()
}

// tryRelease attempts the fast path. It reports false when a cancel raced
// the release, in which case the caller must call finishRelease, dropping
// any lock the handler's Cancel acquires first.
func (g *Guard) tryRelease() bool {
	if !g.active {
		return true
	}
	if g.token.tryDeregister(g) {
		g.active = false
		return true
	}
	return false
}

// finishRelease runs the slow path: wait out the in-flight Cancel, then
// deliver the handler's Reset.
func (g *Guard) finishRelease() {
	g.active = false
	g.token.deregister(g)
}

// Dummy is a Token that is never cancelled. It is the default to pass when
// the caller has no cancellation to offer: blocking calls made through it
// behave exactly like their plain counterparts.
type Dummy struct{}

func (Dummy) IsCancelled() bool { return false }

func (Dummy) register(*Guard) bool      { return true }
func (Dummy) tryDeregister(*Guard) bool { return true }
func (Dummy) deregister(*Guard)         {}

func (Dummy) sleep(d time.Duration) bool {
	time.Sleep(d)
	return true
}
