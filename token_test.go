package cancel

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/zeebo/assert"
	"github.com/zeebo/pcg"
)

// testHandler counts its Cancel and Reset invocations and exposes a channel
// that closes on the first Cancel.
type testHandler struct {
	cancels atomic.Int32
	resets  atomic.Int32
	woken   chan struct{}
}

func newTestHandler() *testHandler {
	return &testHandler{woken: make(chan struct{})}
}

func (h *testHandler) Cancel() {
	h.cancels.Add(1)
	close(h.woken)
}

func (h *testHandler) Reset() {
	h.resets.Add(1)
}

func TestStandaloneMonotonic(t *testing.T) {
	tok := New()
	assert.That(t, !tok.IsCancelled())

	tok.Cancel()
	for i := 0; i < 10; i++ {
		assert.That(t, tok.IsCancelled())
	}

	tok.Cancel() // second cancel is a no-op
	assert.That(t, tok.IsCancelled())
}

func TestGuardFastPath(t *testing.T) {
	tok := New()
	h := newTestHandler()

	var g Guard
	g.Register(tok, h)
	assert.That(t, !g.IsCancelled())
	g.Release()

	assert.Equal(t, h.cancels.Load(), int32(0))
	assert.Equal(t, h.resets.Load(), int32(0))

	// the slot is free again for the next blocking call
	var g2 Guard
	g2.Register(tok, h)
	assert.That(t, !g2.IsCancelled())
	g2.Release()
}

func TestGuardAlreadyCancelled(t *testing.T) {
	tok := New()
	tok.Cancel()

	h := newTestHandler()
	var g Guard
	g.Register(tok, h)
	assert.That(t, g.IsCancelled())
	g.Release()

	// cancellation with no handler registered never invokes anything
	assert.Equal(t, h.cancels.Load(), int32(0))
	assert.Equal(t, h.resets.Load(), int32(0))
}

func TestGuardCancelPairing(t *testing.T) {
	tok := New()
	h := newTestHandler()

	var g Guard
	g.Register(tok, h)
	assert.That(t, !g.IsCancelled())

	done := make(chan struct{})
	go func() {
		tok.Cancel()
		close(done)
	}()

	<-h.woken
	g.Release()
	<-done

	assert.Equal(t, h.cancels.Load(), int32(1))
	assert.Equal(t, h.resets.Load(), int32(1))
}

func TestGuardReleaseIdempotent(t *testing.T) {
	tok := New()
	h := newTestHandler()

	var g Guard
	g.Register(tok, h)
	g.Release()
	g.Release()

	assert.Equal(t, h.resets.Load(), int32(0))
}

func TestStandaloneReset(t *testing.T) {
	tok := New()
	tok.Cancel()
	assert.That(t, tok.IsCancelled())

	tok.Reset()
	assert.That(t, !tok.IsCancelled())

	// functionally new: registration works and a second cancel fires it
	h := newTestHandler()
	var g Guard
	g.Register(tok, h)
	assert.That(t, !g.IsCancelled())
	tok.Cancel()
	<-h.woken
	g.Release()

	assert.Equal(t, h.cancels.Load(), int32(1))
	assert.Equal(t, h.resets.Load(), int32(1))
}

func TestStandaloneResetWhileRegisteredPanics(t *testing.T) {
	tok := New()
	h := newTestHandler()
	var g Guard
	g.Register(tok, h)
	defer g.Release()

	defer func() { assert.NotNil(t, recover()) }()
	tok.Reset()
}

func TestDoubleRegisterPanics(t *testing.T) {
	tok := New()
	var g1, g2 Guard
	g1.Register(tok, newTestHandler())
	defer g1.Release()

	defer func() { assert.NotNil(t, recover()) }()
	g2.Register(tok, newTestHandler())
}

func TestDummy(t *testing.T) {
	var tok Dummy
	assert.That(t, !tok.IsCancelled())

	h := newTestHandler()
	var g Guard
	g.Register(tok, h)
	assert.That(t, !g.IsCancelled())
	g.Release()

	assert.Equal(t, h.cancels.Load(), int32(0))
	assert.Equal(t, h.resets.Load(), int32(0))
}

// TestCancellationDelayScan races a waiter's register/release against a
// canceller firing after a matching delay. Every iteration must end in one
// of exactly two states: the guard observed the cancel at registration and
// the handler was never touched, or the handler saw one Cancel and one
// Reset.
func TestCancellationDelayScan(t *testing.T) {
	iters := 300
	if testing.Short() {
		iters = 50
	}

	var rng pcg.T
	for i := 0; i < iters; i++ {
		d := time.Duration(rng.Uint32n(2000)) * time.Microsecond
		tok := New()
		h := newTestHandler()
		skipped := make(chan bool)

		go func() {
			time.Sleep(d)
			var g Guard
			g.Register(tok, h)
			if !g.IsCancelled() {
				<-h.woken
			}
			g.Release()
			skipped <- g.IsCancelled()
		}()

		time.Sleep(d)
		tok.Cancel()

		if <-skipped {
			assert.Equal(t, h.cancels.Load(), int32(0))
			assert.Equal(t, h.resets.Load(), int32(0))
		} else {
			assert.Equal(t, h.cancels.Load(), int32(1))
			assert.Equal(t, h.resets.Load(), int32(1))
		}
	}
}

func BenchmarkGuard(b *testing.B) {
	b.Run("RegisterRelease", func(b *testing.B) {
		tok := New()
		h := newTestHandler()
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			var g Guard
			g.Register(tok, h)
			g.Release()
		}
	})

	b.Run("IsCancelled", func(b *testing.B) {
		tok := New()
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			_ = tok.IsCancelled()
		}
	})

	b.Run("Parallel/IsCancelled", func(b *testing.B) {
		tok := New()
		b.ReportAllocs()

		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				_ = tok.IsCancelled()
			}
		})
	})
}
