package cancel

import "time"

// Sleep blocks for d or until t is cancelled, whichever comes first. It
// reports whether the full duration elapsed; false means the sleep was cut
// short by cancellation.
func Sleep(t Token, d time.Duration) bool {
	if d <= 0 {
		return !t.IsCancelled()
	}
	return t.sleep(d)
}

// SleepUntil blocks until the deadline or until t is cancelled, whichever
// comes first. It reports whether the deadline was reached.
func SleepUntil(t Token, deadline time.Time) bool {
	return Sleep(t, time.Until(deadline))
}
