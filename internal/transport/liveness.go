// ABOUTME: Controller presence signal based on a lock-free last-seen timestamp.
// ABOUTME: Any inbound controller activity (poll, submit) refreshes it.

package transport

import (
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultLivenessWindow is the maximum silence before the controller is
// considered disconnected under the long-poll transport.
const DefaultLivenessWindow = 15 * time.Second

// Liveness tracks when the controller was last heard from. The timestamp is a
// single atomic word: staleness from the update-to-read race is immaterial at
// the window's granularity, so no lock is taken.
type Liveness struct {
	window   time.Duration
	clock    clock.Clock
	lastSeen atomic.Int64 // unix nanos; zero means never seen
}

// NewLiveness creates a Liveness with the given window. A nil clock uses
// real time.
func NewLiveness(window time.Duration, clk clock.Clock) *Liveness {
	if window <= 0 {
		window = DefaultLivenessWindow
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Liveness{window: window, clock: clk}
}

// Touch records controller activity now.
func (l *Liveness) Touch() {
	l.lastSeen.Store(l.clock.Now().UnixNano())
}

// Connected reports whether the controller has been seen within the window.
func (l *Liveness) Connected() bool {
	last := l.lastSeen.Load()
	if last == 0 {
		return false
	}
	return l.clock.Now().UnixNano()-last < int64(l.window)
}

// LastSeen returns the time of the most recent controller activity, or the
// zero time if the controller has never been seen.
func (l *Liveness) LastSeen() time.Time {
	last := l.lastSeen.Load()
	if last == 0 {
		return time.Time{}
	}
	return time.Unix(0, last)
}
