// ABOUTME: Tracks in-flight relayed requests and correlates responses by ID.
// ABOUTME: Register/Await/Resolve are atomic; a background sweep reclaims stale entries.

package correlator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// ErrTimeout indicates the controller did not answer within the per-request deadline.
var ErrTimeout = errors.New("request timed out")

const (
	// DefaultSweepInterval is how often the background sweep runs.
	DefaultSweepInterval = 60 * time.Second

	// DefaultStaleAfter is the age past which an unclaimed request is reclaimed.
	DefaultStaleAfter = 30 * time.Second
)

// pendingRequest is one in-flight relayed call awaiting its response.
type pendingRequest struct {
	path      string
	method    string
	createdAt time.Time
	resolved  bool

	// done receives the result exactly once. Buffered so Resolve never blocks
	// and the result survives until Await collects it, even when the
	// controller answers before the gateway starts waiting.
	done chan json.RawMessage
}

// Correlator owns the table of in-flight requests. All mutation goes through
// Register, Await and Resolve, which are safe for concurrent use by many
// caller goroutines plus the controller connection.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]*pendingRequest

	clock  clock.Clock
	logger *slog.Logger

	sweepInterval time.Duration
	staleAfter    time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

// Options tunes the correlator. Zero values fall back to defaults.
type Options struct {
	SweepInterval time.Duration
	StaleAfter    time.Duration
	Clock         clock.Clock
}

// New creates a Correlator and starts its background sweep.
// Call Close to stop the sweep goroutine.
func New(logger *slog.Logger, opts Options) *Correlator {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	c := &Correlator{
		pending:       make(map[string]*pendingRequest),
		clock:         opts.Clock,
		logger:        logger,
		sweepInterval: opts.SweepInterval,
		staleAfter:    opts.StaleAfter,
		done:          make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Register allocates a fresh correlation ID and inserts an empty pending entry.
func (c *Correlator) Register(path, method string) string {
	id := uuid.New().String()

	c.mu.Lock()
	c.pending[id] = &pendingRequest{
		path:      path,
		method:    method,
		createdAt: c.clock.Now(),
		done:      make(chan json.RawMessage, 1),
	}
	c.mu.Unlock()

	return id
}

// Await blocks until the request is resolved, the timeout elapses, or ctx is
// canceled. The pending entry is removed on every return path, so Await
// returns exactly once per ID and a later Resolve for the same ID is a no-op.
func (c *Correlator) Await(ctx context.Context, id string, timeout time.Duration) (json.RawMessage, error) {
	c.mu.Lock()
	req, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		// Already reclaimed by the sweep.
		return nil, ErrTimeout
	}

	timer := c.clock.Timer(timeout)
	defer timer.Stop()

	select {
	case result := <-req.done:
		c.remove(id)
		return result, nil

	case <-timer.C:
		c.remove(id)
		// A resolve may have won the race with the timer; honor it rather
		// than reporting a spurious timeout.
		select {
		case result := <-req.done:
			return result, nil
		default:
		}
		return nil, ErrTimeout

	case <-ctx.Done():
		c.remove(id)
		return nil, ctx.Err()
	}
}

// Resolve delivers a response for the given ID and wakes its waiter. The
// entry stays in the table until Await collects it (or the sweep reclaims a
// result nobody waits for). Unknown or already-resolved IDs are silently
// dropped: late responses after a caller timeout are expected, not an error.
func (c *Correlator) Resolve(id string, result json.RawMessage) {
	c.mu.Lock()
	req, ok := c.pending[id]
	if ok && !req.resolved {
		req.resolved = true
		req.done <- result
	} else {
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("dropping response for unknown request", "request_id", id)
		return
	}

	c.logger.Debug("request resolved",
		"request_id", id,
		"path", req.path,
		"method", req.method,
	)
}

// Discard removes a pending entry without resolving it. Used when delivery
// fails after registration, so the entry does not wait for the sweep.
func (c *Correlator) Discard(id string) {
	c.remove(id)
}

// PendingCount returns the number of in-flight requests.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close stops the background sweep. Pending entries are left in place; callers
// blocked in Await still observe their own timeouts.
func (c *Correlator) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Correlator) remove(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// sweepLoop periodically deletes requests older than the staleness threshold.
// This defends against a caller that registered a request but disconnected
// before awaiting it; it is a memory bound, not protocol behavior.
func (c *Correlator) sweepLoop() {
	ticker := c.clock.Ticker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Correlator) sweep() {
	cutoff := c.clock.Now().Add(-c.staleAfter)

	c.mu.Lock()
	var swept int
	for id, req := range c.pending {
		if req.createdAt.Before(cutoff) {
			delete(c.pending, id)
			swept++
		}
	}
	remaining := len(c.pending)
	c.mu.Unlock()

	if swept > 0 {
		c.logger.Debug("swept stale requests", "swept", swept, "remaining", remaining)
	}
}
