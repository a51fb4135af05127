// ABOUTME: Long-poll transport: a bounded outbound queue drained by controller polls.
// ABOUTME: Push substitute for hosts that disallow persistent sockets.

package transport

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// DefaultQueueSize bounds the outbound queue under sustained disconnection.
	DefaultQueueSize = 100

	// DefaultPollWindow is how long a poll call is held open server-side.
	DefaultPollWindow = 25 * time.Second
)

// LongPollAdapter queues requests for a controller that fetches them with
// repeated poll calls and submits responses on a separate call. The queue is
// a bounded FIFO: when full, the oldest undelivered request is evicted to
// admit the newest, and the evicted caller simply times out.
type LongPollAdapter struct {
	resolver Resolver
	liveness *Liveness
	logger   *slog.Logger
	clock    clock.Clock
	capacity int

	// OnEvict, if set, is called once per evicted request. Used for metrics.
	OnEvict func(Request)

	// activePolls counts polls currently held open. An open poll is presence:
	// the poll window may exceed the liveness window, and a blocked poller
	// will deliver an enqueued request immediately via the wake channel.
	activePolls atomic.Int32

	mu    sync.Mutex
	queue []Request
	wake  chan struct{} // buffered(1); signaled on enqueue
}

// NewLongPoll creates a LongPollAdapter with the given queue capacity.
// A capacity of zero or less uses DefaultQueueSize; a nil clock uses real time.
func NewLongPoll(resolver Resolver, liveness *Liveness, capacity int, clk clock.Clock, logger *slog.Logger) *LongPollAdapter {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	if clk == nil {
		clk = clock.New()
	}
	return &LongPollAdapter{
		resolver: resolver,
		liveness: liveness,
		logger:   logger,
		clock:    clk,
		capacity: capacity,
		wake:     make(chan struct{}, 1),
	}
}

// Enqueue appends the request to the outbound queue, evicting the oldest
// entry when the queue is full. Returns ErrNotConnected when the controller
// has not polled within the liveness window.
func (a *LongPollAdapter) Enqueue(req Request) error {
	if !a.Connected() {
		return ErrNotConnected
	}

	a.mu.Lock()
	var evicted *Request
	if len(a.queue) >= a.capacity {
		dropped := a.queue[0]
		a.queue = a.queue[1:]
		evicted = &dropped
	}
	a.queue = append(a.queue, req)
	a.mu.Unlock()

	if evicted != nil {
		a.logger.Warn("outbound queue full, evicting oldest request",
			"evicted_id", evicted.ID,
			"evicted_path", evicted.Path,
		)
		if a.OnEvict != nil {
			a.OnEvict(*evicted)
		}
	}

	select {
	case a.wake <- struct{}{}:
	default:
	}
	return nil
}

// Connected reports whether the controller is holding a poll open right now
// or has been heard from within the liveness window.
func (a *LongPollAdapter) Connected() bool {
	return a.activePolls.Load() > 0 || a.liveness.Connected()
}

// Poll blocks up to window for a queued request. It returns the oldest queued
// request immediately when one is available, or (nil, nil) when the window
// elapses empty so the controller can re-poll. The controller counts as
// present for the entire duration of the call, not just its start, so a poll
// window longer than the liveness window cannot open a false-disconnect gap.
func (a *LongPollAdapter) Poll(ctx context.Context, window time.Duration) (*Request, error) {
	if window <= 0 {
		window = DefaultPollWindow
	}
	a.liveness.Touch()
	a.activePolls.Add(1)
	defer func() {
		a.activePolls.Add(-1)
		a.liveness.Touch()
	}()

	timer := a.clock.Timer(window)
	defer timer.Stop()

	for {
		if req := a.pop(); req != nil {
			return req, nil
		}
		select {
		case <-a.wake:
			// Re-check; another poller may have taken the item.
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// SubmitResponse accepts a controller response and resolves it. Responses for
// unknown IDs are discarded by the resolver; submission also refreshes liveness.
func (a *LongPollAdapter) SubmitResponse(resp Response) {
	a.liveness.Touch()
	a.resolver.Resolve(resp.ID, resp.Response)
}

// QueueLen returns the number of undelivered requests.
func (a *LongPollAdapter) QueueLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

func (a *LongPollAdapter) pop() *Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.queue) == 0 {
		return nil
	}
	req := a.queue[0]
	a.queue = a.queue[1:]
	return &req
}
