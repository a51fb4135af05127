// Package transport binds the relay to the controller over one of two
// interchangeable disciplines.
//
// # Frames
//
// Both transports exchange the same two JSON frame shapes:
//
//	relay → controller:  {"id": ..., "path": ..., "method": ...}
//	controller → relay:  {"id": ..., "response": ...}
//
// # Duplex
//
// DuplexAdapter holds a single persistent websocket to the controller.
// Enqueue writes a request frame; a read loop on the same connection resolves
// response frames. A second controller connecting replaces the first; the
// relay serves exactly one controller at a time.
//
// # Long-poll
//
// LongPollAdapter is the fallback for hosting environments that disallow
// persistent sockets. Requests go into a bounded FIFO; the controller drains
// it with repeated Poll calls held open up to a poll window, and submits
// responses separately. When the queue is full the oldest undelivered request
// is evicted, so memory stays bounded under sustained disconnection.
//
// Liveness differs per discipline: duplex liveness is connection-open, while
// long-poll liveness is "a poll is currently held open, or a poll or submit
// was seen within the window". Counting an open poll as presence matters
// because the poll window may exceed the liveness window; a blocked poller
// takes new work immediately, so it must never read as disconnected.
package transport
