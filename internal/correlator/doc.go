// Package correlator pairs relayed requests with their eventual responses.
//
// # Overview
//
// The relay forwards caller requests to a controller over an asynchronous
// transport, so responses arrive detached from the requests that caused them.
// The Correlator owns the table of in-flight requests and re-joins the two
// halves by correlation ID:
//
//	id := corr.Register(path, method)
//	// hand {id, path, method} to the transport adapter...
//	result, err := corr.Await(ctx, id, 10*time.Second)
//
// The controller side of the transport calls:
//
//	corr.Resolve(id, response)
//
// # Guarantees
//
//   - Await returns exactly once per ID: on resolution, timeout, or context
//     cancellation, and the entry is removed on every path.
//   - At most one Resolve has an observable effect per ID. Resolutions for
//     unknown IDs (late, duplicate, or forged) are silently dropped, because a
//     controller may legitimately answer after the caller's timeout.
//
// # Staleness Sweep
//
// A background goroutine reclaims entries older than a staleness threshold
// that were never claimed by Await (a caller that registered and then went
// away). This bounds memory; it is not observable as protocol behavior.
//
// Time is injected via benbjohnson/clock so expiry is testable with a mock.
package correlator
