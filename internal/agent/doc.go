// Package agent runs beside the local control surface and bridges it to the
// public relay.
//
// # Overview
//
// The agent dials out to the relay, receives relayed control requests,
// executes them against the local HTTP API, and ships the answers back with
// their correlation IDs intact. It never listens on a public port; all
// connectivity is outbound, which is the whole point of the tunnel.
//
// # Transports
//
// Two transports are supported, selected by Config.Mode:
//
//   - duplex: one persistent websocket to the relay's /tunnel endpoint.
//     Requests arrive as frames; responses go back on the same socket.
//     Keep-alive pings run every PingInterval.
//
//   - longpoll: repeated GET /tunnel/poll calls, each held open server-side
//     for up to the poll window, with responses submitted via POST
//     /tunnel/respond. Used where persistent sockets are not available.
//
// # Reconnection
//
// Transport failures never stop the agent. The duplex loop redials with
// exponential backoff (1s up to MaxRetryInterval), reset after every
// successful connection. The long-poll loop tolerates ErrorThreshold
// consecutive failures before it starts backing off, since transient poll
// errors are normal.
//
// # Connection State
//
// State() reports disconnected, connecting, or connected. It is maintained
// with a single atomic word and safe to read from any goroutine.
//
// # Control Surface
//
// The Surface interface abstracts the local API:
//
//	type Surface interface {
//	    Do(ctx context.Context, method, path string) (json.RawMessage, error)
//	}
//
// The production implementation is HTTPSurface, an HTTP client against the
// local mixer service. Surface errors are shaped as {"error": message}
// responses and sent back through the tunnel; they never tear down the
// transport.
package agent
