// Package relay implements the publicly reachable half of the tunnel.
//
// # Overview
//
// The relay accepts control requests from anywhere on the internet and
// forwards them to a controller that lives behind NAT and only ever dials
// out. Each caller request is registered with the correlator, handed to the
// transport adapter, and held until the controller's answer comes back under
// the same ID.
//
// # Caller Contract
//
// The /api routes mirror the local mixer API one-to-one:
//
//	GET  /api/status
//	POST /api/input/{level}
//	POST /api/output/{level}
//	POST /api/latency/{ms}
//	POST /api/loopback/{state}
//	POST /api/preset/{name}
//
// On success the controller's JSON body is returned verbatim. Failures map
// to JSON error bodies:
//
//	503 {"error": "Local server not connected"}  no controller attached
//	504 {"error": "Timeout"}                     controller did not answer in time
//	500 {"error": "Empty response"}              controller answered with nothing
//
// # Controller Endpoints
//
// The transport mode decides what the controller side looks like:
//
//   - duplex mounts a websocket upgrade at /tunnel
//   - longpoll mounts GET /tunnel/poll and POST /tunnel/respond
//
// GET /health reports relay liveness and whether a controller is attached,
// and doubles as the target for the agent's keep-alive pings.
//
// # Metrics
//
// When enabled in config, a private Prometheus registry serves request
// outcome counters, queue evictions, and controller connectivity at the
// configured path.
package relay
