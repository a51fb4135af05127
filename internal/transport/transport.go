// ABOUTME: Wire frame types and the Adapter interface shared by both transports.
// ABOUTME: Defines the relay→controller and controller→relay JSON frame shapes.

package transport

import (
	"encoding/json"
	"errors"
)

// ErrNotConnected indicates no controller is available to deliver to.
var ErrNotConnected = errors.New("local server not connected")

// Request is the relay→controller frame: one relayed call to deliver.
type Request struct {
	ID     string `json:"id"`
	Path   string `json:"path"`
	Method string `json:"method"`
}

// Response is the controller→relay frame. The Response field is the
// controller's JSON body, passed through verbatim.
type Response struct {
	ID       string          `json:"id"`
	Response json.RawMessage `json:"response"`
}

// Resolver accepts correlated responses. *correlator.Correlator satisfies it.
type Resolver interface {
	Resolve(id string, result json.RawMessage)
}

// Adapter binds the relay to one of the two transport disciplines. Enqueue
// hands a request to the controller for delivery; it returns ErrNotConnected
// when no controller is reachable, without registering delivery.
type Adapter interface {
	Enqueue(req Request) error
	Connected() bool
}
