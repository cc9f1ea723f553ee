// accord.go
package accord

import (
	"github.com/accordlabs/accord-go/pkg/gateway"
	"github.com/accordlabs/accord-go/pkg/protocol"
)

// Re-export core types
type (
	Client        = gateway.Client
	Handler       = gateway.Handler
	TokenProvider = gateway.TokenProvider
	Option        = gateway.Option
	Options       = gateway.Options
	State         = gateway.State
	CloseEvent    = gateway.CloseEvent
	Frame         = protocol.Frame
)

// Re-export error types
var ErrClientClosed = gateway.ErrClientClosed

// Re-export connection states
const (
	StateIdle           = gateway.StateIdle
	StateOpening        = gateway.StateOpening
	StateAwaitingHello  = gateway.StateAwaitingHello
	StateAuthenticating = gateway.StateAuthenticating
	StateLive           = gateway.StateLive
	StateClosing        = gateway.StateClosing
)

// Re-export event keys applications subscribe to
const (
	EventOpen  = gateway.EventOpen
	EventClose = gateway.EventClose
	EventReady = protocol.EventReady
)

// New creates a gateway client for the given base URL. The token provider is
// consulted on every handshake.
func New(baseURL string, tokens TokenProvider, opts ...Option) *Client {
	return gateway.New(baseURL, tokens, opts...)
}

// NewWithOptions creates a client from an Options struct instead of
// functional options.
func NewWithOptions(baseURL string, tokens TokenProvider, opts Options) *Client {
	return gateway.NewWithOptions(baseURL, tokens, opts)
}

// DefaultOptions returns the default client options.
func DefaultOptions() Options {
	return gateway.DefaultOptions()
}
