package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

const (
	defaultGatewayPath  = "/gateway"
	defaultDialTimeout  = 10 * time.Second
	defaultWriteTimeout = 5 * time.Second
)

type clientConfig struct {
	logger        *slog.Logger
	dialOptions   *websocket.DialOptions
	gatewayPath   string
	dialTimeout   time.Duration
	writeTimeout  time.Duration
	backoffBase   time.Duration
	backoffCap    time.Duration
	rateLimitWait time.Duration
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a custom logging implementation.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.config.logger = logger
		}
	}
}

// WithDialOptions sets custom websocket.DialOptions.
func WithDialOptions(opts *websocket.DialOptions) Option {
	return func(c *Client) {
		c.config.dialOptions = opts
	}
}

// WithGatewayPath overrides the path appended to the derived socket address.
func WithGatewayPath(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.config.gatewayPath = path
		}
	}
}

// WithDialTimeout sets the timeout for opening the socket.
func WithDialTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.config.dialTimeout = timeout
		}
	}
}

// WithWriteTimeout sets the timeout for sending a single frame.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.config.writeTimeout = timeout
		}
	}
}

// WithBackoff overrides the reconnect backoff's base delay and ceiling.
func WithBackoff(base, max time.Duration) Option {
	return func(c *Client) {
		if base > 0 {
			c.config.backoffBase = base
		}
		if max > 0 && max >= c.config.backoffBase {
			c.config.backoffCap = max
		}
	}
}

// WithRateLimitWait overrides the fixed wait applied after a rate-limited
// close. This wait never compounds with the exponential backoff.
func WithRateLimitWait(wait time.Duration) Option {
	return func(c *Client) {
		if wait > 0 {
			c.config.rateLimitWait = wait
		}
	}
}

// Options contains configuration values for NewWithOptions.
type Options struct {
	Logger        *slog.Logger
	DialOptions   *websocket.DialOptions
	GatewayPath   string
	DialTimeout   time.Duration
	WriteTimeout  time.Duration
	BackoffBase   time.Duration
	BackoffCap    time.Duration
	RateLimitWait time.Duration
}

// DefaultOptions returns an Options struct populated with library defaults.
func DefaultOptions() Options {
	return Options{
		Logger:        slog.Default(),
		DialOptions:   &websocket.DialOptions{HTTPClient: http.DefaultClient},
		GatewayPath:   defaultGatewayPath,
		DialTimeout:   defaultDialTimeout,
		WriteTimeout:  defaultWriteTimeout,
		BackoffBase:   defaultBackoffBase,
		BackoffCap:    defaultBackoffCap,
		RateLimitWait: defaultRateLimitWait,
	}
}

// NewWithOptions constructs a client from an Options struct. Zero values
// fall back to library defaults.
func NewWithOptions(baseURL string, tokens TokenProvider, opts Options) *Client {
	optFns := make([]Option, 0, 8)
	if opts.Logger != nil {
		optFns = append(optFns, WithLogger(opts.Logger))
	}
	if opts.DialOptions != nil {
		optFns = append(optFns, WithDialOptions(opts.DialOptions))
	}
	if opts.GatewayPath != "" {
		optFns = append(optFns, WithGatewayPath(opts.GatewayPath))
	}
	if opts.DialTimeout > 0 {
		optFns = append(optFns, WithDialTimeout(opts.DialTimeout))
	}
	if opts.WriteTimeout > 0 {
		optFns = append(optFns, WithWriteTimeout(opts.WriteTimeout))
	}
	if opts.BackoffBase > 0 || opts.BackoffCap > 0 {
		optFns = append(optFns, WithBackoff(opts.BackoffBase, opts.BackoffCap))
	}
	if opts.RateLimitWait > 0 {
		optFns = append(optFns, WithRateLimitWait(opts.RateLimitWait))
	}
	return New(baseURL, tokens, optFns...)
}
