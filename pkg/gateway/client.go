// Package gateway implements the persistent event-stream client: it opens
// the socket, performs the Hello/Identify handshake, keeps the connection
// alive with heartbeats, recovers from failures with backoff, and fans
// server-pushed events out to subscribers in delivery order.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/accordlabs/accord-go/pkg/protocol"
)

// TokenProvider returns the current access token. It is consulted at the
// moment of use, never captured, so refreshed credentials are picked up on
// the next handshake. An empty token or an error means no token is
// available.
type TokenProvider func(ctx context.Context) (string, error)

// Synthetic event keys emitted alongside the server's dispatch events.
const (
	// EventOpen fires when a session goes live; its payload is the READY
	// frame's initial state snapshot.
	EventOpen = "open"
	// EventClose fires when the current socket closes for any reason other
	// than Disconnect; its payload is a CloseEvent.
	EventClose = "close"
)

// CloseEvent is the payload of EventClose.
type CloseEvent struct {
	Code int `json:"code"`
}

// ErrClientClosed is returned once Disconnect has made the client permanent
// dead weight; no further socket will ever be opened by the instance.
var ErrClientClosed = errors.New("gateway: client is closed")

// Client maintains at most one live socket at a time. The previous socket is
// always fully detached before a new one becomes active, so a stale socket's
// events can never be mistaken for the current connection's.
type Client struct {
	baseURL string
	tokens  TokenProvider
	config  clientConfig

	listeners *registry

	// writeMu serializes frame writes from the heartbeat loop, the auth
	// goroutine and presence pushes.
	writeMu sync.Mutex

	mu                sync.Mutex
	ctx               context.Context // lifetime context, set on Connect
	state             State
	conn              *websocket.Conn
	gen               int // bumped per socket; stale callbacks compare against it
	disposed          bool
	intentionalClose  bool
	heartbeatAck      bool
	heartbeatStop     chan struct{}
	reconnectAttempts int
	reconnectTimer    *time.Timer
	forcedCloseCode   websocket.StatusCode
	sessionID         string
	seq               int64
	hasSeq            bool
}

// New constructs a client for the given base address. baseURL is the http(s)
// address of the server; the socket address is derived from it. tokens is
// consulted during every handshake.
func New(baseURL string, tokens TokenProvider, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		tokens:  tokens,
		config: clientConfig{
			logger:        slog.Default(),
			dialOptions:   &websocket.DialOptions{HTTPClient: http.DefaultClient},
			gatewayPath:   defaultGatewayPath,
			dialTimeout:   defaultDialTimeout,
			writeTimeout:  defaultWriteTimeout,
			backoffBase:   defaultBackoffBase,
			backoffCap:    defaultBackoffCap,
			rateLimitWait: defaultRateLimitWait,
		},
		state: StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.listeners = newRegistry(c.config.logger)
	return c
}

// Connect opens a new socket and starts the handshake. Any previous socket
// and any pending reconnect are torn down first. The context bounds the
// client's lifetime: reconnect dials and token fetches derive from it.
// Returns ErrClientClosed after Disconnect.
func (c *Client) Connect(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.ctx = ctx
	c.intentionalClose = false
	c.cancelReconnectLocked()
	if c.conn != nil {
		old := c.conn
		c.conn = nil
		c.stopHeartbeatLocked()
		go old.Close(protocol.CloseNormal, "superseded by new connect")
	}
	c.gen++
	gen := c.gen
	c.forcedCloseCode = 0
	c.state = StateOpening
	c.mu.Unlock()

	wsURL, err := gatewayURL(c.baseURL, c.config.gatewayPath)
	if err != nil {
		c.mu.Lock()
		if gen == c.gen {
			c.state = StateIdle
		}
		c.mu.Unlock()
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.config.dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, wsURL, c.config.dialOptions)
	cancel()

	c.mu.Lock()
	if c.disposed || gen != c.gen {
		c.mu.Unlock()
		if conn != nil {
			conn.Close(protocol.CloseNormal, "stale connection being replaced")
		}
		return nil
	}
	if err != nil {
		c.state = StateIdle
		if !c.intentionalClose && ctx.Err() == nil {
			c.scheduleReconnectLocked(c.nextDelayLocked())
		}
		c.mu.Unlock()
		return fmt.Errorf("gateway: dial %s: %w", wsURL, err)
	}
	c.conn = conn
	c.reconnectAttempts = 0
	c.state = StateAwaitingHello
	c.mu.Unlock()

	c.config.logger.Debug("gateway: socket open", "url", wsURL)
	go c.readPump(ctx, conn, gen)
	return nil
}

// Disconnect permanently closes the client: the pending reconnect is
// cancelled, the heartbeat stopped, the socket detached and closed. After
// Disconnect, Connect is a permanent no-op; no background timer or socket
// outlives this call.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil
	}
	c.disposed = true
	c.intentionalClose = true
	c.cancelReconnectLocked()
	c.stopHeartbeatLocked()
	conn := c.conn
	c.conn = nil
	c.gen++ // in-flight callbacks of the old socket become stale
	c.state = StateIdle
	c.mu.Unlock()

	if conn != nil {
		return conn.Close(protocol.CloseNormal, "client disconnect")
	}
	return nil
}

// SendPresenceUpdate pushes a best-effort status update. It is silently
// dropped when no socket is open; presence is never queued or retried.
func (c *Client) SendPresenceUpdate(status string) {
	c.mu.Lock()
	conn := c.conn
	ctx := c.ctx
	c.mu.Unlock()
	if conn == nil || ctx == nil {
		return
	}
	if err := c.writeFrame(ctx, conn, protocol.NewPresenceUpdate(status)); err != nil {
		c.config.logger.Debug("gateway: presence update dropped", "error", err)
	}
}

// On registers h for the given dispatch event name, or for the synthetic
// EventOpen / EventClose keys. The returned function removes exactly that
// registration.
func (c *Client) On(key string, h Handler) (off func()) {
	return c.listeners.add(key, h)
}

// State returns the connection state machine's current position.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the stored session id and last seen sequence number. ok
// reports resume eligibility: both must be present for a Resume to be sent.
func (c *Client) Session() (id string, seq int64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID, c.seq, c.sessionID != "" && c.hasSeq
}

func (c *Client) readPump(ctx context.Context, conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.handleClose(gen, websocket.CloseStatus(err))
			return
		}
		c.handleFrame(ctx, conn, gen, data)
	}
}

func (c *Client) handleFrame(ctx context.Context, conn *websocket.Conn, gen int, data []byte) {
	frame, err := protocol.Decode(data)
	if err != nil {
		// A malformed frame is not evidence the connection is broken.
		c.config.logger.Warn("gateway: dropping malformed frame", "error", err)
		return
	}
	switch frame.Op {
	case protocol.OpHello:
		c.handleHello(ctx, conn, gen, frame)
	case protocol.OpDispatch:
		c.handleDispatch(gen, frame)
	case protocol.OpHeartbeatACK:
		c.mu.Lock()
		if !c.disposed && gen == c.gen {
			c.heartbeatAck = true
		}
		c.mu.Unlock()
	case protocol.OpReconnect:
		c.config.logger.Info("gateway: server requested reconnect")
		c.forceClose(gen, protocol.CloseReconnect)
	case protocol.OpInvalidSession:
		c.handleInvalidSession(gen, frame)
	default:
		c.config.logger.Debug("gateway: ignoring frame", "op", frame.Op)
	}
}

func (c *Client) handleHello(ctx context.Context, conn *websocket.Conn, gen int, frame *protocol.Frame) {
	var hello protocol.Hello
	if err := frame.DecodePayload(&hello); err != nil || !hello.Valid() {
		c.config.logger.Warn("gateway: hello without usable heartbeat interval, ignored")
		return
	}
	interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond

	c.mu.Lock()
	if c.disposed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.state = StateAuthenticating
	// Heartbeats start before the token fetch so a slow fetch cannot starve
	// liveness.
	c.startHeartbeatLocked(ctx, conn, gen, interval)
	c.mu.Unlock()

	go c.authenticate(ctx, conn, gen)
}

func (c *Client) authenticate(ctx context.Context, conn *websocket.Conn, gen int) {
	token, err := c.tokens(ctx)

	// The fetch suspended; the owner may have disconnected or the socket may
	// have been replaced in the meantime.
	c.mu.Lock()
	if c.disposed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	if err != nil || token == "" {
		// Without a token an identify can only bounce. Close for good
		// instead of cycling connect -> idle -> reconnect.
		c.intentionalClose = true
		c.mu.Unlock()
		if err != nil {
			c.config.logger.Warn("gateway: token fetch failed, closing", "error", err)
		} else {
			c.config.logger.Warn("gateway: no access token available, closing")
		}
		conn.Close(protocol.CloseNormal, "no access token")
		return
	}
	var frame *protocol.Frame
	if c.sessionID != "" && c.hasSeq {
		frame = protocol.NewResume(token, c.sessionID, c.seq)
	} else {
		frame = protocol.NewIdentify(token)
	}
	c.mu.Unlock()

	if err := c.writeFrame(ctx, conn, frame); err != nil {
		c.config.logger.Warn("gateway: auth send failed", "error", err)
		return
	}
	c.mu.Lock()
	if !c.disposed && gen == c.gen {
		c.state = StateLive
	}
	c.mu.Unlock()
}

func (c *Client) handleDispatch(gen int, frame *protocol.Frame) {
	c.mu.Lock()
	if c.disposed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	// Sequence tracking never skips a frame, even for event types the client
	// does not understand, and is updated before any emission so handlers
	// always observe the current value.
	if frame.S != nil {
		c.seq = *frame.S
		c.hasSeq = true
	}
	var openPayload json.RawMessage
	if frame.T == protocol.EventReady {
		var ready protocol.Ready
		if err := frame.DecodePayload(&ready); err == nil && ready.SessionID != "" {
			c.sessionID = ready.SessionID
			openPayload = frame.D
		}
	}
	c.mu.Unlock()

	if openPayload != nil {
		c.listeners.emit(EventOpen, openPayload)
	}
	if frame.T != "" {
		c.listeners.emit(frame.T, frame.D)
	}
}

func (c *Client) handleInvalidSession(gen int, frame *protocol.Frame) {
	var resumable bool
	if err := frame.DecodePayload(&resumable); err != nil {
		resumable = false
	}
	c.mu.Lock()
	if c.disposed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	if !resumable {
		// The next connect must identify fresh; a resume is doomed.
		c.sessionID, c.seq, c.hasSeq = "", 0, false
	}
	c.mu.Unlock()

	c.config.logger.Info("gateway: session invalidated", "resumable", resumable)
	c.forceClose(gen, protocol.CloseReconnect)
}

// startHeartbeatLocked replaces any previous heartbeat loop with one ticking
// at the server-given interval. The ack flag starts true so the very first
// tick does not immediately fault.
func (c *Client) startHeartbeatLocked(ctx context.Context, conn *websocket.Conn, gen int, interval time.Duration) {
	c.stopHeartbeatLocked()
	c.heartbeatAck = true
	stop := make(chan struct{})
	c.heartbeatStop = stop
	go c.heartbeatLoop(ctx, conn, gen, interval, stop)
}

func (c *Client) stopHeartbeatLocked() {
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
}

func (c *Client) heartbeatLoop(ctx context.Context, conn *websocket.Conn, gen int, interval time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.disposed || gen != c.gen {
				c.mu.Unlock()
				return
			}
			if !c.heartbeatAck {
				c.mu.Unlock()
				// A socket that stopped acking silently drops events while
				// looking healthy; kill it and let the close path retry.
				c.config.logger.Warn("gateway: heartbeat ack missed, closing zombie connection")
				c.forceClose(gen, protocol.CloseReconnect)
				return
			}
			c.heartbeatAck = false
			var seq *int64
			if c.hasSeq {
				s := c.seq
				seq = &s
			}
			c.mu.Unlock()

			if err := c.writeFrame(ctx, conn, protocol.NewHeartbeat(seq)); err != nil {
				c.config.logger.Debug("gateway: heartbeat send failed", "error", err)
			}
		}
	}
}

// forceClose closes the current socket with the given code, routing the
// failure through the ordinary close handling which schedules a reconnect.
func (c *Client) forceClose(gen int, code websocket.StatusCode) {
	c.mu.Lock()
	if c.disposed || gen != c.gen || c.conn == nil {
		c.mu.Unlock()
		return
	}
	c.forcedCloseCode = code
	conn := c.conn
	c.mu.Unlock()

	conn.Close(code, "gateway force close")
}

// handleClose runs when the read pump exits. A superseded socket's close is
// ignored entirely so it cannot schedule a competing reconnect.
func (c *Client) handleClose(gen int, code websocket.StatusCode) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if c.forcedCloseCode != 0 {
		code = c.forcedCloseCode
	} else if code == -1 {
		code = websocket.StatusAbnormalClosure
	}
	c.stopHeartbeatLocked()
	c.conn = nil
	c.state = StateClosing

	switch {
	case c.disposed || c.intentionalClose:
		// Caller-initiated teardown or the no-token self-close: no retry.
	case c.ctx != nil && c.ctx.Err() != nil:
		// Lifetime context gone; reconnect dials could never succeed.
	case code == protocol.CloseInvalidToken:
		// Resuming with a rejected token is pointless.
		c.sessionID, c.seq, c.hasSeq = "", 0, false
		c.scheduleReconnectLocked(c.nextDelayLocked())
	case code == protocol.CloseRateLimited:
		c.scheduleReconnectLocked(c.config.rateLimitWait)
	default:
		c.scheduleReconnectLocked(c.nextDelayLocked())
	}
	if c.reconnectTimer == nil {
		c.state = StateIdle
	}
	c.mu.Unlock()

	c.config.logger.Info("gateway: socket closed", "code", int(code))
	ev, _ := json.Marshal(CloseEvent{Code: int(code)})
	c.listeners.emit(EventClose, ev)
}

// scheduleReconnectLocked arms the single reconnect timer, replacing any
// prior one, and advances the attempt counter.
func (c *Client) scheduleReconnectLocked(delay time.Duration) {
	c.cancelReconnectLocked()
	c.reconnectAttempts++
	c.state = StateIdle
	ctx := c.ctx
	c.config.logger.Debug("gateway: reconnect scheduled", "delay", delay, "attempt", c.reconnectAttempts)
	c.reconnectTimer = time.AfterFunc(delay, func() {
		if err := c.Connect(ctx); err != nil && !errors.Is(err, ErrClientClosed) {
			c.config.logger.Warn("gateway: reconnect attempt failed", "error", err)
		}
	})
}

func (c *Client) cancelReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *Client) nextDelayLocked() time.Duration {
	return reconnectDelay(c.reconnectAttempts, c.config.backoffBase, c.config.backoffCap)
}

func (c *Client) writeFrame(ctx context.Context, conn *websocket.Conn, frame *protocol.Frame) error {
	data, err := frame.Encode()
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, c.config.writeTimeout)
	defer cancel()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.Write(wctx, websocket.MessageText, data)
}

// gatewayURL derives the socket address from the configured base address:
// trailing slashes are stripped, an http scheme becomes ws (https becomes
// wss) with the rest of the address preserved, and the gateway path is
// appended.
func gatewayURL(base, path string) (string, error) {
	trimmed := strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(trimmed, "http://"), strings.HasPrefix(trimmed, "https://"):
		trimmed = "ws" + strings.TrimPrefix(trimmed, "http")
	case strings.HasPrefix(trimmed, "ws://"), strings.HasPrefix(trimmed, "wss://"):
	default:
		return "", fmt.Errorf("gateway: unsupported base address %q", base)
	}
	return trimmed + path, nil
}
