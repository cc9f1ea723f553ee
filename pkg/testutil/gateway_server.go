// Package testutil provides a scriptable mock gateway server for exercising
// the client over a real socket in tests.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/accordlabs/accord-go/pkg/protocol"
)

// GatewayServer accepts socket connections and lets a test script the
// server side of the protocol: send frames, inspect what the client sent,
// and close with arbitrary codes. Reconnecting clients produce a fresh
// connection on the same server.
type GatewayServer struct {
	T      *testing.T
	Server *httptest.Server

	connMu sync.Mutex
	conn   *websocket.Conn

	connects chan struct{}
	frames   chan protocol.Frame
}

// NewGatewayServer starts a mock gateway. It is closed via t.Cleanup.
func NewGatewayServer(t *testing.T) *GatewayServer {
	t.Helper()
	gs := &GatewayServer{
		T:        t,
		connects: make(chan struct{}, 8),
		frames:   make(chan protocol.Frame, 64),
	}
	gs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			gs.T.Logf("GatewayServer: accept error: %v", err)
			return
		}
		gs.connMu.Lock()
		gs.conn = conn
		gs.connMu.Unlock()
		gs.connects <- struct{}{}
		gs.T.Logf("GatewayServer: client connected on %s", r.URL.Path)

		for {
			var f protocol.Frame
			if err := wsjson.Read(context.Background(), conn, &f); err != nil {
				gs.T.Logf("GatewayServer: read loop ended: %v", err)
				return
			}
			gs.frames <- f
		}
	}))
	t.Cleanup(gs.Close)
	return gs
}

// URL returns the server's http base address; the client derives the socket
// address from it.
func (gs *GatewayServer) URL() string {
	return gs.Server.URL
}

// WaitConnect blocks until a client connects, or fails the test after the
// timeout.
func (gs *GatewayServer) WaitConnect(timeout time.Duration) {
	gs.T.Helper()
	select {
	case <-gs.connects:
	case <-time.After(timeout):
		gs.T.Fatalf("GatewayServer: no client connection within %v", timeout)
	}
}

// ExpectNoConnect fails the test if a client connects within the window.
func (gs *GatewayServer) ExpectNoConnect(window time.Duration) {
	gs.T.Helper()
	select {
	case <-gs.connects:
		gs.T.Fatalf("GatewayServer: unexpected client connection")
	case <-time.After(window):
	}
}

// Send writes a frame to the currently connected client.
func (gs *GatewayServer) Send(f *protocol.Frame) error {
	gs.connMu.Lock()
	conn := gs.conn
	gs.connMu.Unlock()
	if conn == nil {
		return fmt.Errorf("testutil: no active connection")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return wsjson.Write(ctx, conn, f)
}

// SendRaw writes an arbitrary text message, useful for malformed input.
func (gs *GatewayServer) SendRaw(data string) error {
	gs.connMu.Lock()
	conn := gs.conn
	gs.connMu.Unlock()
	if conn == nil {
		return fmt.Errorf("testutil: no active connection")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, []byte(data))
}

// Hello sends the handshake frame with the given heartbeat interval in
// milliseconds.
func (gs *GatewayServer) Hello(intervalMs int64) error {
	return gs.Send(&protocol.Frame{
		Op: protocol.OpHello,
		D:  mustJSON(gs.T, protocol.Hello{HeartbeatInterval: intervalMs}),
	})
}

// NextFrame returns the next frame the client sent, or fails the test after
// the timeout.
func (gs *GatewayServer) NextFrame(timeout time.Duration) protocol.Frame {
	gs.T.Helper()
	select {
	case f := <-gs.frames:
		return f
	case <-time.After(timeout):
		gs.T.Fatalf("GatewayServer: no frame from client within %v", timeout)
		return protocol.Frame{}
	}
}

// NextFrameOp keeps reading until a frame with the given opcode arrives,
// discarding others (heartbeats, typically).
func (gs *GatewayServer) NextFrameOp(op int, timeout time.Duration) protocol.Frame {
	gs.T.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case f := <-gs.frames:
			if f.Op == op {
				return f
			}
		case <-deadline:
			gs.T.Fatalf("GatewayServer: no op %d frame from client within %v", op, timeout)
			return protocol.Frame{}
		}
	}
}

// ExpectNoFrame fails the test if the client sends anything within the
// window.
func (gs *GatewayServer) ExpectNoFrame(window time.Duration) {
	gs.T.Helper()
	select {
	case f := <-gs.frames:
		gs.T.Fatalf("GatewayServer: unexpected frame from client: op %d", f.Op)
	case <-time.After(window):
	}
}

// CloseWithCode closes the current connection with the given status code.
func (gs *GatewayServer) CloseWithCode(code websocket.StatusCode, reason string) {
	gs.connMu.Lock()
	conn := gs.conn
	gs.conn = nil
	gs.connMu.Unlock()
	if conn != nil {
		conn.Close(code, reason)
	}
}

// Close shuts the server down.
func (gs *GatewayServer) Close() {
	gs.CloseWithCode(websocket.StatusGoingAway, "server shutting down")
	gs.Server.Close()
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("testutil: marshal %T: %v", v, err)
	}
	return data
}
