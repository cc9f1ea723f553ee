// Package protocol defines the gateway wire format: op-coded JSON frames
// exchanged over the socket and the payload shapes the client acts on.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/coder/websocket"
)

// Gateway opcodes.
const (
	OpDispatch       = 0  // server->client: named event + payload, optionally sequenced
	OpHeartbeat      = 1  // client->server: liveness probe
	OpIdentify       = 2  // client->server: fresh-session auth request
	OpPresenceUpdate = 3  // client->server: best-effort status push
	OpResume         = 6  // client->server: resume with session id + last seq
	OpReconnect      = 7  // server->client: "please reconnect now"
	OpInvalidSession = 9  // server->client: session rejected; payload = resumable bool
	OpHello          = 10 // server->client: handshake init; carries heartbeat interval
	OpHeartbeatACK   = 11 // server->client: liveness confirmation
)

// Close codes the client sends or classifies on receipt.
const (
	CloseNormal       = websocket.StatusNormalClosure
	CloseReconnect    = websocket.StatusCode(4000)
	CloseInvalidToken = websocket.StatusCode(4004)
	CloseRateLimited  = websocket.StatusCode(4008)
)

// EventReady is the dispatch event that announces a live session and carries
// the initial state snapshot, including the session id used for resumes.
const EventReady = "READY"

// Frame is the wire unit. S and T are only present on dispatch frames; D is
// opaque to the client except for the control opcodes it must act on.
type Frame struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// Decode parses a single wire message into a Frame.
func Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("protocol: malformed frame: %w", err)
	}
	return &f, nil
}

// Encode marshals the frame for the wire.
func (f *Frame) Encode() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode frame op %d: %w", f.Op, err)
	}
	return data, nil
}

// DecodePayload unmarshals the frame's payload into v (must be a pointer).
// A missing or null payload leaves v at its zero value.
func (f *Frame) DecodePayload(v any) error {
	if len(f.D) == 0 || string(f.D) == "null" {
		return nil
	}
	return json.Unmarshal(f.D, v)
}

// Hello is the payload of OpHello.
type Hello struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"` // milliseconds
}

// Valid reports whether the payload carried a usable heartbeat interval.
// The interval is duck-typed: a Hello without a positive interval is ignored.
func (h Hello) Valid() bool {
	return h.HeartbeatInterval > 0
}

// Identify is the payload of OpIdentify.
type Identify struct {
	Token string `json:"token"`
}

// Resume is the payload of OpResume.
type Resume struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// PresenceUpdate is the payload of OpPresenceUpdate.
type PresenceUpdate struct {
	Status string `json:"status"`
}

// Ready is the slice of the READY dispatch payload the client itself reads;
// the rest of the snapshot is passed through to subscribers untouched.
type Ready struct {
	SessionID string `json:"session_id"`
}

func mustPayload(v any) json.RawMessage {
	// All client-built payloads are plain structs of strings and ints;
	// marshalling them cannot fail.
	d, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("protocol: marshal %T: %v", v, err))
	}
	return d
}

// NewHeartbeat builds a heartbeat frame. seq is the last seen sequence
// number, or nil before any dispatch frame has arrived.
func NewHeartbeat(seq *int64) *Frame {
	return &Frame{Op: OpHeartbeat, D: mustPayload(seq)}
}

// NewIdentify builds a fresh-session auth frame.
func NewIdentify(token string) *Frame {
	return &Frame{Op: OpIdentify, D: mustPayload(Identify{Token: token})}
}

// NewResume builds a session-resume frame.
func NewResume(token, sessionID string, seq int64) *Frame {
	return &Frame{Op: OpResume, D: mustPayload(Resume{Token: token, SessionID: sessionID, Seq: seq})}
}

// NewPresenceUpdate builds a presence frame.
func NewPresenceUpdate(status string) *Frame {
	return &Frame{Op: OpPresenceUpdate, D: mustPayload(PresenceUpdate{Status: status})}
}
