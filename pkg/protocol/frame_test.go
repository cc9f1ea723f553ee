package protocol_test

import (
	"testing"

	"github.com/accordlabs/accord-go/pkg/protocol"
)

func TestDecodeRejectsMalformed(t *testing.T) {
	if _, err := protocol.Decode([]byte("{not json")); err == nil {
		t.Fatal("expected error for malformed frame")
	}
	if _, err := protocol.Decode([]byte(`{"op":0,"t":"MESSAGE_CREATE"}`)); err != nil {
		t.Fatalf("valid frame rejected: %v", err)
	}
}

func TestEncodeOmitsAbsentFields(t *testing.T) {
	data, err := protocol.NewPresenceUpdate("online").Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"op":3,"d":{"status":"online"}}`
	if string(data) != want {
		t.Errorf("presence frame = %s, want %s", data, want)
	}
}

func TestHeartbeatPayload(t *testing.T) {
	data, err := protocol.NewHeartbeat(nil).Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(data) != `{"op":1,"d":null}` {
		t.Errorf("heartbeat without seq = %s", data)
	}

	seq := int64(42)
	data, err = protocol.NewHeartbeat(&seq).Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(data) != `{"op":1,"d":42}` {
		t.Errorf("heartbeat with seq = %s", data)
	}
}

func TestDecodePayloadNullLeavesZeroValue(t *testing.T) {
	f, err := protocol.Decode([]byte(`{"op":10}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var hello protocol.Hello
	if err := f.DecodePayload(&hello); err != nil {
		t.Fatalf("null payload should decode cleanly: %v", err)
	}
	if hello.Valid() {
		t.Error("hello without interval must not validate")
	}
}

func TestHelloValidation(t *testing.T) {
	f, err := protocol.Decode([]byte(`{"op":10,"d":{"heartbeat_interval":45000}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var hello protocol.Hello
	if err := f.DecodePayload(&hello); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if !hello.Valid() || hello.HeartbeatInterval != 45000 {
		t.Errorf("hello = %+v", hello)
	}

	f, _ = protocol.Decode([]byte(`{"op":10,"d":{"heartbeat_interval":0}}`))
	var zero protocol.Hello
	_ = f.DecodePayload(&zero)
	if zero.Valid() {
		t.Error("zero interval must not validate")
	}
}

func TestResumeRoundTrip(t *testing.T) {
	f := protocol.NewResume("tok", "sess-1", 7)
	if f.Op != protocol.OpResume {
		t.Fatalf("op = %d", f.Op)
	}
	var r protocol.Resume
	if err := f.DecodePayload(&r); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if r.Token != "tok" || r.SessionID != "sess-1" || r.Seq != 7 {
		t.Errorf("resume = %+v", r)
	}
}
