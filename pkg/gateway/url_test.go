package gateway

import "testing"

func TestGatewayURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://chat.example.com", "ws://chat.example.com/gateway"},
		{"https://chat.example.com", "wss://chat.example.com/gateway"},
		{"https://chat.example.com/", "wss://chat.example.com/gateway"},
		{"http://localhost:8080///", "ws://localhost:8080/gateway"},
		{"ws://chat.example.com", "ws://chat.example.com/gateway"},
		{"wss://chat.example.com", "wss://chat.example.com/gateway"},
	}
	for _, tt := range tests {
		got, err := gatewayURL(tt.base, defaultGatewayPath)
		if err != nil {
			t.Errorf("gatewayURL(%q) error: %v", tt.base, err)
			continue
		}
		if got != tt.want {
			t.Errorf("gatewayURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestGatewayURLRejectsUnknownScheme(t *testing.T) {
	if _, err := gatewayURL("ftp://chat.example.com", defaultGatewayPath); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestStateString(t *testing.T) {
	states := map[State]string{
		StateIdle:           "idle",
		StateOpening:        "opening",
		StateAwaitingHello:  "awaiting_hello",
		StateAuthenticating: "authenticating",
		StateLive:           "live",
		StateClosing:        "closing",
		State(99):           "unknown",
	}
	for s, want := range states {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), s.String(), want)
		}
	}
}
