package accord

import (
	"context"
	"testing"
	"time"
)

func noToken(context.Context) (string, error) { return "", nil }

// TestNew tests that the facade constructor produces a working client.
func TestNew(t *testing.T) {
	cli := New("http://localhost:1", noToken)
	if cli == nil {
		t.Fatal("Expected client to be created, got nil")
	}
	if cli.State() != StateIdle {
		t.Errorf("new client state = %v, want idle", cli.State())
	}
	if err := cli.Disconnect(); err != nil {
		t.Logf("disconnect: %v", err)
	}
	if err := cli.Connect(context.Background()); err != ErrClientClosed {
		t.Errorf("Connect after Disconnect = %v, want ErrClientClosed", err)
	}
}

// TestNewWithOptions tests the struct-based constructor.
func TestNewWithOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.BackoffBase = 50 * time.Millisecond
	cli := NewWithOptions("http://localhost:1", noToken, opts)
	if cli == nil {
		t.Fatal("Expected client to be created, got nil")
	}
	cli.Disconnect()
}
