package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistryUnsubscribeRemovesOnlyThatHandler(t *testing.T) {
	r := newRegistry(discardLogger())

	var got []string
	offA := r.add("MESSAGE_CREATE", func(json.RawMessage) { got = append(got, "a") })
	r.add("MESSAGE_CREATE", func(json.RawMessage) { got = append(got, "b") })

	r.emit("MESSAGE_CREATE", nil)
	if len(got) != 2 {
		t.Fatalf("expected both handlers to fire, got %v", got)
	}

	got = nil
	offA()
	r.emit("MESSAGE_CREATE", nil)
	if len(got) != 1 || got[0] != "b" {
		t.Fatalf("expected only handler b after unsubscribe, got %v", got)
	}

	// Unsubscribing twice is harmless.
	offA()
	got = nil
	r.emit("MESSAGE_CREATE", nil)
	if len(got) != 1 {
		t.Fatalf("double unsubscribe removed the wrong handler: %v", got)
	}
}

func TestRegistrySameHandlerMultipleKeys(t *testing.T) {
	r := newRegistry(discardLogger())

	count := 0
	h := func(json.RawMessage) { count++ }
	offOpen := r.add("open", h)
	r.add("close", h)

	r.emit("open", nil)
	r.emit("close", nil)
	if count != 2 {
		t.Fatalf("handler should fire once per key, fired %d times", count)
	}

	offOpen()
	r.emit("open", nil)
	r.emit("close", nil)
	if count != 3 {
		t.Fatalf("unsubscribing one key must not affect the other, count = %d", count)
	}
}

func TestRegistryPanickingHandlerDoesNotStopSiblings(t *testing.T) {
	r := newRegistry(discardLogger())

	fired := false
	r.add("open", func(json.RawMessage) { panic("handler bug") })
	r.add("open", func(json.RawMessage) { fired = true })

	r.emit("open", nil) // must not panic through
	if !fired {
		t.Fatal("sibling handler did not run after panic")
	}
}

func TestRegistryEmitUnknownKeyIsNoop(t *testing.T) {
	r := newRegistry(discardLogger())
	r.emit("nothing_registered", json.RawMessage(`{}`))
}
