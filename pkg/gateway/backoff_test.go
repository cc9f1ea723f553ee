package gateway

import (
	"testing"
	"time"
)

func TestReconnectDelayBounds(t *testing.T) {
	for attempt := 0; attempt <= 8; attempt++ {
		base := 1000 * time.Millisecond
		for i := 0; i < attempt; i++ {
			base *= 2
		}
		if base > 30*time.Second {
			base = 30 * time.Second
		}
		lo, hi := base/2, base+base/2

		for i := 0; i < 100; i++ {
			d := reconnectDelay(attempt, defaultBackoffBase, defaultBackoffCap)
			if d < lo || d > hi {
				t.Fatalf("attempt %d: delay %v outside [%v, %v]", attempt, d, lo, hi)
			}
		}
	}
}

func TestReconnectDelayCapped(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := reconnectDelay(40, defaultBackoffBase, defaultBackoffCap)
		if d > 45*time.Second {
			t.Fatalf("capped delay exceeded 1.5x ceiling: %v", d)
		}
		if d < 15*time.Second {
			t.Fatalf("capped delay below 0.5x ceiling: %v", d)
		}
	}
}

func TestReconnectDelayMillisecondGranularity(t *testing.T) {
	d := reconnectDelay(0, defaultBackoffBase, defaultBackoffCap)
	if d%time.Millisecond != 0 {
		t.Errorf("delay %v not rounded to whole milliseconds", d)
	}
}
