package gateway

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	defaultBackoffBase   = 1 * time.Second
	defaultBackoffCap    = 30 * time.Second
	defaultRateLimitWait = 5 * time.Second
)

// reconnectDelay computes the wait before reconnect attempt n (0-indexed):
// base doubles per attempt up to cap, then full jitter in [0.5x, 1.5x]
// spreads simultaneous clients retrying after a shared outage. The result is
// rounded to whole milliseconds.
func reconnectDelay(attempt int, base, cap time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt && d < cap; i++ {
		d *= 2
	}
	if d > cap {
		d = cap
	}
	jittered := float64(d) * (0.5 + rand.Float64())
	ms := math.Round(jittered / float64(time.Millisecond))
	return time.Duration(ms) * time.Millisecond
}
