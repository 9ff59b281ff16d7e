package diag

import (
	"math"
	"math/rand"
	"time"
)

// acceptBackoff paces retries of a failing Accept. Each consecutive failure
// grows the delay by the multiplier up to the cap; a successful accept
// starts over from the initial delay.
type acceptBackoff struct {
	cfg      BackoffConfig
	rng      *rand.Rand
	failures int
	current  time.Duration
}

func newAcceptBackoff(cfg BackoffConfig, seed int64) *acceptBackoff {
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	return &acceptBackoff{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// next records one more failed accept and returns how long to wait before
// the following attempt.
func (b *acceptBackoff) next() time.Duration {
	b.failures++
	if b.failures == 1 || b.cfg.InitialDelay <= 0 {
		b.current = b.cfg.InitialDelay
	} else {
		grown := float64(b.current) * b.cfg.Multiplier
		if grown >= math.MaxInt64 {
			grown = math.MaxInt64
		}
		b.current = time.Duration(grown)
	}
	if b.cfg.MaxDelay > 0 && b.current > b.cfg.MaxDelay {
		b.current = b.cfg.MaxDelay
	}
	if !b.cfg.Jitter || b.current <= 0 {
		return b.current
	}
	// Jittered delays spread over [current/2, current*3/2).
	return time.Duration(float64(b.current) * (0.5 + b.rng.Float64()))
}

// reset is called after a successful accept.
func (b *acceptBackoff) reset() {
	b.failures = 0
	b.current = 0
}

// failed reports consecutive failed accepts since the last success.
func (b *acceptBackoff) failed() int {
	return b.failures
}
