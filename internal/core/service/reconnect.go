package service

import (
	"math/rand"
	"time"
)

// ExponentialBackoffPolicy doubles the delay after every attempt, up to MaxDelay,
// and spreads it by up to Jitter (0..1) of its value.
type ExponentialBackoffPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int // 0 = unlimited
	Jitter       float64
}

func (p ExponentialBackoffPolicy) NextDelay(attempt int) (time.Duration, bool) {
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		return 0, false
	}
	delay := p.InitialDelay
	for i := 0; i < attempt && delay < p.MaxDelay; i++ {
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter > 0 {
		spread := time.Duration(float64(delay) * p.Jitter)
		if spread > 0 {
			delay = delay - spread/2 + time.Duration(rand.Int63n(int64(spread)))
		}
	}
	return delay, true
}
