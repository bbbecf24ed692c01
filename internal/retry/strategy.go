package retry

import (
	"math"
	"math/rand"
	"time"

	"golang.org/x/exp/constraints"
)

// Strategy reports how long to wait before retry n, counted from zero, and
// whether the retry budget is exhausted.
type Strategy interface {
	Sleep(n uint) (time.Duration, bool)
}

type never struct{}

func NewNever() Strategy {
	return never{}
}

func (never) Sleep(uint) (time.Duration, bool) {
	return 0, true
}

// Entropy picks a value in [0, n). Tests pass the identity to make delays
// deterministic.
type Entropy func(n int64) int64

type exponentialBackOff struct {
	base          time.Duration
	ceiling       time.Duration
	maxRetryCount uint
	entropy       Entropy
}

// NewExponentialBackOff waits a random ("full jitter") duration below
// base*2^n, capped at ceiling, and gives up after maxRetryCount retries.
func NewExponentialBackOff(base time.Duration, ceiling time.Duration, maxRetryCount uint, entropy Entropy) Strategy {
	if entropy == nil {
		entropy = rand.Int63n
	}
	return &exponentialBackOff{
		base:          base,
		ceiling:       ceiling,
		maxRetryCount: maxRetryCount,
		entropy:       entropy,
	}
}

func (e *exponentialBackOff) Sleep(n uint) (time.Duration, bool) {
	if n >= e.maxRetryCount {
		return 0, true
	}

	upper := e.upper(n)
	if upper <= 0 {
		return 0, false
	}
	return time.Duration(e.entropy(int64(upper))), false
}

// upper doubles base n times and saturates at ceiling instead of
// overflowing.
func (e *exponentialBackOff) upper(n uint) time.Duration {
	d := e.base
	for i := uint(0); i < n && d > 0 && d < e.ceiling; i++ {
		if d > math.MaxInt64/2 {
			return e.ceiling
		}
		d *= 2
	}
	return atMost(d, e.ceiling)
}

func atMost[T constraints.Ordered](v T, limit T) T {
	if v > limit {
		return limit
	}
	return v
}
