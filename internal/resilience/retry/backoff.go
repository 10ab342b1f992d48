package retry

import (
	"math/rand"
	"time"
)

// Backoff parameters: randomized exponential backoff designed to
// desynchronize concurrent retrying callers.
const (
	BaseDelay      = 250 * time.Millisecond
	MinDelay       = 50 * time.Millisecond
	JitterFraction = 0.4
	maxShift       = 32
)

// Rand is the randomness source for jitter. Inject a seeded source in tests
// for reproducible delays.
type Rand interface {
	Float64() float64
}

type ambientRand struct{}

func (ambientRand) Float64() float64 {
	return rand.Float64() // #nosec G404 -- jitter does not need crypto randomness
}

// Backoff returns the delay before retrying the zero-based attempt i:
// max(50ms, exp + exp*0.4*U(-1,1)) where exp = 250ms * 2^i.
func Backoff(i int, rnd Rand) time.Duration {
	if rnd == nil {
		rnd = ambientRand{}
	}
	if i < 0 {
		i = 0
	} else if i > maxShift {
		i = maxShift
	}

	exp := float64(BaseDelay) * float64(int64(1)<<i)
	jitter := exp * JitterFraction * (2*rnd.Float64() - 1)
	delay := time.Duration(exp + jitter)
	if delay < MinDelay {
		delay = MinDelay
	}
	return delay
}
