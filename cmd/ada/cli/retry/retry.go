// Package retry implements exponential backoff with jitter for failed
// sessions.
package retry

import (
	"math"
	"math/rand"
	"time"

	"github.com/adaharness/ada/cmd/ada/cli/classify"
)

// Defaults.
const (
	DefaultBase          = 5 * time.Second
	DefaultRateLimitBase = 30 * time.Second
	DefaultExpBase       = 2.0
	DefaultMaxDelay      = 300 * time.Second
	DefaultJitter        = 0.1
	DefaultMaxRetries    = 3
)

// Policy computes backoff delays and decides when a feature's retry budget
// is exhausted.
type Policy struct {
	Base          time.Duration
	RateLimitBase time.Duration
	ExpBase       float64
	MaxDelay      time.Duration
	Jitter        float64
	MaxRetries    int

	// rng defaults to the package-level source; injectable for tests.
	rng func() float64
}

// NewPolicy returns a Policy with the default parameters and the given
// retry budget (<=0 selects the default).
func NewPolicy(maxRetries int) *Policy {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Policy{
		Base:          DefaultBase,
		RateLimitBase: DefaultRateLimitBase,
		ExpBase:       DefaultExpBase,
		MaxDelay:      DefaultMaxDelay,
		Jitter:        DefaultJitter,
		MaxRetries:    maxRetries,
		rng:           rand.Float64,
	}
}

// Delay returns the backoff before retry attempt n (0-based): the first
// retry gets attempt 0. The raw delay min(maxDelay, base*expBase^n) is
// jittered by ±Jitter uniformly.
func (p *Policy) Delay(class classify.Class, attempt int) time.Duration {
	base := p.Base
	if class.Policy().LongBackoff {
		base = p.RateLimitBase
	}
	raw := float64(base) * math.Pow(p.ExpBase, float64(attempt))
	if raw > float64(p.MaxDelay) {
		raw = float64(p.MaxDelay)
	}

	rng := p.rng
	if rng == nil {
		rng = rand.Float64
	}
	// Uniform in [1-j, 1+j].
	factor := 1 + p.Jitter*(2*rng()-1)
	return time.Duration(raw * factor)
}

// ShouldRetry decides whether another attempt is allowed after `attempt`
// failures of the given class (attempt is the 0-based count of failures so
// far for the current feature).
func (p *Policy) ShouldRetry(class classify.Class, attempt int) bool {
	d := class.Policy()
	if !d.Retry {
		return false
	}
	if d.MaxAttempts > 0 && attempt >= d.MaxAttempts {
		return false
	}
	return attempt < p.MaxRetries
}
