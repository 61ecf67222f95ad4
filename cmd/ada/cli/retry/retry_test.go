package retry

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/adaharness/ada/cmd/ada/cli/classify"
)

// fixed returns a policy whose jitter factor is exactly 1.
func fixed() *Policy {
	p := NewPolicy(3)
	p.rng = func() float64 { return 0.5 }
	return p
}

func TestDelayProgression(t *testing.T) {
	p := fixed()
	assert.Equal(t, 5*time.Second, p.Delay(classify.Transient, 0))
	assert.Equal(t, 10*time.Second, p.Delay(classify.Transient, 1))
	assert.Equal(t, 20*time.Second, p.Delay(classify.Transient, 2))
	// Capped at 300s: 5 * 2^7 = 640 > 300.
	assert.Equal(t, 300*time.Second, p.Delay(classify.Transient, 7))
}

func TestRateLimitUsesLongerBase(t *testing.T) {
	p := fixed()
	assert.Equal(t, 30*time.Second, p.Delay(classify.RateLimit, 0))
	assert.Equal(t, 60*time.Second, p.Delay(classify.RateLimit, 1))
}

func TestJitterBounds(t *testing.T) {
	low := NewPolicy(3)
	low.rng = func() float64 { return 0 } // factor 0.9
	high := NewPolicy(3)
	high.rng = func() float64 { return 1 } // factor 1.1

	assert.Equal(t, time.Duration(float64(5*time.Second)*0.9), low.Delay(classify.Transient, 0))
	assert.Equal(t, time.Duration(float64(5*time.Second)*1.1), high.Delay(classify.Transient, 0))
}

func TestShouldRetryBudget(t *testing.T) {
	p := NewPolicy(3)
	assert.True(t, p.ShouldRetry(classify.Transient, 0))
	assert.True(t, p.ShouldRetry(classify.Transient, 2))
	assert.False(t, p.ShouldRetry(classify.Transient, 3))

	// Halting classes never retry.
	assert.False(t, p.ShouldRetry(classify.Billing, 0))
	assert.False(t, p.ShouldRetry(classify.Auth, 0))

	// Tooling and unknown retry exactly once.
	assert.True(t, p.ShouldRetry(classify.Tooling, 0))
	assert.False(t, p.ShouldRetry(classify.Tooling, 1))
	assert.True(t, p.ShouldRetry(classify.Unknown, 0))
	assert.False(t, p.ShouldRetry(classify.Unknown, 1))
}

func TestDelayBoundsProperty(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 300
	properties := gopter.NewProperties(params)

	properties.Property("delay stays within jittered envelope", prop.ForAll(
		func(attempt int, seed float64, longBackoff bool) bool {
			p := NewPolicy(3)
			p.rng = func() float64 { return seed }

			class := classify.Transient
			base := float64(p.Base)
			if longBackoff {
				class = classify.RateLimit
				base = float64(p.RateLimitBase)
			}

			d := p.Delay(class, attempt)
			raw := math.Min(float64(p.MaxDelay), base*math.Pow(p.ExpBase, float64(attempt)))
			lo := time.Duration(raw * (1 - p.Jitter))
			hi := time.Duration(raw * (1 + p.Jitter))
			return d >= lo && d <= hi
		},
		gen.IntRange(0, 20),
		gen.Float64Range(0, 1),
		gen.Bool(),
	))

	properties.Property("delay is monotonic before the cap with fixed jitter", prop.ForAll(
		func(attempt int) bool {
			p := fixed()
			return p.Delay(classify.Transient, attempt+1) >= p.Delay(classify.Transient, attempt)
		},
		gen.IntRange(0, 19),
	))

	properties.TestingRun(t)
}
