package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForModelPrefixMatch(t *testing.T) {
	assert.Equal(t, 3.0, ForModel("claude-sonnet-4-5").Input)
	assert.Equal(t, 15.0, ForModel("claude-opus-4-1").Input)
	assert.Equal(t, 0.80, ForModel("claude-3-5-haiku-latest").Input)
	// Unknown models fall back to mid-tier pricing.
	assert.Equal(t, defaultPricing, ForModel("totally-new-model"))
}

func TestCompute(t *testing.T) {
	// 1M input + 1M output on sonnet: 3 + 15.
	got := Compute("claude-sonnet-4-5", 1_000_000, 1_000_000, 0, 0)
	assert.InDelta(t, 18.0, got, 1e-9)

	// Cache traffic priced separately.
	got = Compute("claude-sonnet-4-5", 0, 0, 2_000_000, 1_000_000)
	assert.InDelta(t, 0.60+3.75, got, 1e-9)

	assert.Zero(t, Compute("claude-sonnet-4-5", 0, 0, 0, 0))
}
