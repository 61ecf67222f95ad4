// Package cost converts token usage into USD using a per-model price table.
package cost

import (
	"strings"
)

// Pricing is USD per million tokens.
type Pricing struct {
	Input      float64
	Output     float64
	CacheRead  float64
	CacheWrite float64
}

// priceTable keys are model name prefixes, longest match wins. Prices track
// published per-MTok rates.
var priceTable = map[string]Pricing{
	"claude-opus-4":    {Input: 15.0, Output: 75.0, CacheRead: 1.50, CacheWrite: 18.75},
	"claude-sonnet-4":  {Input: 3.0, Output: 15.0, CacheRead: 0.30, CacheWrite: 3.75},
	"claude-haiku-4":   {Input: 1.0, Output: 5.0, CacheRead: 0.10, CacheWrite: 1.25},
	"claude-3-5-haiku": {Input: 0.80, Output: 4.0, CacheRead: 0.08, CacheWrite: 1.0},
}

// defaultPricing is used for unrecognized models so costs are still
// order-of-magnitude useful.
var defaultPricing = Pricing{Input: 3.0, Output: 15.0, CacheRead: 0.30, CacheWrite: 3.75}

// ForModel returns the pricing for a model name, matching by longest known
// prefix.
func ForModel(model string) Pricing {
	best := ""
	for prefix := range priceTable {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return defaultPricing
	}
	return priceTable[best]
}

// Compute returns the USD cost of the given token counts for a model.
func Compute(model string, inputTokens, outputTokens, cacheReadTokens, cacheWriteTokens int) float64 {
	p := ForModel(model)
	const mtok = 1_000_000
	return float64(inputTokens)/mtok*p.Input +
		float64(outputTokens)/mtok*p.Output +
		float64(cacheReadTokens)/mtok*p.CacheRead +
		float64(cacheWriteTokens)/mtok*p.CacheWrite
}
