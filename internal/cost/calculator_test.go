package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRates() Rates {
	return Rates{
		"haiku":  {Input: 0.80, Output: 4.00},
		"sonnet": {Input: 3.00, Output: 15.00},
	}
}

func TestTokens(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name   string
		model  string
		input  int64
		output int64
		want   float64
	}{
		{name: "haiku simple", model: "haiku", input: 1_000_000, output: 100_000, want: 0.80 + 0.40},
		{name: "sonnet simple", model: "sonnet", input: 500_000, output: 50_000, want: 1.50 + 0.75},
		{name: "zero usage", model: "haiku", want: 0},
		{name: "unknown model", model: "mystery", input: 1_000_000, output: 1_000_000, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, calc.Tokens(tt.model, tt.input, tt.output), 1e-9)
		})
	}
}

func TestDefaultRates_KnownModels(t *testing.T) {
	t.Parallel()
	rates := DefaultRates()
	assert.Contains(t, rates, "claude-sonnet-4-5-20250929")
	assert.Contains(t, rates, "claude-haiku-4-5-20251001")
}
