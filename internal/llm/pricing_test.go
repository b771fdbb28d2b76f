package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupCost(t *testing.T) {
	tests := []struct {
		model string
		want  *ModelCost
	}{
		{"gpt-4o", &ModelCost{2.5, 10}},
		{"openai/gpt-4o", &ModelCost{2.5, 10}},
		{"gpt-4o-mini-2024-07-18", &ModelCost{0.15, 0.6}},
		{"claude-sonnet-4-20250514", &ModelCost{3, 15}},
		{"mock", nil},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, LookupCost(tt.model))
		})
	}
}

func TestModelCost_Cost(t *testing.T) {
	c := LookupCost("gpt-4o")
	require.NotNil(t, c)
	assert.InDelta(t, 0.0125, c.Cost(1000, 1000), 1e-9)
}
