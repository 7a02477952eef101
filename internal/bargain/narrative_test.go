package bargain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatCents(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{100, "1"},
		{1_150_000, "11,500"},
		{1_150_050, "11,500.50"},
		{123_456_789, "1,234,567.89"},
		{99, "0.99"},
		{-1_150_000, "-11,500"},
		{-50, "-0.50"},
		{-99, "-0.99"},
		{-1, "-0.01"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, formatCents(c.in), "formatCents(%d)", c.in)
	}
}

func TestCounterNarrativePerRound(t *testing.T) {
	n1 := counterNarrative(1, 3, ModuleHotel, 900_000, 1_044_750, 30)
	assert.Contains(t, n1, "hotel")
	assert.Contains(t, n1, "9,000")
	assert.Contains(t, n1, "10,447.50")
	assert.NotContains(t, n1, "seconds")

	n3 := counterNarrative(3, 3, ModuleFlight, 900_000, 1_081_500, 30)
	assert.Contains(t, n3, "Final check")
	assert.Contains(t, n3, "30 seconds")

	assert.Empty(t, counterWarning(1, 3))
	assert.NotEmpty(t, counterWarning(2, 3))
	assert.Contains(t, counterWarning(3, 3), "last round")
}

func TestMatchedNarrative(t *testing.T) {
	m := matchedNarrative(2, 3, 1_030_000)
	assert.Contains(t, m, "Congratulations")
	assert.Contains(t, m, "10,300")
}
