package bargain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	terminal := []Status{StatusMatched, StatusCompleted, StatusRejected, StatusExpired}

	for _, to := range terminal {
		assert.True(t, CanTransition(StatusActive, to), "ACTIVE -> %s", to)
	}
	for _, from := range terminal {
		assert.True(t, from.Terminal())
		for _, to := range append(terminal, StatusActive) {
			assert.False(t, CanTransition(from, to), "%s -> %s must be blocked", from, to)
		}
	}
	assert.False(t, StatusActive.Terminal())
	assert.False(t, CanTransition(StatusActive, StatusActive))
}
