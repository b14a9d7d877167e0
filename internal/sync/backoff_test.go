package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffBaseAndCeiling(t *testing.T) {
	b := Backoff{Base: time.Minute, Max: 6 * time.Hour}

	require.Equal(t, time.Minute, b.Delay(0))
	require.Equal(t, 2*time.Minute, b.Delay(1))
	require.Equal(t, 4*time.Minute, b.Delay(2))
	require.Equal(t, 6*time.Hour, b.Delay(9))
	require.Equal(t, 6*time.Hour, b.Delay(100))
	require.Equal(t, time.Minute, b.Delay(-1))
}

func TestBackoffMonotonic(t *testing.T) {
	b := Backoff{Base: time.Minute, Max: 6 * time.Hour}

	previous := time.Duration(0)
	for attempts := 0; attempts < 64; attempts++ {
		delay := b.Delay(attempts)
		require.GreaterOrEqual(t, delay, previous, "attempts=%d", attempts)
		require.LessOrEqual(t, delay, 6*time.Hour)
		previous = delay
	}
}
