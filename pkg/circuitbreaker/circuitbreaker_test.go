package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNetwork = errors.New("connection refused")

func fail() error    { return errNetwork }
func succeed() error { return nil }

func TestOpensAfterMaxFailures(t *testing.T) {
	cb := New(Settings{Name: "test", MaxFailures: 3, Cooldown: time.Minute})

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, cb.Execute(fail), errNetwork)
	}

	assert.ErrorIs(t, cb.Execute(succeed), ErrOpen)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := New(Settings{Name: "test", MaxFailures: 2, Cooldown: time.Minute})

	require.Error(t, cb.Execute(fail))
	require.NoError(t, cb.Execute(succeed))
	require.Error(t, cb.Execute(fail))

	// One failure since the last success is below the threshold.
	assert.NoError(t, cb.Execute(succeed))
}

func TestProbesAfterCooldown(t *testing.T) {
	cb := New(Settings{Name: "test", MaxFailures: 1, Cooldown: 10 * time.Millisecond})

	require.Error(t, cb.Execute(fail))
	require.ErrorIs(t, cb.Execute(succeed), ErrOpen)

	time.Sleep(20 * time.Millisecond)

	assert.NoError(t, cb.Execute(succeed))
	assert.NoError(t, cb.Execute(succeed))
}
