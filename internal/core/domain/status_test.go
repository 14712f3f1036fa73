package domain_test

import (
	"testing"
	"time"

	"github.com/ark-network/coinjoin/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestCountdownProgress(t *testing.T) {
	start := time.Unix(1700000000, 0)
	target := start.Add(30 * time.Second)

	testCases := []struct {
		name              string
		now               time.Time
		expectedElapsed   time.Duration
		expectedRemaining time.Duration
		expectedPercent   float64
	}{
		{"at start", start, 0, 30 * time.Second, 0},
		{"half way", start.Add(15 * time.Second), 15 * time.Second, 15 * time.Second, 50},
		{"at target", target, 30 * time.Second, 0, 100},
		{"past target", target.Add(time.Minute), 90 * time.Second, 0, 100},
		{"before start", start.Add(-time.Second), 0, 31 * time.Second, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			progress := domain.NewCountdownProgress(start, target, tc.now)
			require.Equal(t, tc.expectedElapsed, progress.Elapsed)
			require.Equal(t, tc.expectedRemaining, progress.Remaining)
			require.InDelta(t, tc.expectedPercent, progress.Percentage, 0.0001)
		})
	}

	t.Run("non decreasing", func(t *testing.T) {
		last := float64(-1)
		for now := start.Add(-5 * time.Second); now.Before(target.Add(5 * time.Second)); now = now.Add(250 * time.Millisecond) {
			p := domain.NewCountdownProgress(start, target, now).Percentage
			require.GreaterOrEqual(t, p, last)
			require.GreaterOrEqual(t, p, float64(0))
			require.LessOrEqual(t, p, float64(100))
			last = p
		}
	})

	t.Run("empty countdown", func(t *testing.T) {
		progress := domain.NewCountdownProgress(start, start, start)
		require.Equal(t, float64(100), progress.Percentage)
	})
}

func TestControls(t *testing.T) {
	controls := domain.NewControls(domain.ControlPlay, domain.ControlStop)
	require.True(t, controls.Has(domain.ControlPlay))
	require.False(t, controls.Has(domain.ControlPause))
	require.True(t, controls.Has(domain.ControlStop))
	require.Equal(t, "[play,stop]", controls.String())

	controls = controls.Without(domain.ControlPlay).With(domain.ControlPause)
	require.Equal(t, "[pause,stop]", controls.String())
	require.Equal(t, "[]", domain.NewControls().String())
}
