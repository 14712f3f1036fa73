package domain

import (
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
)

// Status is the user facing participation status tag.
type Status int

const (
	StatusDisabled Status = iota
	StatusInitializing
	StatusWaiting
	StatusParticipating
	StatusPaused
	StatusStopped
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "Coinjoin is initialising"
	case StatusWaiting:
		return "Waiting to auto-start coinjoin"
	case StatusParticipating:
		return "Coinjoining"
	case StatusPaused:
		return "Coinjoin is paused"
	case StatusStopped:
		return "Coinjoin is stopped"
	case StatusFinished:
		return "No balance to coinjoin"
	default:
		return "Coinjoin is disabled"
	}
}

type Control uint8

const (
	ControlPlay Control = 1 << iota
	ControlPause
	ControlStop
)

func (c Control) String() string {
	switch c {
	case ControlPlay:
		return "play"
	case ControlPause:
		return "pause"
	case ControlStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Controls is the set of visible controls.
type Controls uint8

func NewControls(controls ...Control) Controls {
	var c Controls
	for _, control := range controls {
		c = c.With(control)
	}
	return c
}

func (c Controls) With(control Control) Controls {
	return c | Controls(control)
}

func (c Controls) Without(control Control) Controls {
	return c &^ Controls(control)
}

func (c Controls) Has(control Control) bool {
	return c&Controls(control) != 0
}

func (c Controls) String() string {
	names := make([]string, 0, 3)
	for _, control := range []Control{ControlPlay, ControlPause, ControlStop} {
		if c.Has(control) {
			names = append(names, control.String())
		}
	}
	return "[" + strings.Join(names, ",") + "]"
}

// ProgressSnapshot is the countdown or privacy progress shown to the user.
// Percentage is always within [0, 100].
type ProgressSnapshot struct {
	Elapsed    time.Duration
	Remaining  time.Duration
	Percentage float64
}

// NewCountdownProgress computes the progress of a countdown that started at
// start and is due at target.
func NewCountdownProgress(start, target, now time.Time) ProgressSnapshot {
	total := target.Sub(start)
	elapsed := now.Sub(start)
	remaining := target.Sub(now)
	if elapsed < 0 {
		elapsed = 0
	}
	if remaining < 0 {
		remaining = 0
	}

	percentage := float64(100)
	if total > 0 {
		percentage = float64(elapsed) / float64(total) * 100
	}

	return ProgressSnapshot{
		Elapsed:    elapsed,
		Remaining:  remaining,
		Percentage: clampPercentage(percentage),
	}
}

// CoinJoinStatus is the set of signals the orchestrator exposes to consumers.
type CoinJoinStatus struct {
	WalletID          string
	State             State
	Status            Status
	Controls          Controls
	IsAuto            bool
	IsAutoWaiting     bool
	Progress          ProgressSnapshot
	BalanceToCoinJoin btcutil.Amount
}

func clampPercentage(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
