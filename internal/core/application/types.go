package application

import (
	"context"
	"time"

	"github.com/ark-network/coinjoin/internal/core/domain"
	"github.com/jonboulle/clockwork"
)

// Service orchestrates the coinjoin participation of a single wallet.
type Service interface {
	Start() error
	Stop()
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	StopCoinJoin(ctx context.Context) error
	// SetAutoCoinJoin persists the auto coinjoin preference of the wallet.
	// The orchestrator reacts to the change as to any other settings update.
	SetAutoCoinJoin(ctx context.Context, enabled bool) error
	GetStatus(ctx context.Context) domain.CoinJoinStatus
	// GetEventStream returns a stream of status updates and the function
	// that closes it.
	GetEventStream(ctx context.Context) (<-chan domain.CoinJoinStatus, func())
}

type Config struct {
	// TickInterval is the period of the countdown progress refresh.
	TickInterval time.Duration
	// AutoCoinJoin is the preference used when the wallet has no settings
	// stored yet.
	AutoCoinJoin bool
	Clock        clockwork.Clock
}
