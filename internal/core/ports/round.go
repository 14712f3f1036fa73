package ports

import (
	"context"
	"time"

	"github.com/ark-network/coinjoin/internal/core/domain"
)

// RoundClient drives the participation of wallets in coinjoin rounds.
// Commands are fire-and-forget and idempotent.
type RoundClient interface {
	Start(walletID string)
	Stop(walletID string)
	AutoStart(walletID string)
	// SubscribeStatus returns the stream of round status events of every
	// wallet and the function that closes it.
	SubscribeStatus() (<-chan domain.RoundStatusEvent, func())
}

type CoordinatorClient interface {
	// GetStatus returns the state of the running round, if any, followed by
	// the states of the most recently ended rounds, newest first.
	GetStatus(ctx context.Context) ([]domain.RoundState, error)
	RegisterInputs(ctx context.Context, roundId string, inputs []domain.Coin) (aliceId string, err error)
	RegisterOutputs(ctx context.Context, roundId, aliceId string, receivers []domain.Receiver) error
	SubmitSignedTx(ctx context.Context, roundId, aliceId, signedTx string) error
}

type RoundStatePoller interface {
	StartPolling(ctx context.Context, interval time.Duration) error
	StopPolling()
	// LatestSnapshot returns the state of the running round as of the last
	// successful poll.
	LatestSnapshot() (domain.RoundState, bool)
	// WaitForRound blocks until a polled snapshot satisfies predicate.
	WaitForRound(ctx context.Context, predicate func(domain.RoundState) bool) (domain.RoundState, error)
}

type CoinJoinResult struct {
	RoundId   string
	Txid      string
	Tx        string
	AnonScore int
}

// CoinJoinClient runs the participation of a set of coins in one round.
type CoinJoinClient interface {
	StartCoinJoin(ctx context.Context, coins domain.Coins) (*CoinJoinResult, error)
}
