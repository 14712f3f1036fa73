package ports

import (
	"context"

	"github.com/ark-network/coinjoin/internal/core/domain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// WalletService is the wallet as seen by the coinjoin orchestrator and the
// round client.
type WalletService interface {
	ID() string
	Capability() domain.WalletCapability
	MinAnonScoreTarget() int
	Coins(ctx context.Context) (domain.Coins, error)
	// RegisterCoinsHandler registers handler to be called whenever the coin
	// set changes, and returns the function that unregisters it.
	RegisterCoinsHandler(handler func()) func()
	NewReceiveScript(ctx context.Context) ([]byte, error)
	// SignTransaction signs the inputs of tx owned by the wallet. prevouts
	// lists the outputs spent by inputs the wallet does not own.
	SignTransaction(ctx context.Context, tx *wire.MsgTx, prevouts domain.Coins) error
	// ApplyCoinJoin spends the wallet inputs of tx and adds its wallet outputs
	// with the given anonymity score.
	ApplyCoinJoin(ctx context.Context, tx *wire.MsgTx, anonScore int) error
}

// FundingWallet is the wallet as used by the participation harness to fund
// itself before joining rounds.
type FundingWallet interface {
	WalletService
	Generate(ctx context.Context, numBlocks int) error
	CreateSelfTransfer(ctx context.Context, feeRate btcutil.Amount) (*wire.MsgTx, btcutil.Amount, error)
	SendRawTransaction(ctx context.Context, tx *wire.MsgTx, height int32) error
	Close()
}
