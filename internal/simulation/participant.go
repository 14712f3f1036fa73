// Package simulation runs coinjoin participants end to end against a
// coordinator, funding their wallets from regtest coinbase outputs.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ark-network/coinjoin/internal/core/domain"
	"github.com/ark-network/coinjoin/internal/core/ports"
	roundclient "github.com/ark-network/coinjoin/internal/infrastructure/round-client"
	roundpoller "github.com/ark-network/coinjoin/internal/infrastructure/round-poller"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	log "github.com/sirupsen/logrus"
)

const (
	// 4 sat/vB.
	defaultFeeRate      = btcutil.Amount(4000)
	defaultPollInterval = 3 * time.Second
	splitTxHeight       = 1
)

var (
	ErrCoinsNotGenerated = errors.New("coins must be generated before participating")
	ErrParticipantClosed = errors.New("participant is closed")
)

type Config struct {
	Name string
	// FeeRate is expressed in sat/kvB.
	FeeRate      btcutil.Amount
	PollInterval time.Duration
}

// Participant owns a wallet that it funds and registers in coinjoin rounds.
type Participant struct {
	name         string
	feeRate      btcutil.Amount
	pollInterval time.Duration
	wallet       ports.FundingWallet
	coordinator  ports.CoordinatorClient

	lock    *sync.Mutex
	splitTx *wire.MsgTx
	closed  bool
}

func NewParticipant(
	cfg Config, wallet ports.FundingWallet, coordinator ports.CoordinatorClient,
) (*Participant, error) {
	if wallet == nil {
		return nil, fmt.Errorf("missing wallet")
	}
	if coordinator == nil {
		return nil, fmt.Errorf("missing coordinator")
	}
	feeRate := cfg.FeeRate
	if feeRate <= 0 {
		feeRate = defaultFeeRate
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Participant{
		name:         cfg.Name,
		feeRate:      feeRate,
		pollInterval: pollInterval,
		wallet:       wallet,
		coordinator:  coordinator,
		lock:         &sync.Mutex{},
	}, nil
}

func (p *Participant) Wallet() ports.WalletService {
	return p.wallet
}

// GenerateSourceCoin mines one block paying its reward to the wallet.
func (p *Participant) GenerateSourceCoin(ctx context.Context) error {
	if p.isClosed() {
		return ErrParticipantClosed
	}
	return p.wallet.Generate(ctx, 1)
}

// GenerateCoins spends the whole wallet balance into numCoins outputs of
// pseudo random amounts, reproducible for a given seed. Every output pays
// its own share of the fee.
func (p *Participant) GenerateCoins(ctx context.Context, numCoins int, seed int64) error {
	if p.isClosed() {
		return ErrParticipantClosed
	}
	if numCoins <= 0 {
		return fmt.Errorf("invalid number of coins %d", numCoins)
	}

	tx, total, err := p.wallet.CreateSelfTransfer(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to create split tx: %w", err)
	}
	script := tx.TxOut[0].PkScript

	amounts, err := domain.SplitAmount(
		total, numCoins, domain.P2WPKHOutputFee(p.feeRate), rand.New(rand.NewSource(seed)),
	)
	if err != nil {
		return err
	}
	tx.TxOut = make([]*wire.TxOut, 0, len(amounts))
	for _, amount := range amounts {
		tx.AddTxOut(wire.NewTxOut(int64(amount), script))
	}

	if err := p.wallet.SignTransaction(ctx, tx, nil); err != nil {
		return fmt.Errorf("failed to sign split tx: %w", err)
	}
	if err := p.wallet.SendRawTransaction(ctx, tx, splitTxHeight); err != nil {
		return fmt.Errorf("failed to broadcast split tx: %w", err)
	}

	p.lock.Lock()
	p.splitTx = tx
	p.lock.Unlock()

	log.Debugf("participant %s split %s into %d coins", p.name, total, len(amounts))
	return nil
}

// StartParticipating registers the coins created by GenerateCoins in the
// next round and waits for the round to end.
func (p *Participant) StartParticipating(ctx context.Context) (*ports.CoinJoinResult, error) {
	p.lock.Lock()
	closed, splitTx := p.closed, p.splitTx
	p.lock.Unlock()

	if closed {
		return nil, ErrParticipantClosed
	}
	if splitTx == nil {
		return nil, ErrCoinsNotGenerated
	}

	coins, err := p.splitCoins(ctx, splitTx)
	if err != nil {
		return nil, err
	}

	poller := roundpoller.NewService(p.coordinator)
	if err := poller.StartPolling(ctx, p.pollInterval); err != nil {
		return nil, err
	}
	defer poller.StopPolling()

	client := roundclient.NewCoinJoinClient(p.wallet, p.coordinator, poller, p.feeRate)
	result, err := client.StartCoinJoin(ctx, coins)
	if err != nil {
		return nil, err
	}

	log.Infof(
		"participant %s joined round %s with %d coins, txid %s",
		p.name, result.RoundId, len(coins), result.Txid,
	)
	return result, nil
}

// Close releases the wallet. Calling it more than once is a no-op.
func (p *Participant) Close() {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	p.wallet.Close()
}

func (p *Participant) isClosed() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.closed
}

// splitCoins returns the unspent outputs of the split tx.
func (p *Participant) splitCoins(ctx context.Context, splitTx *wire.MsgTx) (domain.Coins, error) {
	coins, err := p.wallet.Coins(ctx)
	if err != nil {
		return nil, err
	}
	txid := splitTx.TxHash()
	splitCoins := coins.FilterBy(func(c domain.Coin) bool {
		return c.Outpoint.Hash == txid
	})
	if len(splitCoins) <= 0 {
		return nil, ErrCoinsNotGenerated
	}
	return splitCoins, nil
}
