package roundclient

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ark-network/coinjoin/internal/core/domain"
	"github.com/ark-network/coinjoin/internal/core/ports"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	log "github.com/sirupsen/logrus"
)

var ErrNoCoins = errors.New("no coins to coinjoin")

type coinJoinClient struct {
	wallet      ports.WalletService
	coordinator ports.CoordinatorClient
	poller      ports.RoundStatePoller
	outputFee   btcutil.Amount
}

// NewCoinJoinClient returns a client that registers coins in the next round
// and consolidates them into a single fresh output. feeRate is expressed in
// sat/kvB.
func NewCoinJoinClient(
	wallet ports.WalletService, coordinator ports.CoordinatorClient,
	poller ports.RoundStatePoller, feeRate btcutil.Amount,
) ports.CoinJoinClient {
	return &coinJoinClient{
		wallet:      wallet,
		coordinator: coordinator,
		poller:      poller,
		outputFee:   domain.P2WPKHOutputFee(feeRate),
	}
}

func (c *coinJoinClient) StartCoinJoin(
	ctx context.Context, coins domain.Coins,
) (*ports.CoinJoinResult, error) {
	if len(coins) <= 0 {
		return nil, ErrNoCoins
	}
	amount := coins.TotalAmount() - c.outputFee
	if amount <= 0 {
		return nil, domain.ErrInsufficientFunds
	}

	state, err := c.poller.WaitForRound(ctx, func(s domain.RoundState) bool {
		return s.Phase == domain.InputRegistrationPhase && !s.Failed
	})
	if err != nil {
		return nil, err
	}
	roundId := state.Id

	aliceId, err := c.coordinator.RegisterInputs(ctx, roundId, coins)
	if err != nil {
		return nil, fmt.Errorf("failed to register inputs: %w", err)
	}
	log.Debugf(
		"wallet %s registered %d inputs in round %s", c.wallet.ID(), len(coins), roundId,
	)

	if _, err := c.waitForPhase(ctx, roundId, domain.OutputRegistrationPhase); err != nil {
		return nil, err
	}

	script, err := c.wallet.NewReceiveScript(ctx)
	if err != nil {
		return nil, err
	}
	receivers := []domain.Receiver{{PkScript: script, Amount: amount}}
	if err := c.coordinator.RegisterOutputs(ctx, roundId, aliceId, receivers); err != nil {
		return nil, fmt.Errorf("failed to register outputs: %w", err)
	}

	state, err = c.waitForPhase(ctx, roundId, domain.TransactionSigningPhase)
	if err != nil {
		return nil, err
	}

	tx, err := decodeTx(state.Tx)
	if err != nil {
		return nil, err
	}
	if err := c.wallet.SignTransaction(ctx, tx, state.Inputs); err != nil {
		return nil, fmt.Errorf("failed to sign round tx: %w", err)
	}
	signedTx, err := encodeTx(tx)
	if err != nil {
		return nil, err
	}
	if err := c.coordinator.SubmitSignedTx(ctx, roundId, aliceId, signedTx); err != nil {
		return nil, fmt.Errorf("failed to submit signed round tx: %w", err)
	}

	state, err = c.waitForPhase(ctx, roundId, domain.EndedPhase)
	if err != nil {
		return nil, err
	}

	finalTx, err := decodeTx(state.Tx)
	if err != nil {
		return nil, err
	}
	if err := c.wallet.ApplyCoinJoin(ctx, finalTx, state.AliceCount); err != nil {
		return nil, err
	}

	return &ports.CoinJoinResult{
		RoundId:   roundId,
		Txid:      state.Txid,
		Tx:        state.Tx,
		AnonScore: state.AliceCount,
	}, nil
}

// waitForPhase waits until the round reaches phase, and fails if the round
// failed or ended meanwhile.
func (c *coinJoinClient) waitForPhase(
	ctx context.Context, roundId string, phase domain.RoundPhase,
) (domain.RoundState, error) {
	state, err := c.poller.WaitForRound(ctx, func(s domain.RoundState) bool {
		return s.Id == roundId && (s.Phase >= phase || s.Failed)
	})
	if err != nil {
		return domain.RoundState{}, err
	}
	if state.Failed {
		return domain.RoundState{}, fmt.Errorf("round %s failed: %s", roundId, state.FailReason)
	}
	if state.Phase != phase {
		return domain.RoundState{}, fmt.Errorf(
			"round %s moved to %s while waiting for %s", roundId, state.Phase, phase,
		)
	}
	return state, nil
}

func decodeTx(txHex string) (*wire.MsgTx, error) {
	buf, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, fmt.Errorf("invalid round tx: %s", err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(buf)); err != nil {
		return nil, fmt.Errorf("invalid round tx: %s", err)
	}
	return tx, nil
}

func encodeTx(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}
