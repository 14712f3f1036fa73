package simulatedwallet

import (
	"context"
	"fmt"

	"github.com/ark-network/coinjoin/internal/core/domain"
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	log "github.com/sirupsen/logrus"
)

// anonymity score of coins received outside of a coinjoin.
const defaultAnonScore = 1

// Generate mines numBlocks regtest blocks whose coinbase pays the full block
// subsidy to the wallet.
func (s *service) Generate(_ context.Context, numBlocks int) error {
	if numBlocks <= 0 {
		return fmt.Errorf("invalid number of blocks %d", numBlocks)
	}

	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return ErrWalletClosed
	}
	for i := 0; i < numBlocks; i++ {
		s.height++
		coinbase, err := s.coinbaseTx(s.height)
		if err != nil {
			s.lock.Unlock()
			return err
		}
		txid := coinbase.TxHash()
		s.coins[wire.OutPoint{Hash: txid, Index: 0}] = domain.Coin{
			Outpoint:       wire.OutPoint{Hash: txid, Index: 0},
			Amount:         btcutil.Amount(coinbase.TxOut[0].Value),
			PkScript:       coinbase.TxOut[0].PkScript,
			Height:         s.height,
			AnonymityScore: defaultAnonScore,
		}
	}
	height := s.height
	s.lock.Unlock()

	log.Debugf("wallet %s mined %d blocks, tip at height %d", s.name, numBlocks, height)
	s.notify.coinsChanged()
	return nil
}

// CreateSelfTransfer returns an unsigned transaction spending every coin of
// the wallet to a single wallet output, and the amount of that output.
// feeRate is expressed in sat/kvB.
func (s *service) CreateSelfTransfer(
	ctx context.Context, feeRate btcutil.Amount,
) (*wire.MsgTx, btcutil.Amount, error) {
	coins, err := s.Coins(ctx)
	if err != nil {
		return nil, 0, err
	}
	if len(coins) <= 0 {
		return nil, 0, fmt.Errorf("wallet has no coins to transfer")
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	for _, coin := range coins {
		outpoint := coin.Outpoint
		tx.AddTxIn(wire.NewTxIn(&outpoint, nil, nil))
	}
	total := coins.TotalAmount()
	tx.AddTxOut(wire.NewTxOut(int64(total), s.account.mainScript))

	if feeRate <= 0 {
		return tx, total, nil
	}

	// Sign a copy to measure the virtual size including witnesses.
	signed := tx.Copy()
	if err := s.SignTransaction(ctx, signed, nil); err != nil {
		return nil, 0, err
	}
	weight := blockchain.GetTransactionWeight(btcutil.NewTx(signed))
	vsize := (weight + blockchain.WitnessScaleFactor - 1) / blockchain.WitnessScaleFactor
	fee := txrules.FeeForSerializeSize(feeRate, int(vsize))
	if fee >= total {
		return nil, 0, domain.ErrInsufficientFunds
	}

	tx.TxOut[0].Value = int64(total - fee)
	return tx, total - fee, nil
}

// SignTransaction implements ports.WalletService.
func (s *service) SignTransaction(
	_ context.Context, tx *wire.MsgTx, prevouts domain.Coins,
) error {
	s.lock.RLock()
	if s.closed {
		s.lock.RUnlock()
		return ErrWalletClosed
	}
	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(tx.TxIn))
	for _, coin := range prevouts {
		prevOuts[coin.Outpoint] = wire.NewTxOut(int64(coin.Amount), coin.PkScript)
	}
	for _, in := range tx.TxIn {
		if coin, ok := s.coins[in.PreviousOutPoint]; ok {
			prevOuts[in.PreviousOutPoint] = wire.NewTxOut(int64(coin.Amount), coin.PkScript)
		}
	}
	s.lock.RUnlock()

	for _, in := range tx.TxIn {
		if _, ok := prevOuts[in.PreviousOutPoint]; !ok {
			return fmt.Errorf("missing prevout for input %s", in.PreviousOutPoint)
		}
	}

	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	for i, in := range tx.TxIn {
		prevOut := prevOuts[in.PreviousOutPoint]
		key, ok := s.account.keyForScript(prevOut.PkScript)
		if !ok {
			continue
		}
		witness, err := txscript.WitnessSignature(
			tx, sigHashes, i, prevOut.Value, prevOut.PkScript,
			txscript.SigHashAll, key, true,
		)
		if err != nil {
			return fmt.Errorf("failed to sign input %d: %s", i, err)
		}
		tx.TxIn[i].Witness = witness
	}
	return nil
}

// SendRawTransaction tracks tx as confirmed at the given height.
func (s *service) SendRawTransaction(
	_ context.Context, tx *wire.MsgTx, height int32,
) error {
	if err := s.processTx(tx, height, defaultAnonScore); err != nil {
		return err
	}
	log.Debugf("wallet %s tracked tx %s at height %d", s.name, tx.TxHash(), height)
	return nil
}

// ApplyCoinJoin implements ports.WalletService.
func (s *service) ApplyCoinJoin(
	_ context.Context, tx *wire.MsgTx, anonScore int,
) error {
	s.lock.RLock()
	height := s.height + 1
	s.lock.RUnlock()

	if err := s.processTx(tx, height, anonScore); err != nil {
		return err
	}
	log.Debugf(
		"wallet %s applied coinjoin %s with anonymity score %d",
		s.name, tx.TxHash(), anonScore,
	)
	return nil
}

func (s *service) processTx(tx *wire.MsgTx, height int32, anonScore int) error {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return ErrWalletClosed
	}

	for _, in := range tx.TxIn {
		if _, ok := s.coins[in.PreviousOutPoint]; !ok {
			continue
		}
		if len(in.Witness) <= 0 {
			s.lock.Unlock()
			return fmt.Errorf("input %s is not signed", in.PreviousOutPoint)
		}
	}

	for _, in := range tx.TxIn {
		delete(s.coins, in.PreviousOutPoint)
	}
	txid := tx.TxHash()
	for i, out := range tx.TxOut {
		if !s.account.isMine(out.PkScript) {
			continue
		}
		outpoint := wire.OutPoint{Hash: txid, Index: uint32(i)}
		s.coins[outpoint] = domain.Coin{
			Outpoint:       outpoint,
			Amount:         btcutil.Amount(out.Value),
			PkScript:       out.PkScript,
			Height:         height,
			AnonymityScore: anonScore,
		}
	}
	if height > s.height {
		s.height = height
	}
	s.lock.Unlock()

	s.notify.coinsChanged()
	return nil
}

func (s *service) coinbaseTx(height int32) (*wire.MsgTx, error) {
	sigScript, err := txscript.NewScriptBuilder().
		AddInt64(int64(height)).AddInt64(0).Script()
	if err != nil {
		return nil, fmt.Errorf("failed to build coinbase script: %s", err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: *wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex),
		SignatureScript:  sigScript,
		Sequence:         wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(wire.NewTxOut(
		blockchain.CalcBlockSubsidy(height, s.params), s.account.mainScript,
	))
	return tx, nil
}
