package txbuilder

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/ark-network/coinjoin/internal/core/domain"
	"github.com/ark-network/coinjoin/internal/core/ports"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

type txBuilder struct{}

func NewTxBuilder() ports.TxBuilder {
	return &txBuilder{}
}

// BuildRoundTx implements ports.TxBuilder.
func (b *txBuilder) BuildRoundTx(alices []domain.Alice) (string, error) {
	if len(alices) <= 0 {
		return "", fmt.Errorf("missing alices")
	}

	inputs := make([]domain.Coin, 0)
	receivers := make([]domain.Receiver, 0)
	for _, alice := range alices {
		if len(alice.Receivers) <= 0 {
			return "", fmt.Errorf("alice %s has no registered outputs", alice.Id)
		}
		if alice.TotOutputAmount() > alice.TotInputAmount() {
			return "", fmt.Errorf("alice %s outputs exceed inputs", alice.Id)
		}
		inputs = append(inputs, alice.Inputs...)
		receivers = append(receivers, alice.Receivers...)
	}

	sortInputs(inputs)
	sortReceivers(receivers)

	tx := wire.NewMsgTx(wire.TxVersion)
	for _, in := range inputs {
		outpoint := in.Outpoint
		tx.AddTxIn(wire.NewTxIn(&outpoint, nil, nil))
	}
	for _, r := range receivers {
		tx.AddTxOut(wire.NewTxOut(int64(r.Amount), r.PkScript))
	}

	return serializeTx(tx)
}

// VerifySignedTx implements ports.TxBuilder.
func (b *txBuilder) VerifySignedTx(
	roundTx, signedTx string, inputs []domain.Coin, signer domain.Alice,
) error {
	unsigned, err := deserializeTx(roundTx)
	if err != nil {
		return err
	}
	signed, err := deserializeTx(signedTx)
	if err != nil {
		return err
	}
	if unsigned.TxHash() != signed.TxHash() {
		return fmt.Errorf("signed tx does not match round tx")
	}

	fetcher := prevOutFetcher(inputs)
	sigHashes := txscript.NewTxSigHashes(signed, fetcher)
	for _, coin := range signer.Inputs {
		index, ok := inputIndex(signed, coin.Outpoint)
		if !ok {
			return fmt.Errorf("input %s not found in round tx", coin.Outpoint)
		}
		if len(signed.TxIn[index].Witness) <= 0 {
			return fmt.Errorf("input %s is not signed", coin.Outpoint)
		}

		engine, err := txscript.NewEngine(
			coin.PkScript, signed, index, txscript.StandardVerifyFlags,
			nil, sigHashes, int64(coin.Amount), fetcher,
		)
		if err != nil {
			return fmt.Errorf("failed to create script engine: %s", err)
		}
		if err := engine.Execute(); err != nil {
			return fmt.Errorf("invalid signature for input %s: %s", coin.Outpoint, err)
		}
	}
	return nil
}

// CombineSignedTxs implements ports.TxBuilder.
func (b *txBuilder) CombineSignedTxs(
	roundTx string, signedTxs []string,
) (string, string, error) {
	tx, err := deserializeTx(roundTx)
	if err != nil {
		return "", "", err
	}

	for _, s := range signedTxs {
		signed, err := deserializeTx(s)
		if err != nil {
			return "", "", err
		}
		if signed.TxHash() != tx.TxHash() {
			return "", "", fmt.Errorf("signed tx does not match round tx")
		}
		for i, in := range signed.TxIn {
			if len(in.Witness) > 0 {
				tx.TxIn[i].Witness = in.Witness
			}
		}
	}

	for _, in := range tx.TxIn {
		if len(in.Witness) <= 0 {
			return "", "", fmt.Errorf("input %s is not signed", in.PreviousOutPoint)
		}
	}

	finalTx, err := serializeTx(tx)
	if err != nil {
		return "", "", err
	}
	return finalTx, tx.TxHash().String(), nil
}

func sortInputs(inputs []domain.Coin) {
	sort.SliceStable(inputs, func(i, j int) bool {
		a, b := inputs[i].Outpoint, inputs[j].Outpoint
		if c := bytes.Compare(a.Hash[:], b.Hash[:]); c != 0 {
			return c < 0
		}
		return a.Index < b.Index
	})
}

func sortReceivers(receivers []domain.Receiver) {
	sort.SliceStable(receivers, func(i, j int) bool {
		if receivers[i].Amount != receivers[j].Amount {
			return receivers[i].Amount < receivers[j].Amount
		}
		return bytes.Compare(receivers[i].PkScript, receivers[j].PkScript) < 0
	})
}

func prevOutFetcher(inputs []domain.Coin) txscript.PrevOutputFetcher {
	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(inputs))
	for _, in := range inputs {
		prevOuts[in.Outpoint] = wire.NewTxOut(int64(in.Amount), in.PkScript)
	}
	return txscript.NewMultiPrevOutFetcher(prevOuts)
}

func inputIndex(tx *wire.MsgTx, outpoint wire.OutPoint) (int, bool) {
	for i, in := range tx.TxIn {
		if in.PreviousOutPoint == outpoint {
			return i, true
		}
	}
	return -1, false
}

func serializeTx(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("failed to serialize tx: %s", err)
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

func deserializeTx(txHex string) (*wire.MsgTx, error) {
	buf, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, fmt.Errorf("invalid tx hex: %s", err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(buf)); err != nil {
		return nil, fmt.Errorf("failed to deserialize tx: %s", err)
	}
	return tx, nil
}
