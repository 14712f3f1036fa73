package ports

import "github.com/ark-network/coinjoin/internal/core/domain"

type TxBuilder interface {
	// BuildRoundTx returns the unsigned round transaction spending the inputs
	// of every alice to its registered receivers.
	BuildRoundTx(alices []domain.Alice) (roundTx string, err error)
	// VerifySignedTx checks that every input owned by signer is signed in
	// signedTx and that the unsigned body matches roundTx.
	VerifySignedTx(roundTx, signedTx string, inputs []domain.Coin, signer domain.Alice) error
	// CombineSignedTxs merges the witnesses of signedTxs into roundTx.
	CombineSignedTxs(roundTx string, signedTxs []string) (finalTx, txid string, err error)
}
