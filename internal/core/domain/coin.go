package domain

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// Coin is a wallet utxo together with its anonymity score.
type Coin struct {
	Outpoint       wire.OutPoint
	Amount         btcutil.Amount
	PkScript       []byte
	Height         int32
	AnonymityScore int
}

func (c Coin) IsPrivate(minAnonScoreTarget int) bool {
	return c.AnonymityScore >= minAnonScoreTarget
}

type Coins []Coin

func (c Coins) TotalAmount() btcutil.Amount {
	tot := btcutil.Amount(0)
	for _, coin := range c {
		tot += coin.Amount
	}
	return tot
}

func (c Coins) FilterBy(fn func(Coin) bool) Coins {
	filtered := make(Coins, 0, len(c))
	for _, coin := range c {
		if fn(coin) {
			filtered = append(filtered, coin)
		}
	}
	return filtered
}

// Partition splits the coins into those that reached the anonymity score
// target and those that did not.
func (c Coins) Partition(minAnonScoreTarget int) (private, nonPrivate Coins) {
	private = make(Coins, 0, len(c))
	nonPrivate = make(Coins, 0, len(c))
	for _, coin := range c {
		if coin.IsPrivate(minAnonScoreTarget) {
			private = append(private, coin)
			continue
		}
		nonPrivate = append(nonPrivate, coin)
	}
	return
}

// PrivacyProgress returns the percentage of the total amount held by private
// coins, or 0 if there are no coins.
func (c Coins) PrivacyProgress(minAnonScoreTarget int) float64 {
	total := c.TotalAmount()
	if total <= 0 {
		return 0
	}
	private, _ := c.Partition(minAnonScoreTarget)
	return clampPercentage(float64(private.TotalAmount()) / float64(total) * 100)
}
