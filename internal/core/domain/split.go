package domain

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
)

// minSplitPoint keeps random split points away from 0 so that no chunk is
// systematically empty.
const minSplitPoint = 0.00001

var ErrInsufficientFunds = errors.New("insufficient funds to cover output fees")

// P2WPKHOutputFee returns the fee paid for one P2WPKH output at feeRate
// (sat/kvB).
func P2WPKHOutputFee(feeRate btcutil.Amount) btcutil.Amount {
	return txrules.FeeForSerializeSize(feeRate, txsizes.P2WPKHOutputSize)
}

// SplitAmount splits total into at most numOutputs pseudo-random amounts, each
// reduced by outputFee. Chunks too small to pay for their own output are
// merged into the following one (or into the previous output for the last
// chunk), so the sum of the returned amounts plus len(amounts)*outputFee is
// always total and every amount is positive.
func SplitAmount(
	total btcutil.Amount, numOutputs int, outputFee btcutil.Amount, rnd *rand.Rand,
) ([]btcutil.Amount, error) {
	if numOutputs <= 0 {
		return nil, fmt.Errorf("invalid number of outputs %d", numOutputs)
	}
	if outputFee < 0 {
		return nil, fmt.Errorf("invalid output fee %d", outputFee)
	}
	if total <= outputFee {
		return nil, ErrInsufficientFunds
	}

	points := make([]float64, 0, numOutputs+1)
	points = append(points, 0, 1)
	for i := 0; i < numOutputs-1; i++ {
		points = append(points, minSplitPoint+rnd.Float64()*(1-minSplitPoint))
	}
	sort.Float64s(points)

	bounds := make([]btcutil.Amount, 0, len(points))
	for _, p := range points {
		bounds = append(bounds, btcutil.Amount(p*float64(total)))
	}
	bounds[len(bounds)-1] = total

	amounts := make([]btcutil.Amount, 0, numOutputs)
	carry := btcutil.Amount(0)
	for i := 1; i < len(bounds); i++ {
		chunk := bounds[i] - bounds[i-1] + carry
		if chunk <= outputFee {
			carry = chunk
			continue
		}
		carry = 0
		amounts = append(amounts, chunk-outputFee)
	}
	if carry > 0 {
		amounts[len(amounts)-1] += carry
	}

	return amounts, nil
}
