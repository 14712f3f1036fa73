package domain

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/google/uuid"
)

// Alice is the anonymous identity a participant uses to register its inputs
// and, later, its outputs in a round.
type Alice struct {
	Id        string
	Inputs    []Coin
	Receivers []Receiver
}

type Receiver struct {
	PkScript []byte
	Amount   btcutil.Amount
}

func NewAlice(inputs []Coin) Alice {
	return Alice{
		Id:     uuid.New().String(),
		Inputs: inputs,
	}
}

func (a Alice) TotInputAmount() btcutil.Amount {
	return Coins(a.Inputs).TotalAmount()
}

func (a Alice) TotOutputAmount() btcutil.Amount {
	tot := btcutil.Amount(0)
	for _, r := range a.Receivers {
		tot += r.Amount
	}
	return tot
}

func (a Alice) validate(ignoreOuts bool) error {
	if len(a.Id) <= 0 {
		return fmt.Errorf("missing id")
	}
	if len(a.Inputs) <= 0 {
		return fmt.Errorf("missing inputs")
	}
	if ignoreOuts {
		return nil
	}
	if len(a.Receivers) <= 0 {
		return fmt.Errorf("missing outputs")
	}
	for _, r := range a.Receivers {
		if len(r.PkScript) <= 0 {
			return fmt.Errorf("missing output script")
		}
		if r.Amount <= 0 {
			return fmt.Errorf("invalid output amount %d", r.Amount)
		}
	}
	if a.TotOutputAmount() > a.TotInputAmount() {
		return fmt.Errorf(
			"outputs amount %d exceeds inputs amount %d",
			a.TotOutputAmount(), a.TotInputAmount(),
		)
	}
	return nil
}
