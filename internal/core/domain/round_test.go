package domain_test

import (
	"fmt"
	"testing"

	"github.com/ark-network/coinjoin/internal/core/domain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

var (
	pkScript = []byte{0x00, 0x14, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a,
		0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11, 0x12, 0x13, 0x14}
	hash1 = chainhash.Hash{0x01}
	hash2 = chainhash.Hash{0x02}

	alice = domain.Alice{
		Id: "alice",
		Inputs: []domain.Coin{
			{Outpoint: wire.OutPoint{Hash: hash1, Index: 0}, Amount: 2000, PkScript: pkScript},
			{Outpoint: wire.OutPoint{Hash: hash1, Index: 1}, Amount: 1000, PkScript: pkScript},
		},
	}
	bob = domain.Alice{
		Id: "bob",
		Inputs: []domain.Coin{
			{Outpoint: wire.OutPoint{Hash: hash2, Index: 0}, Amount: 3000, PkScript: pkScript},
		},
	}
	receivers = []domain.Receiver{
		{PkScript: pkScript, Amount: 1500},
		{PkScript: pkScript, Amount: 1400},
	}
	roundTx = "0200000000000000000000"
	txid    = "0000000000000000000000000000000000000000000000000000000000000001"
)

func TestRound(t *testing.T) {
	testStartRegistration(t)

	testRegisterInputs(t)

	testRegisterOutputs(t)

	testFinalize(t)

	testFail(t)
}

func testStartRegistration(t *testing.T) {
	t.Run("start_registration", func(t *testing.T) {
		t.Run("valid", func(t *testing.T) {
			round := domain.NewRound()
			require.NotNil(t, round)
			require.NotEmpty(t, round.Id)
			require.Empty(t, round.Events())
			require.False(t, round.IsStarted())
			require.False(t, round.IsEnded())
			require.False(t, round.IsFailed())

			events, err := round.StartRegistration()
			require.NoError(t, err)
			require.Len(t, events, 1)
			require.True(t, round.IsStarted())
			require.Equal(t, domain.InputRegistrationPhase, round.Phase)

			event, ok := events[0].(domain.RoundStarted)
			require.True(t, ok)
			require.Equal(t, round.Id, event.Id)
			require.Equal(t, round.StartingTimestamp, event.Timestamp)
		})

		t.Run("invalid", func(t *testing.T) {
			fixtures := []*domain.Round{
				{Id: "id", Phase: domain.InputRegistrationPhase},
				{Id: "id", Phase: domain.OutputRegistrationPhase},
				{Id: "id", Phase: domain.EndedPhase},
			}

			for _, round := range fixtures {
				events, err := round.StartRegistration()
				require.EqualError(t, err, "not in a valid phase to start input registration")
				require.Empty(t, events)
			}
		})
	})
}

func testRegisterInputs(t *testing.T) {
	t.Run("register_inputs", func(t *testing.T) {
		t.Run("valid", func(t *testing.T) {
			round := domain.NewRound()
			_, err := round.StartRegistration()
			require.NoError(t, err)

			events, err := round.RegisterInputs(alice)
			require.NoError(t, err)
			require.Len(t, events, 1)

			event, ok := events[0].(domain.InputsRegistered)
			require.True(t, ok)
			require.Equal(t, round.Id, event.Id)
			require.Equal(t, alice.Id, event.Alice.Id)

			_, err = round.RegisterInputs(bob)
			require.NoError(t, err)
			require.Equal(t, 3, round.InputCount())
			require.Len(t, round.Inputs(), 3)

			state := round.State()
			require.Equal(t, 2, state.AliceCount)
			require.Equal(t, 3, state.InputCount)
		})

		t.Run("invalid", func(t *testing.T) {
			started := func() *domain.Round {
				round := domain.NewRound()
				_, err := round.StartRegistration()
				require.NoError(t, err)
				_, err = round.RegisterInputs(alice)
				require.NoError(t, err)
				return round
			}
			fixtures := []struct {
				round       *domain.Round
				alice       domain.Alice
				expectedErr string
			}{
				{
					round:       domain.NewRound(),
					alice:       bob,
					expectedErr: "not in a valid phase to register inputs",
				},
				{
					round:       started(),
					alice:       domain.Alice{Id: "carol"},
					expectedErr: "missing inputs",
				},
				{
					round:       started(),
					alice:       alice,
					expectedErr: "alice alice already registered",
				},
				{
					round: started(),
					alice: domain.Alice{Id: "carol", Inputs: alice.Inputs[:1]},
					expectedErr: fmt.Sprintf(
						"input %s already registered", alice.Inputs[0].Outpoint,
					),
				},
			}

			for _, f := range fixtures {
				events, err := f.round.RegisterInputs(f.alice)
				require.EqualError(t, err, f.expectedErr)
				require.Empty(t, events)
			}
		})
	})
}

func testRegisterOutputs(t *testing.T) {
	t.Run("register_outputs", func(t *testing.T) {
		newRound := func() *domain.Round {
			round := domain.NewRound()
			_, err := round.StartRegistration()
			require.NoError(t, err)
			_, err = round.RegisterInputs(alice)
			require.NoError(t, err)
			return round
		}

		t.Run("valid", func(t *testing.T) {
			round := newRound()
			events, err := round.StartOutputRegistration()
			require.NoError(t, err)
			require.Len(t, events, 1)
			require.Equal(t, domain.OutputRegistrationPhase, round.Phase)

			events, err = round.RegisterOutputs(alice.Id, receivers)
			require.NoError(t, err)
			require.Len(t, events, 1)
			require.Equal(t, receivers, round.Alices[alice.Id].Receivers)
		})

		t.Run("invalid", func(t *testing.T) {
			round := newRound()
			_, err := round.RegisterOutputs(alice.Id, receivers)
			require.EqualError(t, err, "not in a valid phase to register outputs")

			_, err = round.StartOutputRegistration()
			require.NoError(t, err)

			_, err = round.RegisterOutputs("carol", receivers)
			require.EqualError(t, err, "alice carol not found")

			_, err = round.RegisterOutputs(alice.Id, []domain.Receiver{
				{PkScript: pkScript, Amount: 5000},
			})
			require.EqualError(t, err, "outputs amount 5000 exceeds inputs amount 3000")

			_, err = round.RegisterOutputs(alice.Id, nil)
			require.EqualError(t, err, "missing outputs")

			_, err = round.RegisterOutputs(alice.Id, receivers)
			require.NoError(t, err)
			_, err = round.RegisterOutputs(alice.Id, receivers)
			require.EqualError(t, err, "alice alice already registered outputs")
		})

		t.Run("no inputs", func(t *testing.T) {
			round := domain.NewRound()
			_, err := round.StartRegistration()
			require.NoError(t, err)
			_, err = round.StartOutputRegistration()
			require.EqualError(t, err, "no inputs registered")
		})
	})
}

func testFinalize(t *testing.T) {
	t.Run("finalize", func(t *testing.T) {
		round := domain.NewRound()
		_, err := round.StartRegistration()
		require.NoError(t, err)
		_, err = round.RegisterInputs(alice)
		require.NoError(t, err)

		_, err = round.Finalize(roundTx, txid)
		require.EqualError(t, err, "not in a valid phase to finalize round")

		_, err = round.StartOutputRegistration()
		require.NoError(t, err)
		_, err = round.RegisterOutputs(alice.Id, receivers)
		require.NoError(t, err)

		_, err = round.StartSigning("")
		require.EqualError(t, err, "missing unsigned round tx")

		events, err := round.StartSigning(roundTx)
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, domain.TransactionSigningPhase, round.Phase)
		require.Equal(t, roundTx, round.Tx)

		_, err = round.Finalize("", txid)
		require.EqualError(t, err, "missing signed round tx")
		_, err = round.Finalize(roundTx, "")
		require.EqualError(t, err, "missing round txid")

		events, err = round.Finalize(roundTx, txid)
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.True(t, round.IsEnded())
		require.False(t, round.IsStarted())
		require.Equal(t, txid, round.Txid)
		require.True(t, round.State().Succeeded())
		require.Len(t, round.State().Inputs, 2)

		replayed := domain.NewRoundFromEvents(round.Events())
		require.Equal(t, round.State(), replayed.State())
		require.Equal(t, uint(len(round.Events())), replayed.Version)
	})
}

func testFail(t *testing.T) {
	t.Run("fail", func(t *testing.T) {
		round := domain.NewRound()
		_, err := round.StartRegistration()
		require.NoError(t, err)

		events := round.Fail(fmt.Errorf("not enough participants"))
		require.Len(t, events, 1)
		require.True(t, round.IsFailed())
		require.False(t, round.IsEnded())
		require.False(t, round.IsStarted())

		state := round.State()
		require.True(t, state.IsEnded())
		require.False(t, state.Succeeded())
		require.Equal(t, "not enough participants", state.FailReason)

		events = round.Fail(fmt.Errorf("again"))
		require.Empty(t, events)

		_, err = round.RegisterInputs(bob)
		require.EqualError(t, err, "not in a valid phase to register inputs")
	})
}
