// Package inmemorycoordinator implements a coinjoin coordinator that runs
// rounds in memory, used to exercise participants end to end.
package inmemorycoordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ark-network/coinjoin/internal/core/domain"
	"github.com/ark-network/coinjoin/internal/core/ports"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

const maxEndedRounds = 10

type Config struct {
	// PhaseDuration bounds the input registration, output registration and
	// signing phases of every round.
	PhaseDuration time.Duration
	MinAlices     int
	Clock         clockwork.Clock
}

type service struct {
	cfg     Config
	clock   clockwork.Clock
	builder ports.TxBuilder

	lock      *sync.RWMutex
	round     *domain.Round
	signedTxs map[string]string
	// allOutputs and allSigned are closed to end the output registration and
	// signing phases early, once every alice is done.
	allOutputs chan struct{}
	allSigned  chan struct{}
	ended      []domain.RoundState

	stop chan struct{}
	wg   *sync.WaitGroup
}

func NewService(cfg Config, builder ports.TxBuilder) (*service, error) {
	if cfg.PhaseDuration <= 0 {
		return nil, fmt.Errorf("invalid phase duration %s", cfg.PhaseDuration)
	}
	if cfg.MinAlices <= 0 {
		cfg.MinAlices = 1
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &service{
		cfg:     cfg,
		clock:   clock,
		builder: builder,
		lock:    &sync.RWMutex{},
		ended:   make([]domain.RoundState, 0, maxEndedRounds),
		wg:      &sync.WaitGroup{},
	}, nil
}

func (s *service) Start() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.stop != nil {
		return fmt.Errorf("coordinator already started")
	}
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.stop)
	return nil
}

func (s *service) Stop() {
	s.lock.Lock()
	stop := s.stop
	s.stop = nil
	s.lock.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	s.wg.Wait()
}

func (s *service) GetStatus(_ context.Context) ([]domain.RoundState, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.round == nil {
		return nil, fmt.Errorf("no round available")
	}

	states := make([]domain.RoundState, 0, len(s.ended)+1)
	if current := s.round.State(); !current.IsEnded() {
		states = append(states, current)
	}
	for i := len(s.ended) - 1; i >= 0; i-- {
		states = append(states, s.ended[i])
	}
	return states, nil
}

func (s *service) RegisterInputs(
	_ context.Context, roundId string, inputs []domain.Coin,
) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	round, err := s.getRound(roundId)
	if err != nil {
		return "", err
	}

	alice := domain.NewAlice(inputs)
	if _, err := round.RegisterInputs(alice); err != nil {
		return "", err
	}

	log.Debugf("alice %s registered %d inputs in round %s", alice.Id, len(inputs), roundId)
	return alice.Id, nil
}

func (s *service) RegisterOutputs(
	_ context.Context, roundId, aliceId string, receivers []domain.Receiver,
) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	round, err := s.getRound(roundId)
	if err != nil {
		return err
	}
	if _, err := round.RegisterOutputs(aliceId, receivers); err != nil {
		return err
	}
	registered := 0
	for _, alice := range round.Alices {
		if len(alice.Receivers) > 0 {
			registered++
		}
	}
	if registered == len(round.Alices) {
		close(s.allOutputs)
	}

	log.Debugf("alice %s registered %d outputs in round %s", aliceId, len(receivers), roundId)
	return nil
}

func (s *service) SubmitSignedTx(
	_ context.Context, roundId, aliceId, signedTx string,
) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	round, err := s.getRound(roundId)
	if err != nil {
		return err
	}
	if round.Phase != domain.TransactionSigningPhase {
		return fmt.Errorf("round %s is not in signing phase", roundId)
	}
	alice, ok := round.Alices[aliceId]
	if !ok {
		return fmt.Errorf("alice %s not found", aliceId)
	}
	if _, ok := s.signedTxs[aliceId]; ok {
		return fmt.Errorf("alice %s already signed", aliceId)
	}
	if err := s.builder.VerifySignedTx(round.Tx, signedTx, round.Inputs(), alice); err != nil {
		return err
	}

	s.signedTxs[aliceId] = signedTx
	if len(s.signedTxs) == len(round.Alices) {
		close(s.allSigned)
	}

	log.Debugf("alice %s signed round %s", aliceId, roundId)
	return nil
}

func (s *service) getRound(roundId string) (*domain.Round, error) {
	if s.round == nil || s.round.Id != roundId {
		return nil, fmt.Errorf("round %s not found", roundId)
	}
	if s.round.IsFailed() {
		return nil, fmt.Errorf("round %s failed: %s", roundId, s.round.FailReason)
	}
	return s.round, nil
}
