package inmemorycoordinator

import (
	"fmt"

	"github.com/ark-network/coinjoin/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

func (s *service) run(stop chan struct{}) {
	defer s.wg.Done()

	for {
		s.startRound()
		if !s.wait(stop, nil) {
			s.failRound(fmt.Errorf("coordinator stopped"))
			return
		}

		allOutputs, ok := s.startOutputRegistration()
		if !ok {
			continue
		}
		if !s.wait(stop, allOutputs) {
			s.failRound(fmt.Errorf("coordinator stopped"))
			return
		}

		allSigned, ok := s.startSigning()
		if !ok {
			continue
		}
		if !s.wait(stop, allSigned) {
			s.failRound(fmt.Errorf("coordinator stopped"))
			return
		}

		s.finalizeRound()
	}
}

// wait blocks for one phase duration, or until done is closed. It returns
// false if the coordinator has been stopped meanwhile.
func (s *service) wait(stop, done chan struct{}) bool {
	select {
	case <-stop:
		return false
	case <-done:
		return true
	case <-s.clock.After(s.cfg.PhaseDuration):
		return true
	}
}

func (s *service) startRound() {
	s.lock.Lock()
	defer s.lock.Unlock()

	round := domain.NewRound()
	// nolint
	round.StartRegistration()
	s.round = round
	s.signedTxs = make(map[string]string)
	s.allOutputs = make(chan struct{})
	s.allSigned = make(chan struct{})

	log.Debugf("started input registration phase for round %s", round.Id)
}

func (s *service) startOutputRegistration() (chan struct{}, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	round := s.round
	if len(round.Alices) < s.cfg.MinAlices {
		s.fail(fmt.Errorf(
			"not enough participants, got %d, expected at least %d",
			len(round.Alices), s.cfg.MinAlices,
		))
		return nil, false
	}
	if _, err := round.StartOutputRegistration(); err != nil {
		s.fail(err)
		return nil, false
	}

	log.Debugf("started output registration phase for round %s", round.Id)
	return s.allOutputs, true
}

func (s *service) startSigning() (chan struct{}, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	round := s.round
	roundTx, err := s.builder.BuildRoundTx(round.AliceList())
	if err != nil {
		s.fail(fmt.Errorf("failed to create round tx: %s", err))
		return nil, false
	}
	if _, err := round.StartSigning(roundTx); err != nil {
		s.fail(err)
		return nil, false
	}

	log.Debugf("started signing phase for round %s", round.Id)
	return s.allSigned, true
}

func (s *service) finalizeRound() {
	s.lock.Lock()
	defer s.lock.Unlock()

	round := s.round
	if len(s.signedTxs) < len(round.Alices) {
		s.fail(fmt.Errorf(
			"%d alices left to sign", len(round.Alices)-len(s.signedTxs),
		))
		return
	}

	signedTxs := make([]string, 0, len(s.signedTxs))
	for _, tx := range s.signedTxs {
		signedTxs = append(signedTxs, tx)
	}
	finalTx, txid, err := s.builder.CombineSignedTxs(round.Tx, signedTxs)
	if err != nil {
		s.fail(fmt.Errorf("failed to finalize round tx: %s", err))
		return
	}
	if _, err := round.Finalize(finalTx, txid); err != nil {
		s.fail(err)
		return
	}
	s.archive()

	log.Debugf("finalized round %s with tx %s", round.Id, txid)
}

func (s *service) failRound(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.fail(err)
}

func (s *service) fail(err error) {
	if s.round == nil || len(s.round.Fail(err)) <= 0 {
		return
	}
	s.archive()
	log.WithError(err).Warnf("round %s failed", s.round.Id)
}

func (s *service) archive() {
	if len(s.ended) >= maxEndedRounds {
		s.ended = s.ended[1:]
	}
	s.ended = append(s.ended, s.round.State())
}
