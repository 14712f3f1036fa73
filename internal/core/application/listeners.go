package application

import (
	"context"

	"github.com/ark-network/coinjoin/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

// listenToRoundStatus translates the round status events of the wallet into
// triggers until the stream is closed.
func (s *service) listenToRoundStatus(events <-chan domain.RoundStatusEvent) {
	defer s.wg.Done()

	for event := range events {
		if event.GetWalletID() != s.wallet.ID() {
			continue
		}
		event := event
		s.dispatcher.enqueue(func() { s.handleRoundStatus(event) })
	}
}

func (s *service) handleRoundStatus(event domain.RoundStatusEvent) {
	switch e := event.(type) {
	case domain.CoinJoinStarting:
		// Only a wallet that just entered auto mode waits for the countdown.
		if s.sm.CurrentState() != domain.StateAutoCoinJoin {
			log.Debugf("ignoring auto start countdown in state %s", s.sm.CurrentState())
			return
		}
		s.countdownStart = s.clock.Now()
		s.autoStartTime = s.countdownStart.Add(e.Countdown)
		s.fire(domain.TriggerAutoCoinJoinEntered)
	case domain.CoinJoinStarted:
		s.fire(domain.TriggerRoundStart)
	case domain.CoinJoinStartError:
		log.Debugf("coinjoin of wallet %s failed to start: %s", e.WalletID, e.Reason)
		s.fire(domain.TriggerRoundStartFailed)
	}
}

// onTick refreshes the countdown progress. The other states recompute their
// progress when the coin set changes.
func (s *service) onTick() {
	s.dispatcher.enqueue(func() {
		if s.sm.CurrentState() == domain.StateAutoStarting {
			s.sm.Process()
		}
	})
}

func (s *service) onCoinsChanged() {
	ctx, cancel := context.WithTimeout(context.Background(), walletQueryTimeout)
	defer cancel()

	coins, err := s.wallet.Coins(ctx)
	if err != nil {
		log.WithError(err).Warnf("failed to get coins of wallet %s", s.wallet.ID())
		return
	}
	s.dispatcher.enqueue(func() {
		s.coins = coins
		s.sm.Process()
	})
}

func (s *service) onSettingsChanged(settings domain.WalletSettings) {
	trigger := domain.TriggerAutoCoinJoinOff
	if settings.AutoCoinJoin {
		trigger = domain.TriggerAutoCoinJoinOn
	}
	s.dispatcher.enqueue(func() { s.fire(trigger) })
}

// fire must run on the dispatcher. Rejected triggers are logged by the
// state machine.
func (s *service) fire(trigger domain.Trigger) {
	// nolint
	s.sm.Fire(trigger)
}
