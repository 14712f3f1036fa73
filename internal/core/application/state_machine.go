package application

import (
	"github.com/ark-network/coinjoin/internal/core/domain"
	"github.com/ark-network/coinjoin/pkg/statemachine"
	log "github.com/sirupsen/logrus"
)

type option = statemachine.Option[domain.State, domain.Trigger]

func permit(trigger domain.Trigger, target domain.State) option {
	return statemachine.Permit[domain.State, domain.Trigger](trigger, target)
}

func substateOf(parent domain.State) option {
	return statemachine.SubstateOf[domain.State, domain.Trigger](parent)
}

func onEntry(action func()) option {
	return statemachine.OnEntry[domain.State, domain.Trigger](action)
}

func onExit(action func()) option {
	return statemachine.OnExit[domain.State, domain.Trigger](action)
}

func onProcess(action func()) option {
	return statemachine.OnProcess[domain.State, domain.Trigger](action)
}

// newStateMachine configures the participation state graph:
//
//	Disabled
//	ManualCoinJoin
//	├── Stopped
//	├── ManualPlaying
//	└── ManualFinished
//	AutoCoinJoin
//	├── AutoStarting
//	├── Paused
//	├── AutoPlaying
//	└── AutoFinished
func (s *service) newStateMachine() (*stateMachine, error) {
	sm := statemachine.New[domain.State, domain.Trigger]()
	sm.OnUnhandledTrigger(func(state domain.State, trigger domain.Trigger) {
		log.WithFields(log.Fields{
			"wallet":  s.wallet.ID(),
			"state":   state,
			"trigger": trigger,
		}).Debug("trigger rejected")
	})

	states := []struct {
		state domain.State
		opts  []option
	}{
		{
			state: domain.StateDisabled,
			opts:  []option{onEntry(s.enterDisabled)},
		},
		{
			state: domain.StateManualCoinJoin,
			opts: []option{
				permit(domain.TriggerAutoCoinJoinOn, domain.StateAutoCoinJoin),
				permit(domain.TriggerManualCoinJoinEntered, domain.StateStopped),
				onEntry(func() { s.enterManualCoinJoin(sm) }),
				onProcess(s.updateMixedProgress),
			},
		},
		{
			state: domain.StateStopped,
			opts: []option{
				substateOf(domain.StateManualCoinJoin),
				permit(domain.TriggerPlay, domain.StateManualPlaying),
				onEntry(s.enterStopped),
			},
		},
		{
			state: domain.StateManualPlaying,
			opts: []option{
				substateOf(domain.StateManualCoinJoin),
				permit(domain.TriggerStop, domain.StateStopped),
				permit(domain.TriggerRoundStartFailed, domain.StateManualFinished),
				onEntry(s.enterManualPlaying),
			},
		},
		{
			state: domain.StateManualFinished,
			opts: []option{
				substateOf(domain.StateManualCoinJoin),
				permit(domain.TriggerPlay, domain.StateManualPlaying),
				onEntry(s.enterFinished),
			},
		},
		{
			state: domain.StateAutoCoinJoin,
			opts: []option{
				permit(domain.TriggerAutoCoinJoinOff, domain.StateManualCoinJoin),
				permit(domain.TriggerAutoCoinJoinEntered, domain.StateAutoStarting),
				onEntry(s.enterAutoCoinJoin),
			},
		},
		{
			state: domain.StateAutoStarting,
			opts: []option{
				substateOf(domain.StateAutoCoinJoin),
				permit(domain.TriggerPause, domain.StatePaused),
				permit(domain.TriggerRoundStart, domain.StateAutoPlaying),
				permit(domain.TriggerPlay, domain.StateAutoPlaying),
				onEntry(s.enterAutoStarting),
				onProcess(s.updateCountdownProgress),
				onExit(func() { s.status.IsAutoWaiting = false }),
			},
		},
		{
			state: domain.StatePaused,
			opts: []option{
				substateOf(domain.StateAutoCoinJoin),
				permit(domain.TriggerPlay, domain.StateAutoPlaying),
				onEntry(s.enterPaused),
				onProcess(s.updateMixedProgress),
			},
		},
		{
			state: domain.StateAutoPlaying,
			opts: []option{
				substateOf(domain.StateAutoCoinJoin),
				permit(domain.TriggerPause, domain.StatePaused),
				permit(domain.TriggerPlebStop, domain.StatePaused),
				permit(domain.TriggerRoundStartFailed, domain.StateAutoFinished),
				permit(domain.TriggerRoundStart, domain.StateAutoPlaying),
				onEntry(s.enterAutoPlaying),
				onProcess(s.updateMixedProgress),
			},
		},
		{
			state: domain.StateAutoFinished,
			opts: []option{
				substateOf(domain.StateAutoCoinJoin),
				permit(domain.TriggerRoundStart, domain.StateAutoPlaying),
				onEntry(s.enterFinished),
			},
		},
	}

	for _, st := range states {
		if err := sm.Configure(st.state, st.opts...); err != nil {
			return nil, err
		}
	}
	return sm, nil
}

func (s *service) enterDisabled() {
	s.status.Status = domain.StatusDisabled
	s.status.Controls = domain.NewControls()
	s.status.IsAuto = false
	s.status.IsAutoWaiting = false
}

func (s *service) enterManualCoinJoin(sm *stateMachine) {
	s.status.IsAuto = false
	s.status.IsAutoWaiting = false
	s.status.Controls = domain.NewControls(domain.ControlPlay)

	// Queued by the machine and fired once this entry completes.
	// nolint
	sm.Fire(domain.TriggerManualCoinJoinEntered)
}

func (s *service) enterStopped() {
	s.status.Status = domain.StatusStopped
	s.status.Controls = domain.NewControls(domain.ControlPlay)
	s.status.Progress = domain.ProgressSnapshot{}
	s.roundClient.Stop(s.wallet.ID())
}

func (s *service) enterManualPlaying() {
	s.status.Status = domain.StatusParticipating
	s.status.Controls = domain.NewControls(domain.ControlStop)
	s.roundClient.Start(s.wallet.ID())
}

func (s *service) enterFinished() {
	s.status.Status = domain.StatusFinished
	s.status.Controls = domain.NewControls(domain.ControlPlay)
	s.status.Progress = domain.ProgressSnapshot{Percentage: 100}
}

func (s *service) enterAutoCoinJoin() {
	s.status.IsAuto = true
	s.status.Status = domain.StatusInitializing
	s.status.Controls = domain.NewControls(domain.ControlPlay)

	s.roundClient.Stop(s.wallet.ID())
	s.roundClient.AutoStart(s.wallet.ID())
}

func (s *service) enterAutoStarting() {
	s.status.IsAutoWaiting = true
	s.status.Status = domain.StatusWaiting
	s.status.Controls = domain.NewControls(domain.ControlPlay, domain.ControlPause)
	s.updateCountdownProgress()
}

func (s *service) enterPaused() {
	s.status.IsAutoWaiting = true
	s.status.Status = domain.StatusPaused
	s.status.Controls = domain.NewControls(domain.ControlPlay)
	s.status.Progress = domain.ProgressSnapshot{}
	s.roundClient.Stop(s.wallet.ID())
}

func (s *service) enterAutoPlaying() {
	s.status.IsAutoWaiting = false
	s.status.Status = domain.StatusParticipating
	s.status.Controls = domain.NewControls(domain.ControlPause)
	s.roundClient.Start(s.wallet.ID())
}

func (s *service) updateCountdownProgress() {
	s.status.Progress = domain.NewCountdownProgress(
		s.countdownStart, s.autoStartTime, s.clock.Now(),
	)
}

// updateMixedProgress sets the progress to the share of the wallet balance
// that reached the anonymity score target.
func (s *service) updateMixedProgress() {
	target := s.wallet.MinAnonScoreTarget()
	_, nonPrivate := s.coins.Partition(target)

	s.status.BalanceToCoinJoin = nonPrivate.TotalAmount()
	s.status.Progress = domain.ProgressSnapshot{
		Percentage: s.coins.PrivacyProgress(target),
	}
}
