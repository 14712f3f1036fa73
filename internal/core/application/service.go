package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ark-network/coinjoin/internal/core/domain"
	"github.com/ark-network/coinjoin/internal/core/ports"
	"github.com/ark-network/coinjoin/pkg/broker"
	"github.com/ark-network/coinjoin/pkg/statemachine"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

const (
	defaultTickInterval = time.Second
	walletQueryTimeout  = 5 * time.Second
)

type stateMachine = statemachine.Machine[domain.State, domain.Trigger]

type service struct {
	cfg         Config
	clock       clockwork.Clock
	wallet      ports.WalletService
	roundClient ports.RoundClient
	scheduler   ports.SchedulerService
	repoManager ports.RepoManager

	// The fields below are owned by the dispatcher goroutine.
	sm             *stateMachine
	status         domain.CoinJoinStatus
	coins          domain.Coins
	countdownStart time.Time
	autoStartTime  time.Time

	dispatcher   *dispatcher
	statusLock   *sync.RWMutex
	lastStatus   domain.CoinJoinStatus
	statusBroker *broker.Broker[domain.CoinJoinStatus]

	lock          *sync.Mutex
	started       bool
	stopped       bool
	unsubscribers []func()
	wg            *sync.WaitGroup
}

func NewService(
	cfg Config,
	wallet ports.WalletService, roundClient ports.RoundClient,
	scheduler ports.SchedulerService, repoManager ports.RepoManager,
) (Service, error) {
	if wallet == nil {
		return nil, fmt.Errorf("missing wallet")
	}
	if roundClient == nil {
		return nil, fmt.Errorf("missing round client")
	}
	if scheduler == nil {
		return nil, fmt.Errorf("missing scheduler")
	}
	if repoManager == nil {
		return nil, fmt.Errorf("missing repo manager")
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	svc := &service{
		cfg:          cfg,
		clock:        clock,
		wallet:       wallet,
		roundClient:  roundClient,
		scheduler:    scheduler,
		repoManager:  repoManager,
		status:       domain.CoinJoinStatus{WalletID: wallet.ID()},
		statusLock:   &sync.RWMutex{},
		statusBroker: broker.New[domain.CoinJoinStatus](),
		lock:         &sync.Mutex{},
		wg:           &sync.WaitGroup{},
	}
	svc.dispatcher = newDispatcher(svc.publishStatus)

	sm, err := svc.newStateMachine()
	if err != nil {
		return nil, err
	}
	svc.sm = sm
	return svc, nil
}

// Start selects the initial state from the wallet capability and settings,
// enters it and begins listening to round status events, coin set changes,
// settings changes and the progress tick.
func (s *service) Start() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.started {
		return ErrServiceAlreadyStarted
	}
	if s.stopped {
		return ErrServiceStopped
	}

	ctx, cancel := context.WithTimeout(context.Background(), walletQueryTimeout)
	defer cancel()

	autoCoinJoin, err := s.autoCoinJoinPreference(ctx)
	if err != nil {
		return err
	}
	coins, err := s.wallet.Coins(ctx)
	if err != nil {
		return fmt.Errorf("failed to get wallet coins: %s", err)
	}
	initial := initialState(s.wallet.Capability(), autoCoinJoin)

	// Subscribe before entering the initial state, so that the status events
	// caused by its entry actions are not missed.
	events, closeEvents := s.roundClient.SubscribeStatus()

	s.dispatcher.start()
	if err := s.dispatcher.do(ctx, func() error {
		s.coins = coins
		return s.sm.Start(initial)
	}); err != nil {
		closeEvents()
		s.dispatcher.stop()
		s.stopped = true
		return fmt.Errorf("failed to start state machine: %s", err)
	}
	log.Debugf("coinjoin orchestrator of wallet %s started in state %s", s.wallet.ID(), initial)

	s.unsubscribers = append(s.unsubscribers, closeEvents)
	s.wg.Add(1)
	go s.listenToRoundStatus(events)

	s.unsubscribers = append(
		s.unsubscribers,
		s.wallet.RegisterCoinsHandler(s.onCoinsChanged),
		s.repoManager.RegisterSettingsHandler(s.wallet.ID(), s.onSettingsChanged),
	)

	cancelTick, err := s.scheduler.ScheduleTask(s.cfg.TickInterval, false, s.onTick)
	if err != nil {
		s.stop()
		s.stopped = true
		return fmt.Errorf("failed to schedule progress tick: %s", err)
	}
	s.unsubscribers = append(s.unsubscribers, cancelTick)

	s.started = true
	return nil
}

// Stop releases every subscription of the orchestrator. Rounds already
// delegated to the round client are not recalled.
func (s *service) Stop() {
	s.lock.Lock()
	defer s.lock.Unlock()

	if !s.started {
		return
	}
	s.started = false
	s.stopped = true
	s.stop()
	s.statusBroker.Close()
	log.Debugf("coinjoin orchestrator of wallet %s stopped", s.wallet.ID())
}

func (s *service) Play(ctx context.Context) error {
	return s.fireAndWait(ctx, domain.TriggerPlay)
}

func (s *service) Pause(ctx context.Context) error {
	return s.fireAndWait(ctx, domain.TriggerPause)
}

func (s *service) StopCoinJoin(ctx context.Context) error {
	return s.fireAndWait(ctx, domain.TriggerStop)
}

func (s *service) SetAutoCoinJoin(ctx context.Context, enabled bool) error {
	settings := domain.NewWalletSettings(s.wallet.ID(), enabled)
	if err := s.repoManager.Settings().Upsert(ctx, settings); err != nil {
		return fmt.Errorf("failed to update wallet settings: %s", err)
	}
	return nil
}

func (s *service) GetStatus(_ context.Context) domain.CoinJoinStatus {
	s.statusLock.RLock()
	defer s.statusLock.RUnlock()
	return s.lastStatus
}

func (s *service) GetEventStream(_ context.Context) (<-chan domain.CoinJoinStatus, func()) {
	return s.statusBroker.Subscribe()
}

// stop must be called with the lock held.
func (s *service) stop() {
	for i := len(s.unsubscribers) - 1; i >= 0; i-- {
		s.unsubscribers[i]()
	}
	s.unsubscribers = nil
	s.wg.Wait()
	s.dispatcher.stop()
}

func (s *service) fireAndWait(ctx context.Context, trigger domain.Trigger) error {
	s.lock.Lock()
	started := s.started
	s.lock.Unlock()
	if !started {
		return ErrServiceNotStarted
	}

	return s.dispatcher.do(ctx, func() error {
		return s.sm.Fire(trigger)
	})
}

func (s *service) autoCoinJoinPreference(ctx context.Context) (bool, error) {
	settings, err := s.repoManager.Settings().Get(ctx, s.wallet.ID())
	if err != nil {
		if errors.Is(err, domain.ErrSettingsNotFound) {
			return s.cfg.AutoCoinJoin, nil
		}
		return false, fmt.Errorf("failed to get wallet settings: %s", err)
	}
	return settings.AutoCoinJoin, nil
}

// publishStatus runs after every dispatched task and notifies subscribers if
// the status changed.
func (s *service) publishStatus() {
	status := s.status
	status.State = s.sm.CurrentState()

	s.statusLock.Lock()
	changed := status != s.lastStatus
	s.lastStatus = status
	s.statusLock.Unlock()

	if changed {
		s.statusBroker.Publish(status)
	}
}

func initialState(capability domain.WalletCapability, autoCoinJoin bool) domain.State {
	if !capability.CanCoinJoin() {
		return domain.StateDisabled
	}
	if autoCoinJoin {
		return domain.StateAutoCoinJoin
	}
	return domain.StateManualCoinJoin
}
