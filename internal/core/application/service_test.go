package application

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ark-network/coinjoin/internal/core/domain"
	"github.com/ark-network/coinjoin/internal/core/ports"
	simulatedwallet "github.com/ark-network/coinjoin/internal/infrastructure/wallet/simulated"
	"github.com/ark-network/coinjoin/pkg/statemachine"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const minAnonScoreTarget = 5

type mockedRoundClient struct {
	mock.Mock
	events chan domain.RoundStatusEvent
	// failingStarts is the number of next Start calls that panic.
	failingStarts atomic.Int32
}

func newMockedRoundClient() *mockedRoundClient {
	m := &mockedRoundClient{events: make(chan domain.RoundStatusEvent, 16)}
	m.On("Start", mock.Anything).Return()
	m.On("Stop", mock.Anything).Return()
	m.On("AutoStart", mock.Anything).Return()
	return m
}

func (m *mockedRoundClient) Start(walletID string) {
	m.Called(walletID)
	if m.failingStarts.Add(-1) >= 0 {
		panic("round client failure")
	}
}

func (m *mockedRoundClient) Stop(walletID string) {
	m.Called(walletID)
}

func (m *mockedRoundClient) AutoStart(walletID string) {
	m.Called(walletID)
}

func (m *mockedRoundClient) SubscribeStatus() (<-chan domain.RoundStatusEvent, func()) {
	once := &sync.Once{}
	return m.events, func() { once.Do(func() { close(m.events) }) }
}

// commands returns the names of the commands received so far, in order.
func (m *mockedRoundClient) commands() []string {
	calls := make([]string, 0)
	for _, call := range m.Calls {
		calls = append(calls, call.Method)
	}
	return calls
}

func (m *mockedRoundClient) resetCalls() {
	m.Calls = nil
}

type fakeScheduler struct {
	lock  sync.Mutex
	tasks []func()
}

func (s *fakeScheduler) Start() {}
func (s *fakeScheduler) Stop()  {}

func (s *fakeScheduler) ScheduleTask(_ time.Duration, _ bool, task func()) (func(), error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.tasks = append(s.tasks, task)
	return func() {}, nil
}

func (s *fakeScheduler) ScheduleTaskOnce(_ time.Duration, task func()) (func(), error) {
	return s.ScheduleTask(0, false, task)
}

func (s *fakeScheduler) tick() {
	s.lock.Lock()
	tasks := append([]func(){}, s.tasks...)
	s.lock.Unlock()
	for _, task := range tasks {
		task()
	}
}

type fakeSettingsRepo struct {
	lock     sync.Mutex
	settings map[string]domain.WalletSettings
	handlers map[string]func(domain.WalletSettings)
}

func (r *fakeSettingsRepo) Get(_ context.Context, walletID string) (*domain.WalletSettings, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	settings, ok := r.settings[walletID]
	if !ok {
		return nil, domain.ErrSettingsNotFound
	}
	return &settings, nil
}

func (r *fakeSettingsRepo) Upsert(_ context.Context, settings domain.WalletSettings) error {
	r.lock.Lock()
	r.settings[settings.WalletID] = settings
	handler := r.handlers[settings.WalletID]
	r.lock.Unlock()

	if handler != nil {
		handler(settings)
	}
	return nil
}

func (r *fakeSettingsRepo) Close() {}

func (r *fakeSettingsRepo) Settings() domain.SettingsRepository {
	return r
}

func (r *fakeSettingsRepo) RegisterSettingsHandler(
	walletID string, handler func(domain.WalletSettings),
) func() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.handlers[walletID] = handler
	return func() {
		r.lock.Lock()
		defer r.lock.Unlock()
		delete(r.handlers, walletID)
	}
}

type testEnv struct {
	svc         *service
	wallet      ports.FundingWallet
	roundClient *mockedRoundClient
	scheduler   *fakeScheduler
	repo        *fakeSettingsRepo
	clock       clockwork.FakeClock
}

type testOpts struct {
	capability   domain.WalletCapability
	autoCoinJoin bool
	fund         bool
}

func newTestEnv(t *testing.T, opts testOpts) *testEnv {
	wallet, err := simulatedwallet.NewService(simulatedwallet.Config{
		Name:               "test",
		Capability:         opts.capability,
		MinAnonScoreTarget: minAnonScoreTarget,
	})
	require.NoError(t, err)
	t.Cleanup(wallet.Close)
	if opts.fund {
		require.NoError(t, wallet.Generate(context.Background(), 1))
	}

	repo := &fakeSettingsRepo{
		settings: make(map[string]domain.WalletSettings),
		handlers: make(map[string]func(domain.WalletSettings)),
	}
	require.NoError(t, repo.Upsert(
		context.Background(), domain.NewWalletSettings(wallet.ID(), opts.autoCoinJoin),
	))

	roundClient := newMockedRoundClient()
	scheduler := &fakeScheduler{}
	clock := clockwork.NewFakeClock()

	svc, err := NewService(
		Config{TickInterval: time.Second, Clock: clock},
		wallet, roundClient, scheduler, repo,
	)
	require.NoError(t, err)
	require.NoError(t, svc.Start())
	t.Cleanup(svc.Stop)

	return &testEnv{
		svc:         svc.(*service),
		wallet:      wallet,
		roundClient: roundClient,
		scheduler:   scheduler,
		repo:        repo,
		clock:       clock,
	}
}

func (e *testEnv) status() domain.CoinJoinStatus {
	return e.svc.GetStatus(context.Background())
}

func (e *testEnv) waitForState(t *testing.T, state domain.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return e.status().State == state
	}, 2*time.Second, 5*time.Millisecond, "expected state %s, got %s", state, e.status().State)
}

func (e *testEnv) fire(trigger domain.Trigger) error {
	return e.svc.dispatcher.do(context.Background(), func() error {
		return e.svc.sm.Fire(trigger)
	})
}

// sync waits until every job queued so far has run.
func (e *testEnv) sync(t *testing.T) {
	require.NoError(t, e.svc.dispatcher.do(context.Background(), func() error { return nil }))
}

func (e *testEnv) send(event domain.RoundStatusEvent) {
	e.roundClient.events <- event
}

func TestInitialState(t *testing.T) {
	testCases := []struct {
		description   string
		capability    domain.WalletCapability
		autoCoinJoin  bool
		expectedState domain.State
		expectedCalls []string
	}{
		{
			description:   "hardware wallet with auto coinjoin",
			capability:    domain.WalletCapability{IsHardwareWallet: true},
			autoCoinJoin:  true,
			expectedState: domain.StateDisabled,
			expectedCalls: []string{},
		},
		{
			description:   "watch only wallet",
			capability:    domain.WalletCapability{IsWatchOnly: true},
			expectedState: domain.StateDisabled,
			expectedCalls: []string{},
		},
		{
			description:   "manual coinjoin descends into stopped",
			expectedState: domain.StateStopped,
			expectedCalls: []string{"Stop"},
		},
		{
			description:   "auto coinjoin waits for the countdown announcement",
			autoCoinJoin:  true,
			expectedState: domain.StateAutoCoinJoin,
			expectedCalls: []string{"Stop", "AutoStart"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			env := newTestEnv(t, testOpts{
				capability:   tc.capability,
				autoCoinJoin: tc.autoCoinJoin,
			})

			status := env.status()
			require.Equal(t, tc.expectedState, status.State)
			require.Equal(t, tc.expectedCalls, env.roundClient.commands())
			require.Equal(t, env.wallet.ID(), status.WalletID)
			if tc.expectedState == domain.StateDisabled {
				require.Equal(t, domain.StatusDisabled, status.Status)
				require.Equal(t, domain.NewControls(), status.Controls)
			}
		})
	}
}

func TestTransitions(t *testing.T) {
	allTriggers := []domain.Trigger{
		domain.TriggerAutoCoinJoinOn,
		domain.TriggerAutoCoinJoinOff,
		domain.TriggerAutoCoinJoinEntered,
		domain.TriggerManualCoinJoinEntered,
		domain.TriggerPause,
		domain.TriggerPlay,
		domain.TriggerStop,
		domain.TriggerPlebStop,
		domain.TriggerRoundStartFailed,
		domain.TriggerRoundStart,
	}

	// Every resting state with the path that reaches it and the transitions
	// it accepts, inherited ones included.
	testCases := []struct {
		state       domain.State
		capability  domain.WalletCapability
		auto        bool
		path        []domain.Trigger
		transitions map[domain.Trigger]domain.State
	}{
		{
			state:       domain.StateDisabled,
			capability:  domain.WalletCapability{IsHardwareWallet: true},
			transitions: map[domain.Trigger]domain.State{},
		},
		{
			state: domain.StateStopped,
			transitions: map[domain.Trigger]domain.State{
				domain.TriggerPlay:                  domain.StateManualPlaying,
				domain.TriggerAutoCoinJoinOn:        domain.StateAutoCoinJoin,
				domain.TriggerManualCoinJoinEntered: domain.StateStopped,
			},
		},
		{
			state: domain.StateManualPlaying,
			path:  []domain.Trigger{domain.TriggerPlay},
			transitions: map[domain.Trigger]domain.State{
				domain.TriggerStop:                  domain.StateStopped,
				domain.TriggerRoundStartFailed:      domain.StateManualFinished,
				domain.TriggerAutoCoinJoinOn:        domain.StateAutoCoinJoin,
				domain.TriggerManualCoinJoinEntered: domain.StateStopped,
			},
		},
		{
			state: domain.StateManualFinished,
			path:  []domain.Trigger{domain.TriggerPlay, domain.TriggerRoundStartFailed},
			transitions: map[domain.Trigger]domain.State{
				domain.TriggerPlay:                  domain.StateManualPlaying,
				domain.TriggerAutoCoinJoinOn:        domain.StateAutoCoinJoin,
				domain.TriggerManualCoinJoinEntered: domain.StateStopped,
			},
		},
		{
			state: domain.StateAutoCoinJoin,
			auto:  true,
			transitions: map[domain.Trigger]domain.State{
				domain.TriggerAutoCoinJoinOff:     domain.StateStopped,
				domain.TriggerAutoCoinJoinEntered: domain.StateAutoStarting,
			},
		},
		{
			state: domain.StateAutoStarting,
			auto:  true,
			path:  []domain.Trigger{domain.TriggerAutoCoinJoinEntered},
			transitions: map[domain.Trigger]domain.State{
				domain.TriggerPause:               domain.StatePaused,
				domain.TriggerRoundStart:          domain.StateAutoPlaying,
				domain.TriggerPlay:                domain.StateAutoPlaying,
				domain.TriggerAutoCoinJoinOff:     domain.StateStopped,
				domain.TriggerAutoCoinJoinEntered: domain.StateAutoStarting,
			},
		},
		{
			state: domain.StatePaused,
			auto:  true,
			path:  []domain.Trigger{domain.TriggerAutoCoinJoinEntered, domain.TriggerPause},
			transitions: map[domain.Trigger]domain.State{
				domain.TriggerPlay:                domain.StateAutoPlaying,
				domain.TriggerAutoCoinJoinOff:     domain.StateStopped,
				domain.TriggerAutoCoinJoinEntered: domain.StateAutoStarting,
			},
		},
		{
			state: domain.StateAutoPlaying,
			auto:  true,
			path:  []domain.Trigger{domain.TriggerAutoCoinJoinEntered, domain.TriggerRoundStart},
			transitions: map[domain.Trigger]domain.State{
				domain.TriggerPause:               domain.StatePaused,
				domain.TriggerPlebStop:            domain.StatePaused,
				domain.TriggerRoundStartFailed:    domain.StateAutoFinished,
				domain.TriggerRoundStart:          domain.StateAutoPlaying,
				domain.TriggerAutoCoinJoinOff:     domain.StateStopped,
				domain.TriggerAutoCoinJoinEntered: domain.StateAutoStarting,
			},
		},
		{
			state: domain.StateAutoFinished,
			auto:  true,
			path: []domain.Trigger{
				domain.TriggerAutoCoinJoinEntered,
				domain.TriggerRoundStart,
				domain.TriggerRoundStartFailed,
			},
			transitions: map[domain.Trigger]domain.State{
				domain.TriggerRoundStart:          domain.StateAutoPlaying,
				domain.TriggerAutoCoinJoinOff:     domain.StateStopped,
				domain.TriggerAutoCoinJoinEntered: domain.StateAutoStarting,
			},
		},
	}

	for _, tc := range testCases {
		for _, trigger := range allTriggers {
			t.Run(tc.state.String()+"/"+trigger.String(), func(t *testing.T) {
				env := newTestEnv(t, testOpts{capability: tc.capability, autoCoinJoin: tc.auto})
				for _, step := range tc.path {
					require.NoError(t, env.fire(step))
				}
				env.sync(t)
				require.Equal(t, tc.state, env.status().State)

				err := env.fire(trigger)
				env.sync(t)

				target, ok := tc.transitions[trigger]
				if !ok {
					require.ErrorIs(t, err, statemachine.ErrUnhandledTrigger)
					require.Equal(t, tc.state, env.status().State)
					return
				}
				require.NoError(t, err)
				require.Equal(t, target, env.status().State)
			})
		}
	}
}

func TestAutoStartingWaitingSignal(t *testing.T) {
	exits := []struct {
		description string
		trigger     domain.Trigger
	}{
		{"pause", domain.TriggerPause},
		{"play", domain.TriggerPlay},
		{"round start", domain.TriggerRoundStart},
		{"auto coinjoin off", domain.TriggerAutoCoinJoinOff},
	}

	for _, exit := range exits {
		t.Run(exit.description, func(t *testing.T) {
			env := newTestEnv(t, testOpts{autoCoinJoin: true})
			require.False(t, env.status().IsAutoWaiting)

			require.NoError(t, env.fire(domain.TriggerAutoCoinJoinEntered))
			require.True(t, env.status().IsAutoWaiting)

			require.NoError(t, env.fire(exit.trigger))
			// Paused raises the signal again on its own entry.
			if env.status().State == domain.StatePaused {
				require.True(t, env.status().IsAutoWaiting)
				return
			}
			require.False(t, env.status().IsAutoWaiting)
		})
	}
}

func TestCountdownScenario(t *testing.T) {
	env := newTestEnv(t, testOpts{autoCoinJoin: true, fund: true})
	walletID := env.wallet.ID()
	require.Equal(t, domain.StateAutoCoinJoin, env.status().State)
	require.Equal(t, domain.StatusInitializing, env.status().Status)
	require.True(t, env.status().IsAuto)

	env.send(domain.CoinJoinStarting{WalletID: walletID, Countdown: 30 * time.Second})
	env.waitForState(t, domain.StateAutoStarting)
	require.Equal(t, domain.StatusWaiting, env.status().Status)
	require.Zero(t, env.status().Progress.Percentage)

	var last float64
	for i := 0; i < 15; i++ {
		env.clock.Advance(time.Second)
		env.scheduler.tick()
		env.sync(t)

		percentage := env.status().Progress.Percentage
		require.GreaterOrEqual(t, percentage, last)
		last = percentage
	}
	progress := env.status().Progress
	require.InDelta(t, 50, progress.Percentage, 0.001)
	require.Equal(t, 15*time.Second, progress.Elapsed)
	require.Equal(t, 15*time.Second, progress.Remaining)

	env.clock.Advance(5 * time.Second)
	env.roundClient.resetCalls()
	env.send(domain.CoinJoinStarted{WalletID: walletID})
	env.waitForState(t, domain.StateAutoPlaying)
	require.False(t, env.status().IsAutoWaiting)
	require.Equal(t, domain.StatusParticipating, env.status().Status)
	require.Equal(t, []string{"Start"}, env.roundClient.commands())

	env.send(domain.CoinJoinStartError{WalletID: walletID, Reason: "no coins"})
	env.waitForState(t, domain.StateAutoFinished)
	status := env.status()
	require.Equal(t, domain.StatusFinished, status.Status)
	require.Equal(t, domain.ProgressSnapshot{Percentage: 100}, status.Progress)

	// Coin set changes keep the finished progress.
	require.NoError(t, env.wallet.Generate(context.Background(), 1))
	env.sync(t)
	require.Equal(t, domain.ProgressSnapshot{Percentage: 100}, env.status().Progress)
}

func TestCountdownClamped(t *testing.T) {
	env := newTestEnv(t, testOpts{autoCoinJoin: true})

	env.send(domain.CoinJoinStarting{WalletID: env.wallet.ID(), Countdown: 10 * time.Second})
	env.waitForState(t, domain.StateAutoStarting)

	env.clock.Advance(time.Minute)
	env.scheduler.tick()
	env.sync(t)
	require.Equal(t, float64(100), env.status().Progress.Percentage)
	require.Zero(t, env.status().Progress.Remaining)
}

func TestRoundStatusFiltering(t *testing.T) {
	t.Run("other wallets", func(t *testing.T) {
		env := newTestEnv(t, testOpts{autoCoinJoin: true})

		env.send(domain.CoinJoinStarting{WalletID: "other", Countdown: time.Minute})
		env.send(domain.CoinJoinStarted{WalletID: "other"})
		env.send(domain.CoinJoinStartError{WalletID: "other"})
		require.Never(t, func() bool {
			return env.status().State != domain.StateAutoCoinJoin
		}, 100*time.Millisecond, 10*time.Millisecond)
	})

	t.Run("countdown outside auto coinjoin", func(t *testing.T) {
		env := newTestEnv(t, testOpts{})

		env.send(domain.CoinJoinStarting{WalletID: env.wallet.ID(), Countdown: time.Minute})
		require.Never(t, func() bool {
			return env.status().State != domain.StateStopped
		}, 100*time.Millisecond, 10*time.Millisecond)
	})

	t.Run("countdown after auto start", func(t *testing.T) {
		env := newTestEnv(t, testOpts{autoCoinJoin: true})
		require.NoError(t, env.fire(domain.TriggerAutoCoinJoinEntered))
		require.NoError(t, env.fire(domain.TriggerRoundStart))

		env.send(domain.CoinJoinStarting{WalletID: env.wallet.ID(), Countdown: time.Minute})
		require.Never(t, func() bool {
			return env.status().State != domain.StateAutoPlaying
		}, 100*time.Millisecond, 10*time.Millisecond)
	})
}

func TestManualFlow(t *testing.T) {
	env := newTestEnv(t, testOpts{fund: true})
	walletID := env.wallet.ID()
	require.Equal(t, domain.StatusStopped, env.status().Status)
	require.Equal(t, domain.NewControls(domain.ControlPlay), env.status().Controls)

	env.roundClient.resetCalls()
	require.NoError(t, env.svc.Play(context.Background()))
	require.Equal(t, domain.StateManualPlaying, env.status().State)
	require.Equal(t, domain.NewControls(domain.ControlStop), env.status().Controls)
	require.Equal(t, []string{"Start"}, env.roundClient.commands())

	// A round already running for the wallet is not an error.
	env.send(domain.CoinJoinStarted{WalletID: walletID})
	env.sync(t)
	require.Equal(t, domain.StateManualPlaying, env.status().State)

	env.roundClient.resetCalls()
	require.NoError(t, env.svc.StopCoinJoin(context.Background()))
	require.Equal(t, domain.StateStopped, env.status().State)
	require.Equal(t, []string{"Stop"}, env.roundClient.commands())

	// The outcome of the round still running is reported after the stop.
	require.NoError(t, env.svc.Play(context.Background()))
	env.send(domain.CoinJoinStartError{WalletID: walletID})
	env.waitForState(t, domain.StateManualFinished)
	require.Equal(t, float64(100), env.status().Progress.Percentage)

	err := env.svc.Pause(context.Background())
	require.ErrorIs(t, err, statemachine.ErrUnhandledTrigger)
	require.Equal(t, domain.StateManualFinished, env.status().State)
}

func TestManualProgress(t *testing.T) {
	env := newTestEnv(t, testOpts{})
	ctx := context.Background()

	env.svc.onCoinsChanged()
	env.sync(t)
	require.Zero(t, env.status().Progress.Percentage)
	require.Zero(t, env.status().BalanceToCoinJoin)

	require.NoError(t, env.wallet.Generate(ctx, 2))
	env.sync(t)

	coins, err := env.wallet.Coins(ctx)
	require.NoError(t, err)
	require.Zero(t, env.status().Progress.Percentage)
	require.Equal(t, coins.TotalAmount(), env.status().BalanceToCoinJoin)

	// Half of the balance becomes private.
	require.NoError(t, env.svc.dispatcher.do(ctx, func() error {
		env.svc.coins = domain.Coins{
			{Amount: 1000, AnonymityScore: minAnonScoreTarget},
			{Amount: 1000, AnonymityScore: 1},
		}
		env.svc.sm.Process()
		return nil
	}))
	require.InDelta(t, 50, env.status().Progress.Percentage, 0.001)
	require.Equal(t, int64(1000), int64(env.status().BalanceToCoinJoin))
}

func TestAutoCoinJoinToggle(t *testing.T) {
	env := newTestEnv(t, testOpts{autoCoinJoin: true})
	ctx := context.Background()

	require.NoError(t, env.fire(domain.TriggerAutoCoinJoinEntered))
	require.NoError(t, env.fire(domain.TriggerRoundStart))

	require.NoError(t, env.svc.SetAutoCoinJoin(ctx, false))
	env.waitForState(t, domain.StateStopped)
	require.False(t, env.status().IsAuto)

	env.roundClient.resetCalls()
	require.NoError(t, env.svc.SetAutoCoinJoin(ctx, true))
	env.waitForState(t, domain.StateAutoCoinJoin)
	require.True(t, env.status().IsAuto)
	require.Equal(t, []string{"Stop", "AutoStart"}, env.roundClient.commands())

	settings, err := env.repo.Get(ctx, env.wallet.ID())
	require.NoError(t, err)
	require.True(t, settings.AutoCoinJoin)
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t, testOpts{})
	events, closeFn := env.svc.GetEventStream(context.Background())
	defer closeFn()

	require.NoError(t, env.svc.Play(context.Background()))

	select {
	case status := <-events:
		require.Equal(t, domain.StateManualPlaying, status.State)
		require.Equal(t, domain.StatusParticipating, status.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status update")
	}
}

func TestServiceLifecycle(t *testing.T) {
	env := newTestEnv(t, testOpts{})

	require.ErrorIs(t, env.svc.Start(), ErrServiceAlreadyStarted)

	env.svc.Stop()
	env.svc.Stop()

	require.ErrorIs(t, env.svc.Play(context.Background()), ErrServiceNotStarted)
	require.ErrorIs(t, env.svc.Start(), ErrServiceStopped)

	// Late producers are dropped once stopped.
	env.svc.onTick()
	env.svc.onSettingsChanged(domain.NewWalletSettings(env.wallet.ID(), true))
	require.Equal(t, domain.StateStopped, env.status().State)
}

func TestAutoProgress(t *testing.T) {
	env := newTestEnv(t, testOpts{autoCoinJoin: true})
	mixed := domain.Coins{
		{Amount: 1000, AnonymityScore: minAnonScoreTarget},
		{Amount: 3000, AnonymityScore: 1},
	}
	setCoins := func() {
		require.NoError(t, env.svc.dispatcher.do(context.Background(), func() error {
			env.svc.coins = mixed
			env.svc.sm.Process()
			return nil
		}))
	}

	// Waiting for the countdown announcement does not track the coins.
	setCoins()
	require.Equal(t, domain.StateAutoCoinJoin, env.status().State)
	require.Zero(t, env.status().Progress.Percentage)
	require.Zero(t, env.status().BalanceToCoinJoin)

	require.NoError(t, env.fire(domain.TriggerAutoCoinJoinEntered))
	require.NoError(t, env.fire(domain.TriggerPause))
	setCoins()
	require.Equal(t, domain.StatePaused, env.status().State)
	require.InDelta(t, 25, env.status().Progress.Percentage, 0.001)
	require.Equal(t, int64(3000), int64(env.status().BalanceToCoinJoin))

	require.NoError(t, env.fire(domain.TriggerPlay))
	mixed = domain.Coins{
		{Amount: 2000, AnonymityScore: minAnonScoreTarget},
		{Amount: 2000, AnonymityScore: 1},
	}
	setCoins()
	require.Equal(t, domain.StateAutoPlaying, env.status().State)
	require.InDelta(t, 50, env.status().Progress.Percentage, 0.001)
	require.Equal(t, int64(2000), int64(env.status().BalanceToCoinJoin))
}

func TestRoundClientPanic(t *testing.T) {
	env := newTestEnv(t, testOpts{fund: true})
	ctx := context.Background()

	env.roundClient.failingStarts.Store(1)
	require.Error(t, env.svc.Play(ctx))
	require.Equal(t, domain.StateStopped, env.status().State)

	// The orchestrator keeps reacting to commands and round events.
	require.NoError(t, env.svc.Play(ctx))
	require.Equal(t, domain.StateManualPlaying, env.status().State)

	env.send(domain.CoinJoinStartError{WalletID: env.wallet.ID()})
	env.waitForState(t, domain.StateManualFinished)
}
