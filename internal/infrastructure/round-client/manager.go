package roundclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ark-network/coinjoin/internal/core/domain"
	"github.com/ark-network/coinjoin/internal/core/ports"
	"github.com/ark-network/coinjoin/pkg/broker"
	log "github.com/sirupsen/logrus"
)

// Manager runs coinjoin rounds for a set of registered wallets.
type Manager interface {
	ports.RoundClient
	RegisterWallet(wallet ports.WalletService)
	Close()
}

// ClientFactory returns the client running one round for the given wallet.
type ClientFactory func(wallet ports.WalletService) ports.CoinJoinClient

type participation struct {
	wallet ports.WalletService

	// active is true while the wallet wants to keep participating.
	active bool
	auto   bool
	// inFlight is true while a round runs for the wallet. A running round
	// cannot be recalled: Stop only prevents the next one.
	inFlight        bool
	cancelCountdown func()
}

type manager struct {
	scheduler      ports.SchedulerService
	newClient      ClientFactory
	autoStartDelay time.Duration

	lock           *sync.Mutex
	participations map[string]*participation
	closed         bool

	// events preserves the publishing order of status events.
	events       chan domain.RoundStatusEvent
	statusBroker *broker.Broker[domain.RoundStatusEvent]

	ctx    context.Context
	cancel context.CancelFunc
	wg     *sync.WaitGroup

	forwarderDone chan struct{}
}

func NewManager(
	scheduler ports.SchedulerService, newClient ClientFactory,
	autoStartDelay time.Duration,
) Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &manager{
		scheduler:      scheduler,
		newClient:      newClient,
		autoStartDelay: autoStartDelay,
		lock:           &sync.Mutex{},
		participations: make(map[string]*participation),
		events:         make(chan domain.RoundStatusEvent, 256),
		statusBroker:   broker.New[domain.RoundStatusEvent](),
		ctx:            ctx,
		cancel:         cancel,
		wg:             &sync.WaitGroup{},
		forwarderDone:  make(chan struct{}),
	}
	go m.forwardEvents()
	return m
}

func (m *manager) RegisterWallet(wallet ports.WalletService) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.participations[wallet.ID()]; ok {
		return
	}
	m.participations[wallet.ID()] = &participation{wallet: wallet}
}

// Start starts a round for the wallet right away, unless one is already
// running, and keeps starting new ones until Stop is called.
func (m *manager) Start(walletID string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	p, ok := m.participation(walletID)
	if !ok {
		return
	}
	p.active = true
	m.stopCountdown(p)
	if p.inFlight {
		return
	}
	m.startRound(p)
}

// Stop prevents the next round from starting. A round already running for
// the wallet runs to completion and still reports its outcome.
func (m *manager) Stop(walletID string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	p, ok := m.participation(walletID)
	if !ok {
		return
	}
	p.active = false
	p.auto = false
	m.stopCountdown(p)
}

// AutoStart announces a round start after the auto start delay and keeps
// re-arming the countdown after every round until Stop is called.
func (m *manager) AutoStart(walletID string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	p, ok := m.participation(walletID)
	if !ok {
		return
	}
	p.active = true
	p.auto = true
	if p.inFlight || p.cancelCountdown != nil {
		return
	}
	m.startCountdown(p)
}

func (m *manager) SubscribeStatus() (<-chan domain.RoundStatusEvent, func()) {
	return m.statusBroker.Subscribe()
}

// Close cancels running rounds and closes every status stream.
func (m *manager) Close() {
	m.lock.Lock()
	if m.closed {
		m.lock.Unlock()
		return
	}
	m.closed = true
	for _, p := range m.participations {
		p.active = false
		m.stopCountdown(p)
	}
	m.lock.Unlock()

	m.cancel()
	m.wg.Wait()

	close(m.events)
	<-m.forwarderDone
	m.statusBroker.Close()
}

func (m *manager) participation(walletID string) (*participation, bool) {
	if m.closed {
		return nil, false
	}
	p, ok := m.participations[walletID]
	if !ok {
		log.Warnf("round client: unknown wallet %s", walletID)
	}
	return p, ok
}

func (m *manager) startCountdown(p *participation) {
	walletID := p.wallet.ID()
	cancel, err := m.scheduler.ScheduleTaskOnce(m.autoStartDelay, func() {
		m.onCountdownElapsed(walletID)
	})
	if err != nil {
		log.WithError(err).Warnf("failed to schedule auto start of wallet %s", walletID)
		m.publish(domain.CoinJoinStartError{WalletID: walletID, Reason: err.Error()})
		return
	}
	p.cancelCountdown = cancel
	m.publish(domain.CoinJoinStarting{WalletID: walletID, Countdown: m.autoStartDelay})
}

func (m *manager) stopCountdown(p *participation) {
	if p.cancelCountdown == nil {
		return
	}
	p.cancelCountdown()
	p.cancelCountdown = nil
}

func (m *manager) onCountdownElapsed(walletID string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	p, ok := m.participations[walletID]
	if !ok || p.cancelCountdown == nil {
		return
	}
	p.cancelCountdown = nil
	if !p.active || p.inFlight {
		return
	}
	m.startRound(p)
}

// startRound must be called with the lock held. The coins are queried and
// the round runs in a separate goroutine, so it never blocks the caller.
func (m *manager) startRound(p *participation) {
	p.inFlight = true

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		coins, ok := m.prepareRound(p)
		if !ok {
			return
		}
		client := m.newClient(p.wallet)
		result, err := client.StartCoinJoin(m.ctx, coins)
		m.onRoundCompleted(p.wallet.ID(), result, err)
	}()
}

// prepareRound fetches the coins of the wallet and announces the round start,
// unless the participation was stopped in the meantime.
func (m *manager) prepareRound(p *participation) (domain.Coins, bool) {
	walletID := p.wallet.ID()
	coins, err := m.eligibleCoins(p.wallet)

	m.lock.Lock()
	defer m.lock.Unlock()

	if !p.active || m.closed {
		p.inFlight = false
		return nil, false
	}
	if err != nil {
		p.inFlight = false
		m.publish(domain.CoinJoinStartError{WalletID: walletID, Reason: err.Error()})
		m.afterFailedStart(p)
		return nil, false
	}

	m.publish(domain.CoinJoinStarted{WalletID: walletID})
	log.Debugf("wallet %s started coinjoin with %d coins", walletID, len(coins))
	return coins, true
}

func (m *manager) onRoundCompleted(
	walletID string, result *ports.CoinJoinResult, err error,
) {
	m.lock.Lock()
	defer m.lock.Unlock()

	p := m.participations[walletID]
	p.inFlight = false

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.WithError(err).Warnf("coinjoin of wallet %s failed", walletID)
		m.publish(domain.CoinJoinStartError{WalletID: walletID, Reason: err.Error()})
		m.afterFailedStart(p)
		return
	}

	log.Infof(
		"wallet %s completed coinjoin %s in round %s", walletID, result.Txid, result.RoundId,
	)
	if !p.active {
		return
	}
	if p.auto {
		m.startCountdown(p)
		return
	}
	m.startRound(p)
}

// afterFailedStart re-arms the countdown in auto mode, and gives up in manual
// mode until the next Start.
func (m *manager) afterFailedStart(p *participation) {
	if p.active && p.auto && m.ctx.Err() == nil {
		m.startCountdown(p)
		return
	}
	p.active = false
}

func (m *manager) eligibleCoins(wallet ports.WalletService) (domain.Coins, error) {
	ctx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
	defer cancel()

	coins, err := wallet.Coins(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get coins: %w", err)
	}
	_, nonPrivate := coins.Partition(wallet.MinAnonScoreTarget())
	if len(nonPrivate) <= 0 {
		return nil, ErrNoCoins
	}
	return nonPrivate, nil
}

// publish must be called with the lock held.
func (m *manager) publish(event domain.RoundStatusEvent) {
	if m.closed {
		return
	}
	m.events <- event
}

func (m *manager) forwardEvents() {
	defer close(m.forwarderDone)
	for event := range m.events {
		m.statusBroker.Publish(event)
	}
}
