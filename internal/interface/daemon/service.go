package daemon_interface

import (
	"context"
	"fmt"
	"sync"

	"github.com/ark-network/coinjoin/internal/config"
	"github.com/ark-network/coinjoin/internal/core/domain"
	"github.com/ark-network/coinjoin/internal/simulation"
	log "github.com/sirupsen/logrus"
)

// service runs the coordinator and the orchestrator of the configured wallet
// in the same process.
type service struct {
	config *config.Config

	lock    sync.Mutex
	cancel  context.CancelFunc
	closers []func()
	wg      sync.WaitGroup
}

func NewService(cfg *config.Config) (*service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("missing config")
	}
	return &service{config: cfg}, nil
}

func (s *service) Start() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("service already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if err := s.start(ctx); err != nil {
		s.stop()
		return err
	}

	log.Debug("service started")
	return nil
}

func (s *service) Stop() {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.cancel == nil {
		return
	}
	s.stop()
	log.Debug("service stopped")
}

func (s *service) start(ctx context.Context) error {
	repo, err := s.config.RepoManager()
	if err != nil {
		return err
	}
	s.onStop(repo.Close)

	scheduler, err := s.config.Scheduler()
	if err != nil {
		return err
	}
	scheduler.Start()
	s.onStop(scheduler.Stop)

	coordinator, err := s.config.Coordinator()
	if err != nil {
		return err
	}
	if err := coordinator.Start(); err != nil {
		return err
	}
	s.onStop(coordinator.Stop)

	wallet, err := s.config.Wallet()
	if err != nil {
		return err
	}
	s.onStop(wallet.Close)

	if err := s.fundWallet(ctx); err != nil {
		return err
	}

	poller, err := s.config.RoundStatePoller()
	if err != nil {
		return err
	}
	if err := poller.StartPolling(ctx, s.config.PollInterval); err != nil {
		return err
	}
	s.onStop(poller.StopPolling)

	roundClient, err := s.config.RoundClient()
	if err != nil {
		return err
	}
	s.onStop(roundClient.Close)

	appSvc, err := s.config.AppService()
	if err != nil {
		return err
	}

	events, closeEvents := appSvc.GetEventStream(ctx)
	s.onStop(closeEvents)
	s.wg.Add(1)
	go s.logStatus(events)

	if err := appSvc.Start(); err != nil {
		return err
	}
	s.onStop(appSvc.Stop)
	return nil
}

// stop runs the registered closers in reverse order.
func (s *service) stop() {
	s.cancel()
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
	s.wg.Wait()
	s.cancel = nil
}

func (s *service) onStop(closer func()) {
	s.closers = append(s.closers, closer)
}

// fundWallet mines a coinbase to the wallet and splits it into the configured
// number of coins.
func (s *service) fundWallet(ctx context.Context) error {
	wallet, err := s.config.Wallet()
	if err != nil {
		return err
	}
	coordinator, err := s.config.Coordinator()
	if err != nil {
		return err
	}

	funder, err := simulation.NewParticipant(simulation.Config{
		Name:         s.config.WalletName,
		FeeRate:      s.config.FeeRatePerKvB(),
		PollInterval: s.config.PollInterval,
	}, wallet, coordinator)
	if err != nil {
		return err
	}
	if err := funder.GenerateSourceCoin(ctx); err != nil {
		return fmt.Errorf("failed to fund wallet: %s", err)
	}
	if err := funder.GenerateCoins(ctx, s.config.NumCoins, s.config.Seed); err != nil {
		return fmt.Errorf("failed to split wallet funds: %s", err)
	}

	coins, err := wallet.Coins(ctx)
	if err != nil {
		return err
	}
	log.Infof(
		"wallet %s funded with %d coins worth %d sats",
		wallet.ID(), len(coins), coins.TotalAmount(),
	)
	return nil
}

func (s *service) logStatus(events <-chan domain.CoinJoinStatus) {
	defer s.wg.Done()

	for status := range events {
		log.WithFields(log.Fields{
			"state":    status.State,
			"controls": status.Controls,
			"progress": fmt.Sprintf("%.2f%%", status.Progress.Percentage),
			"balance":  status.BalanceToCoinJoin,
		}).Info(status.Status)
	}
}
