package roundpoller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ark-network/coinjoin/internal/core/domain"
	"github.com/ark-network/coinjoin/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

type service struct {
	client ports.CoordinatorClient

	lock    *sync.RWMutex
	states  []domain.RoundState
	updated chan struct{}

	cancel context.CancelFunc
	wg     *sync.WaitGroup
}

func NewService(client ports.CoordinatorClient) ports.RoundStatePoller {
	return &service{
		client:  client,
		lock:    &sync.RWMutex{},
		updated: make(chan struct{}),
		wg:      &sync.WaitGroup{},
	}
}

// StartPolling queries the coordinator right away and then every interval
// until StopPolling is called or ctx is done. Failed queries are logged and
// retried at the next tick.
func (s *service) StartPolling(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid polling interval %s", interval)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("already polling")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.poll(ctx, interval)
	return nil
}

func (s *service) StopPolling() {
	s.lock.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.lock.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
}

func (s *service) LatestSnapshot() (domain.RoundState, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if len(s.states) <= 0 || s.states[0].IsEnded() {
		return domain.RoundState{}, false
	}
	return s.states[0], true
}

func (s *service) WaitForRound(
	ctx context.Context, predicate func(domain.RoundState) bool,
) (domain.RoundState, error) {
	for {
		s.lock.RLock()
		for _, state := range s.states {
			if predicate(state) {
				s.lock.RUnlock()
				return state, nil
			}
		}
		updated := s.updated
		s.lock.RUnlock()

		select {
		case <-ctx.Done():
			return domain.RoundState{}, ctx.Err()
		case <-updated:
		}
	}
}

func (s *service) poll(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.update(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *service) update(ctx context.Context) {
	states, err := s.client.GetStatus(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.WithError(err).Warn("failed to poll round state, retrying")
		}
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.states = states
	close(s.updated)
	s.updated = make(chan struct{})
}
