// Package simulatedwallet implements an in-memory regtest wallet that funds
// itself by mining coinbase outputs and signs P2WPKH inputs.
package simulatedwallet

import (
	"errors"
	"sync"

	"github.com/ark-network/coinjoin/internal/core/domain"
	"github.com/ark-network/coinjoin/internal/core/ports"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var ErrWalletClosed = errors.New("wallet is closed")

type Config struct {
	// ID identifies the wallet across restarts. A random one is used if empty.
	ID                 string
	Name               string
	Capability         domain.WalletCapability
	MinAnonScoreTarget int
	Params             *chaincfg.Params
}

type service struct {
	id     string
	name   string
	cfg    Config
	params *chaincfg.Params

	lock   *sync.RWMutex
	height int32
	coins  map[wire.OutPoint]domain.Coin

	account *account
	notify  *notify

	closeOnce *sync.Once
	closed    bool
}

func NewService(cfg Config) (ports.FundingWallet, error) {
	params := cfg.Params
	if params == nil {
		params = &chaincfg.RegressionNetParams
	}
	account, err := newAccount(params)
	if err != nil {
		return nil, err
	}
	id := cfg.ID
	if len(id) <= 0 {
		id = uuid.New().String()
	}
	return &service{
		id:        id,
		name:      cfg.Name,
		cfg:       cfg,
		params:    params,
		lock:      &sync.RWMutex{},
		coins:     make(map[wire.OutPoint]domain.Coin),
		account:   account,
		notify:    newNotify(),
		closeOnce: &sync.Once{},
	}, nil
}

func (s *service) ID() string {
	return s.id
}

func (s *service) Capability() domain.WalletCapability {
	return s.cfg.Capability
}

func (s *service) MinAnonScoreTarget() int {
	return s.cfg.MinAnonScoreTarget
}

// Close releases the wallet. Calling it more than once is a no-op.
func (s *service) Close() {
	s.closeOnce.Do(func() {
		s.lock.Lock()
		s.closed = true
		s.coins = make(map[wire.OutPoint]domain.Coin)
		s.lock.Unlock()

		s.notify.close()
		log.Debugf("closed wallet %s", s.name)
	})
}

func (s *service) isClosed() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.closed
}
