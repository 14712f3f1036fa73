package simulatedwallet

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/ark-network/coinjoin/internal/core/domain"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// account holds the keys of the wallet, indexed by their P2WPKH script.
type account struct {
	params *chaincfg.Params

	lock *sync.RWMutex
	keys map[string]*btcec.PrivateKey
	// script of the first derived key, used for mined and self transfer outputs.
	mainScript []byte
}

func newAccount(params *chaincfg.Params) (*account, error) {
	a := &account{
		params: params,
		lock:   &sync.RWMutex{},
		keys:   make(map[string]*btcec.PrivateKey),
	}
	script, err := a.deriveScript()
	if err != nil {
		return nil, err
	}
	a.mainScript = script
	return a, nil
}

func (a *account) deriveScript() ([]byte, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %s", err)
	}
	script, err := p2wpkhScript(key.PubKey(), a.params)
	if err != nil {
		return nil, err
	}

	a.lock.Lock()
	defer a.lock.Unlock()
	a.keys[hex.EncodeToString(script)] = key
	return script, nil
}

func (a *account) keyForScript(script []byte) (*btcec.PrivateKey, bool) {
	a.lock.RLock()
	defer a.lock.RUnlock()
	key, ok := a.keys[hex.EncodeToString(script)]
	return key, ok
}

func (a *account) isMine(script []byte) bool {
	_, ok := a.keyForScript(script)
	return ok
}

func p2wpkhScript(pubkey *btcec.PublicKey, params *chaincfg.Params) ([]byte, error) {
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(pubkey.SerializeCompressed()), params,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create address: %s", err)
	}
	return txscript.PayToAddrScript(addr)
}

func (s *service) NewReceiveScript(_ context.Context) ([]byte, error) {
	if s.isClosed() {
		return nil, ErrWalletClosed
	}
	return s.account.deriveScript()
}

// Coins returns the unspent coins of the wallet sorted by height and outpoint.
func (s *service) Coins(_ context.Context) (domain.Coins, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.closed {
		return nil, ErrWalletClosed
	}

	coins := make(domain.Coins, 0, len(s.coins))
	for _, coin := range s.coins {
		coins = append(coins, coin)
	}
	sort.SliceStable(coins, func(i, j int) bool {
		if coins[i].Height != coins[j].Height {
			return coins[i].Height < coins[j].Height
		}
		if coins[i].Outpoint.Hash != coins[j].Outpoint.Hash {
			return coins[i].Outpoint.Hash.String() < coins[j].Outpoint.Hash.String()
		}
		return coins[i].Outpoint.Index < coins[j].Outpoint.Index
	})
	return coins, nil
}
