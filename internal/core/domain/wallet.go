package domain

import "time"

type WalletCapability struct {
	IsHardwareWallet bool
	IsWatchOnly      bool
}

// CanCoinJoin reports whether the wallet holds the keys needed to sign a
// round transaction.
func (c WalletCapability) CanCoinJoin() bool {
	return !c.IsHardwareWallet && !c.IsWatchOnly
}

type WalletSettings struct {
	WalletID     string
	AutoCoinJoin bool
	UpdatedAt    int64
}

func NewWalletSettings(walletID string, autoCoinJoin bool) WalletSettings {
	return WalletSettings{
		WalletID:     walletID,
		AutoCoinJoin: autoCoinJoin,
		UpdatedAt:    time.Now().Unix(),
	}
}
