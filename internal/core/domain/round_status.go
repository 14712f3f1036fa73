package domain

import "time"

// RoundStatusEvent is a round lifecycle notification scoped to one wallet.
type RoundStatusEvent interface {
	GetWalletID() string
}

// CoinJoinStarting announces that the wallet will join a round after Countdown.
type CoinJoinStarting struct {
	WalletID  string
	Countdown time.Duration
}

// CoinJoinStarted announces that the wallet started participating in a round.
type CoinJoinStarted struct {
	WalletID string
}

// CoinJoinStartError reports that the wallet could not start participating.
type CoinJoinStartError struct {
	WalletID string
	Reason   string
}

func (e CoinJoinStarting) GetWalletID() string   { return e.WalletID }
func (e CoinJoinStarted) GetWalletID() string    { return e.WalletID }
func (e CoinJoinStartError) GetWalletID() string { return e.WalletID }
