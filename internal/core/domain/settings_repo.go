package domain

import (
	"context"
	"fmt"
)

var ErrSettingsNotFound = fmt.Errorf("wallet settings not found")

type SettingsRepository interface {
	Get(ctx context.Context, walletID string) (*WalletSettings, error)
	Upsert(ctx context.Context, settings WalletSettings) error
	Close()
}
