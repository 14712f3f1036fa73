package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ark-network/coinjoin/internal/core/domain"
)

const (
	selectSettings = `
SELECT wallet_id, auto_coinjoin, updated_at FROM wallet_settings WHERE wallet_id = ?
`
	upsertSettings = `
INSERT INTO wallet_settings (wallet_id, auto_coinjoin, updated_at) VALUES (?, ?, ?)
ON CONFLICT(wallet_id) DO UPDATE SET
    auto_coinjoin = EXCLUDED.auto_coinjoin,
    updated_at = EXCLUDED.updated_at
`
)

type settingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(config ...interface{}) (domain.SettingsRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return nil, fmt.Errorf("cannot open settings repository: invalid config")
	}

	return &settingsRepository{db}, nil
}

func (r *settingsRepository) Get(
	ctx context.Context, walletID string,
) (*domain.WalletSettings, error) {
	settings := domain.WalletSettings{}
	if err := r.db.QueryRowContext(ctx, selectSettings, walletID).Scan(
		&settings.WalletID, &settings.AutoCoinJoin, &settings.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSettingsNotFound
		}
		return nil, fmt.Errorf("failed to get settings of wallet %s: %w", walletID, err)
	}
	return &settings, nil
}

func (r *settingsRepository) Upsert(
	ctx context.Context, settings domain.WalletSettings,
) error {
	txBody := func(tx *sql.Tx) error {
		_, err := tx.ExecContext(
			ctx, upsertSettings,
			settings.WalletID, settings.AutoCoinJoin, settings.UpdatedAt,
		)
		return err
	}
	return execTx(ctx, r.db, txBody)
}

func (r *settingsRepository) Close() {
	_ = r.db.Close()
}
