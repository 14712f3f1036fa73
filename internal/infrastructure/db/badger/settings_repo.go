package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ark-network/coinjoin/internal/core/domain"
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

const settingsStoreDir = "settings"

type settingsDTO struct {
	WalletID     string
	AutoCoinJoin bool
	UpdatedAt    int64
}

type settingsRepository struct {
	store *badgerhold.Store
}

func NewSettingsRepository(config ...interface{}) (domain.SettingsRepository, error) {
	if len(config) != 2 {
		return nil, fmt.Errorf("invalid config")
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return nil, fmt.Errorf("invalid base directory")
	}
	var logger badger.Logger
	if config[1] != nil {
		logger, ok = config[1].(badger.Logger)
		if !ok {
			return nil, fmt.Errorf("invalid logger")
		}
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, settingsStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings store: %s", err)
	}

	return &settingsRepository{store}, nil
}

func (r *settingsRepository) Get(
	_ context.Context, walletID string,
) (*domain.WalletSettings, error) {
	dto := settingsDTO{}
	if err := r.store.Get(walletID, &dto); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrSettingsNotFound
		}
		return nil, fmt.Errorf("failed to get settings of wallet %s: %s", walletID, err)
	}

	return &domain.WalletSettings{
		WalletID:     dto.WalletID,
		AutoCoinJoin: dto.AutoCoinJoin,
		UpdatedAt:    dto.UpdatedAt,
	}, nil
}

func (r *settingsRepository) Upsert(
	_ context.Context, settings domain.WalletSettings,
) error {
	dto := settingsDTO{
		WalletID:     settings.WalletID,
		AutoCoinJoin: settings.AutoCoinJoin,
		UpdatedAt:    settings.UpdatedAt,
	}
	if err := r.store.Upsert(settings.WalletID, dto); err != nil {
		return fmt.Errorf(
			"failed to upsert settings of wallet %s: %s", settings.WalletID, err,
		)
	}
	return nil
}

func (r *settingsRepository) Close() {
	// nolint:all
	r.store.Close()
}
