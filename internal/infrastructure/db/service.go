package db

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/ark-network/coinjoin/internal/core/domain"
	"github.com/ark-network/coinjoin/internal/core/ports"
	badgerdb "github.com/ark-network/coinjoin/internal/infrastructure/db/badger"
	sqlitedb "github.com/ark-network/coinjoin/internal/infrastructure/db/sqlite"
	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var settingsStoreTypes = map[string]func(...interface{}) (domain.SettingsRepository, error){
	"badger": badgerdb.NewSettingsRepository,
	"sqlite": sqlitedb.NewSettingsRepository,
}

const (
	sqliteDbFile = "sqlite.db"
)

type ServiceConfig struct {
	DataStoreType   string
	DataStoreConfig []interface{}
}

type settingsHandler struct {
	walletID string
	handler  func(domain.WalletSettings)
}

type service struct {
	settingsStore *notifyingSettingsRepository
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	settingsStoreFactory, ok := settingsStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}

	storeConfig := config.DataStoreConfig
	if config.DataStoreType == "sqlite" {
		db, err := openSqlite(config.DataStoreConfig)
		if err != nil {
			return nil, err
		}
		storeConfig = []interface{}{db}
	}

	settingsStore, err := settingsStoreFactory(storeConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create settings store: %w", err)
	}

	return &service{
		settingsStore: &notifyingSettingsRepository{
			SettingsRepository: settingsStore,
			lock:               &sync.RWMutex{},
			handlers:           make(map[string]settingsHandler),
		},
	}, nil
}

func (s *service) Settings() domain.SettingsRepository {
	return s.settingsStore
}

func (s *service) RegisterSettingsHandler(
	walletID string, handler func(domain.WalletSettings),
) func() {
	return s.settingsStore.registerHandler(walletID, handler)
}

func (s *service) Close() {
	s.settingsStore.Close()
}

// notifyingSettingsRepository calls the registered handlers of a wallet after
// every successful upsert of its settings.
type notifyingSettingsRepository struct {
	domain.SettingsRepository

	lock     *sync.RWMutex
	handlers map[string]settingsHandler
}

func (r *notifyingSettingsRepository) Upsert(
	ctx context.Context, settings domain.WalletSettings,
) error {
	if err := r.SettingsRepository.Upsert(ctx, settings); err != nil {
		return err
	}

	r.lock.RLock()
	handlers := make([]func(domain.WalletSettings), 0, len(r.handlers))
	for _, h := range r.handlers {
		if h.walletID == settings.WalletID {
			handlers = append(handlers, h.handler)
		}
	}
	r.lock.RUnlock()

	for _, handler := range handlers {
		runHandler(handler, settings)
	}
	return nil
}

func (r *notifyingSettingsRepository) registerHandler(
	walletID string, handler func(domain.WalletSettings),
) func() {
	id := uuid.New().String()

	r.lock.Lock()
	r.handlers[id] = settingsHandler{walletID, handler}
	r.lock.Unlock()

	return func() {
		r.lock.Lock()
		defer r.lock.Unlock()
		delete(r.handlers, id)
	}
}

func runHandler(handler func(domain.WalletSettings), settings domain.WalletSettings) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("recovered from panic in settings handler: %v", r)
		}
	}()
	handler(settings)
}

func openSqlite(config []interface{}) (interface{}, error) {
	if len(config) != 1 {
		return nil, errors.New("invalid config")
	}

	dbDir, ok := config[0].(string)
	if !ok {
		return nil, errors.New("invalid config")
	}

	db, err := sqlitedb.OpenDb(filepath.Join(dbDir, sqliteDbFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	source, err := iofs.New(sqlitedb.Migrations, "migration")
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("failed to migrate up: %w", err)
	}

	return db, nil
}
