package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ark-network/coinjoin/internal/core/application"
	"github.com/ark-network/coinjoin/internal/core/domain"
	"github.com/ark-network/coinjoin/internal/core/ports"
	inmemorycoordinator "github.com/ark-network/coinjoin/internal/infrastructure/coordinator/inmemory"
	"github.com/ark-network/coinjoin/internal/infrastructure/db"
	roundclient "github.com/ark-network/coinjoin/internal/infrastructure/round-client"
	roundpoller "github.com/ark-network/coinjoin/internal/infrastructure/round-poller"
	timescheduler "github.com/ark-network/coinjoin/internal/infrastructure/scheduler/gocron"
	txbuilder "github.com/ark-network/coinjoin/internal/infrastructure/tx-builder"
	simulatedwallet "github.com/ark-network/coinjoin/internal/infrastructure/wallet/simulated"
	"github.com/ark-network/coinjoin/internal/simulation"
	"github.com/btcsuite/btcd/btcutil"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var (
	supportedDbs = supportedType{
		"badger": {},
		"sqlite": {},
	}
	supportedSchedulers = supportedType{
		"gocron": {},
	}
)

type Config struct {
	Datadir            string
	DbDir              string
	LogLevel           int
	DbType             string
	SchedulerType      string
	WalletName         string
	HardwareWallet     bool
	WatchOnly          bool
	MinAnonScoreTarget int
	AutoCoinJoin       bool
	TickInterval       time.Duration
	PollInterval       time.Duration
	AutoStartDelay     time.Duration
	PhaseDuration      time.Duration
	MinParticipants    int
	// FeeRate is expressed in sat/vB.
	FeeRate      int64
	NumCoins     int
	Seed         int64
	Participants int

	repo        ports.RepoManager
	scheduler   ports.SchedulerService
	wallet      ports.FundingWallet
	coordinator coordinator
	poller      ports.RoundStatePoller
	roundClient roundclient.Manager
	svc         application.Service
}

type coordinator interface {
	ports.CoordinatorClient
	Start() error
	Stop()
}

func (c *Config) String() string {
	json, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(json)
}

var (
	Datadir            = "DATADIR"
	LogLevel           = "LOG_LEVEL"
	DbType             = "DB_TYPE"
	SchedulerType      = "SCHEDULER_TYPE"
	WalletName         = "WALLET_NAME"
	HardwareWallet     = "HARDWARE_WALLET"
	WatchOnly          = "WATCH_ONLY"
	MinAnonScoreTarget = "MIN_ANON_SCORE_TARGET"
	AutoCoinJoin       = "AUTO_COINJOIN"
	TickInterval       = "TICK_INTERVAL"
	PollInterval       = "POLL_INTERVAL"
	AutoStartDelay     = "AUTO_START_DELAY"
	PhaseDuration      = "PHASE_DURATION"
	MinParticipants    = "MIN_PARTICIPANTS"
	FeeRate            = "FEE_RATE"
	NumCoins           = "NUM_COINS"
	Seed               = "SEED"
	Participants       = "PARTICIPANTS"

	defaultDatadir            = btcutil.AppDataDir("coinjoind", false)
	defaultLogLevel           = 4
	defaultDbType             = "badger"
	defaultSchedulerType      = "gocron"
	defaultWalletName         = "default"
	defaultMinAnonScoreTarget = 5
	defaultAutoCoinJoin       = true
	defaultTickInterval       = time.Second
	defaultPollInterval       = 3 * time.Second
	defaultAutoStartDelay     = 30 * time.Second
	defaultPhaseDuration      = 10 * time.Second
	defaultMinParticipants    = 1
	defaultFeeRate            = 4
	defaultNumCoins           = 10
	defaultSeed               = 0
	defaultParticipants       = 3
)

func LoadConfig() (*Config, error) {
	viper.SetEnvPrefix("COINJOIN")
	viper.AutomaticEnv()

	viper.SetDefault(Datadir, defaultDatadir)
	viper.SetDefault(LogLevel, defaultLogLevel)
	viper.SetDefault(DbType, defaultDbType)
	viper.SetDefault(SchedulerType, defaultSchedulerType)
	viper.SetDefault(WalletName, defaultWalletName)
	viper.SetDefault(MinAnonScoreTarget, defaultMinAnonScoreTarget)
	viper.SetDefault(AutoCoinJoin, defaultAutoCoinJoin)
	viper.SetDefault(TickInterval, defaultTickInterval)
	viper.SetDefault(PollInterval, defaultPollInterval)
	viper.SetDefault(AutoStartDelay, defaultAutoStartDelay)
	viper.SetDefault(PhaseDuration, defaultPhaseDuration)
	viper.SetDefault(MinParticipants, defaultMinParticipants)
	viper.SetDefault(FeeRate, defaultFeeRate)
	viper.SetDefault(NumCoins, defaultNumCoins)
	viper.SetDefault(Seed, defaultSeed)
	viper.SetDefault(Participants, defaultParticipants)

	if err := initDatadir(); err != nil {
		return nil, fmt.Errorf("error while creating datadir: %s", err)
	}

	return &Config{
		Datadir:            viper.GetString(Datadir),
		DbDir:              filepath.Join(viper.GetString(Datadir), "db"),
		LogLevel:           viper.GetInt(LogLevel),
		DbType:             viper.GetString(DbType),
		SchedulerType:      viper.GetString(SchedulerType),
		WalletName:         viper.GetString(WalletName),
		HardwareWallet:     viper.GetBool(HardwareWallet),
		WatchOnly:          viper.GetBool(WatchOnly),
		MinAnonScoreTarget: viper.GetInt(MinAnonScoreTarget),
		AutoCoinJoin:       viper.GetBool(AutoCoinJoin),
		TickInterval:       viper.GetDuration(TickInterval),
		PollInterval:       viper.GetDuration(PollInterval),
		AutoStartDelay:     viper.GetDuration(AutoStartDelay),
		PhaseDuration:      viper.GetDuration(PhaseDuration),
		MinParticipants:    viper.GetInt(MinParticipants),
		FeeRate:            viper.GetInt64(FeeRate),
		NumCoins:           viper.GetInt(NumCoins),
		Seed:               viper.GetInt64(Seed),
		Participants:       viper.GetInt(Participants),
	}, nil
}

func (c *Config) Validate() error {
	if !supportedDbs.supports(c.DbType) {
		return fmt.Errorf("db type not supported, please select one of: %s", supportedDbs)
	}
	if !supportedSchedulers.supports(c.SchedulerType) {
		return fmt.Errorf("scheduler type not supported, please select one of: %s", supportedSchedulers)
	}
	if len(c.WalletName) <= 0 {
		return fmt.Errorf("missing wallet name")
	}
	if c.MinAnonScoreTarget < 2 {
		return fmt.Errorf("invalid min anonymity score target, must be at least 2")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("invalid tick interval, must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval, must be positive")
	}
	if c.AutoStartDelay < 0 {
		return fmt.Errorf("invalid auto start delay, must not be negative")
	}
	if c.PhaseDuration < c.PollInterval {
		return fmt.Errorf("invalid phase duration, must be at least the poll interval")
	}
	if c.MinParticipants < 1 {
		return fmt.Errorf("invalid min participants, must be at least 1")
	}
	if c.FeeRate <= 0 {
		return fmt.Errorf("invalid fee rate, must be positive")
	}
	if c.NumCoins < 1 {
		return fmt.Errorf("invalid number of coins, must be at least 1")
	}
	if c.Participants < 1 {
		return fmt.Errorf("invalid number of participants, must be at least 1")
	}
	return nil
}

func (c *Config) RepoManager() (ports.RepoManager, error) {
	if c.repo == nil {
		if err := c.repoManager(); err != nil {
			return nil, err
		}
	}
	return c.repo, nil
}

func (c *Config) Scheduler() (ports.SchedulerService, error) {
	if c.scheduler == nil {
		if err := c.schedulerService(); err != nil {
			return nil, err
		}
	}
	return c.scheduler, nil
}

func (c *Config) Coordinator() (coordinator, error) {
	if c.coordinator == nil {
		if err := c.coordinatorService(); err != nil {
			return nil, err
		}
	}
	return c.coordinator, nil
}

func (c *Config) Wallet() (ports.FundingWallet, error) {
	if c.wallet == nil {
		if err := c.walletService(); err != nil {
			return nil, err
		}
	}
	return c.wallet, nil
}

func (c *Config) RoundStatePoller() (ports.RoundStatePoller, error) {
	if c.poller == nil {
		if err := c.pollerService(); err != nil {
			return nil, err
		}
	}
	return c.poller, nil
}

func (c *Config) RoundClient() (roundclient.Manager, error) {
	if c.roundClient == nil {
		if err := c.roundClientService(); err != nil {
			return nil, err
		}
	}
	return c.roundClient, nil
}

func (c *Config) AppService() (application.Service, error) {
	if c.svc == nil {
		if err := c.appService(); err != nil {
			return nil, err
		}
	}
	return c.svc, nil
}

// NewParticipant returns a participant with a fresh wallet joining the rounds
// of the configured coordinator.
func (c *Config) NewParticipant(name string) (*simulation.Participant, error) {
	coordinator, err := c.Coordinator()
	if err != nil {
		return nil, err
	}
	wallet, err := simulatedwallet.NewService(simulatedwallet.Config{
		Name:               name,
		MinAnonScoreTarget: c.MinAnonScoreTarget,
	})
	if err != nil {
		return nil, err
	}
	return simulation.NewParticipant(simulation.Config{
		Name:         name,
		FeeRate:      c.FeeRatePerKvB(),
		PollInterval: c.PollInterval,
	}, wallet, coordinator)
}

func (c *Config) repoManager() error {
	var dataStoreConfig []interface{}
	logger := log.New()

	switch c.DbType {
	case "badger":
		dataStoreConfig = []interface{}{c.DbDir, logger}
	case "sqlite":
		dataStoreConfig = []interface{}{c.DbDir}
	default:
		return fmt.Errorf("unknown db type")
	}

	if err := makeDirectoryIfNotExists(c.DbDir); err != nil {
		return err
	}

	svc, err := db.NewService(db.ServiceConfig{
		DataStoreType:   c.DbType,
		DataStoreConfig: dataStoreConfig,
	})
	if err != nil {
		return err
	}

	c.repo = svc
	return nil
}

func (c *Config) schedulerService() error {
	var svc ports.SchedulerService
	switch c.SchedulerType {
	case "gocron":
		svc = timescheduler.NewScheduler()
	default:
		return fmt.Errorf("unknown scheduler type")
	}

	c.scheduler = svc
	return nil
}

func (c *Config) coordinatorService() error {
	svc, err := inmemorycoordinator.NewService(inmemorycoordinator.Config{
		PhaseDuration: c.PhaseDuration,
		MinAlices:     c.MinParticipants,
	}, txbuilder.NewTxBuilder())
	if err != nil {
		return err
	}

	c.coordinator = svc
	return nil
}

func (c *Config) walletService() error {
	svc, err := simulatedwallet.NewService(simulatedwallet.Config{
		ID:   c.WalletName,
		Name: c.WalletName,
		Capability: domain.WalletCapability{
			IsHardwareWallet: c.HardwareWallet,
			IsWatchOnly:      c.WatchOnly,
		},
		MinAnonScoreTarget: c.MinAnonScoreTarget,
	})
	if err != nil {
		return err
	}

	c.wallet = svc
	return nil
}

func (c *Config) pollerService() error {
	coordinator, err := c.Coordinator()
	if err != nil {
		return err
	}

	c.poller = roundpoller.NewService(coordinator)
	return nil
}

func (c *Config) roundClientService() error {
	scheduler, err := c.Scheduler()
	if err != nil {
		return err
	}
	coordinator, err := c.Coordinator()
	if err != nil {
		return err
	}
	poller, err := c.RoundStatePoller()
	if err != nil {
		return err
	}

	feeRate := c.FeeRatePerKvB()
	c.roundClient = roundclient.NewManager(
		scheduler,
		func(wallet ports.WalletService) ports.CoinJoinClient {
			return roundclient.NewCoinJoinClient(wallet, coordinator, poller, feeRate)
		},
		c.AutoStartDelay,
	)
	return nil
}

func (c *Config) appService() error {
	wallet, err := c.Wallet()
	if err != nil {
		return err
	}
	roundClient, err := c.RoundClient()
	if err != nil {
		return err
	}
	scheduler, err := c.Scheduler()
	if err != nil {
		return err
	}
	repo, err := c.RepoManager()
	if err != nil {
		return err
	}

	roundClient.RegisterWallet(wallet)
	svc, err := application.NewService(
		application.Config{
			TickInterval: c.TickInterval,
			AutoCoinJoin: c.AutoCoinJoin,
		},
		wallet, roundClient, scheduler, repo,
	)
	if err != nil {
		return err
	}

	c.svc = svc
	return nil
}

// FeeRatePerKvB returns the configured fee rate in sat/kvB.
func (c *Config) FeeRatePerKvB() btcutil.Amount {
	return btcutil.Amount(c.FeeRate * 1000)
}

func initDatadir() error {
	datadir := viper.GetString(Datadir)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	sort.Strings(types)
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}
