package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ark-network/coinjoin/internal/core/domain"
	service_interface "github.com/ark-network/coinjoin/internal/interface"
	"github.com/ark-network/coinjoin/internal/simulation"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

// flags
var (
	participantsFlag = &cli.IntFlag{
		Name:  "participants",
		Usage: "number of simulated participants, defaults to COINJOIN_PARTICIPANTS",
	}
	numCoinsFlag = &cli.IntFlag{
		Name:  "coins",
		Usage: "number of coins each participant splits its funds into, defaults to COINJOIN_NUM_COINS",
	}
	seedFlag = &cli.Int64Flag{
		Name:  "seed",
		Usage: "seed of the coin split, defaults to COINJOIN_SEED",
	}
	enabledFlag = &cli.BoolFlag{
		Name:     "enabled",
		Usage:    "whether the wallet joins rounds automatically",
		Required: true,
	}
)

// commands
var (
	startCmd = &cli.Command{
		Name:   "start",
		Usage:  "Fund the wallet and orchestrate its participation in coinjoin rounds",
		Action: startAction,
	}
	simulateCmd = &cli.Command{
		Name:   "simulate",
		Usage:  "Run a set of participants through one coinjoin round",
		Action: simulateAction,
		Flags:  []cli.Flag{participantsFlag, numCoinsFlag, seedFlag},
	}
	settingsCmd = &cli.Command{
		Name:  "settings",
		Usage: "Manage the wallet settings",
		Subcommands: append(
			cli.Commands{},
			settingsShowCmd,
			settingsAutoCmd,
		),
	}
	settingsShowCmd = &cli.Command{
		Name:   "show",
		Usage:  "Show the wallet settings",
		Action: settingsShowAction,
	}
	settingsAutoCmd = &cli.Command{
		Name:   "auto",
		Usage:  "Enable or disable auto coinjoin, takes effect at the next start",
		Action: settingsAutoAction,
		Flags:  []cli.Flag{enabledFlag},
	}
)

func startAction(_ *cli.Context) error {
	svc, err := service_interface.NewService(cfg)
	if err != nil {
		return err
	}

	log.RegisterExitHandler(svc.Stop)

	log.Info("starting service...")
	if err := svc.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, os.Interrupt)
	<-sigChan

	log.Info("shutting down service...")
	log.Exit(0)
	return nil
}

func simulateAction(ctx *cli.Context) error {
	numParticipants := cfg.Participants
	if ctx.IsSet(participantsFlag.Name) {
		numParticipants = ctx.Int(participantsFlag.Name)
	}
	numCoins := cfg.NumCoins
	if ctx.IsSet(numCoinsFlag.Name) {
		numCoins = ctx.Int(numCoinsFlag.Name)
	}
	seed := cfg.Seed
	if ctx.IsSet(seedFlag.Name) {
		seed = ctx.Int64(seedFlag.Name)
	}
	if numParticipants < cfg.MinParticipants {
		return fmt.Errorf(
			"at least %d participants are required to complete a round", cfg.MinParticipants,
		)
	}

	coordinator, err := cfg.Coordinator()
	if err != nil {
		return err
	}
	if err := coordinator.Start(); err != nil {
		return err
	}
	defer coordinator.Stop()

	participants := make([]*simulation.Participant, 0, numParticipants)
	defer func() {
		for _, p := range participants {
			p.Close()
		}
	}()
	for i := 0; i < numParticipants; i++ {
		p, err := cfg.NewParticipant(fmt.Sprintf("participant-%d", i))
		if err != nil {
			return err
		}
		participants = append(participants, p)
	}

	g, gctx := errgroup.WithContext(ctx.Context)
	for i, p := range participants {
		i, p := i, p
		g.Go(func() error {
			if err := p.GenerateSourceCoin(gctx); err != nil {
				return err
			}
			if err := p.GenerateCoins(gctx, numCoins, seed+int64(i)); err != nil {
				return err
			}
			result, err := p.StartParticipating(gctx)
			if err != nil {
				return err
			}
			log.Infof(
				"participant %d completed round %s with anonymity score %d",
				i, result.RoundId, result.AnonScore,
			)
			return nil
		})
	}
	return g.Wait()
}

func settingsShowAction(ctx *cli.Context) error {
	repo, err := cfg.RepoManager()
	if err != nil {
		return err
	}
	defer repo.Close()

	autoCoinJoin := cfg.AutoCoinJoin
	settings, err := repo.Settings().Get(ctx.Context, cfg.WalletName)
	if err != nil && err != domain.ErrSettingsNotFound {
		return err
	}
	if settings != nil {
		autoCoinJoin = settings.AutoCoinJoin
	}

	fmt.Printf("wallet: %s\nauto coinjoin: %t\n", cfg.WalletName, autoCoinJoin)
	return nil
}

func settingsAutoAction(ctx *cli.Context) error {
	repo, err := cfg.RepoManager()
	if err != nil {
		return err
	}
	defer repo.Close()

	settings := domain.NewWalletSettings(cfg.WalletName, ctx.Bool(enabledFlag.Name))
	if err := repo.Settings().Upsert(ctx.Context, settings); err != nil {
		return err
	}

	fmt.Printf("auto coinjoin %s for wallet %s\n", enabledString(settings.AutoCoinJoin), cfg.WalletName)
	return nil
}

func enabledString(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
