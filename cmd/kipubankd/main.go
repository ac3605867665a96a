package main

import (
	"context"
	"flag"
	"math/big"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/EzequielArce/KipuBankV3/internal/access"
	"github.com/EzequielArce/KipuBankV3/internal/chain"
	"github.com/EzequielArce/KipuBankV3/internal/config"
	"github.com/EzequielArce/KipuBankV3/internal/events"
	"github.com/EzequielArce/KipuBankV3/internal/metrics"
	"github.com/EzequielArce/KipuBankV3/internal/server"
	"github.com/EzequielArce/KipuBankV3/internal/storage"
	"github.com/EzequielArce/KipuBankV3/internal/util"
	"github.com/EzequielArce/KipuBankV3/internal/vault"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := util.NewLogger(os.Stdout, "info")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(os.Stdout, cfg.App.LogLevel)

	superAdmin, err := config.SuperAdminFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("resolve super admin")
	}

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("open ledger store")
	}
	defer store.Close()

	state, storedAdmins, err := store.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load ledger state")
	}

	sim, err := buildChain(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("build chain")
	}

	admins := make([]vault.Address, 0, len(cfg.Admin.Admins)+len(storedAdmins))
	for _, id := range cfg.Admin.Admins {
		admins = append(admins, vault.Address(id))
	}
	admins = append(admins, storedAdmins...)
	roles, err := access.New(vault.Address(superAdmin), admins, store)
	if err != nil {
		log.Fatal().Err(err).Msg("build role set")
	}

	refAsset := vault.Address(cfg.Vault.ReferenceAsset)
	sinks := []events.Sink{events.NewLog(256)}
	if cfg.Events.JournalPath != "" {
		journal, err := events.NewJournal(cfg.Events.JournalPath)
		if err != nil {
			log.Fatal().Err(err).Msg("open event journal")
		}
		defer journal.Close()
		sinks = append(sinks, journal)
	}
	broadcaster := events.NewBroadcaster(log)
	defer broadcaster.Close()
	sinks = append(sinks, broadcaster)

	capacity, ok := new(big.Int).SetString(cfg.Vault.Capacity, 10)
	if !ok {
		log.Fatal().Str("capacity", cfg.Vault.Capacity).Msg("malformed capacity")
	}
	ceiling, ok := new(big.Int).SetString(cfg.Vault.WithdrawalCeiling, 10)
	if !ok {
		log.Fatal().Str("ceiling", cfg.Vault.WithdrawalCeiling).Msg("malformed withdrawal ceiling")
	}

	bank := vault.Address(cfg.Vault.Custody)
	v, err := vault.New(vault.Config{
		ReferenceAsset:    refAsset,
		Custody:           bank,
		Capacity:          capacity,
		WithdrawalCeiling: ceiling,
		Bank:              sim.Bank,
		Market:            sim.AMM,
		Access:            roles,
		Runner:            sim,
		Store:             store,
		Notifier:          events.NewNotifier(refAsset, sinks...),
		Logger:            log,
		State:             state,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("build vault")
	}
	if state == nil {
		// First run: seed the persisted config scalars.
		if err := store.SetCapacity(capacity); err != nil {
			log.Fatal().Err(err).Msg("seed capacity")
		}
		if err := store.SetWithdrawalCeiling(ceiling); err != nil {
			log.Fatal().Err(err).Msg("seed withdrawal ceiling")
		}
	}

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	decimals := make(map[vault.Address]int32, len(cfg.Chain.Display))
	for _, d := range cfg.Chain.Display {
		decimals[vault.Address(d.Asset)] = d.Decimals
	}
	api := server.New(v, broadcaster, decimals, log)
	srv := &http.Server{Addr: cfg.App.ListenAddr, Handler: api.Handler()}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		log.Info().Str("addr", cfg.App.ListenAddr).Msg("api up")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("api stopped")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

func buildChain(cfg *config.Config) (*chain.Chain, error) {
	sim := chain.New(vault.Address(cfg.Chain.WrappedNative))
	for _, bal := range cfg.Chain.Balances {
		amount, ok := new(big.Int).SetString(bal.Amount, 10)
		if !ok {
			return nil, badAmount(bal.Amount)
		}
		if bal.Asset == "native" {
			sim.Bank.MintNative(vault.Address(bal.Owner), amount)
			continue
		}
		sim.Bank.Mint(vault.Address(bal.Asset), vault.Address(bal.Owner), amount)
	}
	for _, pool := range cfg.Chain.Pools {
		reserveA, ok := new(big.Int).SetString(pool.ReserveA, 10)
		if !ok {
			return nil, badAmount(pool.ReserveA)
		}
		reserveB, ok := new(big.Int).SetString(pool.ReserveB, 10)
		if !ok {
			return nil, badAmount(pool.ReserveB)
		}
		if _, err := sim.AMM.CreatePool(
			vault.Address(pool.Address),
			vault.Address(pool.TokenA), vault.Address(pool.TokenB),
			reserveA, reserveB,
		); err != nil {
			return nil, err
		}
	}
	return sim, nil
}

type badAmount string

func (b badAmount) Error() string { return "malformed genesis amount " + string(b) }
