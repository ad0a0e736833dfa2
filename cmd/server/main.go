package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"splitrails/internal/config"
	"splitrails/internal/coordinator"
	"splitrails/internal/escrow"
	"splitrails/internal/idempotency"
	"splitrails/internal/oracle"
	"splitrails/internal/server"
	"splitrails/internal/storage/sqlite"
	"splitrails/pkg/logging"
)

func main() {
	logging.Setup()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	store, err := sqlite.New(cfg.Service.BillStorePath)
	if err != nil {
		slog.Error("bill store error", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var idem idempotency.Store = idempotency.NewMemoryStore()
	if cfg.Service.PostgresDSN != "" {
		pg, err := idempotency.NewPostgresStore(context.Background(), cfg.Service.PostgresDSN)
		if err != nil {
			slog.Error("idempotency store error", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		idem = pg
	}

	var ledger escrow.Ledger = escrow.NewMemLedger(cfg.Escrow.Window)
	if cfg.Chain.PrivateKey != "" {
		ethLedger, err := escrow.NewEthLedger(context.Background(), escrow.EthLedgerConfig{
			RPCURL:          cfg.Chain.RPCURL,
			PrivateKeyHex:   cfg.Chain.PrivateKey,
			ContractAddress: cfg.Chain.EscrowContract,
			ExpectedChainID: cfg.Chain.ChainID,
		})
		if err != nil {
			slog.Error("escrow ledger error", "error", err)
			os.Exit(1)
		}
		ledger = ethLedger
	} else {
		slog.Warn("no chain private key configured, using in-memory ledger")
	}

	var rates coordinator.RateSource = oracle.New(
		oracle.NewCache(cfg.Oracle.CacheTTL),
		&oracle.CoinbaseSource{URL: cfg.Oracle.CoinbaseURL},
		&oracle.CoinGeckoSource{URL: cfg.Oracle.CoinGeckoURL},
	)

	apiServer := server.NewServer(cfg, store, ledger, rates, idem)

	go func() {
		if err := apiServer.Start(); err != nil {
			slog.Info("server stopped", "error", err)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = apiServer.Shutdown(ctx)
}
