package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/augury-markets/augury/internal/authz"
	"github.com/augury-markets/augury/internal/config"
	"github.com/augury-markets/augury/internal/infra"
	"github.com/augury-markets/augury/internal/ledger"
	"github.com/augury-markets/augury/internal/logging"
	"github.com/augury-markets/augury/internal/market"
	"github.com/augury-markets/augury/internal/matching"
	"github.com/augury-markets/augury/internal/notification"
	"github.com/augury-markets/augury/internal/order"
	"github.com/augury-markets/augury/internal/routes"
	"github.com/augury-markets/augury/internal/server"
	"github.com/augury-markets/augury/internal/sweeper"
	"github.com/augury-markets/augury/internal/trigger"
	"github.com/augury-markets/augury/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.AppName)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DatabasePool)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("connect redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Warn("close redis", "error", err)
		}
	}()

	led := ledger.NewPostgresLedger(db)
	walletRepo := wallet.NewPostgresRepository(db)
	marketRepo := market.NewPostgresRepository(db)
	orderRepo := order.NewPostgresRepository(db)
	notifier := notification.NewLoggerNotifier(logger)
	authorizer := authz.OwnerOrAdmin{}

	walletSvc := wallet.NewService(walletRepo, led, wallet.Grant{
		FromWalletID: cfg.GrantWalletID,
		Token:        cfg.GrantToken,
		Amount:       cfg.GrantAmount,
	}, logger)

	queue := trigger.NewRedisQueue(cache, "")
	orderStore := order.NewPostgresStore(db)
	orderSvc := order.NewService(orderRepo, orderStore, marketRepo, walletRepo, queue, notifier, authorizer, logger)

	store := matching.NewPostgresStore(db, cfg.FeeRate, cfg.FeeWalletID)
	engine := matching.NewEngine(orderRepo, marketRepo, store, notifier, logger)
	workers := trigger.NewWorkers(queue, engine.Match, cfg.MatchWorkers, logger)

	sweep := sweeper.New(orderRepo, marketRepo, orderSvc, notifier, logger, sweeper.Config{
		OrderInterval:  cfg.OrderSweepInterval,
		MarketInterval: cfg.MarketSweepInterval,
	})

	var background sync.WaitGroup
	background.Add(2)
	go func() {
		defer background.Done()
		workers.Run(ctx)
	}()
	go func() {
		defer background.Done()
		sweep.Run(ctx)
	}()

	srv := server.New(routes.Deps{
		Cfg:     cfg,
		DB:      db,
		Cache:   cache,
		Logger:  logger,
		Wallets: wallet.NewHandler(walletSvc, led, authorizer, cfg.FeeWalletID),
		Orders:  order.NewHandler(orderSvc, authorizer),
		Markets: market.NewHandler(marketRepo, walletSvc, led),
	})

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	stop()
	background.Wait()

	logger.Info("server exited cleanly")
}
