// Package main provides splgiverd - the vesting token distributor daemon.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/klingon-exchange/splgiver/internal/api"
	"github.com/klingon-exchange/splgiver/internal/bootstrap"
	"github.com/klingon-exchange/splgiver/internal/chain"
	"github.com/klingon-exchange/splgiver/internal/config"
	"github.com/klingon-exchange/splgiver/internal/model"
	"github.com/klingon-exchange/splgiver/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		apiAddr     = flag.String("api", "127.0.0.1:8090", "Admin HTTP API address")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{
		Level:      *logLevel,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("splgiverd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gateway := chain.NewSolanaGateway(cfg.ClusterURL)

	result, err := bootstrap.Run(ctx, cfg, gateway)
	if err != nil {
		log.Fatal("Failed to bootstrap distributor", "error", err)
	}
	defer result.Store.Close()
	log.Info("Distributor bootstrapped", "data_dir", cfg.DataDir, "cluster", cfg.ClusterURL)

	apiServer := api.New(result.Store, result.Runner)

	// api.New already wired OnScheduleTransition to the live feed; chain in a
	// log line rather than replacing it.
	broadcast := result.Runner.OnScheduleTransition
	runnerLog := log.Component("runner")
	result.Runner.OnScheduleTransition = func(scheduleID int64, status model.ScheduleStatus) {
		runnerLog.Info("schedule transition", "schedule_id", scheduleID, "status", status)
		broadcast(scheduleID, status)
	}

	result.Runner.Start()

	if err := apiServer.Start(*apiAddr); err != nil {
		log.Fatal("Failed to start admin API", "error", err)
	}

	printBanner(log, *apiAddr, cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("Shutting down...")

	result.Runner.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping admin API", "error", err)
	}

	cancel()
	log.Info("Goodbye!")
}

func printBanner(log *logging.Logger, apiAddr string, cfg *config.Config) {
	log.Info("")
	log.Info("=================================================")
	log.Infof("  splgiverd - SPL vesting distributor")
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  Cluster: %s", cfg.ClusterURL)
	log.Infof("  Mint:    %s", cfg.MintPubkey.String())
	log.Info("")
	log.Infof("  Admin API: http://%s", apiAddr)
	log.Infof("  Live feed: ws://%s/ws", apiAddr)
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}
