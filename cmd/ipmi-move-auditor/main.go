package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/HerbHall/ipmi-move-auditor/internal/auditor"
	"github.com/HerbHall/ipmi-move-auditor/internal/config"
	"github.com/HerbHall/ipmi-move-auditor/internal/correlate"
	"github.com/HerbHall/ipmi-move-auditor/internal/netbox"
	"github.com/HerbHall/ipmi-move-auditor/internal/notify"
	"github.com/HerbHall/ipmi-move-auditor/internal/state"
	"github.com/HerbHall/ipmi-move-auditor/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	settings, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("ipmi move auditor starting", zap.String("version", version.Short()))

	stateStore, err := state.Open(settings.StateDBPath, settings.RemindAfter)
	if err != nil {
		logger.Fatal("failed to open state database", zap.Error(err))
	}
	defer stateStore.Close()

	if err := stateStore.CheckSchema(context.Background(), version.Short()); err != nil {
		logger.Fatal("state database schema check failed", zap.Error(err))
	}
	logger.Info("state database initialized",
		zap.String("component", "state"),
		zap.String("path", settings.StateDBPath),
	)

	nbClient := netbox.NewClient(settings.NetBoxURL, settings.NetBoxToken, settings.NetBoxVerifySSL, 0)
	logger.Info("netbox client initialized",
		zap.String("component", "netbox"),
		zap.String("url", settings.NetBoxURL),
	)

	collector := auditor.NewCollector(settings, logger.Named("snmpfdb"))

	correlator, err := correlate.New(settings.UplinkPorts, settings.UplinkPatterns, settings.MlagGroups)
	if err != nil {
		logger.Fatal("failed to initialize correlator", zap.Error(err))
	}

	notifier := notify.New(nbClient, logger.Named("notify"))

	a := auditor.New(settings, nbClient, collector, correlator, stateStore, notifier, logger.Named("auditor"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := a.Run(ctx); err != nil {
		logger.Fatal("auditor exited with error", zap.Error(err))
	}

	logger.Info("ipmi move auditor stopped")
}
