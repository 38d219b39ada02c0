// Command broker is the resource-broker entry point: it wires
// configuration, logging, the ledger store, the admin HTTP surface, the
// periodic utilization reporter, and the raw HTTP/1.1 transport
// listener, then waits for SIGINT/SIGTERM. Grounded on
// cmd/gateway/main.go's bootstrap-then-signal-wait shape, trimmed of
// the Marble/TEE/JWT/OAuth machinery the broker has no use for.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/R3E-Network/resource-broker/internal/adminhttp"
	"github.com/R3E-Network/resource-broker/internal/config"
	"github.com/R3E-Network/resource-broker/internal/distlock"
	"github.com/R3E-Network/resource-broker/internal/gateway"
	"github.com/R3E-Network/resource-broker/internal/ledger"
	"github.com/R3E-Network/resource-broker/internal/logging"
	"github.com/R3E-Network/resource-broker/internal/reporter"
	"github.com/R3E-Network/resource-broker/internal/transport"
)

func main() {
	cfg := config.FromEnv()
	logger := logging.NewFromEnv("broker")

	if err := os.MkdirAll(cfg.DataRoot, 0755); err != nil {
		log.Fatalf("could not create data root %s: %v", cfg.DataRoot, err)
	}

	locker := newLocker(cfg)
	store := ledger.NewStore(cfg.DataRoot, locker)
	dispatcher := gateway.New(cfg.DataRoot, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	admin := adminhttp.New(fmt.Sprintf(":%d", cfg.AdminPort), cfg.MetricsEnabled)
	go func() {
		logger.WithField("addr", admin.Addr).Info("admin http listening")
		if err := admin.ListenAndServe(); err != nil {
			logger.WithError(err).Error("admin http server exited")
		}
	}()

	rep := reporter.New(cfg.DataRoot, store, logger)
	if err := rep.Start(fmt.Sprintf("@every %s", cfg.ReportInterval)); err != nil {
		logger.WithError(err).Warn("could not start utilization reporter")
	} else {
		defer rep.Stop()
	}

	server := transport.New(
		fmt.Sprintf("%s:%d", cfg.ServerIP, cfg.ServerPort),
		cfg.AcceptTimeout,
		dispatcher,
		logger,
	)

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- server.Serve(ctx) }()
	admin.SetReady(true)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("shutdown signal received")
	case err := <-serveErrCh:
		if err != nil {
			logger.WithError(err).Error("transport server exited unexpectedly")
		}
	}

	admin.SetReady(false)
	cancel()
	time.Sleep(200 * time.Millisecond)
	logger.Info("broker shut down")
}

func newLocker(cfg config.BrokerConfig) distlock.Locker {
	if cfg.RedisAddr == "" {
		return distlock.NewLocal()
	}
	return distlock.NewRedis(cfg.RedisAddr)
}
