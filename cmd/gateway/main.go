package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/txrelay/internal/config"
	"github.com/rickgao/txrelay/internal/dispatch"
	"github.com/rickgao/txrelay/internal/downstream"
	"github.com/rickgao/txrelay/internal/engine"
	"github.com/rickgao/txrelay/internal/version"
	"github.com/rickgao/txrelay/internal/wire"
)

func main() {
	configPath := flag.String("config", "configs/gateway.local.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting gateway",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"upstream", fmt.Sprintf("%s:%d", cfg.Upstream.Host, cfg.Upstream.Port),
		"downstream_tcp_port", cfg.Downstream.TCPPort,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	hub := downstream.NewHub(logger)

	var eng *engine.Engine
	shutdown := func(reason string) {
		logger.Error("gateway: requesting shutdown", "reason", reason)
		cancel()
	}
	eng = engine.New(*cfg, hub.Broadcast, shutdown, logger)

	disp := dispatch.New(eng.OnSystem, eng.OnConnect, eng.OnDisconnect, eng.OnFatal, eng.OnProtocolError, logger)

	wireCfg := wire.DefaultConfig(fmt.Sprintf("%s:%d", cfg.Upstream.Host, cfg.Upstream.Port))
	wireClient := wire.NewClient(wireCfg, disp, logger)

	g, gctx := errgroup.WithContext(ctx)

	downstreamAddr := fmt.Sprintf(":%d", cfg.Downstream.TCPPort)
	if err := hub.Start(gctx, downstreamAddr); err != nil {
		logger.Error("failed to start downstream listener", "error", err)
		os.Exit(1)
	}
	defer hub.Stop()

	g.Go(func() error {
		return wireClient.Run(gctx)
	})

	g.Go(func() error {
		return runTimerLoop(gctx, eng)
	})

	logger.Info("gateway running",
		"upstream", wireCfg.Address,
		"downstream_addr", downstreamAddr,
	)

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		logger.Error("gateway: supervised goroutine exited", "error", err)
	}

	logger.Info("gateway stopped")
}

// runTimerLoop drives the Engine's 1Hz timer (§5) until ctx is
// cancelled.
func runTimerLoop(ctx context.Context, eng *engine.Engine) error {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			eng.Tick(now)
		}
	}
}
