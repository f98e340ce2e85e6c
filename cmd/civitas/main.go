// SPDX-License-Identifier: Apache-2.0

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

	"github.com/govlegible/civitas/pkg/artefact"
	"github.com/govlegible/civitas/pkg/cases"
	"github.com/govlegible/civitas/pkg/config"
	"github.com/govlegible/civitas/pkg/evidence"
	"github.com/govlegible/civitas/pkg/invoker"
	"github.com/govlegible/civitas/pkg/surface"
	"github.com/govlegible/civitas/pkg/telemetry"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd = args[0]
		args = args[1:]
	}

	switch cmd {
	case "serve":
		runServe(ctx, args)
	case "validate":
		runValidate(ctx, args)
	case "version":
		fmt.Println(version)
	case "help":
		printUsage()
	default:
		fatal(fmt.Errorf("unknown command %q", cmd))
	}
}

func runServe(ctx context.Context, args []string) {
	cmd := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := cmd.String("config", "", "Path to config.yaml")
	servicesDir := cmd.String("services", "", "Service artefact directory (overrides config)")
	transport := cmd.String("transport", "", "Protocol transport: stdio or http (overrides config)")
	addr := cmd.String("addr", "", "HTTP listen address (overrides config)")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	if *servicesDir != "" {
		cfg.Services.Dir = *servicesDir
	}
	if *transport != "" {
		cfg.Surface.Transport = *transport
	}
	if *addr != "" {
		cfg.Surface.Addr = *addr
	}

	// Stdout belongs to the protocol when serving stdio; logs go to stderr.
	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitWithConfig(cfg.Surface.Name, version, telemetry.Config{
			Exporter:     cfg.Telemetry.Exporter,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			OTLPInsecure: cfg.Telemetry.OTLPInsecure,
		})
		if err != nil {
			fatal(err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown failed", "error", err)
			}
		}()
	}

	store := artefact.NewStore(cfg.Services.Dir, artefact.WithLogger(logger))
	if err := store.Load(ctx); err != nil {
		fatal(err)
	}

	sink, err := openSink(cfg.Evidence)
	if err != nil {
		fatal(err)
	}
	caseStore, err := cases.OpenSQLiteStore(cfg.Cases.Path)
	if err != nil {
		fatal(err)
	}
	defer caseStore.Close()

	inv := invoker.New(invoker.WithLogger(logger))

	registry, err := buildAdapters(ctx, cfg.Adapters)
	if err != nil {
		fatal(err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := registry.ShutdownAll(shutdownCtx); err != nil {
			logger.Error("adapter shutdown failed", "error", err)
		}
	}()

	gen := surface.NewGenerator(store, inv,
		surface.WithSink(sink),
		surface.WithCaseStore(caseStore),
		surface.WithGeneratorLogger(logger),
	)
	surf, err := gen.Generate()
	if err != nil {
		fatal(err)
	}

	srv := surface.NewServer(cfg.Surface.Name, cfg.Surface.Version, surface.WithServerLogger(logger))
	srv.Register(surf)

	submits := &submitTools{}
	if err := submits.Sync(srv, inv, sink, store, caseStore, registry, logger); err != nil {
		fatal(err)
	}
	if err := registerExplainTool(srv, inv, sink, store, registry, logger); err != nil {
		fatal(err)
	}

	onRefresh := func() {
		if err := submits.Sync(srv, inv, sink, store, caseStore, registry, logger); err != nil {
			logger.Error("submit tool re-registration failed", "error", err)
		}
	}
	if watcher := startWatcher(ctx, cfg.Services, store, gen, srv, onRefresh, logger); watcher != nil {
		defer watcher.Stop()
	}

	logger.Info("serving",
		"transport", cfg.Surface.Transport,
		"services", len(store.ListServices()),
		"primitives", len(surf.Primitives),
	)

	switch cfg.Surface.Transport {
	case "stdio":
		if err := srv.ServeStdio(); err != nil {
			fatal(err)
		}
	case "http":
		errCh := make(chan error, 1)
		go func() { errCh <- srv.ServeStreamableHTTP(cfg.Surface.Addr) }()
		select {
		case err := <-errCh:
			if err != nil {
				fatal(err)
			}
		case <-ctx.Done():
			logger.Info("shutting down")
		}
	default:
		fatal(fmt.Errorf("unknown transport %q", cfg.Surface.Transport))
	}
}

func openSink(cfg config.EvidenceConfig) (evidence.Sink, error) {
	switch cfg.Store {
	case "", "memory":
		return evidence.NewMemorySink(), nil
	case "sqlite":
		return evidence.OpenSQLiteSink(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown evidence store %q", cfg.Store)
	}
}

func startWatcher(ctx context.Context, cfg config.ServicesConfig, store *artefact.Store, gen *surface.Generator, srv *surface.Server, onRefresh func(), logger *slog.Logger) *config.Watcher {
	if cfg.WatchInterval == "" {
		return nil
	}
	interval, err := time.ParseDuration(cfg.WatchInterval)
	if err != nil || interval <= 0 {
		return nil
	}

	watcher := config.NewWatcher(cfg.Dir, config.WithWatchInterval(interval))
	watcher.OnChange(func() {
		if err := store.Reload(ctx); err != nil {
			// A broken artefact set never replaces the serving one.
			logger.Error("artefact reload failed, keeping previous set", "error", err)
			return
		}
		surf, err := gen.Generate()
		if err != nil {
			logger.Error("surface regeneration failed", "error", err)
			return
		}
		srv.Refresh(surf)
		if onRefresh != nil {
			onRefresh()
		}
	})
	watcher.Start(ctx)
	return watcher
}

func runValidate(ctx context.Context, args []string) {
	cmd := flag.NewFlagSet("validate", flag.ExitOnError)
	servicesDir := cmd.String("services", "services", "Service artefact directory")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}

	store := artefact.NewStore(*servicesDir)
	if err := store.Load(ctx); err != nil {
		fatal(err)
	}
	for _, id := range store.ListServices() {
		svc, ok := store.Get(id)
		if !ok {
			continue
		}
		fmt.Printf("%s: ok (policy=%t state-model=%t consent=%t)\n",
			id, svc.Policy != nil, svc.StateModel != nil, svc.Consent != nil)
	}
	fmt.Printf("%d service(s) valid\n", len(store.ListServices()))
}

func printUsage() {
	fmt.Println(`civitas - legibility runtime for government services

Usage:
  civitas [command] [flags]

Commands:
  serve      Serve the protocol surface (default)
  validate   Validate a service artefact directory
  version    Print the version
  help       Print this help

Serve flags:
  -config <path>      Path to config.yaml
  -services <dir>     Service artefact directory (overrides config)
  -transport <name>   stdio or http (overrides config)
  -addr <addr>        HTTP listen address (overrides config)

Validate flags:
  -services <dir>     Service artefact directory (default "services")`)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
