package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/oxo/internal/config"
	"github.com/udisondev/oxo/internal/server"
)

const ConfigPath = "config/server.yaml"

var (
	port       = flag.Int("p", 0, "TCP port to listen on")
	configPath = flag.String("c", ConfigPath, "path to the YAML config")
)

func main() {
	flag.Parse()
	if *port < 1 || *port > 65535 {
		fmt.Fprintf(os.Stderr, "usage: %s -p port [-c config]\n", os.Args[0])
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, *port, *configPath); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, port int, cfgPath string) error {
	// Load config first to determine the log level.
	cfg, err := config.LoadServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	slog.Info("oxo server starting",
		"bind", cfg.BindAddress,
		"port", port,
		"max_clients", cfg.MaxClients,
		"log_level", cfg.LogLevel)

	srv := server.New(cfg, port)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting match server", "port", port)
		if err := srv.Run(gctx); err != nil {
			return fmt.Errorf("match server: %w", err)
		}
		return nil
	})

	// The websocket listener shares the registries, so browser clients and
	// plain TCP clients meet in the same player pool.
	if cfg.WSPort > 0 {
		ws := server.NewWSServer(srv)
		g.Go(func() error {
			slog.Info("starting websocket listener", "port", cfg.WSPort)
			if err := ws.Run(gctx); err != nil {
				return fmt.Errorf("websocket listener: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
