package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/stratushealth/concierge/pkg/config"
	"github.com/stratushealth/concierge/pkg/server"
)

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Port int `help:"Port to listen on (overrides config)." default:"0"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := server.New(cfg, rt.manager, rt.registry)
	srv.MCPURL = rt.mcpURL

	fmt.Printf("\nConcierge ready on %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("   Chat:    POST /v1/chat\n")
	fmt.Printf("   Tools:   GET  /v1/tools\n")
	fmt.Printf("   Health:  GET  /healthz\n")
	if cfg.Server.MetricsEnabled {
		fmt.Printf("   Metrics: GET  /metrics\n")
	}
	fmt.Println("\nPress Ctrl+C to stop")

	return srv.Run(ctx)
}

// ValidateCmd checks a configuration file without starting anything.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if cli.Config == "" {
		return fmt.Errorf("--config is required for validate")
	}

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	fmt.Printf("Configuration valid: %s\n", cli.Config)
	fmt.Printf("   Workspace:  %s\n", cfg.Workspace.Host)
	fmt.Printf("   Model:      %s\n", cfg.LLM.Model)
	fmt.Printf("   Space:      %s\n", cfg.Analytics.SpaceID)
	fmt.Printf("   Warehouse:  %s.%s (%s)\n", cfg.Lookup.Catalog, cfg.Lookup.Schema, cfg.Lookup.Driver)
	fmt.Printf("   Documents:  %s\n", cfg.Documents.EndpointID)
	fmt.Printf("   Router:     %s\n", cfg.Router.Strategy)
	return nil
}
