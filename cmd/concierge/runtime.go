package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stratushealth/concierge/pkg/config"
	"github.com/stratushealth/concierge/pkg/conversation"
	"github.com/stratushealth/concierge/pkg/genie"
	"github.com/stratushealth/concierge/pkg/knowledge"
	"github.com/stratushealth/concierge/pkg/llms"
	"github.com/stratushealth/concierge/pkg/lookup"
	"github.com/stratushealth/concierge/pkg/observability"
	"github.com/stratushealth/concierge/pkg/router"
	"github.com/stratushealth/concierge/pkg/session"
	"github.com/stratushealth/concierge/pkg/tools"
)

// runtime holds the wired assistant components for one process.
type runtime struct {
	provider llms.Provider
	registry *tools.ToolRegistry
	manager  *conversation.Manager
	mcpURL   string

	closers []func() error
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			slog.Warn("Close failed", "error", err)
		}
	}
}

// buildRuntime wires provider, tool sources, routing and the conversation
// manager from configuration. Source order matters: lookup, analytics,
// documents. A source that fails discovery is skipped, not fatal.
func buildRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	rt := &runtime{}

	if cfg.Server.TracingEnabled {
		if _, err := observability.InitGlobalTracer(ctx, observability.TracerConfig{
			Enabled:     true,
			EndpointURL: cfg.Server.OTLPEndpoint,
		}); err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}
	if cfg.Server.MetricsEnabled {
		metrics, err := observability.InitMetrics(ctx, observability.MetricsConfig{Enabled: true})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
		observability.SetGlobalMetrics(metrics)
	}

	rt.provider = llms.NewServingProvider(cfg)
	rt.closers = append(rt.closers, rt.provider.Close)

	sources, err := buildSources(cfg, rt)
	if err != nil {
		return nil, err
	}

	rt.registry = tools.NewToolRegistry()
	rt.registry.RegisterSources(ctx, sources...)
	slog.Info("Tool sources registered", "tools", rt.registry.Count())

	strategy, err := router.New(cfg, rt.provider, rt.registry)
	if err != nil {
		return nil, err
	}

	scrubStore, err := config.NewScrubRuleStore(cfg.Normalizer.ScrubRulesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load scrub rules: %w", err)
	}
	go func() {
		if err := scrubStore.Watch(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("Scrub rule watch stopped", "error", err)
		}
	}()

	// Retain exactly the context window; older turns are dropped, not archived.
	store := session.NewInMemoryService(cfg.Conversation.WindowSize * 2)
	rt.manager = conversation.NewManager(strategy, store, scrubStore, cfg.Conversation.WindowSize)
	return rt, nil
}

func buildSources(cfg *config.Config, rt *runtime) ([]tools.ToolSource, error) {
	var sources []tools.ToolSource

	lookupSource, err := buildLookupSource(cfg, rt)
	if err != nil {
		return nil, err
	}
	sources = append(sources, lookupSource)

	analyticsSource, err := buildAnalyticsSource(cfg, rt)
	if err != nil {
		return nil, err
	}
	sources = append(sources, analyticsSource)

	minter := knowledge.NewTokenMinter(cfg.Workspace.Host, cfg.Workspace.Token,
		time.Duration(cfg.Documents.TokenLifetime)*time.Second)
	sources = append(sources, knowledge.NewSource(knowledge.Config{
		Host:          cfg.Workspace.Host,
		EndpointID:    cfg.Documents.EndpointID,
		TokenLifetime: time.Duration(cfg.Documents.TokenLifetime) * time.Second,
	}, minter))

	return sources, nil
}

func buildLookupSource(cfg *config.Config, rt *runtime) (tools.ToolSource, error) {
	if cfg.Lookup.UseGateway {
		url := tools.FunctionsGatewayURL(cfg.Workspace.Host, cfg.Lookup.Catalog, cfg.Lookup.Schema)
		rt.mcpURL = url
		return tools.NewMCPToolSource(tools.MCPConfig{
			Name:        "lookup",
			URL:         url,
			BearerToken: cfg.Workspace.Token,
		})
	}

	source, err := lookup.NewSource(lookup.Config{
		Catalog: cfg.Lookup.Catalog,
		Schema:  cfg.Lookup.Schema,
		Driver:  cfg.Lookup.Driver,
		DSN:     cfg.Lookup.DSN,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open lookup warehouse: %w", err)
	}
	rt.closers = append(rt.closers, source.Close)
	return source, nil
}

func buildAnalyticsSource(cfg *config.Config, rt *runtime) (tools.ToolSource, error) {
	if cfg.Analytics.UseGateway {
		url := tools.GenieGatewayURL(cfg.Workspace.Host, cfg.Analytics.SpaceID)
		rt.mcpURL = url
		return tools.NewMCPToolSource(tools.MCPConfig{
			Name:        "analytics",
			URL:         url,
			BearerToken: cfg.Workspace.Token,
		})
	}

	client := genie.NewClient(genie.ClientConfig{
		Host:          cfg.Workspace.Host,
		Token:         cfg.Workspace.Token,
		SpaceID:       cfg.Analytics.SpaceID,
		PollInterval:  cfg.Analytics.PollIntervalDuration(),
		PollAttempts:  cfg.Analytics.PollAttempts,
		MaxReportRows: cfg.Analytics.MaxReportRows,
	})
	return genie.NewSource(client), nil
}
