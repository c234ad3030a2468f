package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

func InitMetrics(ctx context.Context, cfg MetricsConfig) (*PrometheusMetrics, error) {
	if !cfg.Enabled {
		return &PrometheusMetrics{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)

	meter := meterProvider.Meter("concierge")

	m := &PrometheusMetrics{}

	if m.turnDuration, err = meter.Float64Histogram(
		"concierge_turn_duration_seconds",
		metric.WithDescription("Conversation turn duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create turn duration histogram: %w", err)
	}

	if m.turnsTotal, err = meter.Int64Counter(
		"concierge_turns_total",
		metric.WithDescription("Total conversation turns"),
	); err != nil {
		return nil, fmt.Errorf("failed to create turns counter: %w", err)
	}

	if m.turnErrorsTotal, err = meter.Int64Counter(
		"concierge_turn_errors_total",
		metric.WithDescription("Total conversation turns that ended in an error"),
	); err != nil {
		return nil, fmt.Errorf("failed to create turn errors counter: %w", err)
	}

	if m.routerIters, err = meter.Int64Histogram(
		"concierge_router_iterations",
		metric.WithDescription("Router iterations used per turn"),
	); err != nil {
		return nil, fmt.Errorf("failed to create router iterations histogram: %w", err)
	}

	if m.toolDuration, err = meter.Float64Histogram(
		"concierge_tool_execution_duration_seconds",
		metric.WithDescription("Tool execution duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool duration histogram: %w", err)
	}

	if m.toolCallsTotal, err = meter.Int64Counter(
		"concierge_tool_calls_total",
		metric.WithDescription("Total tool calls"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool calls counter: %w", err)
	}

	if m.toolErrorsTotal, err = meter.Int64Counter(
		"concierge_tool_errors_total",
		metric.WithDescription("Total tool errors"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool errors counter: %w", err)
	}

	if m.llmDuration, err = meter.Float64Histogram(
		"concierge_llm_request_duration_seconds",
		metric.WithDescription("LLM request duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}

	if m.llmInputTokens, err = meter.Int64Counter(
		"concierge_llm_tokens_input_total",
		metric.WithDescription("Total input tokens sent to the LLM"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm input tokens counter: %w", err)
	}

	if m.llmOutputTokens, err = meter.Int64Counter(
		"concierge_llm_tokens_output_total",
		metric.WithDescription("Total output tokens from the LLM"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm output tokens counter: %w", err)
	}

	if m.llmErrorsTotal, err = meter.Int64Counter(
		"concierge_llm_errors_total",
		metric.WithDescription("Total LLM errors"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm errors counter: %w", err)
	}

	if m.analyticsPolls, err = meter.Int64Histogram(
		"concierge_analytics_poll_attempts",
		metric.WithDescription("Poll attempts per analytics query"),
	); err != nil {
		return nil, fmt.Errorf("failed to create analytics polls histogram: %w", err)
	}

	if m.analyticsPollErrors, err = meter.Int64Counter(
		"concierge_analytics_poll_errors_total",
		metric.WithDescription("Analytics queries that failed or timed out"),
	); err != nil {
		return nil, fmt.Errorf("failed to create analytics poll errors counter: %w", err)
	}

	return m, nil
}
