package router

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stratushealth/concierge/pkg/llms"
	"github.com/stratushealth/concierge/pkg/observability"
	"github.com/stratushealth/concierge/pkg/protocol"
	"github.com/stratushealth/concierge/pkg/tools"
)

// AgenticStrategy lets the model drive tool selection in a bounded loop. The
// iteration ceiling prevents runaway tool chains; when hit, whatever text the
// model produced last is returned as a partial answer.
type AgenticStrategy struct {
	provider      llms.Provider
	registry      *tools.ToolRegistry
	maxIterations int

	// Role selects the system prompt audience. Empty means member.
	Role string
}

func NewAgenticStrategy(provider llms.Provider, registry *tools.ToolRegistry, maxIterations int) *AgenticStrategy {
	if maxIterations <= 0 {
		maxIterations = 5
	}
	return &AgenticStrategy{
		provider:      provider,
		registry:      registry,
		maxIterations: maxIterations,
	}
}

func (s *AgenticStrategy) Name() string { return "agentic" }

func (s *AgenticStrategy) Route(ctx context.Context, history []*protocol.Message, utterance string) (*Outcome, error) {
	tracer := observability.GetTracer("concierge.router")
	ctx, span := tracer.Start(ctx, observability.SpanRoute,
		trace.WithAttributes(attribute.String(observability.AttrRouterStrategy, s.Name())))
	defer span.End()

	messages := make([]*protocol.Message, 0, len(history)+2)
	messages = append(messages, protocol.SystemMessage(SystemPrompt(s.Role)))
	messages = append(messages, history...)
	messages = append(messages, protocol.UserMessage(utterance))

	definitions := s.registry.Definitions()

	var toolsInvoked []string
	var lastText string

	for iteration := 1; iteration <= s.maxIterations; iteration++ {
		text, toolCalls, _, err := s.provider.Generate(ctx, messages, definitions)
		if err != nil {
			return nil, err
		}
		lastText = text

		if len(toolCalls) == 0 {
			return &Outcome{
				Text:         text,
				ToolsInvoked: toolsInvoked,
				Iterations:   iteration,
			}, nil
		}

		messages = append(messages, &protocol.Message{
			Role:      protocol.RoleAssistant,
			Content:   text,
			ToolCalls: toolCalls,
		})

		for _, call := range toolCalls {
			toolsInvoked = append(toolsInvoked, call.Name)

			result, err := s.registry.ExecuteTool(ctx, call.Name, call.Args)
			toolResult := &protocol.ToolResult{
				ToolCallID: call.ID,
				Content:    result.Content,
				Error:      result.Error,
			}
			if err != nil {
				toolResult.Error = err.Error()
			}

			// Failed calls go back into context; the model decides whether
			// to retry, reroute, or apologize.
			if toolResult.Error != "" {
				slog.Warn("Tool call failed", "tool", call.Name, "error", toolResult.Error)
			}
			messages = append(messages, protocol.ToolMessage(toolResult))
		}
	}

	slog.Warn("Routing hit iteration ceiling, returning partial answer",
		"max_iterations", s.maxIterations, "tools_invoked", len(toolsInvoked))

	return &Outcome{
		Text:         lastText,
		ToolsInvoked: toolsInvoked,
		Iterations:   s.maxIterations,
		Truncated:    true,
	}, nil
}

var _ Strategy = (*AgenticStrategy)(nil)
