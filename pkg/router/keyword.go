package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stratushealth/concierge/pkg/genie"
	"github.com/stratushealth/concierge/pkg/llms"
	"github.com/stratushealth/concierge/pkg/observability"
	"github.com/stratushealth/concierge/pkg/protocol"
	"github.com/stratushealth/concierge/pkg/tools"
)

// KeywordStrategy is the deterministic supervisor: vocabulary in the
// utterance decides which backends run. Both can match, in which case the
// answer carries one section per backend. When neither matches, the model
// answers directly without tools.
type KeywordStrategy struct {
	provider          llms.Provider
	registry          *tools.ToolRegistry
	analyticsKeywords []string
	lookupKeywords    []string
}

func NewKeywordStrategy(provider llms.Provider, registry *tools.ToolRegistry, analyticsKeywords, lookupKeywords []string) *KeywordStrategy {
	return &KeywordStrategy{
		provider:          provider,
		registry:          registry,
		analyticsKeywords: analyticsKeywords,
		lookupKeywords:    lookupKeywords,
	}
}

func (s *KeywordStrategy) Name() string { return "keyword" }

// Match reports which backends the utterance's vocabulary selects.
func (s *KeywordStrategy) Match(utterance string) (analytics, lookup bool) {
	lower := strings.ToLower(utterance)
	for _, keyword := range s.analyticsKeywords {
		if strings.Contains(lower, keyword) {
			analytics = true
			break
		}
	}
	for _, keyword := range s.lookupKeywords {
		if strings.Contains(lower, keyword) {
			lookup = true
			break
		}
	}
	return analytics, lookup
}

func (s *KeywordStrategy) Route(ctx context.Context, history []*protocol.Message, utterance string) (*Outcome, error) {
	tracer := observability.GetTracer("concierge.router")
	ctx, span := tracer.Start(ctx, observability.SpanRoute,
		trace.WithAttributes(attribute.String(observability.AttrRouterStrategy, s.Name())))
	defer span.End()

	useAnalytics, useLookup := s.Match(utterance)
	slog.Debug("Supervisor decision", "analytics", useAnalytics, "lookup", useLookup)

	if !useAnalytics && !useLookup {
		return s.direct(ctx, history, utterance)
	}

	outcome := &Outcome{}
	var sections []section

	// Registry order: lookup registers before analytics, so it runs first
	// and its section leads the combined answer.
	if useLookup {
		sec, err := s.runLookup(ctx, history, utterance, outcome)
		if err != nil {
			return nil, err
		}
		if sec.body != "" {
			sections = append(sections, sec)
		}
	}
	if useAnalytics {
		if _, err := s.registry.GetTool(genie.ToolName); err == nil {
			sections = append(sections, s.runAnalytics(ctx, utterance, outcome))
		} else {
			slog.Debug("Analytics backend not registered, skipping", "tool", genie.ToolName)
		}
	}

	// Matched vocabulary but no backend could serve it. Answer directly
	// rather than returning an empty report.
	if len(sections) == 0 {
		return s.direct(ctx, history, utterance)
	}

	outcome.Text = compile(sections)
	return outcome, nil
}

// direct answers without touching any backend.
func (s *KeywordStrategy) direct(ctx context.Context, history []*protocol.Message, utterance string) (*Outcome, error) {
	messages := make([]*protocol.Message, 0, len(history)+2)
	messages = append(messages, protocol.SystemMessage(SystemPrompt(RoleMember)))
	messages = append(messages, history...)
	messages = append(messages, protocol.UserMessage(utterance))

	text, _, _, err := s.provider.Generate(ctx, messages, nil)
	if err != nil {
		return nil, err
	}
	return &Outcome{Text: text, Iterations: 1}, nil
}

func (s *KeywordStrategy) runAnalytics(ctx context.Context, utterance string, outcome *Outcome) section {
	outcome.ToolsInvoked = append(outcome.ToolsInvoked, genie.ToolName)

	result, err := s.registry.ExecuteTool(ctx, genie.ToolName, map[string]interface{}{
		"question": utterance,
	})
	if err != nil {
		return section{title: "Analytics", body: fmt.Sprintf("Error: %v", err)}
	}
	if !result.Success {
		return section{title: "Analytics", body: "Error: " + result.Error}
	}
	return section{title: "Analytics", body: result.Content}
}

// runLookup spends one model call to turn the utterance into structured
// lookup arguments, then executes whatever the model selected.
func (s *KeywordStrategy) runLookup(ctx context.Context, history []*protocol.Message, utterance string, outcome *Outcome) (section, error) {
	definitions := s.lookupDefinitions()
	if len(definitions) == 0 {
		return section{}, nil
	}

	messages := make([]*protocol.Message, 0, len(history)+2)
	messages = append(messages, protocol.SystemMessage(SystemPrompt(RoleMember)))
	messages = append(messages, history...)
	messages = append(messages, protocol.UserMessage(utterance))

	text, toolCalls, _, err := s.provider.Generate(ctx, messages, definitions)
	if err != nil {
		return section{}, err
	}
	outcome.Iterations++

	if len(toolCalls) == 0 {
		return section{title: "Lookup", body: text}, nil
	}

	var bodies []string
	for _, call := range toolCalls {
		outcome.ToolsInvoked = append(outcome.ToolsInvoked, call.Name)

		result, err := s.registry.ExecuteTool(ctx, call.Name, call.Args)
		switch {
		case err != nil:
			bodies = append(bodies, fmt.Sprintf("Error: %v", err))
		case !result.Success:
			bodies = append(bodies, "Error: "+result.Error)
		default:
			bodies = append(bodies, result.Content)
		}
	}
	return section{title: "Lookup", body: strings.Join(bodies, "\n\n")}, nil
}

func (s *KeywordStrategy) lookupDefinitions() []llms.ToolDefinition {
	infos := s.registry.ListToolsBySource()["lookup"]
	defs := make([]llms.ToolDefinition, len(infos))
	for i, info := range infos {
		defs[i] = llms.ToolDefinition{
			Name:        info.Name,
			Description: info.Description,
			Parameters:  info.Parameters,
		}
	}
	return defs
}

type section struct {
	title string
	body  string
}

// compile joins backend sections. A single section passes through untouched
// so downstream report parsing still sees the raw shape.
func compile(sections []section) string {
	if len(sections) == 0 {
		return "No results from agents."
	}
	if len(sections) == 1 {
		return sections[0].body
	}

	parts := []string{"## Combined Analysis\n"}
	for _, sec := range sections {
		parts = append(parts, "### "+sec.title)
		parts = append(parts, sec.body)
		parts = append(parts, "")
	}
	return strings.Join(parts, "\n")
}

var _ Strategy = (*KeywordStrategy)(nil)
