// Package router decides how a user utterance reaches the backends. Two
// strategies exist: agentic, a tool-calling loop driven by the model, and
// keyword, a deterministic supervisor that matches vocabulary.
package router

import (
	"context"
	"fmt"

	"github.com/stratushealth/concierge/pkg/config"
	"github.com/stratushealth/concierge/pkg/llms"
	"github.com/stratushealth/concierge/pkg/protocol"
	"github.com/stratushealth/concierge/pkg/tools"
)

// Outcome is what a routing strategy produced for one utterance.
type Outcome struct {
	// Text is the answer, possibly partial when Truncated.
	Text string

	// ToolsInvoked lists tool names in invocation order.
	ToolsInvoked []string

	// Iterations is how many model round trips the strategy spent.
	Iterations int

	// Truncated is set when the strategy hit its iteration ceiling before
	// the model produced a final answer.
	Truncated bool
}

// Strategy turns an utterance plus prior history into an outcome.
type Strategy interface {
	Name() string
	Route(ctx context.Context, history []*protocol.Message, utterance string) (*Outcome, error)
}

// New builds the strategy named in configuration.
func New(cfg *config.Config, provider llms.Provider, registry *tools.ToolRegistry) (Strategy, error) {
	switch cfg.Router.Strategy {
	case "agentic":
		return NewAgenticStrategy(provider, registry, cfg.Router.MaxIterations), nil
	case "keyword":
		return NewKeywordStrategy(provider, registry,
			cfg.Router.AnalyticsKeywords, cfg.Router.LookupKeywords), nil
	default:
		return nil, fmt.Errorf("unknown router strategy %q", cfg.Router.Strategy)
	}
}
