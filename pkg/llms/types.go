package llms

import (
	"context"

	"github.com/stratushealth/concierge/pkg/protocol"
)

// ToolDefinition describes a callable function advertised to the model.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Provider generates a completion for the given context. Returns the text
// content, any tool calls the model requested, and total tokens used.
type Provider interface {
	Generate(ctx context.Context, messages []*protocol.Message, tools []ToolDefinition) (string, []*protocol.ToolCall, int, error)
	GetModelName() string
	Close() error
}
