package protocol

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of model context.
type Message struct {
	Role       Role        `json:"role"`
	Content    string      `json:"content"`
	ToolCalls  []*ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
}

// ToolCall is a function invocation emitted by the model.
type ToolCall struct {
	ID   string                 `json:"id"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"arguments"`
}

// ToolResult carries a tool's output back into model context.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	Error      string `json:"error,omitempty"`
}

func SystemMessage(text string) *Message {
	return &Message{Role: RoleSystem, Content: text}
}

func UserMessage(text string) *Message {
	return &Message{Role: RoleUser, Content: text}
}

func AssistantMessage(text string) *Message {
	return &Message{Role: RoleAssistant, Content: text}
}

func ToolMessage(result *ToolResult) *Message {
	content := result.Content
	if result.Error != "" {
		content = "Error: " + result.Error
	}
	return &Message{Role: RoleTool, Content: content, ToolCallID: result.ToolCallID}
}

// SessionIDKeyType is a custom type for context keys to avoid collisions.
type SessionIDKeyType string

// SessionIDKey is the context key for storing session IDs across the application.
const SessionIDKey SessionIDKeyType = "concierge:sessionID"
