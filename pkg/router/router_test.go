package router

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratushealth/concierge/pkg/config"
	"github.com/stratushealth/concierge/pkg/llms"
	"github.com/stratushealth/concierge/pkg/protocol"
	"github.com/stratushealth/concierge/pkg/tools"
)

func configWith(strategy string) *config.Config {
	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.Router.Strategy = strategy
	return cfg
}

// scriptedProvider replays canned responses and records the messages it saw.
type scriptedProvider struct {
	responses []scriptedResponse
	calls     [][]*protocol.Message
}

type scriptedResponse struct {
	text      string
	toolCalls []*protocol.ToolCall
	err       error
}

func (p *scriptedProvider) Generate(ctx context.Context, messages []*protocol.Message, defs []llms.ToolDefinition) (string, []*protocol.ToolCall, int, error) {
	p.calls = append(p.calls, messages)
	if len(p.responses) == 0 {
		return "", nil, 0, fmt.Errorf("no scripted response left")
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp.text, resp.toolCalls, 0, resp.err
}

func (p *scriptedProvider) GetModelName() string { return "scripted" }
func (p *scriptedProvider) Close() error         { return nil }

type fakeTool struct {
	name    string
	content string
	fail    string
	gotArgs map[string]interface{}
}

func (t *fakeTool) GetName() string        { return t.name }
func (t *fakeTool) GetDescription() string { return "test tool " + t.name }
func (t *fakeTool) GetInfo() tools.ToolInfo {
	return tools.ToolInfo{Name: t.name, Description: t.GetDescription()}
}
func (t *fakeTool) Execute(ctx context.Context, args map[string]interface{}) (tools.ToolResult, error) {
	t.gotArgs = args
	if t.fail != "" {
		return tools.ToolResult{Success: false, Error: t.fail, ToolName: t.name}, nil
	}
	return tools.ToolResult{Success: true, Content: t.content, ToolName: t.name}, nil
}

type fakeSource struct {
	name  string
	tools []*fakeTool
}

func (s *fakeSource) GetName() string { return s.name }
func (s *fakeSource) GetType() string { return "fake" }
func (s *fakeSource) DiscoverTools(ctx context.Context) error {
	return nil
}
func (s *fakeSource) ListTools() []tools.ToolInfo {
	infos := make([]tools.ToolInfo, len(s.tools))
	for i, t := range s.tools {
		infos[i] = t.GetInfo()
	}
	return infos
}
func (s *fakeSource) GetTool(name string) (tools.Tool, bool) {
	for _, t := range s.tools {
		if t.name == name {
			return t, true
		}
	}
	return nil, false
}

func testRegistry(t *testing.T, sources ...*fakeSource) *tools.ToolRegistry {
	t.Helper()
	reg := tools.NewToolRegistry()
	for _, source := range sources {
		require.NoError(t, reg.RegisterSource(context.Background(), source))
	}
	return reg
}

func TestAgenticDirectAnswer(t *testing.T) {
	provider := &scriptedProvider{responses: []scriptedResponse{
		{text: "A deductible is your annual out-of-pocket threshold."},
	}}
	reg := testRegistry(t, &fakeSource{name: "lookup", tools: []*fakeTool{{name: "lookup_member"}}})

	strategy := NewAgenticStrategy(provider, reg, 5)
	outcome, err := strategy.Route(context.Background(), nil, "what is a deductible?")

	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Iterations)
	assert.False(t, outcome.Truncated)
	assert.Empty(t, outcome.ToolsInvoked)
	assert.Contains(t, outcome.Text, "deductible")

	// System prompt leads, the utterance closes.
	first := provider.calls[0]
	assert.Equal(t, protocol.RoleSystem, first[0].Role)
	assert.Equal(t, "what is a deductible?", first[len(first)-1].Content)
}

func TestAgenticToolLoop(t *testing.T) {
	member := &fakeTool{name: "lookup_member", content: "Member ID: M1001\nName: Ana Flores"}
	reg := testRegistry(t, &fakeSource{name: "lookup", tools: []*fakeTool{member}})

	provider := &scriptedProvider{responses: []scriptedResponse{
		{toolCalls: []*protocol.ToolCall{{
			ID:   "call-1",
			Name: "lookup_member",
			Args: map[string]interface{}{"member_id": "M1001"},
		}}},
		{text: "Ana Flores is an active member."},
	}}

	strategy := NewAgenticStrategy(provider, reg, 5)
	outcome, err := strategy.Route(context.Background(), nil, "find member M1001")

	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Iterations)
	assert.Equal(t, []string{"lookup_member"}, outcome.ToolsInvoked)
	assert.Equal(t, "Ana Flores is an active member.", outcome.Text)
	assert.Equal(t, map[string]interface{}{"member_id": "M1001"}, member.gotArgs)

	// The second model call must carry the tool result back into context.
	second := provider.calls[1]
	last := second[len(second)-1]
	assert.Equal(t, protocol.RoleTool, last.Role)
	assert.Equal(t, "call-1", last.ToolCallID)
	assert.Contains(t, last.Content, "Member ID: M1001")
}

func TestAgenticToolFailureFlowsBack(t *testing.T) {
	broken := &fakeTool{name: "lookup_member", fail: "member database unreachable"}
	reg := testRegistry(t, &fakeSource{name: "lookup", tools: []*fakeTool{broken}})

	provider := &scriptedProvider{responses: []scriptedResponse{
		{toolCalls: []*protocol.ToolCall{{ID: "call-1", Name: "lookup_member", Args: map[string]interface{}{}}}},
		{text: "I could not reach the member database."},
	}}

	strategy := NewAgenticStrategy(provider, reg, 5)
	outcome, err := strategy.Route(context.Background(), nil, "find member M1001")

	require.NoError(t, err)
	second := provider.calls[1]
	last := second[len(second)-1]
	assert.Equal(t, protocol.RoleTool, last.Role)
	assert.Contains(t, last.Content, "Error: member database unreachable")
	assert.Equal(t, "I could not reach the member database.", outcome.Text)
}

func TestAgenticIterationCeiling(t *testing.T) {
	tool := &fakeTool{name: "lookup_member", content: "Member ID: M1001"}
	reg := testRegistry(t, &fakeSource{name: "lookup", tools: []*fakeTool{tool}})

	loop := scriptedResponse{
		text: "Checking again.",
		toolCalls: []*protocol.ToolCall{{
			ID: "c", Name: "lookup_member", Args: map[string]interface{}{},
		}},
	}
	provider := &scriptedProvider{responses: []scriptedResponse{loop, loop, loop}}

	strategy := NewAgenticStrategy(provider, reg, 3)
	outcome, err := strategy.Route(context.Background(), nil, "find member M1001")

	require.NoError(t, err)
	assert.True(t, outcome.Truncated)
	assert.Equal(t, 3, outcome.Iterations)
	assert.Len(t, outcome.ToolsInvoked, 3)
	assert.Equal(t, "Checking again.", outcome.Text)
}

func TestAgenticPropagatesProviderError(t *testing.T) {
	provider := &scriptedProvider{responses: []scriptedResponse{
		{err: fmt.Errorf("endpoint returned 500")},
	}}
	reg := testRegistry(t)

	strategy := NewAgenticStrategy(provider, reg, 5)
	_, err := strategy.Route(context.Background(), nil, "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint returned 500")
}

func keywordFixture(t *testing.T, provider llms.Provider, genieContent string) *KeywordStrategy {
	t.Helper()
	reg := testRegistry(t,
		&fakeSource{name: "lookup", tools: []*fakeTool{
			{name: "lookup_member", content: "Member ID: M1001"},
		}},
		&fakeSource{name: "analytics", tools: []*fakeTool{
			{name: "genie_query", content: genieContent},
		}},
	)
	return NewKeywordStrategy(provider, reg,
		[]string{"analyze", "show", "what", "how many", "distribution", "average",
			"total", "count", "data", "claims", "members", "providers", "status", "amount"},
		[]string{"lookup", "find", "get", "member", "claim", "provider", "eligibility"})
}

func TestKeywordMatch(t *testing.T) {
	strategy := keywordFixture(t, &scriptedProvider{}, "")

	analytics, lookup := strategy.Match("What is the status distribution?")
	assert.True(t, analytics)
	assert.False(t, lookup)

	analytics, lookup = strategy.Match("find eligibility for M1001")
	assert.False(t, analytics)
	assert.True(t, lookup)

	analytics, lookup = strategy.Match("show claims for member M1001")
	assert.True(t, analytics)
	assert.True(t, lookup)

	analytics, lookup = strategy.Match("hello there")
	assert.False(t, analytics)
	assert.False(t, lookup)
}

func TestKeywordAnalyticsOnly(t *testing.T) {
	report := "## Genie Analysis\n**Query:** status distribution\n**Status:** COMPLETED"
	strategy := keywordFixture(t, &scriptedProvider{}, report)

	outcome, err := strategy.Route(context.Background(), nil, "status distribution")
	require.NoError(t, err)
	assert.Equal(t, []string{"genie_query"}, outcome.ToolsInvoked)
	// A single backend's output passes through unwrapped.
	assert.Equal(t, report, outcome.Text)
}

func TestKeywordLookupOnly(t *testing.T) {
	provider := &scriptedProvider{responses: []scriptedResponse{
		{toolCalls: []*protocol.ToolCall{{
			ID: "c1", Name: "lookup_member", Args: map[string]interface{}{"member_id": "M1001"},
		}}},
	}}
	strategy := keywordFixture(t, provider, "")

	outcome, err := strategy.Route(context.Background(), nil, "find eligibility for M1001")
	require.NoError(t, err)
	assert.Equal(t, []string{"lookup_member"}, outcome.ToolsInvoked)
	assert.Equal(t, "Member ID: M1001", outcome.Text)
	assert.Equal(t, 1, outcome.Iterations)
}

func TestKeywordBothBackends(t *testing.T) {
	provider := &scriptedProvider{responses: []scriptedResponse{
		{toolCalls: []*protocol.ToolCall{{
			ID: "c1", Name: "lookup_member", Args: map[string]interface{}{"member_id": "M1001"},
		}}},
	}}
	strategy := keywordFixture(t, provider, "## Genie Analysis\n10 claims")

	outcome, err := strategy.Route(context.Background(), nil, "show claims for member M1001")
	require.NoError(t, err)
	// Lookup registers before analytics; invocation and section order follow.
	assert.Equal(t, []string{"lookup_member", "genie_query"}, outcome.ToolsInvoked)
	assert.Contains(t, outcome.Text, "## Combined Analysis")
	assert.Contains(t, outcome.Text, "Member ID: M1001")
	lookupAt := strings.Index(outcome.Text, "### Lookup")
	analyticsAt := strings.Index(outcome.Text, "### Analytics")
	require.NotEqual(t, -1, lookupAt)
	require.NotEqual(t, -1, analyticsAt)
	assert.Less(t, lookupAt, analyticsAt)
}

func TestKeywordDirectAnswer(t *testing.T) {
	provider := &scriptedProvider{responses: []scriptedResponse{
		{text: "Hello! How can I help you today?"},
	}}
	strategy := keywordFixture(t, provider, "")

	outcome, err := strategy.Route(context.Background(), nil, "hi")
	require.NoError(t, err)
	assert.Empty(t, outcome.ToolsInvoked)
	assert.Equal(t, "Hello! How can I help you today?", outcome.Text)
}

func TestKeywordFallsBackWhenNoToolsRegistered(t *testing.T) {
	provider := &scriptedProvider{responses: []scriptedResponse{
		{text: "There were 154 claims last month."},
	}}
	strategy := NewKeywordStrategy(provider, testRegistry(t),
		[]string{"claims"}, []string{"member"})

	outcome, err := strategy.Route(context.Background(), nil, "how many claims last month?")
	require.NoError(t, err)
	assert.Empty(t, outcome.ToolsInvoked)
	assert.Equal(t, "There were 154 claims last month.", outcome.Text)
}

func TestNewSelectsStrategy(t *testing.T) {
	provider := &scriptedProvider{}
	reg := testRegistry(t)

	agentic, err := New(configWith("agentic"), provider, reg)
	require.NoError(t, err)
	assert.Equal(t, "agentic", agentic.Name())

	keyword, err := New(configWith("keyword"), provider, reg)
	require.NoError(t, err)
	assert.Equal(t, "keyword", keyword.Name())

	_, err = New(configWith("coinflip"), provider, reg)
	assert.Error(t, err)
}

func TestSystemPromptFallsBackToMember(t *testing.T) {
	assert.Equal(t, SystemPrompt(RoleMember), SystemPrompt("intruder"))
	assert.Contains(t, SystemPrompt(RoleAdmin), "administrators")
	assert.Contains(t, SystemPrompt(RoleMember), "genie_query")
}
