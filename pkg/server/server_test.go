package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratushealth/concierge/pkg/config"
	"github.com/stratushealth/concierge/pkg/conversation"
	"github.com/stratushealth/concierge/pkg/protocol"
	"github.com/stratushealth/concierge/pkg/router"
	"github.com/stratushealth/concierge/pkg/session"
	"github.com/stratushealth/concierge/pkg/tools"
)

type cannedStrategy struct {
	text         string
	toolsInvoked []string
	err          error
}

func (s *cannedStrategy) Name() string { return "canned" }
func (s *cannedStrategy) Route(ctx context.Context, history []*protocol.Message, utterance string) (*router.Outcome, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &router.Outcome{Text: s.text, ToolsInvoked: s.toolsInvoked, Iterations: 1}, nil
}

type staticTool struct{ name string }

func (t *staticTool) GetName() string        { return t.name }
func (t *staticTool) GetDescription() string { return "test tool" }
func (t *staticTool) GetInfo() tools.ToolInfo {
	return tools.ToolInfo{Name: t.name, Description: "test tool"}
}
func (t *staticTool) Execute(ctx context.Context, args map[string]interface{}) (tools.ToolResult, error) {
	return tools.ToolResult{Success: true, Content: "ok", ToolName: t.name}, nil
}

type staticSource struct {
	name  string
	names []string
}

func (s *staticSource) GetName() string { return s.name }
func (s *staticSource) GetType() string { return "static" }
func (s *staticSource) DiscoverTools(ctx context.Context) error {
	return nil
}
func (s *staticSource) ListTools() []tools.ToolInfo {
	infos := make([]tools.ToolInfo, len(s.names))
	for i, name := range s.names {
		infos[i] = tools.ToolInfo{Name: name, Description: "test tool"}
	}
	return infos
}
func (s *staticSource) GetTool(name string) (tools.Tool, bool) {
	for _, n := range s.names {
		if n == name {
			return &staticTool{name: name}, true
		}
	}
	return nil, false
}

func testServer(t *testing.T, strategy router.Strategy) *Server {
	t.Helper()

	cfg := &config.Config{}
	cfg.SetDefaults()

	reg := tools.NewToolRegistry()
	require.NoError(t, reg.RegisterSource(context.Background(), &staticSource{
		name:  "lookup",
		names: []string{"lookup_member", "lookup_claims"},
	}))
	require.NoError(t, reg.RegisterSource(context.Background(), &staticSource{
		name:  "analytics",
		names: []string{"genie_query"},
	}))

	manager := conversation.NewManager(strategy, session.NewInMemoryService(0), nil, 15)
	return New(cfg, manager, reg)
}

func postChat(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestChatReturnsAnswer(t *testing.T) {
	server := testServer(t, &cannedStrategy{
		text:         "Member ID: M1001\nName: Ana Flores",
		toolsInvoked: []string{"lookup_member"},
	})
	handler := server.Handler()

	rec := postChat(t, handler, `{"session_id": "s1", "message": "find member M1001"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, "Lookup", resp.ToolUsed)
	assert.Contains(t, resp.Answer, "Ana Flores")
	assert.Equal(t, []string{"lookup_member"}, resp.ToolsInvoked)
	assert.Equal(t, 1, resp.Iterations)
}

func TestChatGeneratesSessionID(t *testing.T) {
	server := testServer(t, &cannedStrategy{text: "hello"})

	rec := postChat(t, server.Handler(), `{"message": "hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.SessionID, 36)
}

func TestChatRequiresMessage(t *testing.T) {
	server := testServer(t, &cannedStrategy{text: "hello"})

	rec := postChat(t, server.Handler(), `{"session_id": "s1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postChat(t, server.Handler(), `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatCarriesAnalyticsTable(t *testing.T) {
	report := "## Genie Analysis\n**Query:** status distribution\n**Status:** COMPLETED\n\n" +
		"### Result 1\n**SQL Query:**\n```sql\nSELECT claim_status, COUNT(*) FROM claims GROUP BY claim_status\n```\n" +
		"**Data (2 rows):**\n• Row 1: ['Approved', '120']\n• Row 2: ['Denied', '34']\n"
	server := testServer(t, &cannedStrategy{text: report, toolsInvoked: []string{"genie_query"}})

	rec := postChat(t, server.Handler(), `{"session_id": "s1", "message": "status distribution"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Analytics", resp.ToolUsed)
	assert.Equal(t, "status distribution", resp.Headline)
	assert.Contains(t, resp.GeneratedQuery, "GROUP BY claim_status")
	require.NotNil(t, resp.Table)
	assert.Equal(t, []string{"Status", "Count"}, resp.Table.Columns)
	assert.Len(t, resp.Table.Rows, 2)
}

func TestChatApologyOnFailure(t *testing.T) {
	server := testServer(t, &cannedStrategy{err: fmt.Errorf("endpoint down")})

	rec := postChat(t, server.Handler(), `{"session_id": "s1", "message": "anything"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Error", resp.ToolUsed)
	assert.Contains(t, resp.Answer, "I apologize, but I encountered an error")
}

func TestToolsEndpoint(t *testing.T) {
	server := testServer(t, &cannedStrategy{})

	req := httptest.NewRequest(http.MethodGet, "/v1/tools", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Tools []tools.ToolInfo `json:"tools"`
		Count int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Count)
	assert.Equal(t, "lookup_member", resp.Tools[0].Name)
	assert.Equal(t, "genie_query", resp.Tools[2].Name)
}

func TestHealthEndpoint(t *testing.T) {
	server := testServer(t, &cannedStrategy{})
	server.MCPURL = "https://example.databricks.com/api/2.0/mcp/genie/space-1"

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.EqualValues(t, 3, resp["tools_count"])
	assert.Contains(t, resp["mcp_url"], "/api/2.0/mcp/genie/")
}

func TestHistoryAndDeleteSession(t *testing.T) {
	server := testServer(t, &cannedStrategy{text: "hello"})
	handler := server.Handler()

	rec := postChat(t, handler, `{"session_id": "s1", "message": "hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/history", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		SessionID string              `json:"session_id"`
		Messages  []*protocol.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, protocol.RoleUser, resp.Messages[0].Role)

	req = httptest.NewRequest(http.MethodDelete, "/v1/sessions/s1", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/history", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Messages)
}

func TestMetricsRouteFollowsConfig(t *testing.T) {
	server := testServer(t, &cannedStrategy{})
	server.cfg.Server.MetricsEnabled = false

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	server.cfg.Server.MetricsEnabled = true
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
