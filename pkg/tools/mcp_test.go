package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mcpTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jsonRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("mcp-session-id", "sess-42")
		w.Header().Set("Content-Type", "application/json")

		switch req.Method {
		case "initialize":
			json.NewEncoder(w).Encode(jsonRPCResponse{
				JSONRPC: "2.0", ID: req.ID,
				Result: map[string]any{"protocolVersion": mcpProtocolVersion},
			})
		case "tools/list":
			json.NewEncoder(w).Encode(jsonRPCResponse{
				JSONRPC: "2.0", ID: req.ID,
				Result: map[string]any{
					"tools": []any{
						map[string]any{
							"name":        "query_space",
							"description": "Run a query against the space",
							"inputSchema": map[string]any{"type": "object"},
						},
					},
				},
			})
		case "tools/call":
			// session id must be echoed back after initialize
			assert.Equal(t, "sess-42", r.Header.Get("mcp-session-id"))
			json.NewEncoder(w).Encode(jsonRPCResponse{
				JSONRPC: "2.0", ID: req.ID,
				Result: map[string]any{
					"content": []any{
						map[string]any{"type": "text", "text": "42 rows"},
					},
				},
			})
		default:
			t.Fatalf("unexpected method %s", req.Method)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestMCPSourceDiscoverAndCall(t *testing.T) {
	server := mcpTestServer(t)

	source, err := NewMCPToolSource(MCPConfig{
		Name:        "analytics",
		URL:         server.URL,
		BearerToken: "test-token",
	})
	require.NoError(t, err)

	require.NoError(t, source.DiscoverTools(context.Background()))

	infos := source.ListTools()
	require.Len(t, infos, 1)
	assert.Equal(t, "query_space", infos[0].Name)

	tool, exists := source.GetTool("query_space")
	require.True(t, exists)

	result, err := tool.Execute(context.Background(), map[string]interface{}{"query": "how many claims"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "42 rows", result.Content)
	assert.Equal(t, "query_space", result.Metadata[MetadataToolUsed])
}

func TestMCPSourceCallError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jsonRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "initialize":
			json.NewEncoder(w).Encode(jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{}})
		case "tools/list":
			json.NewEncoder(w).Encode(jsonRPCResponse{
				JSONRPC: "2.0", ID: req.ID,
				Result: map[string]any{"tools": []any{
					map[string]any{"name": "query_space", "description": ""},
				}},
			})
		case "tools/call":
			json.NewEncoder(w).Encode(jsonRPCResponse{
				JSONRPC: "2.0", ID: req.ID,
				Result: map[string]any{
					"isError": true,
					"content": []any{map[string]any{"type": "text", "text": "space not found"}},
				},
			})
		}
	}))
	t.Cleanup(server.Close)

	source, err := NewMCPToolSource(MCPConfig{Name: "analytics", URL: server.URL})
	require.NoError(t, err)
	require.NoError(t, source.DiscoverTools(context.Background()))

	tool, _ := source.GetTool("query_space")
	result, err := tool.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "space not found")
}

func TestGatewayURLs(t *testing.T) {
	assert.Equal(t,
		"https://adb-test.azuredatabricks.net/api/2.0/mcp/genie/space-123",
		GenieGatewayURL("adb-test.azuredatabricks.net", "space-123"))
	assert.Equal(t,
		"https://adb-test.azuredatabricks.net/api/2.0/mcp/functions/my_catalog/payer_silver",
		FunctionsGatewayURL("https://adb-test.azuredatabricks.net/", "my_catalog", "payer_silver"))
}

func TestSchemaFor(t *testing.T) {
	type args struct {
		MemberID string `json:"member_id" jsonschema:"description=Member identifier"`
		Limit    int    `json:"limit,omitempty"`
	}

	schema := SchemaFor(&args{})
	require.NotNil(t, schema)
	assert.Equal(t, "object", schema["type"])

	props, ok := schema["properties"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, props, "member_id")
	assert.Contains(t, props, "limit")
}
