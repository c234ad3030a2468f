package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func knowledgeServer(t *testing.T, mints *atomic.Int32, lifetimeMillis int64) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/2.0/token/create", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer parent-token", r.Header.Get("Authorization"))

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.EqualValues(t, 3600, payload["lifetime_seconds"])

		n := mints.Add(1)
		fmt.Fprintf(w, `{
			"token_value": "minted-%d",
			"token_info": {"token_id": "t-%d", "expiry_time": %d}
		}`, n, n, time.Now().Add(time.Duration(lifetimeMillis)*time.Millisecond).UnixMilli())
	})
	mux.HandleFunc("POST /serving-endpoints/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Authorization"), "Bearer minted-")

		var req endpointRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ka-test-endpoint", req.Model)

		fmt.Fprint(w, `{"choices": [{"message": {"role": "assistant", "content": "Prior authorization requires form PA-12."}}]}`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testKnowledgeSource(t *testing.T, mints *atomic.Int32, lifetimeMillis int64) *Source {
	t.Helper()

	server := knowledgeServer(t, mints, lifetimeMillis)
	minter := NewTokenMinter(server.URL, "parent-token", DefaultTokenLifetime)
	return NewSource(Config{Host: server.URL, EndpointID: "ka-test-endpoint"}, minter)
}

func TestDiscoverMintsCredential(t *testing.T) {
	var mints atomic.Int32
	source := testKnowledgeSource(t, &mints, time.Hour.Milliseconds())

	require.NoError(t, source.DiscoverTools(context.Background()))
	assert.Equal(t, int32(1), mints.Load())
	assert.NoError(t, source.HealthCheck(context.Background()))
}

func TestDiscoverFailsWhenMintFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error_code": "PERMISSION_DENIED"}`)
	}))
	t.Cleanup(server.Close)

	minter := NewTokenMinter(server.URL, "parent-token", DefaultTokenLifetime)
	source := NewSource(Config{Host: server.URL, EndpointID: "ka-test-endpoint"}, minter)

	err := source.DiscoverTools(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to mint")
	assert.Error(t, source.HealthCheck(context.Background()))
}

func TestSearchDocuments(t *testing.T) {
	var mints atomic.Int32
	source := testKnowledgeSource(t, &mints, time.Hour.Milliseconds())
	require.NoError(t, source.DiscoverTools(context.Background()))

	tool, exists := source.GetTool(ToolName)
	require.True(t, exists)

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"query": "what is required for prior authorization",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, result.Content, "Knowledge Analysis:")
	assert.Contains(t, result.Content, "form PA-12")
	assert.Equal(t, ToolName, result.Metadata["tool_used"])
}

func TestExpiredCredentialIsRefreshed(t *testing.T) {
	var mints atomic.Int32
	// Tokens expire immediately so the next call must re-mint.
	source := testKnowledgeSource(t, &mints, 1)
	require.NoError(t, source.DiscoverTools(context.Background()))

	tool, _ := source.GetTool(ToolName)
	result, err := tool.Execute(context.Background(), map[string]interface{}{"query": "benefits"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int32(2), mints.Load())
}

func TestSearchMissingQuery(t *testing.T) {
	var mints atomic.Int32
	source := testKnowledgeSource(t, &mints, time.Hour.Milliseconds())

	tool, _ := source.GetTool(ToolName)
	result, err := tool.Execute(context.Background(), map[string]interface{}{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "query is required")
}

func TestCredentialExpired(t *testing.T) {
	assert.True(t, (*Credential)(nil).Expired())
	assert.True(t, (&Credential{}).Expired())
	assert.True(t, (&Credential{Value: "x", ExpiresAt: time.Now().Add(30 * time.Second)}).Expired())
	assert.False(t, (&Credential{Value: "x", ExpiresAt: time.Now().Add(time.Hour)}).Expired())
}
