package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stratushealth/concierge/pkg/httpclient"
)

const (
	// defaultSSEResponseTimeout bounds SSE reads; gateway analytics calls can
	// run for minutes while the warehouse executes.
	defaultSSEResponseTimeout = 5 * time.Minute

	mcpProtocolVersion = "2024-11-05"
)

// GenieGatewayURL returns the workspace MCP endpoint for an analytics space.
func GenieGatewayURL(host, spaceID string) string {
	return fmt.Sprintf("%s/api/2.0/mcp/genie/%s", normalizeHost(host), spaceID)
}

// FunctionsGatewayURL returns the workspace MCP endpoint for catalog functions.
func FunctionsGatewayURL(host, catalog, schema string) string {
	return fmt.Sprintf("%s/api/2.0/mcp/functions/%s/%s", normalizeHost(host), catalog, schema)
}

func normalizeHost(host string) string {
	host = strings.TrimSuffix(host, "/")
	if !strings.HasPrefix(host, "http") {
		host = "https://" + host
	}
	return host
}

// MCPConfig configures an MCP tool source.
type MCPConfig struct {
	// Name identifies this source.
	Name string

	// URL is the MCP server URL (for HTTP transport).
	URL string

	// BearerToken authenticates HTTP requests to the workspace gateway.
	BearerToken string

	// Command for stdio transport; when set, stdio is used instead of HTTP.
	Command string

	// Args for stdio transport.
	Args []string

	// Env for stdio transport.
	Env map[string]string

	// MaxRetries for HTTP requests (default: 3).
	MaxRetries int

	// SSETimeout for SSE response reading (default: 5m).
	SSETimeout time.Duration
}

// MCPToolSource serves tools from an MCP server, either the workspace HTTP
// gateway or a local subprocess.
type MCPToolSource struct {
	cfg MCPConfig

	mu         sync.Mutex
	client     *client.Client
	httpClient *httpclient.Client
	sessionID  string
	sessionMu  sync.RWMutex
	tools      map[string]*mcpTool
	order      []string
	connected  bool
}

func NewMCPToolSource(cfg MCPConfig) (*MCPToolSource, error) {
	if cfg.URL == "" && cfg.Command == "" {
		return nil, fmt.Errorf("either url or command is required")
	}

	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.SSETimeout == 0 {
		cfg.SSETimeout = defaultSSEResponseTimeout
	}

	return &MCPToolSource{
		cfg:   cfg,
		tools: make(map[string]*mcpTool),
	}, nil
}

func (s *MCPToolSource) GetName() string {
	return s.cfg.Name
}

func (s *MCPToolSource) GetType() string {
	return "mcp"
}

func (s *MCPToolSource) DiscoverTools(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}

	if s.cfg.Command != "" {
		return s.connectStdio(ctx)
	}
	return s.connectHTTP(ctx)
}

func (s *MCPToolSource) ListTools() []ToolInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]ToolInfo, 0, len(s.order))
	for _, name := range s.order {
		infos = append(infos, s.tools[name].GetInfo())
	}
	return infos
}

func (s *MCPToolSource) GetTool(name string) (Tool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tool, exists := s.tools[name]
	return tool, exists
}

func (s *MCPToolSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		err := s.client.Close()
		s.client = nil
		s.connected = false
		return err
	}
	s.httpClient = nil
	s.connected = false
	return nil
}

func (s *MCPToolSource) connectStdio(ctx context.Context) error {
	mcpClient, err := client.NewStdioMCPClient(
		s.cfg.Command,
		convertEnv(s.cfg.Env),
		s.cfg.Args...,
	)
	if err != nil {
		return fmt.Errorf("failed to create MCP client: %w", err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to start MCP client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "concierge",
		Version: "1.0.0",
	}
	initReq.Params.ProtocolVersion = mcpProtocolVersion

	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("failed to initialize MCP: %w", err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("failed to list tools: %w", err)
	}

	for _, remoteTool := range listResp.Tools {
		s.addTool(&mcpTool{
			source:   s,
			name:     remoteTool.Name,
			desc:     remoteTool.Description,
			schema:   convertSchema(remoteTool.InputSchema),
			useStdio: true,
		})
	}

	s.client = mcpClient
	s.connected = true

	slog.Info("Connected to MCP server (stdio)",
		"source", s.cfg.Name,
		"command", s.cfg.Command,
		"tools", len(s.tools),
	)

	return nil
}

func (s *MCPToolSource) connectHTTP(ctx context.Context) error {
	s.httpClient = httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
		httpclient.WithMaxRetries(s.cfg.MaxRetries),
		httpclient.WithBaseDelay(2*time.Second),
	)

	initResp, err := s.makeHTTPRequest(ctx, "initialize", map[string]any{
		"protocolVersion": mcpProtocolVersion,
		"clientInfo": map[string]any{
			"name":    "concierge",
			"version": "1.0.0",
		},
		"capabilities": map[string]any{},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize MCP: %w", err)
	}
	if initResp.Error != nil {
		return fmt.Errorf("MCP init error: %s", initResp.Error.Message)
	}

	listResp, err := s.makeHTTPRequest(ctx, "tools/list", nil)
	if err != nil {
		return fmt.Errorf("failed to list tools: %w", err)
	}
	if listResp.Error != nil {
		return fmt.Errorf("MCP list error: %s", listResp.Error.Message)
	}

	resultMap, ok := listResp.Result.(map[string]any)
	if !ok {
		return fmt.Errorf("unexpected result type from tools/list")
	}

	toolsList, ok := resultMap["tools"].([]any)
	if !ok {
		return fmt.Errorf("missing tools in tools/list response")
	}

	for _, toolRaw := range toolsList {
		toolMap, ok := toolRaw.(map[string]any)
		if !ok {
			continue
		}

		name, _ := toolMap["name"].(string)
		desc, _ := toolMap["description"].(string)

		var schema map[string]any
		if inputSchema, ok := toolMap["inputSchema"].(map[string]any); ok {
			schema = inputSchema
		}

		s.addTool(&mcpTool{
			source: s,
			name:   name,
			desc:   desc,
			schema: schema,
		})
	}

	s.connected = true

	slog.Info("Connected to MCP server (HTTP)",
		"source", s.cfg.Name,
		"url", s.cfg.URL,
		"tools", len(s.tools),
	)

	return nil
}

func (s *MCPToolSource) addTool(tool *mcpTool) {
	if _, exists := s.tools[tool.name]; exists {
		return
	}
	s.tools[tool.name] = tool
	s.order = append(s.order, tool.name)
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *MCPToolSource) makeHTTPRequest(ctx context.Context, method string, params any) (*jsonRPCResponse, error) {
	req := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", s.cfg.URL, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	if s.cfg.BearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.cfg.BearerToken)
	}

	s.sessionMu.RLock()
	sessionID := s.sessionID
	s.sessionMu.RUnlock()
	if sessionID != "" {
		httpReq.Header.Set("mcp-session-id", sessionID)
	}

	httpResp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if newSessionID := httpResp.Header.Get("mcp-session-id"); newSessionID != "" {
		s.sessionMu.Lock()
		s.sessionID = newSessionID
		s.sessionMu.Unlock()
	}

	if httpResp.StatusCode != http.StatusOK {
		responseBody, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("HTTP error %d: %s (response: %s)", httpResp.StatusCode, httpResp.Status, string(responseBody))
	}

	contentType := httpResp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/event-stream") {
		return s.readSSEResponse(httpResp)
	}

	responseBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp jsonRPCResponse
	if err := json.Unmarshal(responseBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &resp, nil
}

// readSSEResponse reads the first complete JSON-RPC response from an SSE
// stream.
func (s *MCPToolSource) readSSEResponse(httpResp *http.Response) (*jsonRPCResponse, error) {
	type result struct {
		response *jsonRPCResponse
		err      error
	}
	resultChan := make(chan result, 1)

	go func() {
		defer httpResp.Body.Close()

		reader := bufio.NewReader(httpResp.Body)
		var currentData strings.Builder

		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				break
			}

			lineStr := strings.TrimSpace(string(line))

			// Empty line signals end of event
			if lineStr == "" {
				if currentData.Len() > 0 {
					var resp jsonRPCResponse
					if parseErr := json.Unmarshal([]byte(currentData.String()), &resp); parseErr == nil {
						resultChan <- result{response: &resp}
						return
					}
					currentData.Reset()
				}
				continue
			}

			if strings.HasPrefix(lineStr, "data:") {
				data := strings.TrimSpace(strings.TrimPrefix(lineStr, "data:"))
				currentData.WriteString(data)
			}
		}

		if currentData.Len() > 0 {
			var resp jsonRPCResponse
			if parseErr := json.Unmarshal([]byte(currentData.String()), &resp); parseErr == nil {
				resultChan <- result{response: &resp}
				return
			}
		}

		resultChan <- result{err: fmt.Errorf("SSE stream ended without complete message")}
	}()

	select {
	case res := <-resultChan:
		if res.err != nil {
			return nil, res.err
		}
		return res.response, nil
	case <-time.After(s.cfg.SSETimeout):
		return nil, fmt.Errorf("timeout reading SSE response after %v", s.cfg.SSETimeout)
	}
}

func convertEnv(env map[string]string) []string {
	if env == nil {
		return nil
	}
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}

// mcpTool adapts a remote MCP tool to the Tool interface.
type mcpTool struct {
	source   *MCPToolSource
	name     string
	desc     string
	schema   map[string]any
	useStdio bool
}

var _ Tool = (*mcpTool)(nil)

func (t *mcpTool) GetName() string {
	return t.name
}

func (t *mcpTool) GetDescription() string {
	return t.desc
}

func (t *mcpTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        t.name,
		Description: t.desc,
		Parameters:  t.schema,
		Source:      t.source.GetName(),
	}
}

func (t *mcpTool) Execute(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	var content string
	var err error

	if t.useStdio {
		content, err = t.callStdio(ctx, args)
	} else {
		content, err = t.callHTTP(ctx, args)
	}

	if err != nil {
		return ToolResult{
			Success:  false,
			Error:    err.Error(),
			ToolName: t.name,
		}, nil
	}

	return ToolResult{
		Success:  true,
		Content:  content,
		ToolName: t.name,
		Metadata: map[string]interface{}{MetadataToolUsed: t.name},
	}, nil
}

func (t *mcpTool) callStdio(ctx context.Context, args map[string]interface{}) (string, error) {
	t.source.mu.Lock()
	mcpClient := t.source.client
	t.source.mu.Unlock()

	if mcpClient == nil {
		return "", fmt.Errorf("MCP client not connected")
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = t.name
	req.Params.Arguments = args

	resp, err := mcpClient.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("MCP call failed: %w", err)
	}

	var texts []string
	for _, content := range resp.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			texts = append(texts, textContent.Text)
		}
	}
	joined := strings.Join(texts, "\n")

	if resp.IsError {
		if joined == "" {
			joined = "unknown error"
		}
		return "", fmt.Errorf("%s", joined)
	}

	return joined, nil
}

func (t *mcpTool) callHTTP(ctx context.Context, args map[string]interface{}) (string, error) {
	resp, err := t.source.makeHTTPRequest(ctx, "tools/call", map[string]any{
		"name":      t.name,
		"arguments": args,
	})
	if err != nil {
		return "", fmt.Errorf("MCP call failed: %w", err)
	}

	if resp.Error != nil {
		return "", fmt.Errorf("%s", resp.Error.Message)
	}

	resultMap, ok := resp.Result.(map[string]any)
	if !ok {
		data, _ := json.Marshal(resp.Result)
		return string(data), nil
	}

	var texts []string
	if content, ok := resultMap["content"].([]any); ok {
		for _, c := range content {
			if cm, ok := c.(map[string]any); ok {
				if text, ok := cm["text"].(string); ok {
					texts = append(texts, text)
				}
			}
		}
	}
	joined := strings.Join(texts, "\n")

	if isError, _ := resultMap["isError"].(bool); isError {
		if joined == "" {
			joined = "unknown error"
		}
		return "", fmt.Errorf("%s", joined)
	}

	return joined, nil
}

func convertSchema(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}

	return result
}

var _ ToolSource = (*MCPToolSource)(nil)
