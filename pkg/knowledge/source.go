package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/stratushealth/concierge/pkg/httpclient"
	"github.com/stratushealth/concierge/pkg/tools"
)

// ToolName is the registered name of the document search tool.
const ToolName = "search_documents"

const DefaultTokenLifetime = 3600 * time.Second

type searchArgs struct {
	Query string `json:"query" jsonschema:"description=Natural language query for knowledge analysis"`
}

// Config describes the document endpoint.
type Config struct {
	Host          string
	EndpointID    string
	TokenLifetime time.Duration
}

// Source exposes the document assistant endpoint as a tool source. A
// short-lived credential is minted at discovery; failure to mint makes the
// source unavailable rather than surfacing per-call errors.
type Source struct {
	cfg        Config
	minter     *TokenMinter
	httpClient *httpclient.Client

	mu         sync.Mutex
	credential *Credential
}

func NewSource(cfg Config, minter *TokenMinter) *Source {
	host := strings.TrimSuffix(cfg.Host, "/")
	if !strings.HasPrefix(host, "http") {
		host = "https://" + host
	}
	cfg.Host = host

	if cfg.TokenLifetime == 0 {
		cfg.TokenLifetime = DefaultTokenLifetime
	}

	return &Source{
		cfg:    cfg,
		minter: minter,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
			httpclient.WithMaxRetries(3),
			httpclient.WithBaseDelay(2*time.Second),
			httpclient.WithHeaderParser(httpclient.ParseServingHeaders),
		),
	}
}

func (s *Source) GetName() string { return "documents" }
func (s *Source) GetType() string { return "knowledge-assistant" }

func (s *Source) DiscoverTools(ctx context.Context) error {
	if s.cfg.EndpointID == "" {
		return fmt.Errorf("document endpoint id is not configured")
	}

	credential, err := s.minter.Mint(ctx)
	if err != nil {
		return fmt.Errorf("failed to mint document endpoint credential: %w", err)
	}

	s.mu.Lock()
	s.credential = credential
	s.mu.Unlock()

	slog.Info("Document endpoint credential minted",
		"endpoint", s.cfg.EndpointID, "expires_at", credential.ExpiresAt)
	return nil
}

func (s *Source) ListTools() []tools.ToolInfo {
	return []tools.ToolInfo{s.toolInfo()}
}

func (s *Source) GetTool(name string) (tools.Tool, bool) {
	if name != ToolName {
		return nil, false
	}
	return &searchTool{source: s}, true
}

// HealthCheck reports whether a usable credential is held.
func (s *Source) HealthCheck(ctx context.Context) error {
	s.mu.Lock()
	credential := s.credential
	s.mu.Unlock()

	if credential.Expired() {
		return fmt.Errorf("document endpoint credential is missing or expired")
	}
	return nil
}

func (s *Source) toolInfo() tools.ToolInfo {
	return tools.ToolInfo{
		Name: ToolName,
		Description: "Analyze unstructured text, documents, complaints, and knowledge base content. " +
			"Use this to search policy documents and guidelines, analyze member complaints and feedback, " +
			"and answer questions about billing codes, procedures, and policies.",
		Parameters: tools.SchemaFor(&searchArgs{}),
		Source:     s.GetName(),
	}
}

// token returns the current credential, re-minting when it has expired.
func (s *Source) token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.credential.Expired() {
		return s.credential.Value, nil
	}

	credential, err := s.minter.Mint(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to refresh document endpoint credential: %w", err)
	}
	s.credential = credential

	slog.Info("Document endpoint credential refreshed",
		"endpoint", s.cfg.EndpointID, "expires_at", credential.ExpiresAt)
	return credential.Value, nil
}

type endpointRequest struct {
	Model    string            `json:"model"`
	Messages []endpointMessage `json:"messages"`
}

type endpointMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type endpointResponse struct {
	Choices []struct {
		Message endpointMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Query sends a document question to the endpoint and returns the answer
// text.
func (s *Source) Query(ctx context.Context, query string) (string, error) {
	token, err := s.token(ctx)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(endpointRequest{
		Model:    s.cfg.EndpointID,
		Messages: []endpointMessage{{Role: "user", Content: query}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := s.cfg.Host + "/serving-endpoints/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("document endpoint request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("document endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var endpointResp endpointResponse
	if err := json.NewDecoder(resp.Body).Decode(&endpointResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if endpointResp.Error != nil {
		return "", fmt.Errorf("document endpoint error: %s", endpointResp.Error.Message)
	}

	if len(endpointResp.Choices) == 0 {
		return "", fmt.Errorf("no response from the document endpoint")
	}

	return endpointResp.Choices[0].Message.Content, nil
}

type searchTool struct {
	source *Source
}

var _ tools.Tool = (*searchTool)(nil)

func (t *searchTool) GetName() string        { return ToolName }
func (t *searchTool) GetDescription() string { return t.source.toolInfo().Description }
func (t *searchTool) GetInfo() tools.ToolInfo {
	return t.source.toolInfo()
}

func (t *searchTool) Execute(ctx context.Context, args map[string]interface{}) (tools.ToolResult, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return tools.ToolResult{
			Success:  false,
			Error:    "query is required",
			ToolName: ToolName,
		}, nil
	}

	answer, err := t.source.Query(ctx, query)
	if err != nil {
		return tools.ToolResult{
			Success:  false,
			Error:    fmt.Sprintf("Error querying the knowledge assistant: %v", err),
			ToolName: ToolName,
		}, nil
	}

	return tools.ToolResult{
		Success:  true,
		Content:  "Knowledge Analysis:\n" + answer,
		ToolName: ToolName,
		Metadata: map[string]interface{}{tools.MetadataToolUsed: ToolName},
	}, nil
}

var _ tools.ToolSource = (*Source)(nil)
