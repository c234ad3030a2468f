package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/stratushealth/concierge/pkg/httpclient"
)

// TokenMinter creates short-lived workspace tokens for the document endpoint.
type TokenMinter struct {
	host       string
	httpClient *httpclient.Client
	lifetime   time.Duration
}

func NewTokenMinter(host, parentToken string, lifetime time.Duration) *TokenMinter {
	host = strings.TrimSuffix(host, "/")
	if !strings.HasPrefix(host, "http") {
		host = "https://" + host
	}

	return &TokenMinter{
		host:     host,
		lifetime: lifetime,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
			httpclient.WithMaxRetries(3),
			httpclient.WithBaseDelay(2*time.Second),
			httpclient.WithBearerToken(parentToken),
			httpclient.WithHeaderParser(httpclient.ParseWorkspaceHeaders),
		),
	}
}

// Credential is a minted token with its expiry.
type Credential struct {
	Value     string
	ExpiresAt time.Time
}

// Expired reports whether the credential is past (or within a minute of) its
// expiry.
func (c *Credential) Expired() bool {
	if c == nil || c.Value == "" {
		return true
	}
	return time.Now().After(c.ExpiresAt.Add(-time.Minute))
}

type createTokenResponse struct {
	TokenValue string `json:"token_value"`
	TokenInfo  struct {
		TokenID    string `json:"token_id"`
		ExpiryTime int64  `json:"expiry_time"`
	} `json:"token_info"`
}

// Mint creates a new token scoped to the configured lifetime.
func (m *TokenMinter) Mint(ctx context.Context) (*Credential, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"comment":          fmt.Sprintf("knowledge-assistant-%d", time.Now().UnixNano()),
		"lifetime_seconds": int(m.lifetime.Seconds()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal token request: %w", err)
	}

	url := m.host + "/api/2.0/token/create"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token mint failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("token mint failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp createTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	if tokenResp.TokenValue == "" {
		return nil, fmt.Errorf("token mint returned an empty token")
	}

	return &Credential{
		Value:     tokenResp.TokenValue,
		ExpiresAt: credentialExpiry(tokenResp, m.lifetime),
	}, nil
}

// credentialExpiry prefers the expiry embedded in the credential itself (when
// it is a JWT), then the API's expiry_time, then the requested lifetime.
func credentialExpiry(resp createTokenResponse, lifetime time.Duration) time.Time {
	if parsed, err := jwt.ParseString(resp.TokenValue, jwt.WithVerify(false), jwt.WithValidate(false)); err == nil {
		if exp := parsed.Expiration(); !exp.IsZero() {
			return exp
		}
	}

	if resp.TokenInfo.ExpiryTime > 0 {
		return time.UnixMilli(resp.TokenInfo.ExpiryTime)
	}

	return time.Now().Add(lifetime)
}
