package genie

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stratushealth/concierge/pkg/httpclient"
	"github.com/stratushealth/concierge/pkg/observability"
)

// Message status values returned by the conversation API.
const (
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

const (
	DefaultPollInterval = 10 * time.Second
	DefaultPollAttempts = 12
)

// Client talks to the Genie conversation REST API for one space.
type Client struct {
	host          string
	spaceID       string
	pollInterval  time.Duration
	pollAttempts  int
	maxReportRows int
	httpClient    *httpclient.Client
}

type ClientConfig struct {
	Host         string
	Token        string
	SpaceID      string
	PollInterval time.Duration
	PollAttempts int
	// MaxReportRows caps how many data rows a report renders inline.
	MaxReportRows int
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollAttempts == 0 {
		cfg.PollAttempts = DefaultPollAttempts
	}
	if cfg.MaxReportRows == 0 {
		cfg.MaxReportRows = DefaultMaxReportRows
	}

	host := strings.TrimSuffix(cfg.Host, "/")
	if !strings.HasPrefix(host, "http") {
		host = "https://" + host
	}

	return &Client{
		host:          host,
		spaceID:       cfg.SpaceID,
		pollInterval:  cfg.PollInterval,
		pollAttempts:  cfg.PollAttempts,
		maxReportRows: cfg.MaxReportRows,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
			httpclient.WithMaxRetries(3),
			httpclient.WithBaseDelay(2*time.Second),
			httpclient.WithBearerToken(cfg.Token),
			httpclient.WithHeaderParser(httpclient.ParseWorkspaceHeaders),
		),
	}
}

type startConversationResponse struct {
	Conversation struct {
		ID string `json:"id"`
	} `json:"conversation"`
	Message struct {
		ID string `json:"id"`
	} `json:"message"`
}

// Attachment is one result block on a completed message.
type Attachment struct {
	AttachmentID string `json:"attachment_id"`
	Query        *struct {
		Query       string `json:"query"`
		Description string `json:"description"`
	} `json:"query,omitempty"`
}

// Message is the conversation message resource.
type Message struct {
	ID          string       `json:"id"`
	Status      string       `json:"status"`
	Error       *apiMessage  `json:"error,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type apiMessage struct {
	Message string `json:"message"`
}

// QueryResult is the tabular payload behind an attachment.
type QueryResult struct {
	StatementResponse struct {
		Manifest struct {
			Schema struct {
				Columns []struct {
					Name string `json:"name"`
				} `json:"columns"`
			} `json:"schema"`
		} `json:"manifest"`
		Result struct {
			DataArray [][]interface{} `json:"data_array"`
		} `json:"result"`
	} `json:"statement_response"`
}

// StartConversation opens a conversation with the given question and returns
// the conversation and message identifiers.
func (c *Client) StartConversation(ctx context.Context, question string) (string, string, error) {
	url := fmt.Sprintf("%s/api/2.0/genie/spaces/%s/start-conversation", c.host, c.spaceID)

	payload, err := json.Marshal(map[string]string{"content": question})
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp startConversationResponse
	if err := c.doJSON(ctx, "POST", url, payload, &resp); err != nil {
		return "", "", err
	}

	if resp.Conversation.ID == "" || resp.Message.ID == "" {
		return "", "", fmt.Errorf("start-conversation response missing identifiers")
	}

	return resp.Conversation.ID, resp.Message.ID, nil
}

// GetMessage fetches the current state of a conversation message.
func (c *Client) GetMessage(ctx context.Context, conversationID, messageID string) (*Message, error) {
	url := fmt.Sprintf("%s/api/2.0/genie/spaces/%s/conversations/%s/messages/%s",
		c.host, c.spaceID, conversationID, messageID)

	var msg Message
	if err := c.doJSON(ctx, "GET", url, nil, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetQueryResult fetches the tabular result for an attachment.
func (c *Client) GetQueryResult(ctx context.Context, conversationID, messageID, attachmentID string) (*QueryResult, error) {
	url := fmt.Sprintf("%s/api/2.0/genie/spaces/%s/conversations/%s/messages/%s/query-result/%s",
		c.host, c.spaceID, conversationID, messageID, attachmentID)

	var result QueryResult
	if err := c.doJSON(ctx, "GET", url, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// WaitForCompletion polls the message until it reaches a terminal status or
// the attempt budget runs out.
func (c *Client) WaitForCompletion(ctx context.Context, conversationID, messageID string) (*Message, error) {
	ctx, span := observability.GetTracer("concierge.genie").Start(ctx, observability.SpanAnalyticsPoll,
		trace.WithAttributes(attribute.String("genie.space_id", c.spaceID)),
	)
	defer span.End()

	for attempt := 1; attempt <= c.pollAttempts; attempt++ {
		msg, err := c.GetMessage(ctx, conversationID, messageID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.recordPoll(ctx, attempt, err)
			return nil, err
		}

		switch msg.Status {
		case StatusCompleted:
			span.SetAttributes(attribute.Int("genie.poll_attempts", attempt))
			span.SetStatus(codes.Ok, "completed")
			c.recordPoll(ctx, attempt, nil)
			return msg, nil

		case StatusFailed:
			failErr := fmt.Errorf("analytics query failed")
			if msg.Error != nil && msg.Error.Message != "" {
				failErr = fmt.Errorf("analytics query failed: %s", msg.Error.Message)
			}
			span.RecordError(failErr)
			span.SetStatus(codes.Error, "failed")
			c.recordPoll(ctx, attempt, failErr)
			return msg, failErr

		case StatusCancelled:
			cancelErr := fmt.Errorf("analytics query was cancelled")
			span.RecordError(cancelErr)
			span.SetStatus(codes.Error, "cancelled")
			c.recordPoll(ctx, attempt, cancelErr)
			return msg, cancelErr
		}

		slog.Debug("Analytics query still running",
			"status", msg.Status, "attempt", attempt, "max_attempts", c.pollAttempts)

		if attempt == c.pollAttempts {
			break
		}

		select {
		case <-ctx.Done():
			c.recordPoll(ctx, attempt, ctx.Err())
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}

	timeoutErr := fmt.Errorf("analytics query did not complete within %v",
		time.Duration(c.pollAttempts)*c.pollInterval)
	span.RecordError(timeoutErr)
	span.SetStatus(codes.Error, "timeout")
	c.recordPoll(ctx, c.pollAttempts, timeoutErr)
	return nil, timeoutErr
}

func (c *Client) recordPoll(ctx context.Context, attempts int, err error) {
	metrics := observability.GetGlobalMetrics()
	if metrics != nil {
		metrics.RecordAnalyticsPoll(ctx, attempts, err)
	}
}

func (c *Client) doJSON(ctx context.Context, method, url string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		responseBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(responseBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
