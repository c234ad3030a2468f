package genie

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stratushealth/concierge/pkg/tools"
)

// ToolName is the registered name of the analytics tool.
const ToolName = "genie_query"

type queryArgs struct {
	Question string `json:"question" jsonschema:"description=The natural language question to ask about the data"`
}

// Source exposes the analytics space as a tool source.
type Source struct {
	client *Client
}

func NewSource(client *Client) *Source {
	return &Source{client: client}
}

func (s *Source) GetName() string { return "analytics" }
func (s *Source) GetType() string { return "genie" }

func (s *Source) DiscoverTools(ctx context.Context) error {
	if s.client.spaceID == "" {
		return fmt.Errorf("analytics space id is not configured")
	}
	return nil
}

func (s *Source) ListTools() []tools.ToolInfo {
	return []tools.ToolInfo{s.toolInfo()}
}

func (s *Source) GetTool(name string) (tools.Tool, bool) {
	if name != ToolName {
		return nil, false
	}
	return &queryTool{source: s}, true
}

// HealthCheck is diagnostic only. The conversation API has no ping surface,
// so this validates configuration without spending a query.
func (s *Source) HealthCheck(ctx context.Context) error {
	return s.DiscoverTools(ctx)
}

func (s *Source) toolInfo() tools.ToolInfo {
	return tools.ToolInfo{
		Name: ToolName,
		Description: "Query structured data using natural language. " +
			"Use this tool to ask questions about claims, members, providers, and other healthcare data. " +
			"The tool will generate SQL queries and return structured results.",
		Parameters: tools.SchemaFor(&queryArgs{}),
		Source:     s.GetName(),
	}
}

// Query runs the full conversation protocol and assembles a report.
func (s *Source) Query(ctx context.Context, question string) (*Report, error) {
	conversationID, messageID, err := s.client.StartConversation(ctx, question)
	if err != nil {
		return nil, err
	}

	msg, err := s.client.WaitForCompletion(ctx, conversationID, messageID)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Question: question,
		Status:   msg.Status,
		MaxRows:  s.client.maxReportRows,
	}

	for i, attachment := range msg.Attachments {
		section := ResultSection{}

		if attachment.Query != nil {
			section.SQLQuery = attachment.Query.Query
			section.Description = attachment.Query.Description
		}

		result, err := s.client.GetQueryResult(ctx, conversationID, messageID, attachment.AttachmentID)
		if err != nil {
			slog.Warn("Failed to fetch analytics result attachment",
				"attachment", i+1, "error", err)
			section.Error = err.Error()
			report.Results = append(report.Results, section)
			continue
		}

		section.Rows = result.StatementResponse.Result.DataArray
		for _, col := range result.StatementResponse.Manifest.Schema.Columns {
			section.Columns = append(section.Columns, col.Name)
		}

		report.Results = append(report.Results, section)
	}

	return report, nil
}

type queryTool struct {
	source *Source
}

var _ tools.Tool = (*queryTool)(nil)

func (t *queryTool) GetName() string        { return ToolName }
func (t *queryTool) GetDescription() string { return t.source.toolInfo().Description }
func (t *queryTool) GetInfo() tools.ToolInfo {
	return t.source.toolInfo()
}

func (t *queryTool) Execute(ctx context.Context, args map[string]interface{}) (tools.ToolResult, error) {
	question, _ := args["question"].(string)
	if question == "" {
		return tools.ToolResult{
			Success:  false,
			Error:    "question is required",
			ToolName: ToolName,
		}, nil
	}

	report, err := t.source.Query(ctx, question)
	if err != nil {
		return tools.ToolResult{
			Success:  false,
			Error:    fmt.Sprintf("Genie query failed: %v", err),
			ToolName: ToolName,
		}, nil
	}

	return tools.ToolResult{
		Success:  true,
		Content:  report.Format(),
		ToolName: ToolName,
		Metadata: map[string]interface{}{tools.MetadataToolUsed: ToolName},
	}, nil
}

var _ tools.ToolSource = (*Source)(nil)
