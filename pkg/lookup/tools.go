package lookup

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/stratushealth/concierge/pkg/tools"
)

type memberArgs struct {
	MemberID string `json:"member_id" jsonschema:"description=Member ID to look up"`
}

type claimsArgs struct {
	MemberID string `json:"member_id" jsonschema:"description=Member ID to look up claims for"`
}

type providersArgs struct {
	Specialty string `json:"specialty,omitempty" jsonschema:"description=Optional specialty filter"`
}

type networkArgs struct {
	Specialty string `json:"specialty" jsonschema:"description=Provider specialty to search for"`
	Location  string `json:"location,omitempty" jsonschema:"description=Optional location filter"`
}

type authorizationArgs struct {
	AuthorizationID string `json:"authorization_id,omitempty" jsonschema:"description=Authorization ID to check"`
	MemberID        string `json:"member_id,omitempty" jsonschema:"description=Member ID to list authorizations for"`
}

// lookupTool is one catalog function exposed as a tool.
type lookupTool struct {
	source *Source
	name   string
	desc   string
	schema map[string]interface{}
	run    func(ctx context.Context, args map[string]interface{}) (string, error)
}

var _ tools.Tool = (*lookupTool)(nil)

func (t *lookupTool) GetName() string        { return t.name }
func (t *lookupTool) GetDescription() string { return t.desc }
func (t *lookupTool) GetInfo() tools.ToolInfo {
	return tools.ToolInfo{
		Name:        t.name,
		Description: t.desc,
		Parameters:  t.schema,
		Source:      t.source.GetName(),
	}
}

func (t *lookupTool) Execute(ctx context.Context, args map[string]interface{}) (tools.ToolResult, error) {
	content, err := t.run(ctx, args)
	if err != nil {
		return tools.ToolResult{
			Success:  false,
			Error:    err.Error(),
			ToolName: t.name,
		}, nil
	}

	return tools.ToolResult{
		Success:  true,
		Content:  content,
		ToolName: t.name,
		Metadata: map[string]interface{}{tools.MetadataToolUsed: t.name},
	}, nil
}

func buildTools(s *Source) []*lookupTool {
	return []*lookupTool{
		{
			source: s,
			name:   "lookup_member",
			desc:   "Look up member information by member ID.",
			schema: tools.SchemaFor(&memberArgs{}),
			run:    s.runLookupMember,
		},
		{
			source: s,
			name:   "lookup_claims",
			desc:   "Look up claims for a member by member ID.",
			schema: tools.SchemaFor(&claimsArgs{}),
			run:    s.runLookupClaims,
		},
		{
			source: s,
			name:   "lookup_providers",
			desc:   "List providers, optionally filtered by specialty.",
			schema: tools.SchemaFor(&providersArgs{}),
			run:    s.runLookupProviders,
		},
		{
			source: s,
			name:   "check_eligibility",
			desc:   "Check a member's current coverage eligibility.",
			schema: tools.SchemaFor(&memberArgs{}),
			run:    s.runCheckEligibility,
		},
		{
			source: s,
			name:   "get_benefits",
			desc:   "List a member's benefits with limits and remaining amounts.",
			schema: tools.SchemaFor(&memberArgs{}),
			run:    s.runGetBenefits,
		},
		{
			source: s,
			name:   "search_network",
			desc:   "Search for in-network providers by specialty and location.",
			schema: tools.SchemaFor(&networkArgs{}),
			run:    s.runSearchNetwork,
		},
		{
			source: s,
			name:   "get_authorization_status",
			desc:   "Check the status of a prior authorization request.",
			schema: tools.SchemaFor(&authorizationArgs{}),
			run:    s.runAuthorizationStatus,
		},
	}
}

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

func (s *Source) runLookupMember(ctx context.Context, args map[string]interface{}) (string, error) {
	memberID := stringArg(args, "member_id")
	if memberID == "" {
		return "", fmt.Errorf("member_id is required")
	}

	query := fmt.Sprintf(
		"SELECT member_id, first_name, last_name, date_of_birth, plan_name, status FROM %s WHERE member_id = %s",
		s.table("members"), s.bind(1))

	var id, firstName, lastName, dob, plan, status string
	err := s.db.QueryRowContext(ctx, query, memberID).Scan(&id, &firstName, &lastName, &dob, &plan, &status)
	if err == sql.ErrNoRows {
		return fmt.Sprintf("No member found with ID %s.", memberID), nil
	}
	if err != nil {
		return "", fmt.Errorf("unable to look up member information right now: %v", err)
	}

	return strings.Join([]string{
		fmt.Sprintf("Member ID: %s", id),
		fmt.Sprintf("Name: %s %s", firstName, lastName),
		fmt.Sprintf("Date of Birth: %s", dob),
		fmt.Sprintf("Plan: %s", plan),
		fmt.Sprintf("Status: %s", status),
	}, "\n"), nil
}

func (s *Source) runLookupClaims(ctx context.Context, args map[string]interface{}) (string, error) {
	memberID := stringArg(args, "member_id")
	if memberID == "" {
		return "", fmt.Errorf("member_id is required")
	}

	query := fmt.Sprintf(
		"SELECT claim_id, provider_id, claim_status, claim_amount, service_date FROM %s WHERE member_id = %s ORDER BY service_date DESC",
		s.table("claims"), s.bind(1))

	rows, err := s.db.QueryContext(ctx, query, memberID)
	if err != nil {
		return "", fmt.Errorf("unable to look up claims right now: %v", err)
	}
	defer rows.Close()

	var blocks []string
	for rows.Next() {
		var claimID, providerID, status, serviceDate string
		var amount float64
		if err := rows.Scan(&claimID, &providerID, &status, &amount, &serviceDate); err != nil {
			return "", fmt.Errorf("unable to look up claims right now: %v", err)
		}

		blocks = append(blocks, strings.Join([]string{
			fmt.Sprintf("Claim ID: %s", claimID),
			fmt.Sprintf("Member ID: %s", memberID),
			fmt.Sprintf("Provider ID: %s", providerID),
			fmt.Sprintf("Status: %s", status),
			fmt.Sprintf("Amount: $%.2f", amount),
			fmt.Sprintf("Service Date: %s", serviceDate),
		}, "\n"))
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("unable to look up claims right now: %v", err)
	}

	if len(blocks) == 0 {
		return fmt.Sprintf("No claims found for member %s.", memberID), nil
	}

	return strings.Join(blocks, "\n\n"), nil
}

func (s *Source) runLookupProviders(ctx context.Context, args map[string]interface{}) (string, error) {
	specialty := stringArg(args, "specialty")

	query := fmt.Sprintf(
		"SELECT provider_id, name, specialty, network_status, location FROM %s",
		s.table("providers"))
	var queryArgs []interface{}
	if specialty != "" {
		query += fmt.Sprintf(" WHERE specialty = %s", s.bind(1))
		queryArgs = append(queryArgs, specialty)
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return "", fmt.Errorf("unable to look up providers right now: %v", err)
	}
	defer rows.Close()

	blocks, err := scanProviders(rows)
	if err != nil {
		return "", fmt.Errorf("unable to look up providers right now: %v", err)
	}

	if len(blocks) == 0 {
		if specialty != "" {
			return fmt.Sprintf("No providers found with specialty %s.", specialty), nil
		}
		return "No providers found.", nil
	}

	return strings.Join(blocks, "\n\n"), nil
}

func (s *Source) runCheckEligibility(ctx context.Context, args map[string]interface{}) (string, error) {
	memberID := stringArg(args, "member_id")
	if memberID == "" {
		return "", fmt.Errorf("member_id is required")
	}

	query := fmt.Sprintf(
		"SELECT eligible, plan_name, coverage_start, coverage_end FROM %s WHERE member_id = %s",
		s.table("eligibility"), s.bind(1))

	var eligible bool
	var plan, start, end string
	err := s.db.QueryRowContext(ctx, query, memberID).Scan(&eligible, &plan, &start, &end)
	if err == sql.ErrNoRows {
		return fmt.Sprintf("No eligibility record found for member %s.", memberID), nil
	}
	if err != nil {
		return "", fmt.Errorf("unable to check eligibility right now: %v", err)
	}

	eligibleText := "No"
	if eligible {
		eligibleText = "Yes"
	}

	return strings.Join([]string{
		fmt.Sprintf("Member ID: %s", memberID),
		fmt.Sprintf("Eligible: %s", eligibleText),
		fmt.Sprintf("Plan: %s", plan),
		fmt.Sprintf("Coverage Start: %s", start),
		fmt.Sprintf("Coverage End: %s", end),
	}, "\n"), nil
}

func (s *Source) runGetBenefits(ctx context.Context, args map[string]interface{}) (string, error) {
	memberID := stringArg(args, "member_id")
	if memberID == "" {
		return "", fmt.Errorf("member_id is required")
	}

	query := fmt.Sprintf(
		"SELECT benefit_type, coverage_limit, used_amount FROM %s WHERE member_id = %s ORDER BY benefit_type",
		s.table("benefits"), s.bind(1))

	rows, err := s.db.QueryContext(ctx, query, memberID)
	if err != nil {
		return "", fmt.Errorf("unable to retrieve benefits right now: %v", err)
	}
	defer rows.Close()

	var blocks []string
	for rows.Next() {
		var benefitType string
		var limit, used float64
		if err := rows.Scan(&benefitType, &limit, &used); err != nil {
			return "", fmt.Errorf("unable to retrieve benefits right now: %v", err)
		}

		blocks = append(blocks, strings.Join([]string{
			fmt.Sprintf("Member ID: %s", memberID),
			fmt.Sprintf("Benefit: %s", benefitType),
			fmt.Sprintf("Coverage Limit: $%.2f", limit),
			fmt.Sprintf("Used: $%.2f", used),
			fmt.Sprintf("Remaining: $%.2f", limit-used),
		}, "\n"))
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("unable to retrieve benefits right now: %v", err)
	}

	if len(blocks) == 0 {
		return fmt.Sprintf("No benefits found for member %s.", memberID), nil
	}

	return strings.Join(blocks, "\n\n"), nil
}

func (s *Source) runSearchNetwork(ctx context.Context, args map[string]interface{}) (string, error) {
	specialty := stringArg(args, "specialty")
	if specialty == "" {
		return "", fmt.Errorf("specialty is required")
	}
	location := stringArg(args, "location")

	query := fmt.Sprintf(
		"SELECT provider_id, name, specialty, network_status, location FROM %s WHERE specialty = %s AND network_status = 'In-Network'",
		s.table("providers"), s.bind(1))
	queryArgs := []interface{}{specialty}
	if location != "" {
		query += fmt.Sprintf(" AND location = %s", s.bind(2))
		queryArgs = append(queryArgs, location)
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return "", fmt.Errorf("unable to search the provider network right now: %v", err)
	}
	defer rows.Close()

	blocks, err := scanProviders(rows)
	if err != nil {
		return "", fmt.Errorf("unable to search the provider network right now: %v", err)
	}

	if len(blocks) == 0 {
		return fmt.Sprintf("No in-network providers found for specialty %s.", specialty), nil
	}

	return strings.Join(blocks, "\n\n"), nil
}

func (s *Source) runAuthorizationStatus(ctx context.Context, args map[string]interface{}) (string, error) {
	authID := stringArg(args, "authorization_id")
	memberID := stringArg(args, "member_id")
	if authID == "" && memberID == "" {
		return "", fmt.Errorf("authorization_id or member_id is required")
	}

	query := fmt.Sprintf(
		"SELECT authorization_id, member_id, provider_id, service, status, decision_date FROM %s WHERE ",
		s.table("authorizations"))
	var arg interface{}
	if authID != "" {
		query += fmt.Sprintf("authorization_id = %s", s.bind(1))
		arg = authID
	} else {
		query += fmt.Sprintf("member_id = %s", s.bind(1))
		arg = memberID
	}

	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return "", fmt.Errorf("unable to check authorization status right now: %v", err)
	}
	defer rows.Close()

	var blocks []string
	for rows.Next() {
		var id, member, provider, service, status, decisionDate string
		if err := rows.Scan(&id, &member, &provider, &service, &status, &decisionDate); err != nil {
			return "", fmt.Errorf("unable to check authorization status right now: %v", err)
		}

		blocks = append(blocks, strings.Join([]string{
			fmt.Sprintf("Authorization ID: %s", id),
			fmt.Sprintf("Member ID: %s", member),
			fmt.Sprintf("Provider ID: %s", provider),
			fmt.Sprintf("Service: %s", service),
			fmt.Sprintf("Status: %s", status),
			fmt.Sprintf("Decision Date: %s", decisionDate),
		}, "\n"))
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("unable to check authorization status right now: %v", err)
	}

	if len(blocks) == 0 {
		if authID != "" {
			return fmt.Sprintf("No authorization found with ID %s.", authID), nil
		}
		return fmt.Sprintf("No authorizations found for member %s.", memberID), nil
	}

	return strings.Join(blocks, "\n\n"), nil
}

func scanProviders(rows *sql.Rows) ([]string, error) {
	var blocks []string
	for rows.Next() {
		var providerID, name, specialty, networkStatus, location string
		if err := rows.Scan(&providerID, &name, &specialty, &networkStatus, &location); err != nil {
			return nil, err
		}

		blocks = append(blocks, strings.Join([]string{
			fmt.Sprintf("Provider ID: %s", providerID),
			fmt.Sprintf("Name: %s", name),
			fmt.Sprintf("Specialty: %s", specialty),
			fmt.Sprintf("Network Status: %s", networkStatus),
			fmt.Sprintf("Location: %s", location),
		}, "\n"))
	}
	return blocks, rows.Err()
}
