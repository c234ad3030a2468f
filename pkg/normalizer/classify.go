package normalizer

import "strings"

// Pattern lists for attribution when routing metadata is absent. Checked in
// priority order: documents, analytics, lookup.
var (
	documentPatterns = []string{
		"complained about", "complaint", "billing code", "customer service",
		"member called", "agent:", "member:", "resolution", "resolved by",
		"customer_service_communications", "prior_authorization",
	}

	documentFilePatterns = []string{
		"customer_service_communications.txt", "prior_authorization_documents.txt",
	}

	analyticsPatterns = []string{
		"genie analysis", "sql query:", "data (", "status count",
		"top 5", "distribution", "aggregate", "group by", "genie",
	}

	lookupPatterns = []string{
		"member id:", "first name:", "last name:", "birth date:", "gender:", "plan id:",
		"claim id:", "total charge:", "claim date:", "claim status:",
		"provider id:", "provider name:", "specialty:", "location:",
	}

	lookupToolNames = []string{
		"lookup_member", "lookup_claims", "lookup_providers",
		"check_eligibility", "get_benefits", "search_network",
		"get_authorization_status",
	}
)

// Classify attributes a response to a backend. Explicit routing metadata is
// authoritative; text patterns are the fallback, first match wins.
func Classify(text string, toolsInvoked []string) ToolUsed {
	if len(toolsInvoked) > 0 {
		// The last tool invoked determines attribution.
		return classifyToolName(toolsInvoked[len(toolsInvoked)-1])
	}

	lower := strings.ToLower(text)

	for _, pattern := range documentPatterns {
		if strings.Contains(lower, pattern) {
			return ToolDocumentSearch
		}
	}
	for _, pattern := range documentFilePatterns {
		if strings.Contains(text, pattern) {
			return ToolDocumentSearch
		}
	}

	for _, pattern := range analyticsPatterns {
		if strings.Contains(lower, pattern) {
			return ToolAnalytics
		}
	}

	for _, pattern := range lookupPatterns {
		if strings.Contains(lower, pattern) {
			return ToolLookup
		}
	}
	for _, name := range lookupToolNames {
		if strings.Contains(text, name) {
			return ToolLookup
		}
	}

	return ToolDirectAnswer
}

func classifyToolName(name string) ToolUsed {
	switch {
	case strings.Contains(name, "genie"):
		return ToolAnalytics
	case name == "search_documents" || strings.Contains(name, "knowledge"):
		return ToolDocumentSearch
	default:
		for _, lookupName := range lookupToolNames {
			if name == lookupName {
				return ToolLookup
			}
		}
	}
	return ToolUnknown
}
