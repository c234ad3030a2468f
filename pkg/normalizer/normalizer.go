// Package normalizer turns raw assistant output into a structured result:
// scrubbed text, backend attribution, and any tabular data recovered from
// analytics reports.
package normalizer

import "github.com/stratushealth/concierge/pkg/config"

// Normalize scrubs a raw response, attributes it to a backend, and, for
// analytics responses, parses the report block into structured fields.
func Normalize(raw string, toolsInvoked []string, rules *config.ScrubRules) *Result {
	text := Scrub(raw, rules)

	result := &Result{
		ToolUsed: Classify(text, toolsInvoked),
		Text:     text,
	}

	if result.ToolUsed == ToolAnalytics {
		query, table, moreRows, reportErr := parseReport(text, nil)
		result.GeneratedQuery = query
		result.Table = table
		result.MoreRows = moreRows
		result.Error = reportErr
		result.Headline = headline(text)
	}

	return result
}
