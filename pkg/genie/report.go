package genie

import (
	"fmt"
	"strings"
)

// Report is the assembled outcome of one analytics question.
type Report struct {
	Question string
	Status   string
	Results  []ResultSection
	// MaxRows caps the inline data rows per result; zero means the default.
	MaxRows int
}

// ResultSection is one attachment's worth of output.
type ResultSection struct {
	SQLQuery    string
	Description string
	Columns     []string
	Rows        [][]interface{}
	Error       string
}

// DefaultMaxReportRows is how many rows a report renders inline when no cap
// is configured; the remainder is summarized with a count.
const DefaultMaxReportRows = 10

// Format renders the report block consumed by the normalizer. The shape is
// load-bearing: downstream parsing keys on these exact markers.
func (r *Report) Format() string {
	maxRows := r.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultMaxReportRows
	}

	var parts []string

	parts = append(parts, "## Genie Analysis")
	parts = append(parts, fmt.Sprintf("**Query:** %s", r.Question))
	parts = append(parts, fmt.Sprintf("**Status:** %s", r.Status))
	parts = append(parts, "")

	for i, res := range r.Results {
		parts = append(parts, fmt.Sprintf("### Result %d", i+1))

		if res.SQLQuery != "" {
			parts = append(parts, "**SQL Query:**")
			parts = append(parts, fmt.Sprintf("```sql\n%s\n```", res.SQLQuery))
		}

		if res.Description != "" {
			parts = append(parts, fmt.Sprintf("**Description:** %s", res.Description))
		}

		if len(res.Rows) > 0 {
			parts = append(parts, fmt.Sprintf("**Data (%d rows):**", len(res.Rows)))

			shown := res.Rows
			if len(shown) > maxRows {
				shown = shown[:maxRows]
			}
			for j, row := range shown {
				parts = append(parts, fmt.Sprintf("• Row %d: %s", j+1, formatRow(row)))
			}

			if len(res.Rows) > maxRows {
				parts = append(parts, fmt.Sprintf("• ... and %d more rows", len(res.Rows)-maxRows))
			}
		}

		if res.Error != "" {
			parts = append(parts, fmt.Sprintf("**Error:** %s", res.Error))
		}

		parts = append(parts, "")
	}

	return strings.Join(parts, "\n")
}

// formatRow renders a row as a bracketed list, strings quoted and numbers
// bare.
func formatRow(row []interface{}) string {
	items := make([]string, len(row))
	for i, v := range row {
		switch val := v.(type) {
		case string:
			items[i] = fmt.Sprintf("'%s'", val)
		case float64:
			if val == float64(int64(val)) {
				items[i] = fmt.Sprintf("%d", int64(val))
			} else {
				items[i] = fmt.Sprintf("%g", val)
			}
		case nil:
			items[i] = "None"
		default:
			items[i] = fmt.Sprintf("%v", val)
		}
	}
	return "[" + strings.Join(items, ", ") + "]"
}
