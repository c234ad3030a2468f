package normalizer

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

var (
	sqlFenceRe      = regexp.MustCompile("(?s)```sql\n(.*?)\n```")
	dataCountRe     = regexp.MustCompile(`\*\*Data \((\d+) rows?\):\*\*`)
	rowBulletRe     = regexp.MustCompile(`^•\s*Row\s+\d+:\s*(.+)$`)
	moreRowsRe      = regexp.MustCompile(`^•\s*\.\.\. and (\d+) more rows$`)
	headlineQueryRe = regexp.MustCompile(`\*\*Query:\*\*\s*(.+)`)
	reportErrorRe   = regexp.MustCompile(`\*\*Error:\*\*\s*(.+)`)
)

// parseReport extracts the structured pieces of an analytics report block.
// The input is expected to carry the report grammar; anything it cannot
// recover stays zero-valued.
func parseReport(text string, metadataColumns []string) (query string, table *Table, moreRows int, reportErr string) {
	if m := sqlFenceRe.FindStringSubmatch(text); m != nil {
		query = strings.TrimSpace(m[1])
	}

	if m := reportErrorRe.FindStringSubmatch(text); m != nil {
		reportErr = strings.TrimSpace(m[1])
	}

	declared := -1
	if m := dataCountRe.FindStringSubmatch(text); m != nil {
		declared, _ = strconv.Atoi(m[1])
	}

	var rows [][]interface{}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		if m := moreRowsRe.FindStringSubmatch(trimmed); m != nil {
			moreRows, _ = strconv.Atoi(m[1])
			continue
		}

		m := rowBulletRe.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}

		row, err := parseLiteralList(strings.TrimSpace(m[1]))
		if err != nil {
			slog.Warn("Skipping unparseable data row", "line", trimmed, "error", err)
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return query, nil, moreRows, reportErr
	}

	// Trust the declared count over the trailing note when both are present.
	if declared > len(rows) {
		moreRows = declared - len(rows)
	}

	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}

	table = &Table{
		Columns: inferColumns(metadataColumns, text, width),
		Rows:    rows,
	}

	return query, table, moreRows, reportErr
}

// inferColumns picks column names: real metadata first, then the claim
// status heuristic, then ordinals.
func inferColumns(metadataColumns []string, raw string, width int) []string {
	if len(metadataColumns) >= width && width > 0 {
		return metadataColumns[:width]
	}

	if width >= 2 && strings.Contains(raw, "claim_status") {
		columns := make([]string, width)
		columns[0] = "Status"
		columns[1] = "Count"
		for i := 2; i < width; i++ {
			columns[i] = fmt.Sprintf("col_%d", i+1)
		}
		return columns
	}

	columns := make([]string, width)
	for i := range columns {
		columns[i] = fmt.Sprintf("col_%d", i+1)
	}
	return columns
}

// headline returns the question line of a report, when present.
func headline(text string) string {
	if m := headlineQueryRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// parseLiteralList parses a bracketed Python-style list literal: quoted
// strings, bare numbers, None, True and False. Any other bare token keeps
// its string value.
func parseLiteralList(s string) ([]interface{}, error) {
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("not a list literal")
	}

	inner := s[1 : len(s)-1]
	if strings.TrimSpace(inner) == "" {
		return []interface{}{}, nil
	}

	items, err := splitListItems(inner)
	if err != nil {
		return nil, err
	}

	result := make([]interface{}, len(items))
	for i, item := range items {
		value, err := parseLiteral(strings.TrimSpace(item))
		if err != nil {
			return nil, err
		}
		result[i] = value
	}
	return result, nil
}

// splitListItems splits on commas outside quotes.
func splitListItems(s string) ([]string, error) {
	var items []string
	var current strings.Builder
	var quote byte

	for i := 0; i < len(s); i++ {
		ch := s[i]

		switch {
		case quote != 0:
			if ch == '\\' && i+1 < len(s) {
				current.WriteByte(ch)
				i++
				current.WriteByte(s[i])
				continue
			}
			if ch == quote {
				quote = 0
			}
			current.WriteByte(ch)

		case ch == '\'' || ch == '"':
			quote = ch
			current.WriteByte(ch)

		case ch == ',':
			items = append(items, current.String())
			current.Reset()

		default:
			current.WriteByte(ch)
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote")
	}

	items = append(items, current.String())
	return items, nil
}

func parseLiteral(s string) (interface{}, error) {
	if s == "" {
		return nil, fmt.Errorf("empty list item")
	}

	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '\'' && last == '\'') || (first == '"' && last == '"') {
			return unescape(s[1 : len(s)-1]), nil
		}
	}

	switch s {
	case "None":
		return nil, nil
	case "True":
		return true, nil
	case "False":
		return false, nil
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}

	// Not a number and not quoted; the token is its own string value.
	return s, nil
}

func unescape(s string) string {
	s = strings.ReplaceAll(s, `\'`, `'`)
	s = strings.ReplaceAll(s, `\"`, `"`)
	s = strings.ReplaceAll(s, `\\`, `\`)
	return s
}
