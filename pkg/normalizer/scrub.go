package normalizer

import (
	"regexp"
	"strings"

	"github.com/stratushealth/concierge/pkg/config"
)

var (
	functionTagRe    = regexp.MustCompile(`<function=.*?>\{.*?\}</function>`)
	functionOutputRe = regexp.MustCompile(`</?function_output>`)
	blankRunRe       = regexp.MustCompile(`\n\s*\n\s*\n+`)
)

// Scrub strips model clutter from a response: function-call delimiters,
// known boilerplate sentences, and repeated table headers. Runs of blank
// lines collapse to one.
func Scrub(content string, rules *config.ScrubRules) string {
	if rules == nil {
		rules = config.DefaultScrubRules()
	}

	content = functionTagRe.ReplaceAllString(content, "")
	content = functionOutputRe.ReplaceAllString(content, "")

	lines := strings.Split(content, "\n")
	cleaned := make([]string, 0, len(lines))
	seenHeader := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if trimmed != "" && dropLine(trimmed, rules) {
			continue
		}

		if trimmed != "" && isTableHeader(line, rules) {
			if seenHeader {
				continue
			}
			seenHeader = true
		}

		cleaned = append(cleaned, line)
	}

	result := strings.Join(cleaned, "\n")
	result = blankRunRe.ReplaceAllString(result, "\n\n")
	return strings.TrimSpace(result)
}

func dropLine(trimmed string, rules *config.ScrubRules) bool {
	for _, token := range rules.MarkerTokens {
		if strings.Contains(trimmed, token) {
			return true
		}
	}

	for _, prefix := range rules.MarkerPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}

	for _, sentence := range rules.Boilerplate {
		if strings.Contains(trimmed, sentence) {
			return true
		}
	}

	return false
}

// isTableHeader reports whether a line carries every configured header field.
func isTableHeader(line string, rules *config.ScrubRules) bool {
	if len(rules.DuplicateHeaderFields) == 0 {
		return false
	}
	for _, field := range rules.DuplicateHeaderFields {
		if !strings.Contains(line, field) {
			return false
		}
	}
	return true
}
