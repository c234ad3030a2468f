package normalizer

// ToolUsed identifies which backend produced a response.
type ToolUsed string

const (
	ToolUnknown        ToolUsed = "Unknown"
	ToolAnalytics      ToolUsed = "Analytics"
	ToolLookup         ToolUsed = "Lookup"
	ToolDocumentSearch ToolUsed = "DocumentSearch"
	ToolDirectAnswer   ToolUsed = "DirectAnswer"
	ToolError          ToolUsed = "Error"
)

// Table is tabular data recovered from an analytics report.
type Table struct {
	Columns []string
	Rows    [][]interface{}
}

// Result is the normalized form of a raw assistant response.
type Result struct {
	ToolUsed       ToolUsed
	Headline       string
	Table          *Table
	GeneratedQuery string
	// MoreRows is how many rows the backend reported beyond the ones it
	// included inline.
	MoreRows int
	Text     string
	Error    string
}
