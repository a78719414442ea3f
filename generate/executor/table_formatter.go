package executor

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/wbrown/janus-generate/generate"
)

// TableFormatter formats SELECT results as markdown tables
type TableFormatter struct {
	// MaxWidth is the maximum width for a column
	MaxWidth int
	// TruncateString is the string to append when truncating
	TruncateString string
}

// NewTableFormatter creates a new table formatter with default settings
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{
		MaxWidth:       50,
		TruncateString: "...",
	}
}

// FormatResultSet formats a result set as a markdown table
func (tf *TableFormatter) FormatResultSet(rs *ResultSet) string {
	if rs == nil {
		return "_Empty result_"
	}

	headers := make([]string, len(rs.Vars))
	for i, v := range rs.Vars {
		headers[i] = v.String()
	}
	if len(rs.Rows) == 0 {
		return fmt.Sprintf("_Columns: %v_\n\n_No rows_", headers)
	}

	tableString := &strings.Builder{}

	// Create alignment array with all columns using AlignNone for simple separators
	alignment := make([]tw.Align, len(headers))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}

	table := tablewriter.NewTable(tableString,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(headers)

	for _, b := range rs.Rows {
		row := make([]string, len(rs.Vars))
		for j, v := range rs.Vars {
			t, _ := b.Get(v)
			row[j] = tf.formatValue(t)
		}
		table.Append(row)
	}
	table.Render()

	tableString.WriteString(fmt.Sprintf("\n_%d rows_\n", len(rs.Rows)))
	return tableString.String()
}

// formatValue renders a term for a table cell; unbound cells are empty
func (tf *TableFormatter) formatValue(t generate.Term) string {
	if t == nil {
		return ""
	}
	var s string
	switch v := t.(type) {
	case generate.Literal:
		if v.Lang == "" && (v.Datatype == "" || v.Datatype == generate.XSDString || v.IsNumeric()) {
			s = v.Lexical
		} else {
			s = v.String()
		}
	default:
		s = t.String()
	}
	s = strings.ReplaceAll(s, "\n", " ")
	if tf.MaxWidth > 0 && len(s) > tf.MaxWidth {
		cut := tf.MaxWidth - len(tf.TruncateString)
		if cut < 0 {
			cut = 0
		}
		s = s[:cut] + tf.TruncateString
	}
	return s
}
