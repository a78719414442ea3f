package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/wbrown/janus-generate/generate/engine"
	"github.com/wbrown/janus-generate/generate/executor"
	"github.com/wbrown/janus-generate/generate/query"
)

// Output formats of the run command
const (
	FormatNTriples = "nt"
	FormatTable    = "table"
	FormatText     = "text"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{FormatNTriples, FormatTable, FormatText}

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Format string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <query-file>",
		Short: "Execute a query and print its result",
		Long: `Execute a GENERATE, SELECT or TEMPLATE query.

GENERATE results print as N-Triples, SELECT results as a markdown table and
TEMPLATE results as plain text, unless --format says otherwise. When the
execution time limit is hit, the triples generated so far are still printed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "output format (nt|table|text); default depends on the query kind")

	return cmd
}

func runQuery(cmd *cobra.Command, opts *RunOptions, path string) error {
	if opts.Format != "" && !isValidFormat(opts.Format) {
		return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
	}

	src, err := readQuery(path)
	if err != nil {
		return err
	}

	sess, err := openSession(cmd.Context(), opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer sess.Close()

	res, err := sess.engine.Run(cmd.Context(), src, nil)
	if res == nil {
		return err
	}
	if err != nil && !errors.Is(err, executor.ErrTimeout) {
		return err
	}
	if werr := writeResult(cmd.OutOrStdout(), res, opts.Format); werr != nil {
		return werr
	}
	if err != nil {
		sess.logger.WithError(err).Warn("execution stopped early, output is partial")
	}
	return err
}

func defaultFormat(kind query.Kind) string {
	switch kind {
	case query.KindSelect:
		return FormatTable
	case query.KindTemplate:
		return FormatText
	default:
		return FormatNTriples
	}
}

func writeResult(w io.Writer, res *engine.Result, format string) error {
	if format == "" {
		format = defaultFormat(res.Kind)
	}

	switch {
	case res.Kind == query.KindGenerate && format == FormatNTriples:
		return res.Graph.WriteNTriples(w)
	case res.Kind == query.KindGenerate && format == FormatTable:
		return writeTable(w, triplesResultSet(res))
	case res.Kind == query.KindSelect && format == FormatTable:
		return writeTable(w, res.Rows)
	case res.Kind == query.KindTemplate && format == FormatText:
		_, err := io.WriteString(w, res.Text+"\n")
		return err
	}
	return fmt.Errorf("format %s does not apply to %s results", format, res.Kind)
}

func writeTable(w io.Writer, rs *executor.ResultSet) error {
	_, err := io.WriteString(w, executor.NewTableFormatter().FormatResultSet(rs))
	return err
}

// triplesResultSet lays a graph out as ?s ?p ?o rows
func triplesResultSet(res *engine.Result) *executor.ResultSet {
	rs := &executor.ResultSet{Vars: []query.Var{"?s", "?p", "?o"}}
	for _, t := range res.Graph.Triples() {
		rs.Rows = append(rs.Rows, query.Binding{}.Extend("?s", t.S).Extend("?p", t.P).Extend("?o", t.O))
	}
	return rs
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
