package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <query-file>",
		Short: "Parse and compile a query without executing it",
		Long: `Parse, normalize and compile a query.

Reports syntax errors and scope errors with their position. With --verbose
the compiled plan and the registered extensions are printed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, rootOpts, args[0])
		},
	}

	return cmd
}

func runCheck(cmd *cobra.Command, opts *RootOptions, path string) error {
	src, err := readQuery(path)
	if err != nil {
		return err
	}

	sess, err := openSession(cmd.Context(), opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer sess.Close()

	plan, err := sess.engine.Compile(src)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	out := cmd.OutOrStdout()
	if opts.Verbose {
		fmt.Fprintln(out, plan.String())
		r := sess.engine.Registry()
		fmt.Fprintf(out, "extensions: %d functions, %d iterators\n", len(r.Functions()), len(r.Iterators()))
	}
	fmt.Fprintf(out, "%s: ok (%s)\n", path, plan.Callee())
	return nil
}
