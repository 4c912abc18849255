package cmd

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/scalpel-ui/api/schemas"
	"github.com/xkilldash9x/scalpel-ui/internal/observability"
	"github.com/xkilldash9x/scalpel-ui/internal/traffic"
)

// errFindings is returned by `har analyze --strict` when the archive has
// failed or slow entries.
var errFindings = errors.New("traffic analysis found problems")

func newHARCmd() *cobra.Command {
	harCmd := &cobra.Command{
		Use:   "har",
		Short: "Work with recorded HTTP archives",
	}
	harCmd.AddCommand(newHARAnalyzeCmd())
	return harCmd
}

func newHARAnalyzeCmd() *cobra.Command {
	var (
		limit  time.Duration
		strict bool
	)
	analyzeCmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "List failed and slow requests in a HAR file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("limit") {
				cfg.SetTrafficLoadTimeLimit(limit)
			}

			har, err := traffic.ReadHAR(args[0])
			if err != nil {
				return err
			}
			f := traffic.Analyze(har, cfg.Traffic().LoadTimeLimit, observability.GetLogger())
			if err := printFindings(cmd.OutOrStdout(), f, cfg.Traffic().LoadTimeLimit); err != nil {
				return err
			}
			if strict && !f.OK() {
				return errFindings
			}
			return nil
		},
	}
	analyzeCmd.Flags().DurationVar(&limit, "limit", 2*time.Second, "load time above which a request counts as slow")
	analyzeCmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when anything failed or was slow")
	return analyzeCmd
}

func printFindings(w io.Writer, f traffic.Findings, limit time.Duration) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Entries:\t%d\n", f.Entries)
	fmt.Fprintf(tw, "Failed responses:\t%d\n", len(f.Errors))
	fmt.Fprintf(tw, "Slower than %s:\t%d\n", limit, len(f.Slow))

	if len(f.Errors) > 0 {
		fmt.Fprintln(tw, "\nSTATUS\tMETHOD\tURL")
		for _, e := range f.Errors {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", e.Response.Status, e.Request.Method, e.Request.URL)
		}
	}
	if len(f.Slow) > 0 {
		fmt.Fprintln(tw, "\nTIME\tMETHOD\tURL")
		for _, e := range f.Slow {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", loadTime(e), e.Request.Method, e.Request.URL)
		}
	}
	return tw.Flush()
}

func loadTime(e schemas.Entry) string {
	return e.Duration().Round(time.Millisecond).String()
}
