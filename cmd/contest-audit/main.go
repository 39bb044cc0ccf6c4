// Command contest-audit recomputes a weighted winner pick from a running
// contest's public API and compares it with the recorded winner.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/SAFERMOON/SAFERWINNING/internal/audit"
	"github.com/SAFERMOON/SAFERWINNING/internal/contest"
	"github.com/SAFERMOON/SAFERWINNING/internal/httputil"
)

type options struct {
	url       string
	token     string
	value     string
	useRecord bool
	verbose   bool
	timeout   time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:   "contest-audit",
		Short: "Recompute a weighted winner pick from the contest API",
		Long: "Scans participants 1, 2, ... until the API reports out of range, sums their entries, " +
			"draws a random value (or uses --value / --recorded) and reports the participant it selects.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			return runAudit(ctx, cmd.OutOrStdout(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.url, "url", "u", "http://localhost:8080", "contest API base URL")
	flags.StringVar(&opts.token, "token", os.Getenv("CONTEST_TOKEN"), "bearer token for the API")
	flags.StringVar(&opts.value, "value", "", "random value to resolve (base 10); random when empty")
	flags.BoolVar(&opts.useRecord, "recorded", false, "resolve the latest recorded draw's random value")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "print every participant")
	flags.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall timeout")
	cmd.MarkFlagsMutuallyExclusive("value", "recorded")

	return cmd
}

func runAudit(ctx context.Context, out io.Writer, opts options) error {
	reader := audit.NewHTTPReader(httputil.NewServiceClient(httputil.ServiceClientConfig{
		BaseURL: opts.url,
		Token:   opts.token,
	}))

	var value *uint256.Int
	switch {
	case opts.value != "":
		v, err := contest.ParseAmount(opts.value)
		if err != nil {
			return fmt.Errorf("--value: %w", err)
		}
		value = v
	case opts.useRecord:
		winner, err := reader.LatestWinner(ctx)
		if err != nil {
			return err
		}
		if winner == nil || winner.RandomValue == nil {
			return fmt.Errorf("no recorded draw with a random value")
		}
		value = winner.RandomValue
	}

	fmt.Fprintf(out, "Reading contest entries from %s\n", opts.url)
	report, err := audit.Run(ctx, reader, value)
	if err != nil {
		return err
	}

	if opts.verbose {
		for _, h := range report.Holdings {
			fmt.Fprintf(out, "%d %s %s\n", h.Index, h.ID, contest.FormatAmount(h.Entries))
		}
	}
	fmt.Fprintf(out, "Read %d participants with %s total entries\n",
		len(report.Holdings), contest.FormatAmount(report.TotalEntries))
	fmt.Fprintf(out, "Finding winning entry %s\n", contest.FormatAmount(report.Normalized))
	fmt.Fprintf(out, "Found winner %s (index %d)\n", report.Pick, report.PickIndex)

	if report.Recorded == nil {
		fmt.Fprintln(out, "No winner recorded yet")
		return nil
	}
	fmt.Fprintf(out, "Recorded winner %s (round %d, request %s)\n",
		report.Recorded.Participant, report.Recorded.Round, report.Recorded.RequestID)
	if opts.useRecord {
		if !report.Agrees() {
			return fmt.Errorf("recomputed winner %s differs from recorded winner %s", report.Pick, report.Recorded.Participant)
		}
		fmt.Fprintln(out, "Recorded winner matches")
	}
	return nil
}
