package cli

import (
	"fmt"
	"path"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/foldkeeper/foldkeeper/internal/di/providers"
)

func newStatsCmd(ra *RootArgs) *cobra.Command {
	var recent int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show processing totals and recent results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			injector, _, err := ra.open(cmd, oneShot)
			if err != nil {
				return err
			}
			defer shutdown(cmd, injector)

			ctx := cmd.Context()
			st, err := do.Invoke[*providers.StoreHandle](injector)
			if err != nil {
				return err
			}

			totals, err := st.LoadStats(ctx)
			if err != nil {
				return err
			}
			stored, err := st.CountResults(ctx)
			if err != nil {
				return err
			}

			lastRun := "never"
			if !totals.LastUpdate.IsZero() {
				lastRun = humanize.Time(totals.LastUpdate)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(tw, "Processed\t%s\n", humanize.Comma(totals.Processed))
			_, _ = fmt.Fprintf(tw, "Renamed\t%s\n", humanize.Comma(totals.Renamed))
			_, _ = fmt.Fprintf(tw, "Moved\t%s\n", humanize.Comma(totals.Moved))
			_, _ = fmt.Fprintf(tw, "Results\t%s stored\n", humanize.Comma(int64(stored)))
			_, _ = fmt.Fprintf(tw, "Last run\t%s\n", lastRun)

			if recent > 0 {
				results, err := st.RecentResults(ctx, recent)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(tw)
				for _, r := range results {
					outcome := string(r.Kind)
					if !r.Success {
						outcome = "failed"
					}
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s -> %s\n",
						humanize.Time(r.Timestamp), outcome, r.OriginalPath, path.Base(r.NewPath))
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&recent, "recent", "n", 0, "Also list this many recent results")
	return cmd
}
