package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/endogpt/endokit/internal/engine/snapshot"
	"github.com/endogpt/endokit/internal/imagefolder"
	"github.com/endogpt/endokit/internal/tui"
)

func newInspectCmd() *cobra.Command {
	var failed bool

	cmd := &cobra.Command{
		Use:   "inspect <results.json>",
		Short: "Summarize a results file written by analyze or improve",
		Long: `Reads a results file, including one from a run that is still going or was
interrupted, and prints how many items are done and how many failed.`,
		Example: `  endokit inspect frames/case1/results/analysis_results_20240101_120000.json
  endokit inspect case1_improved_20240101_120000.txt.progress.json --failed`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := snapshot.Load(args[0])
			if err != nil {
				return err
			}

			st := snap.Stats
			elapsed := st.LastUpdated.Sub(st.TimestampStart)
			if st.TotalTimeSeconds != nil {
				elapsed = time.Duration(*st.TotalTimeSeconds * float64(time.Second))
			}

			title := "Run " + st.RunID
			if st.TimestampEnd == nil {
				title += " (in progress or interrupted)"
			}

			cmd.Println(tui.RenderSummary(tui.Summary{
				Title:     title,
				Total:     st.TotalImages,
				Succeeded: snap.Completed() - len(snap.Failures),
				Failed:    len(snap.Failures),
				Elapsed:   elapsed,
				Output:    args[0],
			}))
			if pending := st.TotalImages - snap.Completed(); pending > 0 {
				cmd.Printf("%s items have no result yet\n", tui.FormatCount(pending))
			}

			if failed {
				ids := snap.FailedIDs()
				imagefolder.SortNumeric(ids)
				for _, id := range ids {
					f := snap.Failures[id]
					cmd.Printf("%s\t%d attempts\t%s\n", id, f.Attempts, f.Error)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&failed, "failed", false, "list failed items with their errors")

	return cmd
}
