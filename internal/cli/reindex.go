package cli

import (
	"fmt"
	"io"

	"github.com/raphaelgruber/mindbase/internal/client"
	"github.com/spf13/cobra"
)

var (
	reindexAll      bool
	reindexReenrich bool
	reindexSync     bool
	reindexNoWait   bool
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild search vectors for saved items",
	Long: `Re-embed saved items and write their vectors to the index. Use this
after the vector store was unavailable or the embedding model changed.

Runs as a background job and shows progress. Press Ctrl+C to leave it
running and check later with 'mindbase jobs'.

Examples:
  mindbase reindex
  mindbase reindex --reenrich        # also regenerate summaries and categories
  mindbase reindex --all             # every owner (admin only)
  mindbase reindex --no-wait         # print the job ID and exit`,
	Args: cobra.NoArgs,
	RunE: runReindex,
}

func init() {
	reindexCmd.Flags().BoolVar(&reindexAll, "all", false, "reindex every owner's items (admin only)")
	reindexCmd.Flags().BoolVar(&reindexReenrich, "reenrich", false, "regenerate summaries and categories too")
	reindexCmd.Flags().BoolVar(&reindexSync, "sync", false, "run in the request and print the result")
	reindexCmd.Flags().BoolVar(&reindexNoWait, "no-wait", false, "start the job and exit")
}

func runReindex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	opts := client.ReindexOptions{All: reindexAll, Reenrich: reindexReenrich}

	if reindexSync {
		res, err := apiClient.Reindex(ctx, opts)
		if err != nil {
			return fmt.Errorf("reindex: %w", err)
		}
		if jsonOutput {
			return printJSON(out, res)
		}
		printReindexResult(out, res)
		return nil
	}

	job, err := apiClient.StartReindex(ctx, opts)
	if err != nil {
		return fmt.Errorf("start reindex: %w", err)
	}

	if jsonOutput {
		return printJSON(out, job)
	}
	if reindexNoWait || !isTerminal(cmd.OutOrStdout()) {
		fmt.Fprintf(out, "Started job %s\n", job.ID)
		fmt.Fprintf(out, "Use 'mindbase jobs %s' to check status.\n", job.ID)
		return nil
	}
	return watchReindex(ctx, apiClient, job, out)
}

func printReindexResult(w io.Writer, r *client.ReindexResult) {
	fmt.Fprintf(w, "  Items scanned:    %d\n", r.Scanned)
	fmt.Fprintf(w, "  Reindexed:        %d\n", r.Reindexed)
	fmt.Fprintf(w, "  Skipped (empty):  %d\n", r.Skipped)
	if r.Failed > 0 {
		fmt.Fprintf(w, "  Failed:           %d\n", r.Failed)
	}
	if len(r.Errors) > 0 {
		fmt.Fprintf(w, "\n  Errors (%d):\n", len(r.Errors))
		for _, e := range r.Errors {
			fmt.Fprintf(w, "    - %s\n", e)
		}
	}
}
