package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/raphaelgruber/mindbase/internal/metrics"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show item count and server statistics",
	Long: `Show how many items you have saved and the server's runtime statistics
(call counts and latencies per pipeline stage, since the last restart).

Examples:
  mindbase stats
  mindbase stats --json`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := apiClient.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, stats)
	}

	fmt.Fprintf(out, "Saved items: %d\n\n", stats.Items)
	printServerStats(out, stats.Metrics)
	return nil
}

// printServerStats displays server runtime statistics.
func printServerStats(w io.Writer, s metrics.Snapshot) {
	fmt.Fprintf(w, "Server Statistics (in-memory, since restart)\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════\n")
	uptime := time.Duration(s.UptimeSeconds * float64(time.Second))
	fmt.Fprintf(w, "Uptime: %s\n", uptime.Round(time.Second))

	ops := []struct {
		name   string
		op     *metrics.OperationSnapshot
		tokens bool
	}{
		{"Extraction", s.Extract, false},
		{"Embeddings", s.Embedding, false},
		{"LLM Generate", s.LLMGenerate, true},
		{"LLM Stream", s.LLMStream, true},
		{"DB Query", s.DBQuery, false},
		{"Vector Upsert", s.VectorUpsert, false},
		{"Vector Query", s.VectorQuery, false},
		{"Keyword Fallback", s.KeywordFallback, false},
	}
	for _, o := range ops {
		if o.op == nil {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n", o.name)
		printOpStats(w, o.op)
		if o.tokens {
			printTokenStats(w, o.op)
		}
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(w io.Writer, op *metrics.OperationSnapshot) {
	fmt.Fprintf(w, "  Calls: %d, Failures: %d, Total: %dms\n", op.Count, op.Failures, op.TotalTimeMs)
	fmt.Fprintf(w, "  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

// printTokenStats displays token statistics if available.
func printTokenStats(w io.Writer, op *metrics.OperationSnapshot) {
	if op.TotalInputTokens == nil || op.TotalOutputTokens == nil {
		return
	}
	fmt.Fprintf(w, "  Tokens In:  %d total", *op.TotalInputTokens)
	if op.AvgInputTokens != nil {
		fmt.Fprintf(w, ", avg %.0f", *op.AvgInputTokens)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Tokens Out: %d total", *op.TotalOutputTokens)
	if op.AvgOutputTokens != nil {
		fmt.Fprintf(w, ", avg %.0f", *op.AvgOutputTokens)
	}
	fmt.Fprintln(w)
}
