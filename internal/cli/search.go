package cli

import (
	"fmt"
	"strings"

	"github.com/raphaelgruber/mindbase/internal/client"
	"github.com/spf13/cobra"
)

var (
	searchCategories []string
	searchPlatforms  []string
	searchLimit      int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search saved items by meaning",
	Long: `Search saved items by semantic similarity. Falls back to keyword
matching when the vector index is unavailable.

Use 'chat' for an AI-written answer grounded in your items.

Examples:
  mindbase search "pasta recipes"
  mindbase search "rust async" --categories programming
  mindbase search "interview tips" --platforms youtube,tiktok -n 5`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringSliceVarP(&searchCategories, "categories", "c", nil, "filter by categories")
	searchCmd.Flags().StringSliceVarP(&searchPlatforms, "platforms", "p", nil, "filter by source platforms")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "max results")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	res, err := apiClient.Search(cmd.Context(), client.SearchOptions{
		Query:      query,
		Limit:      searchLimit,
		Categories: searchCategories,
		Platforms:  searchPlatforms,
	})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, res)
	}
	if len(res.Items) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}

	fmt.Fprintf(out, "Found %d results", len(res.Items))
	if res.Mode == "keyword" {
		fmt.Fprint(out, hintStyle.Render(" (keyword match, semantic search unavailable)"))
	}
	fmt.Fprint(out, ":\n\n")
	for i, item := range res.Items {
		printItemLine(out, i+1, item)
	}
	return nil
}
