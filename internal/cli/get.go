package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a saved item",
	Example: `  mindbase get 3f9a1c2e
  mindbase get 3f9a1c2e -v   # include extracted text`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

var starCmd = &cobra.Command{
	Use:   "star <id>",
	Short: "Toggle the star on an item",
	Args:  cobra.ExactArgs(1),
	RunE:  runStar,
}

func runGet(cmd *cobra.Command, args []string) error {
	item, err := apiClient.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get item: %w", err)
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), item)
	}
	printItem(cmd.OutOrStdout(), *item)
	return nil
}

func runStar(cmd *cobra.Command, args []string) error {
	item, err := apiClient.Star(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("star item: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, item)
	}
	if item.IsStarred {
		fmt.Fprintf(out, "%s %s\n", starStyle.Render("★ Starred:"), itemTitle(*item))
	} else {
		fmt.Fprintf(out, "Unstarred: %s\n", itemTitle(*item))
	}
	return nil
}
