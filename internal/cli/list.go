package cli

import (
	"fmt"

	"github.com/raphaelgruber/mindbase/internal/client"
	"github.com/spf13/cobra"
)

var (
	listCategory string
	listPlatform string
	listType     string
	listStarred  bool
	listLimit    int
	listOffset   int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved items or categories",
	Long: `List saved items, newest first, with optional filtering.

Subcommands:
  items       List items (default)
  categories  List categories with item counts

Examples:
  mindbase list
  mindbase list --category cooking
  mindbase list --platform youtube --starred
  mindbase list -n 20 --offset 40
  mindbase list categories`,
	RunE: runListItems,
}

var listItemsCmd = &cobra.Command{
	Use:   "items",
	Short: "List saved items",
	RunE:  runListItems,
}

var listCategoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List categories with item counts",
	RunE:  runListCategories,
}

// categoriesCmd is a top-level shortcut for 'list categories'.
var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List categories with item counts",
	Args:  cobra.NoArgs,
	RunE:  runListCategories,
}

func init() {
	for _, c := range []*cobra.Command{listCmd, listItemsCmd} {
		c.Flags().StringVarP(&listCategory, "category", "c", "", "filter by category")
		c.Flags().StringVarP(&listPlatform, "platform", "p", "", "filter by source platform")
		c.Flags().StringVarP(&listType, "type", "t", "", "filter by content type")
		c.Flags().BoolVar(&listStarred, "starred", false, "only starred items")
		c.Flags().IntVarP(&listLimit, "limit", "n", 20, "max results")
		c.Flags().IntVar(&listOffset, "offset", 0, "skip this many items")
	}

	listCmd.AddCommand(listItemsCmd)
	listCmd.AddCommand(listCategoriesCmd)
}

func runListItems(cmd *cobra.Command, args []string) error {
	opts := client.ListOptions{
		Limit:    listLimit,
		Offset:   listOffset,
		Category: listCategory,
		Platform: listPlatform,
		Type:     listType,
	}
	if listStarred {
		starred := true
		opts.Starred = &starred
	}

	page, err := apiClient.List(cmd.Context(), opts)
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, page)
	}
	if len(page.Items) == 0 {
		fmt.Fprintln(out, "No items found.")
		return nil
	}

	fmt.Fprintf(out, "Items %d-%d of %d:\n\n", page.Offset+1, page.Offset+len(page.Items), page.Total)
	for _, item := range page.Items {
		printItemLine(out, 0, item)
	}
	return nil
}

func runListCategories(cmd *cobra.Command, args []string) error {
	cats, err := apiClient.Categories(cmd.Context())
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, cats)
	}
	if len(cats) == 0 {
		fmt.Fprintln(out, "No categories found.")
		return nil
	}

	fmt.Fprintf(out, "Categories (%d):\n\n", len(cats))
	for _, c := range cats {
		fmt.Fprintf(out, "- %s (%d)\n", labelStyle.Render(c.Name), c.Count)
	}
	return nil
}
