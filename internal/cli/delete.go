package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/raphaelgruber/mindbase/internal/client"
	"github.com/spf13/cobra"
)

var (
	deleteForce bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved item",
	Long: `Delete a saved item and its search index entry.

Requires confirmation unless --force is used.

Examples:
  mindbase delete 3f9a1c2e
  mindbase delete 3f9a1c2e --force`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "skip confirmation")
}

func runDelete(cmd *cobra.Command, args []string) error {
	id := args[0]
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	item, err := apiClient.Get(ctx, id)
	if err != nil {
		if client.IsNotFound(err) {
			return fmt.Errorf("item not found: %s", id)
		}
		return fmt.Errorf("get item: %w", err)
	}

	if !deleteForce {
		fmt.Fprintf(out, "About to delete: %s (%s)\n", itemTitle(*item), item.ID)
		fmt.Fprint(out, "\nContinue? [y/N]: ")

		reader := bufio.NewReader(cmd.InOrStdin())
		response, err := reader.ReadString('\n')
		if err != nil && response == "" {
			return fmt.Errorf("read input: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))

		if response != "y" && response != "yes" {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	if err := apiClient.Delete(ctx, item.ID); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}

	fmt.Fprintf(out, "Deleted: %s\n", itemTitle(*item))
	return nil
}
