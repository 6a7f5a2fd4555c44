package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var uploadNotes string

var uploadCmd = &cobra.Command{
	Use:   "upload <image-file>",
	Short: "Save a screenshot or photo",
	Long: `Upload an image. The server stores it, describes it with AI and
indexes the description.

Examples:
  mindbase upload ~/Desktop/screenshot.png
  mindbase upload receipt.jpg --notes "tax 2025"`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVar(&uploadNotes, "notes", "", "personal notes")
}

func runUpload(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	item, err := apiClient.UploadImage(cmd.Context(), path, data, uploadNotes)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, item)
	}
	fmt.Fprintf(out, "%s %s\n", okStyle.Render("✓ Uploaded"), item.ID)
	printItem(out, *item)
	return nil
}
