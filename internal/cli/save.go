package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/raphaelgruber/mindbase/internal/client"
	"github.com/raphaelgruber/mindbase/internal/models"
	"github.com/spf13/cobra"
)

var (
	saveNotes    string
	saveType     string
	savePlatform string
)

var saveCmd = &cobra.Command{
	Use:   "save <content|->",
	Short: "Save a link or a note",
	Long: `Save a URL or a piece of text. The server extracts page content,
categorizes it and indexes it for search.

Pass "-" to read the content from stdin.

Examples:
  mindbase save https://www.youtube.com/watch?v=dQw4w9WgXcQ
  mindbase save "Try the miso butter pasta" --notes "from Sam"
  pbpaste | mindbase save -`,
	Args: cobra.ExactArgs(1),
	RunE: runSave,
}

func init() {
	saveCmd.Flags().StringVar(&saveNotes, "notes", "", "personal notes")
	saveCmd.Flags().StringVarP(&saveType, "type", "t", "", "content type hint (text, url)")
	saveCmd.Flags().StringVarP(&savePlatform, "platform", "p", "", "source platform hint")
}

func runSave(cmd *cobra.Command, args []string) error {
	content := args[0]
	if content == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		content = string(data)
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("nothing to save")
	}

	item, err := apiClient.Save(cmd.Context(), client.SaveInput{
		Content:  content,
		Notes:    saveNotes,
		Type:     models.ContentType(saveType),
		Platform: models.Platform(savePlatform),
	})
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, item)
	}
	fmt.Fprintf(out, "%s %s\n", okStyle.Render("✓ Saved"), item.ID)
	printItem(out, *item)
	return nil
}
