package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/raphaelgruber/mindbase/internal/client"
	"github.com/raphaelgruber/mindbase/internal/models"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	chatNoStream    bool
	chatShowSources bool
)

var chatCmd = &cobra.Command{
	Use:   "chat [question]",
	Short: "Ask questions about your saved items",
	Long: `Ask a question and get an AI answer grounded in the items you saved.

With a question argument, answers once. Without one, starts an interactive
session on a terminal (follow-up questions keep the conversation), or reads a
single question from stdin when piped.

Examples:
  mindbase chat "what pasta recipes did I save?"
  mindbase chat
  echo "summarize my rust notes" | mindbase chat`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatNoStream, "no-stream", false, "wait for the full answer instead of streaming")
	chatCmd.Flags().BoolVarP(&chatShowSources, "sources", "s", true, "list the items the answer is based on")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if len(args) > 0 {
		_, err := ask(ctx, out, strings.Join(args, " "), nil)
		return err
	}

	if !isTerminal(cmd.InOrStdin()) {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		question := strings.TrimSpace(string(data))
		if question == "" {
			return fmt.Errorf("no question given")
		}
		_, err = ask(ctx, out, question, nil)
		return err
	}

	return chatLoop(ctx, cmd.InOrStdin(), out)
}

// chatLoop runs an interactive session until EOF or "exit".
func chatLoop(ctx context.Context, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, hintStyle.Render("Ask about your saved items. Ctrl+D or 'exit' to quit."))

	var history []models.ChatTurn
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, promptStyle.Render("> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			return nil
		}

		res, err := ask(ctx, out, question, history)
		if err != nil {
			fmt.Fprintln(out, errStyle.Render("✗ "+err.Error()))
			continue
		}
		history = append(history,
			models.ChatTurn{Role: models.RoleUser, Content: question},
			models.ChatTurn{Role: models.RoleAssistant, Content: res.Answer},
		)
	}
}

// ask sends one question and prints the answer followed by its sources.
func ask(ctx context.Context, out io.Writer, question string, history []models.ChatTurn) (*client.ChatResult, error) {
	var (
		res *client.ChatResult
		err error
	)
	if chatNoStream || jsonOutput {
		res, err = apiClient.Chat(ctx, question, history)
		if err != nil {
			return nil, fmt.Errorf("chat: %w", err)
		}
		if jsonOutput {
			return res, printJSON(out, res)
		}
		fmt.Fprintln(out, res.Answer)
	} else {
		res, err = apiClient.ChatStream(ctx, question, history, nil, func(token string) error {
			_, werr := fmt.Fprint(out, token)
			return werr
		})
		if err != nil {
			return nil, fmt.Errorf("chat: %w", err)
		}
		fmt.Fprintln(out)
	}

	if chatShowSources && len(res.Sources) > 0 {
		fmt.Fprintln(out, hintStyle.Render("\nSources:"))
		for i, item := range res.Sources {
			fmt.Fprintf(out, "  [%d] %s %s\n", i+1, itemTitle(item), idStyle.Render("("+item.ID+")"))
		}
	}
	fmt.Fprintln(out)
	return res, nil
}

// isTerminal reports whether stream is a file attached to a terminal.
func isTerminal(stream any) bool {
	f, ok := stream.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
