// Package cli provides the command-line interface for MindBase.
package cli

import (
	"encoding/json"
	"io"

	"github.com/raphaelgruber/mindbase/internal/client"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose    bool
	jsonOutput bool
	serverURL  string
	token      string

	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "mindbase",
	Short: "Save anything, find it later",
	Long: `MindBase saves links, notes and screenshots, categorizes them with AI,
and lets you search or chat over everything you have saved.

The CLI talks to a running mindbase-server. Configure it with
MINDBASE_SERVER_URL and MINDBASE_TOKEN, or the --server and --token flags.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		apiClient = client.New(serverURL)
		if token != "" {
			apiClient = apiClient.WithToken(token)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON responses")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $MINDBASE_SERVER_URL or http://localhost:8585)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "bearer token (default $MINDBASE_TOKEN)")

	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(categoriesCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(starCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(statsCmd)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
