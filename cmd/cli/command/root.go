package command

// root.go defines the root command for the geminichat CLI.
// set up the global flags here.

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var apiURL string // Global flag for API server URL

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "geminichat",
	Short: "geminichat - chat room command line client",
	Long: `geminichat is a terminal client for the geminichat API. User can use this application to:
- Read the history of a chat room, page by page
- Send messages and images
- Join a room and follow it live

Use "geminichat command --help" to see all available commands.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err) // Print error to standard error
		os.Exit(1)
	}
}

func init() {
	defaultAPI := os.Getenv("GEMINICHAT_API")
	if defaultAPI == "" {
		defaultAPI = "http://localhost:8080"
	}
	// Global persistent flags = available to all subcommands
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", defaultAPI, "API server URL")
}
