package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the claudia application
var rootCmd = &cobra.Command{
	Use:   "claudia",
	Short: "Microsoft 365 assistant core: calendar, mail and tool bridge",
	Long: `claudia is the Microsoft 365 backend of a chat assistant. It manages
per-user OAuth credentials, reads and schedules calendar events through
Microsoft Graph, and invokes further Microsoft 365 tools through an
external MCP provider process.

It can run as:
  - An MCP (Model Context Protocol) server for AI assistants (serve)
  - A local OAuth connect helper (connect)
  - A one-shot provider tool invoker (invoke)`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "claudia version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newConnectCmd())
	rootCmd.AddCommand(newInvokeCmd())
	rootCmd.AddCommand(newVersionCmd())
}
