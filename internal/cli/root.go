package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	ConfigPath string // YAML config file; empty uses defaults
	Remote     string // overrides remote_url
	DataDir    string // overrides data_dir
	Events     string // overrides events_url
	Template   string // overrides template
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the roll2d6 CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "roll2d6",
		Short: "roll2d6 - tabletop game client",
		Long: `A command-line client for roll2d6 games.

Games are CouchDB databases holding a "game" document and one document per
character sheet. The client keeps a local replica in SQLite, keeps it in
live sync with the server and forwards presence and chat events.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Remote, "remote", "", "CouchDB base URL (overrides remote_url)")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "directory for local replicas (overrides data_dir)")
	cmd.PersistentFlags().StringVar(&opts.Events, "events", "", "event stream base URL (overrides events_url)")
	cmd.PersistentFlags().StringVar(&opts.Template, "template", "", "CUE file with the default game (overrides template)")

	// Add subcommands
	cmd.AddCommand(NewLoadCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewGamesCommand(opts))
	cmd.AddCommand(NewChatCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
