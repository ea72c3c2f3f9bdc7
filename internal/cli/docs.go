package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ericnething/roll2d6-client/internal/doc"
	"github.com/ericnething/roll2d6-client/internal/gateway"
	"github.com/ericnething/roll2d6-client/internal/remote"
)

// DocOptions holds flags shared by the document commands.
type DocOptions struct {
	*RootOptions

	// File supplies the put payload; "-" reads stdin.
	File string
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DocOptions{RootOptions: rootOpts}

	return &cobra.Command{
		Use:   "get <game-id> [doc-id]",
		Short: "Print a document from the server",
		Long: `Print one document of a game. The document id defaults to "game".

Example:
  roll2d6 get game_e95bcd76-9e3c-4f4c-8f1e-6b1e0c0a7d10
  roll2d6 get game_e95bcd76-9e3c-4f4c-8f1e-6b1e0c0a7d10 0a6f1c9e-1b52-4d0c-9d8b-3f5e7f3a2c11`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := doc.RootID
			if len(args) == 2 {
				id = args[1]
			}
			return runGet(opts, args[0], id, cmd)
		},
	}
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DocOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "put <game-id> <doc-id> [json]",
		Short: "Write a document on the server",
		Long: `Write a JSON object as a document of a game.

The current revision is looked up and used for the write; a missing
document is created. Use "new-sheet" as the document id to create a
character sheet with a fresh id.

Examples:
  roll2d6 put game_e95bcd76-9e3c-4f4c-8f1e-6b1e0c0a7d10 game '{"title":"Dresden Files"}'
  roll2d6 put game_e95bcd76-9e3c-4f4c-8f1e-6b1e0c0a7d10 new-sheet --file sheet.json`,
		Args:          cobra.RangeArgs(2, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", `read the JSON payload from a file ("-" for stdin)`)

	return cmd
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DocOptions{RootOptions: rootOpts}

	return &cobra.Command{
		Use:   "remove <game-id> <doc-id>",
		Short: "Delete a document on the server",
		Long: `Delete a document of a game at its current revision.

Example:
  roll2d6 remove game_e95bcd76-9e3c-4f4c-8f1e-6b1e0c0a7d10 0a6f1c9e-1b52-4d0c-9d8b-3f5e7f3a2c11`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(opts, args[0], args[1], cmd)
		},
	}
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DocOptions{RootOptions: rootOpts}

	return &cobra.Command{
		Use:   "list <game-id>",
		Short: "List the documents of a game",
		Long: `Summarize a game: its title and the ids of its character sheets.

Example:
  roll2d6 list game_e95bcd76-9e3c-4f4c-8f1e-6b1e0c0a7d10 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, args[0], cmd)
		},
	}
}

// NewGamesCommand creates the games command.
func NewGamesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DocOptions{RootOptions: rootOpts}

	return &cobra.Command{
		Use:   "games [database]",
		Short: "List games and their titles",
		Long: `List the id and title of every document in a game index database.
The database defaults to "games".

Example:
  roll2d6 games
  roll2d6 games user_alice --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			database := "games"
			if len(args) == 1 {
				database = args[0]
			}
			return runGames(opts, database, cmd)
		},
	}
}

// GameSummary is the output of the list command.
type GameSummary struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Sheets []string `json:"sheets"`
}

// WriteResult is the output of the put and remove commands.
type WriteResult struct {
	ID  string `json:"id"`
	Rev string `json:"rev"`
}

// withRemote resolves the config and opens the game database.
func withRemote(opts *DocOptions, cmd *cobra.Command, database string) (*OutputFormatter, *remote.Client, error) {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := resolveConfig(opts.RootOptions)
	if err != nil {
		return formatter, nil, formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}
	setupLogging(opts.RootOptions, cmd.ErrOrStderr())

	client, err := openRemote(cfg, database)
	if err != nil {
		return formatter, nil, formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid remote", err)
	}
	formatter.VerboseLog("Using %s", client.URL())
	return formatter, client, nil
}

func runGet(opts *DocOptions, gameID, id string, cmd *cobra.Command) error {
	formatter, client, err := withRemote(opts, cmd, gameID)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	d, err := client.Get(ctx, id)
	if err != nil {
		return remoteFailure(formatter, fmt.Sprintf("get %s", id), err)
	}
	return successJSON(formatter, d)
}

func runPut(opts *DocOptions, args []string, cmd *cobra.Command) error {
	gameID, id := args[0], args[1]
	if id == "new-sheet" {
		id = doc.NewSheetID()
	}

	formatter := newFormatter(opts.RootOptions, cmd)
	payload, err := readPayload(opts, args, cmd.InOrStdin())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInput, "invalid payload", err)
	}

	formatter, client, err := withRemote(opts, cmd, gameID)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	rev, err := gateway.New(nil).Write(ctx, client, id, payload)
	if err != nil {
		return remoteFailure(formatter, fmt.Sprintf("put %s", id), err)
	}
	return writeResult(formatter, WriteResult{ID: id, Rev: rev})
}

func runRemove(opts *DocOptions, gameID, id string, cmd *cobra.Command) error {
	formatter, client, err := withRemote(opts, cmd, gameID)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	rev, err := gateway.New(nil).Remove(ctx, client, id)
	if err != nil {
		return remoteFailure(formatter, fmt.Sprintf("remove %s", id), err)
	}
	return writeResult(formatter, WriteResult{ID: id, Rev: rev})
}

func runList(opts *DocOptions, gameID string, cmd *cobra.Command) error {
	formatter, client, err := withRemote(opts, cmd, gameID)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	docs, err := client.AllDocs(ctx)
	if err != nil {
		return remoteFailure(formatter, fmt.Sprintf("list %s", gameID), err)
	}
	p := doc.PartitionDocs(docs)

	summary := GameSummary{ID: gameID, Sheets: p.SheetIDs()}
	if p.Game != nil {
		summary.Title, _ = p.Game["title"].(string)
	}

	if formatter.Format == "json" {
		return formatter.Success(summary)
	}
	fmt.Fprintf(formatter.Writer, "%s %q\n", summary.ID, summary.Title)
	for _, id := range summary.Sheets {
		fmt.Fprintf(formatter.Writer, "  sheet %s\n", id)
	}
	return nil
}

func runGames(opts *DocOptions, database string, cmd *cobra.Command) error {
	formatter, client, err := withRemote(opts, cmd, database)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	games, err := gateway.ListGames(ctx, client)
	if err != nil {
		return remoteFailure(formatter, fmt.Sprintf("list games in %s", database), err)
	}

	if formatter.Format == "json" {
		return formatter.Success(games)
	}
	if len(games) == 0 {
		fmt.Fprintln(formatter.Writer, "No games.")
		return nil
	}
	for _, g := range games {
		fmt.Fprintf(formatter.Writer, "%s %q\n", g.ID, g.Title)
	}
	return nil
}

// readPayload decodes the JSON object given inline or through --file.
func readPayload(opts *DocOptions, args []string, stdin io.Reader) (map[string]any, error) {
	var raw []byte
	switch {
	case len(args) == 3 && opts.File != "":
		return nil, fmt.Errorf("payload given both inline and with --file")
	case len(args) == 3:
		raw = []byte(args[2])
	case opts.File == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		raw = data
	case opts.File != "":
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		raw = data
	default:
		return nil, fmt.Errorf("missing payload: pass JSON inline or use --file")
	}

	d, err := doc.Parse(raw)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func writeResult(f *OutputFormatter, res WriteResult) error {
	if f.Format == "json" {
		return f.Success(res)
	}
	return f.Success(fmt.Sprintf("%s %s", res.ID, res.Rev))
}

// successJSON prints v as indented JSON in text mode.
func successJSON(f *OutputFormatter, v any) error {
	if f.Format == "json" {
		return f.Success(v)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	return f.Success(strings.TrimRight(buf.String(), "\n"))
}
