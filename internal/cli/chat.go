package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ericnething/roll2d6-client/internal/messaging"
)

// ChatOptions holds flags for the chat command.
type ChatOptions struct {
	*RootOptions
	JID     string
	Nick    string
	Message string
	Listen  bool
}

// NewChatCommand creates the chat command.
func NewChatCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ChatOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "chat <room>",
		Short: "Join a game chat room",
		Long: `Connect to the messaging server configured as messaging_url, join a
room and print inbound messages until interrupted. With --message the
message is sent after joining; without --listen the command then leaves.

Examples:
  roll2d6 chat game_e95bcd76@rooms.roll2d6.org --jid alice@roll2d6.org --listen
  roll2d6 chat game_e95bcd76@rooms.roll2d6.org --jid alice@roll2d6.org -m "rolling initiative"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.JID, "jid", "", "account to connect as (required)")
	cmd.Flags().StringVar(&opts.Nick, "nick", "", "room nickname (defaults to the jid)")
	cmd.Flags().StringVarP(&opts.Message, "message", "m", "", "message to send after joining")
	cmd.Flags().BoolVar(&opts.Listen, "listen", false, "keep printing inbound messages")
	_ = cmd.MarkFlagRequired("jid")

	return cmd
}

func runChat(opts *ChatOptions, room string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := resolveConfig(opts.RootOptions)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}
	if cfg.MessagingURL == "" {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "messaging_url is not configured", nil)
	}
	logger := setupLogging(opts.RootOptions, cmd.ErrOrStderr())

	nick := opts.Nick
	if nick == "" {
		nick = opts.JID
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	client := messaging.NewClient(messaging.Options{URL: cfg.MessagingURL, Logger: logger})
	defer client.Close()

	commands := []messaging.Command{
		messaging.Connect{JID: opts.JID, Password: cfg.Password},
		messaging.JoinRoom{Room: room, Nick: nick},
	}
	if opts.Message != "" {
		commands = append(commands, messaging.SendMessage{To: room, Type: "groupchat", Body: opts.Message})
	}
	for _, c := range commands {
		formatter.VerboseLog("Sending %s", messaging.Name(c))
		if err := client.Dispatch(ctx, c); err != nil {
			return formatter.Fail(ExitFailure, ErrCodeUnreachable, fmt.Sprintf("%s failed", messaging.Name(c)), err)
		}
	}

	if opts.Listen {
		follow(ctx, formatter, client)
	}

	// Leave politely even when interrupted.
	leaveCtx, leaveCancel := context.WithTimeout(context.Background(), messaging.DefaultWriteTimeout)
	defer leaveCancel()
	if err := client.Dispatch(leaveCtx, messaging.LeaveRoom{Room: room, Nick: nick}); err != nil {
		logger.Warn("leave room failed", "room", room, "error", err)
	}
	if err := client.Dispatch(leaveCtx, messaging.Disconnect{}); err != nil {
		logger.Warn("disconnect failed", "error", err)
	}
	return nil
}

// follow prints inbound messages until ctx ends or the connection drops.
func follow(ctx context.Context, f *OutputFormatter, client *messaging.Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case in, ok := <-client.Inbound():
			if !ok {
				return
			}
			_ = f.Signal(in.Kind, in.Payload, string(in.Payload))
		}
	}
}
