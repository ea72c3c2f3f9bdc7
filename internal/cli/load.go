package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ericnething/roll2d6-client/internal/config"
	"github.com/ericnething/roll2d6-client/internal/session"
)

// LoadOptions holds flags for the load command.
type LoadOptions struct {
	*RootOptions

	// Once exits after the bootstrap outcome instead of following the game.
	Once bool
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "load <game-id>",
		Short: "Load a game and follow its changes",
		Long: `Load a game into the local replica and keep it in live sync.

The game is replicated once from the server, the game document is created
from the template if it does not exist yet, and then pull and push
replication run until interrupted. Every session signal (game loaded,
changes received, sync state, presence and chat events) is printed as it
arrives. On exit an offline beacon is sent when beacon_url is configured.

Exit codes:
  0 - Interrupted after a successful load
  1 - Game failed to load or credentials rejected
  2 - Command error (invalid config or template)

Examples:
  roll2d6 load game_e95bcd76-9e3c-4f4c-8f1e-6b1e0c0a7d10
  roll2d6 load --once --format json game_e95bcd76-9e3c-4f4c-8f1e-6b1e0c0a7d10`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Once, "once", false, "exit once the game has loaded")

	return cmd
}

func runLoad(opts *LoadOptions, gameID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := resolveConfig(opts.RootOptions)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}
	template, err := config.LoadTemplate(cfg.Template)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeTemplate, "invalid game template", err)
	}
	logger := setupLogging(opts.RootOptions, cmd.ErrOrStderr())

	ctx, cancel := commandContext(cmd)
	defer cancel()

	sess := session.New(session.Options{
		GameID:      gameID,
		RemoteURL:   cfg.RemoteURL,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DataDir:     cfg.DataDir,
		DefaultGame: template,
		EventsURL:   cfg.EventsURL,
		BeaconURL:   cfg.BeaconURL,
		Sync:        cfg.SyncOptions(logger),
		Logger:      logger,
	})

	formatter.VerboseLog("Loading %s from %s", gameID, cfg.RemoteURL)

	loaded := make(chan error, 1)
	go func() { loaded <- sess.Load(ctx) }()

	for {
		select {
		case <-ctx.Done():
			logger.Info("stopping", "game", gameID)
			return teardown(sess)

		case err := <-loaded:
			loaded = nil
			if err == nil {
				continue
			}
			drainSignals(formatter, sess)
			_ = sess.Close()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if errors.Is(err, session.ErrAuthFailed) {
				return formatter.Fail(ExitFailure, ErrCodeAuth, "credentials rejected", err)
			}
			return formatter.Fail(ExitFailure, ErrCodeLoadFailed, "game failed to load", err)

		case sig, ok := <-sess.Signals():
			if !ok {
				return nil
			}
			if err := printSignal(formatter, sig); err != nil {
				_ = sess.Close()
				return WrapExitError(ExitFailure, "write output", err)
			}
			if _, done := sig.(session.GameLoaded); done && opts.Once {
				return teardown(sess)
			}
		}
	}
}

func teardown(sess *session.Session) error {
	if err := sess.Teardown(); err != nil {
		return WrapExitError(ExitFailure, "close session", err)
	}
	return nil
}

// drainSignals prints signals already queued when Load failed.
func drainSignals(f *OutputFormatter, sess *session.Session) {
	for {
		select {
		case sig, ok := <-sess.Signals():
			if !ok {
				return
			}
			_ = printSignal(f, sig)
		default:
			return
		}
	}
}

// printSignal renders sig as one output record.
func printSignal(f *OutputFormatter, sig session.Signal) error {
	name := session.SignalName(sig)

	switch s := sig.(type) {
	case session.GameLoaded:
		title, _ := s.Game["title"].(string)
		return f.Signal(name, s, fmt.Sprintf("id=%s title=%q sheets=%d", s.ID, title, len(s.Sheets)))

	case session.GameLoadFailed:
		return f.Signal(name, errorData(s.ID, s.Err), fmt.Sprintf("id=%s error=%q", s.ID, errString(s.Err)))

	case session.AuthFailed:
		return f.Signal(name, errorData(s.ID, s.Err), fmt.Sprintf("id=%s error=%q", s.ID, errString(s.Err)))

	case session.ChangesReceived:
		sheets := make([]string, len(s.Sheets))
		for i, d := range s.Sheets {
			sheets[i] = d.ID()
		}
		text := fmt.Sprintf("game=%t sheets=[%s] deleted=[%s]",
			s.Game != nil, strings.Join(sheets, ","), strings.Join(s.Deleted, ","))
		return f.Signal(name, s, text)

	case session.SyncStateChanged:
		data := map[string]any{
			"direction": s.Direction.String(),
			"state":     s.State.String(),
		}
		text := fmt.Sprintf("direction=%s state=%s", s.Direction, s.State)
		if s.Err != nil {
			data["error"] = s.Err.Error()
			text += fmt.Sprintf(" error=%q", s.Err.Error())
		}
		return f.Signal(name, data, text)

	case session.PlayerListUpdated:
		return f.Signal(name, s.Data, string(s.Data))

	case session.PlayerPresenceUpdated:
		return f.Signal(name, s.Data, string(s.Data))

	case session.ChatMessageReceived:
		return f.Signal(name, s.Data, string(s.Data))

	default:
		return f.Signal(name, nil, "")
	}
}

func errorData(id string, err error) map[string]string {
	return map[string]string{"id": id, "error": errString(err)}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
