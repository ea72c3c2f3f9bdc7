package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ericnething/roll2d6-client/internal/config"
	"github.com/ericnething/roll2d6-client/internal/doc"
	"github.com/ericnething/roll2d6-client/internal/remote"
)

// setupLogging installs a text handler on w as the default logger.
func setupLogging(opts *RootOptions, w io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// resolveConfig loads the config file, applies flag overrides and
// validates the result.
func resolveConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Remote != "" {
		cfg.RemoteURL = opts.Remote
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if opts.Events != "" {
		cfg.EventsURL = opts.Events
	}
	if opts.Template != "" {
		cfg.Template = opts.Template
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// commandContext returns a context cancelled on SIGINT/SIGTERM.
// Uses the command's context if available (for testing).
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan) // Prevent signal handler leak
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// openRemote returns a client for database on the configured server.
func openRemote(cfg *config.Config, database string) (*remote.Client, error) {
	return remote.New(remote.Config{
		URL:      cfg.RemoteURL,
		Database: database,
		Username: cfg.Username,
		Password: cfg.Password,
	})
}

// remoteFailure maps a document operation error to an exit error.
func remoteFailure(f *OutputFormatter, message string, err error) error {
	switch {
	case errors.Is(err, doc.ErrNotFound):
		return f.Fail(ExitFailure, ErrCodeNotFound, message, err)
	case errors.Is(err, doc.ErrConflict):
		return f.Fail(ExitFailure, ErrCodeConflict, message, err)
	case remote.IsUnauthorized(err):
		return f.Fail(ExitFailure, ErrCodeAuth, message, err)
	case remote.IsUnreachable(err):
		return f.Fail(ExitFailure, ErrCodeUnreachable, message, err)
	default:
		return f.Fail(ExitFailure, ErrCodeGeneric, message, err)
	}
}
