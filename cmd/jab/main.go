// Package main implements the jab CLI: versioned snapshots of database dumps.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/jab/internal/config"
	"github.com/fyrsmithlabs/jab/internal/dump"
	"github.com/fyrsmithlabs/jab/internal/logging"
	"github.com/fyrsmithlabs/jab/internal/metrics"
	"github.com/fyrsmithlabs/jab/internal/project"
	"github.com/fyrsmithlabs/jab/internal/registry"
	"github.com/fyrsmithlabs/jab/internal/snapshot"
)

// version information
var version = "dev"

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		os.Exit(1)
	}
}

// app holds what every subcommand needs after startup.
type app struct {
	rootFlag  string
	levelFlag string

	settings *config.Settings
	logger   *logging.Logger
	manager  project.Manager
	metrics  *metrics.Metrics

	// providerFor picks the dump provider for a database URI.
	providerFor func(uri string) (dump.Provider, error)
}

func newRootCmd() *cobra.Command {
	return newRootCmdFor(&app{})
}

func newRootCmdFor(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "jab",
		Short: "Version control for database dumps",
		Long: `jab snapshots databases into a per-project commit history.

Each project maps a name to a database URI. Committing takes a fresh dump and
records it only when it differs from the previous snapshot; any snapshot can
later be printed or restored.

Examples:
  # Track a database
  jab project create shop --database-uri "user:secret@localhost/shop"

  # Record its current state
  jab project commit shop -m "before migration"

  # Roll it back
  jab project restore shop 3f2a9c1`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.rootFlag, "root", "", "jab root directory (default ~/.jab, or $JAB_ROOT)")
	rootCmd.PersistentFlags().StringVar(&a.levelFlag, "log-level", "", "log level: trace, debug, info, warn, error")

	rootCmd.AddCommand(newProjectCmd(a))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// setup loads settings, builds the logger and bootstraps the root directory.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	settings, err := config.Load(a.rootFlag)
	if err != nil {
		return err
	}
	if a.levelFlag != "" {
		settings.Log.Level = a.levelFlag
	}
	a.settings = settings

	logger, err := newLogger(settings.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.logger = logger
	a.metrics = metrics.New()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logging.WithInvocationID(ctx, uuid.NewString())
	ctx = logging.WithLogger(ctx, logger)
	cmd.SetContext(ctx)

	var repoOpts []snapshot.Option
	repoOpts = append(repoOpts, snapshot.WithLogger(logger))
	if settings.Author.Name != "" {
		repoOpts = append(repoOpts, snapshot.WithAuthor(settings.Author.Name, settings.Author.Email))
	}

	a.manager = project.NewManager(settings.Root, registry.NewFileStore(settings.Root),
		project.WithRepositoryOptions(repoOpts...),
		project.WithManagerLogger(logger),
	)
	if a.providerFor == nil {
		a.providerFor = func(uri string) (dump.Provider, error) {
			return dump.ForURI(uri, a.settings, a.logger)
		}
	}

	logger.Debug(ctx, "jab starting",
		zap.String("version", version),
		zap.String("root", settings.Root),
	)
	return a.manager.Bootstrap(ctx)
}

func newLogger(s config.LogSettings, out io.Writer) (*logging.Logger, error) {
	cfg := logging.NewDefaultConfig()
	cfg.Output = out
	if s.Format != "" {
		cfg.Format = s.Format
	}
	if s.Level != "" {
		level, err := logging.LevelFromString(s.Level)
		if err != nil {
			return nil, err
		}
		cfg.Level = level
	}
	return logging.NewLogger(cfg)
}

// withTimeout bounds ctx by the configured subprocess timeout.
func (a *app) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.settings.Timeout > 0 {
		return context.WithTimeout(ctx, a.settings.Timeout)
	}
	return context.WithCancel(ctx)
}

// describeErr adds a hint for errors a user can act on.
func describeErr(name string, err error) error {
	switch {
	case errors.Is(err, registry.ErrProjectNotRegistered):
		return fmt.Errorf("%w (see 'jab project list')", err)
	case errors.Is(err, project.ErrProjectNotFound):
		return fmt.Errorf("%w (recreate it with 'jab project create %s')", err, name)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w (raise JAB_TIMEOUT)", err)
	default:
		return err
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the jab version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "jab", version)
		},
	}
}
