package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/jab/internal/dump"
	"github.com/fyrsmithlabs/jab/internal/watch"
)

// ErrNotWatchable is returned for projects whose database is not a local file.
var ErrNotWatchable = errors.New("only SQLite projects can be watched")

func newProjectWatchCmd(a *app) *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "watch <name>",
		Short: "Snapshot a SQLite database whenever it changes",
		Long: `Watch a SQLite project's database file and commit a snapshot after each
change, until interrupted.

A change is committed once the file has been quiet for watch.debounce, and
snapshots are at least watch.interval apart (JAB_WATCH_DEBOUNCE,
JAB_WATCH_INTERVAL).

In WAL mode, reading the database for a snapshot checkpoints it and touches
the file again. The follow-up snapshot finds no change and is counted as
"unchanged" in jab_commits_total.

Examples:
  jab project watch cache
  JAB_WATCH_INTERVAL=5m jab project watch cache -m "dev snapshot"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.open(cmd, args[0])
			if err != nil {
				return err
			}
			path, err := dump.SQLitePath(p.DBURI())
			if err != nil {
				return fmt.Errorf("%w: %s", ErrNotWatchable, p.Name())
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			snap := func(ctx context.Context) error {
				msg := fmt.Sprintf("%s %s", prefix, time.Now().UTC().Format(time.RFC3339))
				c, err := a.snapshot(ctx, p, msg)
				if err != nil {
					return err
				}
				if c != nil {
					fmt.Fprintln(out, c.Hash)
				}
				return nil
			}

			if err := snap(ctx); err != nil {
				return err
			}

			detector, err := watch.NewDetector(path,
				watch.WithDebounce(a.settings.Watch.Debounce),
				watch.WithLogger(a.logger),
			)
			if err != nil {
				return err
			}
			defer detector.Stop()
			if err := detector.Start(ctx); err != nil {
				return err
			}

			a.logger.Info(ctx, "watching database",
				zap.String("path", path),
				zap.Duration("interval", a.settings.Watch.Interval),
			)
			return watch.Loop(ctx, detector, a.settings.Watch.Interval, snap)
		},
	}

	cmd.Flags().StringVarP(&prefix, "message", "m", "auto snapshot", "commit message prefix; the time is appended")
	return cmd
}
