package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/jab/internal/logging"
	"github.com/fyrsmithlabs/jab/internal/metrics"
	"github.com/fyrsmithlabs/jab/internal/project"
	"github.com/fyrsmithlabs/jab/internal/snapshot"
)

func newProjectCmd(a *app) *cobra.Command {
	projectCmd := &cobra.Command{
		Use:   "project",
		Short: "Manage tracked databases",
		Long: `Manage projects. A project binds a name to a database URI and keeps the
history of that database's dumps under <root>/<name>.`,
	}

	projectCmd.AddCommand(newProjectCreateCmd(a))
	projectCmd.AddCommand(newProjectListCmd(a))
	projectCmd.AddCommand(newProjectCommitCmd(a))
	projectCmd.AddCommand(newProjectLogCmd(a))
	projectCmd.AddCommand(newProjectShowCmd(a))
	projectCmd.AddCommand(newProjectRestoreCmd(a))
	projectCmd.AddCommand(newProjectWatchCmd(a))
	return projectCmd
}

func newProjectCreateCmd(a *app) *cobra.Command {
	var dbURI string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project",
		Long: `Create a project and its snapshot repository.

Creating an existing project keeps its history and updates its database URI.

Examples:
  # PostgreSQL, bare form
  jab project create shop --database-uri "user:secret@localhost/shop"

  # SQLite file
  jab project create cache --database-uri "sqlite:///var/lib/app/cache.db"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := a.manager.CreateProject(ctx, a.settings.Root, args[0], dbURI)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Done creating %s\n", p.Name())
			return nil
		},
	}

	cmd.Flags().StringVar(&dbURI, "database-uri", "", `database URI, for example "user:secret@localhost/mydb"`)
	_ = cmd.MarkFlagRequired("database-uri")
	return cmd
}

func newProjectListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := a.manager.ProjectNames(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Available projects:")
			for _, name := range names {
				fmt.Fprintf(out, "* %s\n", name)
			}
			return nil
		},
	}
}

func newProjectCommitCmd(a *app) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "commit <name>",
		Short: "Commit the current database state",
		Long: `Dump the project's database and record the dump as a new snapshot.

Nothing is recorded when the dump matches the latest snapshot.

Examples:
  jab project commit shop -m "before migration"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.open(cmd, args[0])
			if err != nil {
				return err
			}

			c, err := a.snapshot(cmd.Context(), p, message)
			if err != nil {
				return err
			}
			if c == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to commit")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), c.Hash)
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func newProjectLogCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "log <name>",
		Short: "Show the snapshot history",
		Long: `Print the project's snapshots, newest first.

Examples:
  jab project log shop
  jab project log shop --limit 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.open(cmd, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			n := 0
			for c, err := range p.History(cmd.Context()) {
				if err != nil {
					return describeErr(p.Name(), err)
				}
				if limit > 0 && n == limit {
					break
				}
				fmt.Fprintf(out, "* %s %s\n", c.Hash, firstLine(c.Message))
				n++
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of snapshots to show (0 for all)")
	return cmd
}

func newProjectShowCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show <name> [commit]",
		Short: "Print the dump recorded at a commit",
		Long: `Write the raw dump recorded at a commit (HEAD when omitted) to stdout.

Commits may be given as full hashes, unambiguous prefixes of at least four
characters, or ref names such as HEAD.

Examples:
  jab project show shop > latest.dump
  jab project show shop 3f2a9c1 --output before.dump`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.open(cmd, args[0])
			if err != nil {
				return err
			}

			data, err := dumpFor(cmd, p, args[1:])
			if err != nil {
				return describeErr(p.Name(), err)
			}

			if output != "" {
				if err := os.WriteFile(output, data, 0600); err != nil {
					return fmt.Errorf("writing %s: %w", output, err)
				}
				return nil
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the dump to a file instead of stdout")
	return cmd
}

func newProjectRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <name> [commit]",
		Short: "Restore the database to a commit",
		Long: `Restore the project's database from the dump recorded at a commit
(HEAD when omitted). The current database content is replaced.

Examples:
  jab project restore shop
  jab project restore shop 3f2a9c1`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.open(cmd, args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			data, err := dumpFor(cmd, p, args[1:])
			if err != nil {
				return describeErr(p.Name(), err)
			}

			provider, err := a.providerFor(p.DBURI())
			if err != nil {
				return err
			}
			restoreCtx, cancel := a.withTimeout(ctx)
			start := time.Now()
			status, err := provider.Restore(restoreCtx, p.DBURI(), data)
			cancel()
			if err != nil {
				a.metrics.RecordFailure(p.Name(), metrics.OpRestore)
				a.flushMetrics(ctx, p.Name())
				return describeErr(p.Name(), err)
			}
			a.metrics.RecordRestore(p.Name(), time.Since(start), time.Now())
			a.flushMetrics(ctx, p.Name())

			a.logger.Info(ctx, "database restored",
				logging.DBURI("db_uri", p.DBURI()),
				zap.Int("bytes", len(data)),
			)
			if status = strings.TrimSpace(status); status != "" {
				fmt.Fprintln(cmd.OutOrStdout(), status)
			}
			return nil
		},
	}
}

// snapshot dumps p's database and commits the dump. It returns nil when the
// database did not change since the latest snapshot.
func (a *app) snapshot(ctx context.Context, p *project.Project, message string) (*snapshot.Commit, error) {
	provider, err := a.providerFor(p.DBURI())
	if err != nil {
		return nil, err
	}

	dumpCtx, cancel := a.withTimeout(ctx)
	start := time.Now()
	data, err := provider.Dump(dumpCtx, p.DBURI())
	cancel()
	if err != nil {
		a.metrics.RecordFailure(p.Name(), metrics.OpDump)
		a.flushMetrics(ctx, p.Name())
		return nil, describeErr(p.Name(), err)
	}
	a.metrics.RecordDump(p.Name(), len(data), time.Since(start))

	c, err := p.CommitDump(ctx, message, data)
	if err != nil {
		return nil, describeErr(p.Name(), err)
	}
	a.metrics.RecordCommit(p.Name(), c != nil, time.Now())
	a.flushMetrics(ctx, p.Name())
	return c, nil
}

// flushMetrics writes the textfile when a metrics directory is configured.
func (a *app) flushMetrics(ctx context.Context, name string) {
	dir := a.settings.Metrics.TextfileDir
	if dir == "" {
		return
	}
	if err := a.metrics.WriteTextfile(dir, name); err != nil {
		a.logger.Warn(ctx, "failed to write metrics", zap.Error(err))
	}
}

// open resolves a registered project and tags the command context with it.
func (a *app) open(cmd *cobra.Command, name string) (*project.Project, error) {
	ctx := logging.WithProject(cmd.Context(), name)
	cmd.SetContext(ctx)

	p, err := a.manager.OpenByName(ctx, name)
	if err != nil {
		return nil, describeErr(name, err)
	}
	return p, nil
}

// dumpFor returns the dump at the optional commit argument, else HEAD.
func dumpFor(cmd *cobra.Command, p *project.Project, rev []string) ([]byte, error) {
	if len(rev) == 0 {
		return p.LatestDump(cmd.Context())
	}
	return p.DumpAt(cmd.Context(), rev[0])
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
