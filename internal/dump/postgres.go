package dump

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/jab/internal/config"
	"github.com/fyrsmithlabs/jab/internal/logging"
)

// runFunc executes name with args and extra environment entries.
type runFunc func(ctx context.Context, name string, args, env []string) (stdout, stderr []byte, err error)

// waitDelay bounds how long a killed tool's children may hold its output
// pipes open.
const waitDelay = time.Second

func execRun(ctx context.Context, name string, args, env []string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil && ctx.Err() != nil {
		err = fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return stdout.Bytes(), stderr.Bytes(), err
}

// Postgres dumps with pg_dump in custom format and restores with pg_restore.
type Postgres struct {
	tools    config.PostgresSettings
	strategy string
	logger   *logging.Logger
	run      runFunc
	tempDir  string
}

// NewPostgres returns a provider using the given binaries and restore
// strategy ("clean" or "recreate").
func NewPostgres(tools config.PostgresSettings, strategy string, logger *logging.Logger) (*Postgres, error) {
	switch strategy {
	case "":
		strategy = config.RestoreClean
	case config.RestoreClean, config.RestoreRecreate:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Postgres{
		tools:    withToolDefaults(tools),
		strategy: strategy,
		logger:   logger.Named("postgres"),
		run:      execRun,
		tempDir:  os.TempDir(),
	}, nil
}

func withToolDefaults(t config.PostgresSettings) config.PostgresSettings {
	if t.PgDump == "" {
		t.PgDump = "pg_dump"
	}
	if t.PgRestore == "" {
		t.PgRestore = "pg_restore"
	}
	if t.DropDB == "" {
		t.DropDB = "dropdb"
	}
	if t.CreateDB == "" {
		t.CreateDB = "createdb"
	}
	return t
}

// NormalizeURI prefixes the bare user:secret@host/db form with postgres://.
func NormalizeURI(uri string) string {
	if strings.Contains(uri, "://") {
		return uri
	}
	return "postgres://" + uri
}

// Dump runs pg_dump -Fc against uri.
func (p *Postgres) Dump(ctx context.Context, uri string) ([]byte, error) {
	target := NormalizeURI(uri)
	p.logger.Debug(ctx, "running pg_dump", logging.DBURI("db_uri", target))

	out, err := p.exec(ctx, p.tools.PgDump, []string{target, "-Fc"}, nil)
	if err != nil {
		return nil, err
	}
	p.logger.Debug(ctx, "pg_dump finished", zap.Int("bytes", len(out)))
	return out, nil
}

// Restore writes data to a temporary file and feeds it to pg_restore.
func (p *Postgres) Restore(ctx context.Context, uri string, data []byte) (string, error) {
	cfg, err := pgconn.ParseConfig(NormalizeURI(uri))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedURI, err)
	}

	var env []string
	if cfg.Password != "" {
		env = append(env, "PGPASSWORD="+cfg.Password)
	}
	conn := connArgs(cfg)

	path := filepath.Join(p.tempDir, "jab-restore-"+uuid.NewString()+".dump")
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("writing restore file: %w", err)
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			p.logger.Warn(ctx, "failed to remove restore file", zap.String("path", path), zap.Error(err))
		}
	}()

	restoreArgs := []string{"--clean"}
	if p.strategy == config.RestoreRecreate {
		if err := p.recreate(ctx, cfg, conn, env); err != nil {
			return "", err
		}
		restoreArgs = nil
	}

	restoreArgs = append(restoreArgs, conn...)
	restoreArgs = append(restoreArgs, "--dbname="+cfg.Database, path)

	p.logger.Debug(ctx, "running pg_restore",
		zap.String("strategy", p.strategy),
		zap.String("database", cfg.Database),
		zap.String("host", cfg.Host),
	)
	out, err := p.exec(ctx, p.tools.PgRestore, restoreArgs, env)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// recreate drops and recreates the target database.
func (p *Postgres) recreate(ctx context.Context, cfg *pgconn.Config, conn, env []string) error {
	drop := append([]string{"--if-exists"}, conn...)
	drop = append(drop, cfg.Database)
	if _, err := p.exec(ctx, p.tools.DropDB, drop, env); err != nil {
		return err
	}

	create := append(append([]string{}, conn...), cfg.Database)
	_, err := p.exec(ctx, p.tools.CreateDB, create, env)
	return err
}

func connArgs(cfg *pgconn.Config) []string {
	args := make([]string, 0, 3)
	if cfg.User != "" {
		args = append(args, "--username="+cfg.User)
	}
	if cfg.Host != "" {
		args = append(args, "--host="+cfg.Host)
	}
	if cfg.Port != 0 {
		args = append(args, "--port="+strconv.Itoa(int(cfg.Port)))
	}
	return args
}

func (p *Postgres) exec(ctx context.Context, tool string, args, env []string) ([]byte, error) {
	stdout, stderr, err := p.run(ctx, tool, args, env)
	if err != nil || len(stderr) > 0 {
		return nil, &ProcessError{Tool: tool, Stderr: string(stderr), Err: err}
	}
	return stdout, nil
}
