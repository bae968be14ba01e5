package dump

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/jab/internal/logging"
)

const sqliteHeader = "SQLite format 3\x00"

// SQLite dumps a database file as a compacted copy of itself.
type SQLite struct {
	logger *logging.Logger
}

// NewSQLite returns a SQLite provider.
func NewSQLite(logger *logging.Logger) *SQLite {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &SQLite{logger: logger.Named("sqlite")}
}

// SQLitePath extracts the database file path from a sqlite:// or sqlite:
// URI. sqlite:///abs/app.db names /abs/app.db.
func SQLitePath(uri string) (string, error) {
	var path string
	switch s := strings.ToLower(uri); {
	case strings.HasPrefix(s, "sqlite://"):
		path = uri[len("sqlite://"):]
	case strings.HasPrefix(s, "sqlite3://"):
		path = uri[len("sqlite3://"):]
	case strings.HasPrefix(s, "sqlite:"):
		path = uri[len("sqlite:"):]
	case strings.HasPrefix(s, "sqlite3:"):
		path = uri[len("sqlite3:"):]
	default:
		return "", fmt.Errorf("%w: %q is not a sqlite URI", ErrUnsupportedURI, uri)
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "", fmt.Errorf("%w: %q has no file path", ErrUnsupportedURI, uri)
	}
	return filepath.Clean(path), nil
}

// Dump copies the database with VACUUM INTO and returns the copy's bytes.
func (s *SQLite) Dump(ctx context.Context, uri string) ([]byte, error) {
	path, err := SQLitePath(uri)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer db.Close()

	tmp := filepath.Join(os.TempDir(), "jab-dump-"+uuid.NewString()+".db")
	defer os.Remove(tmp)

	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", tmp); err != nil {
		return nil, fmt.Errorf("dumping %s: %w", path, err)
	}

	data, err := os.ReadFile(tmp)
	if err != nil {
		return nil, fmt.Errorf("reading dump of %s: %w", path, err)
	}
	s.logger.Debug(ctx, "sqlite dump finished",
		zap.String("path", path),
		zap.Int("bytes", len(data)),
	)
	return data, nil
}

// Restore checks data is a sound database and atomically replaces the
// target file with it.
func (s *SQLite) Restore(ctx context.Context, uri string, data []byte) (string, error) {
	path, err := SQLitePath(uri)
	if err != nil {
		return "", err
	}
	if !bytes.HasPrefix(data, []byte(sqliteHeader)) {
		return "", fmt.Errorf("%w: not a sqlite database", ErrInvalidDump)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".restore")
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return "", fmt.Errorf("writing restore file: %w", err)
	}
	defer os.Remove(tmp)

	if err := checkIntegrity(ctx, tmp); err != nil {
		return "", err
	}

	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("removing stale %s: %w", suffix, err)
		}
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("replacing %s: %w", path, err)
	}

	s.logger.Info(ctx, "sqlite database restored",
		zap.String("path", path),
		zap.Int("bytes", len(data)),
	)
	return "restored " + path, nil
}

func checkIntegrity(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDump, err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDump, err)
	}
	if result != "ok" {
		return fmt.Errorf("%w: integrity check: %s", ErrInvalidDump, result)
	}
	return nil
}
