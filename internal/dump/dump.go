// Package dump produces and consumes database dumps.
//
// A Provider turns a database URI into an opaque byte buffer and back. The
// snapshot engine never looks inside those bytes.
package dump

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/jab/internal/config"
	"github.com/fyrsmithlabs/jab/internal/logging"
)

// Common errors.
var (
	ErrUnsupportedURI  = errors.New("unsupported database URI")
	ErrUnknownStrategy = errors.New("unknown restore strategy")
	ErrInvalidDump     = errors.New("invalid dump")
)

// Provider dumps and restores one kind of database.
type Provider interface {
	// Dump returns the serialized state of the database at uri.
	Dump(ctx context.Context, uri string) ([]byte, error)

	// Restore replaces the database at uri with data and returns any
	// status output from the restore tool.
	Restore(ctx context.Context, uri string, data []byte) (string, error)
}

// ProcessError reports a failed external tool. A tool that writes to its
// error stream has failed even when it exits zero.
type ProcessError struct {
	Tool   string
	Stderr string
	Err    error
}

func (e *ProcessError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	switch {
	case e.Err != nil && msg != "":
		return fmt.Sprintf("%s failed: %v: %s", e.Tool, e.Err, msg)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	default:
		return fmt.Sprintf("%s failed: %s", e.Tool, msg)
	}
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// ForURI picks the provider for uri by its scheme. URIs without a scheme
// are treated as PostgreSQL connection strings.
func ForURI(uri string, s *config.Settings, logger *logging.Logger) (Provider, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	switch scheme(uri) {
	case "sqlite", "sqlite3":
		return NewSQLite(logger), nil
	case "postgres", "postgresql", "":
		return NewPostgres(s.Postgres, s.Restore.Strategy, logger)
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedURI, scheme(uri))
	}
}

// scheme returns the lower-cased URI scheme, or "" for the bare
// user:secret@host/db form.
func scheme(uri string) string {
	i := strings.Index(uri, ":")
	if i <= 0 {
		return ""
	}
	s := strings.ToLower(uri[:i])
	for _, c := range s {
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.') {
			return ""
		}
	}
	// "user:secret@host" has no "//" and an '@' after the colon.
	rest := uri[i+1:]
	if !strings.HasPrefix(rest, "//") && strings.Contains(rest, "@") {
		return ""
	}
	return s
}
