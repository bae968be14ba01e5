// Package config loads jab's tool settings.
//
// Settings are separate from the project registry (internal/registry): the
// registry records which databases are tracked, settings control how the tool
// behaves (where its root lives, logging, which dump binaries to call).
package config

import (
	"fmt"
	"time"
)

// Restore strategies understood by the PostgreSQL restore collaborator.
const (
	RestoreClean    = "clean"
	RestoreRecreate = "recreate"
)

// Settings holds the complete jab configuration.
type Settings struct {
	// Root is the directory holding the registry file and one repository
	// per project.
	Root     string           `koanf:"root"`
	Log      LogSettings      `koanf:"log"`
	Author   AuthorSettings   `koanf:"author"`
	Postgres PostgresSettings `koanf:"postgres"`
	Restore  RestoreSettings  `koanf:"restore"`
	Metrics  MetricsSettings  `koanf:"metrics"`
	Watch    WatchSettings    `koanf:"watch"`

	// Timeout bounds each dump/restore subprocess. Zero means no limit.
	Timeout time.Duration `koanf:"timeout"`
}

// LogSettings controls the CLI logger.
type LogSettings struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// AuthorSettings overrides the commit identity otherwise taken from git config.
type AuthorSettings struct {
	Name  string `koanf:"name"`
	Email string `koanf:"email"`
}

// PostgresSettings names the client binaries used for dump and restore.
type PostgresSettings struct {
	PgDump    string `koanf:"pg_dump"`
	PgRestore string `koanf:"pg_restore"`
	DropDB    string `koanf:"dropdb"`
	CreateDB  string `koanf:"createdb"`
}

// RestoreSettings selects how a dump is applied to a live database.
type RestoreSettings struct {
	Strategy string `koanf:"strategy"`
}

// MetricsSettings controls the Prometheus textfile output.
type MetricsSettings struct {
	// TextfileDir receives one jab_<project>.prom file per project. Empty
	// disables metrics.
	TextfileDir string `koanf:"textfile_dir"`
}

// WatchSettings tunes "project watch".
type WatchSettings struct {
	// Interval is the minimum time between two snapshots.
	Interval time.Duration `koanf:"interval"`
	// Debounce is how long the database must stay quiet after a change.
	Debounce time.Duration `koanf:"debounce"`
}

// Validate checks settings for errors.
func (s *Settings) Validate() error {
	if s.Root == "" {
		return fmt.Errorf("root directory cannot be empty")
	}
	switch s.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be 'json' or 'console', got %q", s.Log.Format)
	}
	switch s.Restore.Strategy {
	case RestoreClean, RestoreRecreate:
	default:
		return fmt.Errorf("restore.strategy must be %q or %q, got %q", RestoreClean, RestoreRecreate, s.Restore.Strategy)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative: %s", s.Timeout)
	}
	if s.Watch.Interval < 0 || s.Watch.Debounce < 0 {
		return fmt.Errorf("watch.interval and watch.debounce cannot be negative")
	}
	if (s.Author.Name == "") != (s.Author.Email == "") {
		return fmt.Errorf("author.name and author.email must be set together")
	}
	return nil
}
