package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxSettingsFileSize = 1024 * 1024 // 1MB

	// SettingsFileName is looked up inside the root directory.
	SettingsFileName = "settings.yaml"

	envPrefix = "JAB_"
)

// DefaultRoot returns ~/.jab.
func DefaultRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".jab"), nil
}

// Load loads settings from the root's settings.yaml, then overrides with
// environment variables.
//
// Precedence (highest to lowest):
//  1. rootOverride for the root directory (the --root flag)
//  2. Environment variables (JAB_LOG_LEVEL, JAB_RESTORE_STRATEGY, ...)
//  3. <root>/settings.yaml
//  4. Hardcoded defaults
//
// The root directory itself is resolved before the file is read: rootOverride,
// then JAB_ROOT, then ~/.jab.
//
// Environment variables map to keys by dropping the prefix and splitting on
// the first underscore:
//
//	JAB_LOG_LEVEL         -> log.level
//	JAB_POSTGRES_PG_DUMP  -> postgres.pg_dump
//	JAB_TIMEOUT           -> timeout
func Load(rootOverride string) (*Settings, error) {
	root, err := resolveRoot(rootOverride)
	if err != nil {
		return nil, err
	}

	k := koanf.New(".")

	settingsPath := filepath.Join(root, SettingsFileName)
	if _, err := os.Stat(settingsPath); err == nil {
		content, err := readSettingsFile(settingsPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load settings file %s: %w", settingsPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	s.Root = root

	applyDefaults(&s)

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("settings validation failed: %w", err)
	}

	return &s, nil
}

// envKey maps JAB_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

func resolveRoot(rootOverride string) (string, error) {
	root := rootOverride
	if root == "" {
		root = os.Getenv(envPrefix + "ROOT")
	}
	if root == "" {
		return DefaultRoot()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root %s: %w", root, err)
	}
	return abs, nil
}

// readSettingsFile opens the file once and validates it through the open
// descriptor to avoid a TOCTOU race.
func readSettingsFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat settings file: %w", err)
	}
	if err := validateSettingsFileProperties(info); err != nil {
		return nil, fmt.Errorf("settings file validation failed: %w", err)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	return content, nil
}

// validateSettingsFileProperties checks file permissions and size. The file
// may hold an author identity and binary paths, so it must not be writable
// by others.
func validateSettingsFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure settings file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxSettingsFileSize {
		return fmt.Errorf("settings file too large: %d bytes (max %d)", info.Size(), maxSettingsFileSize)
	}

	return nil
}

// applyDefaults sets default values for missing fields.
func applyDefaults(s *Settings) {
	if s.Log.Level == "" {
		s.Log.Level = "warn"
	}
	if s.Log.Format == "" {
		s.Log.Format = "console"
	}

	if s.Postgres.PgDump == "" {
		s.Postgres.PgDump = "pg_dump"
	}
	if s.Postgres.PgRestore == "" {
		s.Postgres.PgRestore = "pg_restore"
	}
	if s.Postgres.DropDB == "" {
		s.Postgres.DropDB = "dropdb"
	}
	if s.Postgres.CreateDB == "" {
		s.Postgres.CreateDB = "createdb"
	}

	if s.Restore.Strategy == "" {
		s.Restore.Strategy = RestoreClean
	}

	if s.Watch.Interval == 0 {
		s.Watch.Interval = 30 * time.Second
	}
	if s.Watch.Debounce == 0 {
		s.Watch.Debounce = 2 * time.Second
	}
}
