package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	root := t.TempDir()

	s, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, root, s.Root)
	assert.Equal(t, "warn", s.Log.Level)
	assert.Equal(t, "console", s.Log.Format)
	assert.Equal(t, "pg_dump", s.Postgres.PgDump)
	assert.Equal(t, "pg_restore", s.Postgres.PgRestore)
	assert.Equal(t, "dropdb", s.Postgres.DropDB)
	assert.Equal(t, "createdb", s.Postgres.CreateDB)
	assert.Equal(t, RestoreClean, s.Restore.Strategy)
	assert.Zero(t, s.Timeout)
	assert.Empty(t, s.Metrics.TextfileDir)
	assert.Equal(t, 30*time.Second, s.Watch.Interval)
	assert.Equal(t, 2*time.Second, s.Watch.Debounce)
}

func TestLoad_SettingsFile(t *testing.T) {
	root := t.TempDir()
	content := `log:
  level: debug
  format: json
author:
  name: Ops Bot
  email: ops@example.com
postgres:
  pg_dump: /opt/pg/bin/pg_dump
restore:
  strategy: recreate
timeout: 45s
metrics:
  textfile_dir: /var/lib/node_exporter/textfile
watch:
  interval: 5m
`
	require.NoError(t, os.WriteFile(filepath.Join(root, SettingsFileName), []byte(content), 0600))

	s, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, "debug", s.Log.Level)
	assert.Equal(t, "json", s.Log.Format)
	assert.Equal(t, "Ops Bot", s.Author.Name)
	assert.Equal(t, "ops@example.com", s.Author.Email)
	assert.Equal(t, "/opt/pg/bin/pg_dump", s.Postgres.PgDump)
	assert.Equal(t, "pg_restore", s.Postgres.PgRestore)
	assert.Equal(t, RestoreRecreate, s.Restore.Strategy)
	assert.Equal(t, 45*time.Second, s.Timeout)
	assert.Equal(t, "/var/lib/node_exporter/textfile", s.Metrics.TextfileDir)
	assert.Equal(t, 5*time.Minute, s.Watch.Interval)
	assert.Equal(t, 2*time.Second, s.Watch.Debounce)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, SettingsFileName), []byte("log:\n  level: debug\n"), 0600))

	t.Setenv("JAB_LOG_LEVEL", "error")
	t.Setenv("JAB_POSTGRES_PG_RESTORE", "/usr/local/bin/pg_restore")
	t.Setenv("JAB_WATCH_DEBOUNCE", "500ms")

	s, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, "error", s.Log.Level)
	assert.Equal(t, "/usr/local/bin/pg_restore", s.Postgres.PgRestore)
	assert.Equal(t, 500*time.Millisecond, s.Watch.Debounce)
}

func TestLoad_RootFromEnv(t *testing.T) {
	root := t.TempDir()
	t.Setenv("JAB_ROOT", root)

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, root, s.Root)
}

func TestLoad_RootOverrideWins(t *testing.T) {
	envRoot := t.TempDir()
	flagRoot := t.TempDir()
	t.Setenv("JAB_ROOT", envRoot)

	s, err := Load(flagRoot)
	require.NoError(t, err)
	assert.Equal(t, flagRoot, s.Root)
}

func TestLoad_DefaultRoot(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("JAB_ROOT", "")

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".jab"), s.Root)
}

func TestLoad_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, SettingsFileName), []byte("log:\n  level: info\n"), 0644))

	_, err := Load(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure settings file permissions")
}

func TestLoad_MalformedYAML(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, SettingsFileName), []byte("log: [unclosed\n"), 0600))

	_, err := Load(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load settings file")
}

func TestLoad_InvalidStrategy(t *testing.T) {
	root := t.TempDir()
	t.Setenv("JAB_RESTORE_STRATEGY", "yolo")

	_, err := Load(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "restore.strategy")
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"JAB_LOG_LEVEL", "log.level"},
		{"JAB_POSTGRES_PG_DUMP", "postgres.pg_dump"},
		{"JAB_TIMEOUT", "timeout"},
		{"JAB_AUTHOR_EMAIL", "author.email"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, envKey(tt.in))
		})
	}
}

func TestSettings_Validate(t *testing.T) {
	valid := func() *Settings {
		s := &Settings{Root: "/tmp/jab"}
		applyDefaults(s)
		return s
	}

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid", func(*Settings) {}, ""},
		{"empty root", func(s *Settings) { s.Root = "" }, "root"},
		{"bad format", func(s *Settings) { s.Log.Format = "xml" }, "log.format"},
		{"negative timeout", func(s *Settings) { s.Timeout = -time.Second }, "timeout"},
		{"negative watch interval", func(s *Settings) { s.Watch.Interval = -time.Second }, "watch"},
		{"half author", func(s *Settings) { s.Author.Name = "only name" }, "author"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			err := s.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
