package dump

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/jab/internal/config"
)

func TestForURI(t *testing.T) {
	settings := &config.Settings{Restore: config.RestoreSettings{Strategy: config.RestoreClean}}

	tests := []struct {
		uri     string
		want    any
		wantErr error
	}{
		{uri: "u:p@localhost/shop", want: &Postgres{}},
		{uri: "postgres://u:p@localhost/shop", want: &Postgres{}},
		{uri: "postgresql://u@localhost/shop", want: &Postgres{}},
		{uri: "sqlite:///tmp/app.db", want: &SQLite{}},
		{uri: "sqlite:app.db", want: &SQLite{}},
		{uri: "mysql://u:p@localhost/shop", wantErr: ErrUnsupportedURI},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			p, err := ForURI(tt.uri, settings, nil)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, p)
		})
	}
}

func TestForURI_UnknownStrategy(t *testing.T) {
	settings := &config.Settings{Restore: config.RestoreSettings{Strategy: "bogus"}}

	_, err := ForURI("u@h/db", settings, nil)
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestScheme(t *testing.T) {
	tests := map[string]string{
		"u:p@localhost/shop":  "",
		"user@localhost/shop": "",
		"postgres://u@h/db":   "postgres",
		"POSTGRES://u@h/db":   "postgres",
		"sqlite:app.db":       "sqlite",
		"sqlite:///a.db":      "sqlite",
		"mysql://root@h/db":   "mysql",
		"localhost/shop":      "",
	}
	for in, want := range tests {
		assert.Equal(t, want, scheme(in), in)
	}
}

func TestProcessError(t *testing.T) {
	err := &ProcessError{Tool: "pg_dump", Stderr: "  boom\n"}
	assert.Equal(t, "pg_dump failed: boom", err.Error())
	assert.Nil(t, err.Unwrap())
}
