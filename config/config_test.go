package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "alquileres.db", cfg.DatabasePath)
	assert.Equal(t, 85, cfg.FuzzyThreshold)
	assert.Equal(t, "RD$", cfg.CurrencySymbol)
	assert.Empty(t, cfg.Users)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.yaml")
	content := `
DATABASE_PATH: /data/flota.db
FUZZY_THRESHOLD: 90
DRIFT_CHECK_SCHEDULE: "0 0 6 * * *"
users:
  Admin:
    password_hash: 8c6976e5b5410415bde908bd4dee15dfb167a9c873fc4bb8a81f6f2ab448a918
    role: admin
  visor:
    password_hash: abc
    role: consulta
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("HTTP_PORT", "9090")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/flota.db", cfg.DatabasePath)
	assert.Equal(t, 90, cfg.FuzzyThreshold)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "0 0 6 * * *", cfg.DriftCheckSchedule)
	require.Len(t, cfg.Users, 2)
	assert.Equal(t, "consulta", cfg.Users["visor"].Role)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{DatabasePath: "x.db", FuzzyThreshold: 85}
	}

	tests := []struct {
		name    string
		edit    func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"no database", func(c *Config) { c.DatabasePath = " " }, true},
		{"threshold above 100", func(c *Config) { c.FuzzyThreshold = 101 }, true},
		{"threshold 100 disables fuzzy", func(c *Config) { c.FuzzyThreshold = 100 }, false},
		{"negative busy timeout", func(c *Config) { c.BusyTimeoutMS = -1 }, true},
		{"unknown role", func(c *Config) { c.Users = map[string]User{"u": {Role: "root"}} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.edit(cfg)
			err := Validate(cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
