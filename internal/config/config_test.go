package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`environment: production
db:
  host: db.internal
  port: 5432
  user: svc
  password: secret
  name: graphplan
import:
  root: /srv/import
workflow:
  max_turns: 5
auth:
  issuer: "https://idp.example.com/ "
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.False(t, cfg.IsDev())
	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, "disable", cfg.DB.SSLMode, "default applies when unset")
	assert.Equal(t, "/srv/import", cfg.Import.Root)
	assert.Equal(t, 100, cfg.Import.SampleLines, "default applies when unset")
	assert.Equal(t, 5, cfg.Workflow.MaxTurns)
	assert.Equal(t, 32, cfg.Workflow.MaxActionsPerTurn)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
	assert.Equal(t, "https://idp.example.com", cfg.Auth.Issuer, "issuer is normalized")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestIsDev(t *testing.T) {
	assert.True(t, (&Config{Environment: "dev"}).IsDev())
	assert.True(t, (&Config{Environment: "DEV"}).IsDev())
	assert.False(t, (&Config{Environment: "production"}).IsDev())
}
