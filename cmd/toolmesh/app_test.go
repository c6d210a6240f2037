package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/toolmesh/config"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/memory"
	"github.com/hupe1980/toolmesh/session"
)

func loadConfig(t *testing.T, vars map[string]string) *config.Config {
	t.Helper()

	dir := t.TempDir()
	base := map[string]string{
		"ANTHROPIC_API_KEY":       "test-key",
		"TOOLMESH_PROJECT_ROOT":   dir,
		"TOOLMESH_ENABLE_BROWSER": "false",
		"SECRETS_FILE":            filepath.Join(dir, ".secrets.enc"),
	}

	for k, v := range vars {
		base[k] = v
	}

	cfg, err := config.LoadFrom(base)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	return cfg
}

func TestNewApp_Defaults(t *testing.T) {
	cfg := loadConfig(t, nil)

	a, err := newApp(cfg, logging.NoOpLogger{})
	require.NoError(t, err)

	defer a.Close()

	assert.Equal(t, "anthropic", a.model.Info().Provider)
	assert.NotNil(t, a.deps.Paths)
	assert.NotNil(t, a.deps.Runner)
	assert.NotNil(t, a.deps.Tasks)
	assert.NotNil(t, a.deps.Secrets)
	assert.Nil(t, a.deps.DB)
	assert.Nil(t, a.deps.Browser)
	assert.Nil(t, a.deps.Media)
	assert.IsType(t, &memory.InMemoryStore{}, a.deps.Memory)
	assert.IsType(t, &session.InMemoryStore{}, a.transcripts)
}

func TestNewApp_Stores(t *testing.T) {
	dir := t.TempDir()
	cfg := loadConfig(t, map[string]string{
		"TOOLMESH_DATABASE_PATH":      filepath.Join(dir, "data.db"),
		"TOOLMESH_DATABASE_READ_ONLY": "false",
		"TOOLMESH_TRANSCRIPT_DB":      filepath.Join(dir, "transcripts.db"),
	})

	a, err := newApp(cfg, logging.NoOpLogger{})
	require.NoError(t, err)

	assert.NotNil(t, a.deps.DB)
	assert.IsType(t, &session.SQLiteStore{}, a.transcripts)
	assert.Len(t, a.closers, 2)

	require.NoError(t, a.Close())
	assert.Empty(t, a.closers)
}

func TestNewModel_OpenAI(t *testing.T) {
	cfg := loadConfig(t, map[string]string{
		"TOOLMESH_PROVIDER": "openai",
		"OPENAI_API_KEY":    "sk-test",
	})

	m, err := newModel(cfg)
	require.NoError(t, err)
	assert.Equal(t, "openai", m.Info().Provider)
}
