package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T) (*AppConfig, error) {
	t.Helper()
	v, err := InitConfig()
	require.NoError(t, err)
	return GetApplicationConfig(v)
}

func TestGetApplicationConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENV_PATH", "")

	cfg, err := load(t)
	require.NoError(t, err)

	assert.Equal(t, "intelliconvo", cfg.Name)
	assert.Equal(t, "/ws", cfg.WebSocket.Path)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "keyword", cfg.Analysis.Provider)
	assert.Equal(t, 5, cfg.Client.MaxReconnectAttempts)
	assert.Equal(t, 2*time.Second, cfg.Client.ReconnectDelay)
	assert.Equal(t, 100*time.Millisecond, cfg.Client.ChunkInterval)
	assert.Equal(t, "linear16", cfg.Client.Encoding)
	assert.False(t, cfg.Redis.Enabled)
}

func TestGetApplicationConfig_EnvFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(file, []byte("SERVICE_NAME=convo-test\nPORT=9999\n"), 0o600))
	t.Setenv("ENV_PATH", file)

	cfg, err := load(t)
	require.NoError(t, err)
	assert.Equal(t, "convo-test", cfg.Name)
	assert.Equal(t, 9999, cfg.Port)
}

func TestGetApplicationConfig_NestedEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENV_PATH", "")
	t.Setenv("DATABASE__DRIVER", "postgres")
	t.Setenv("REDIS__ENABLED", "true")
	t.Setenv("CLIENT__RECONNECT_DELAY", "500ms")

	cfg, err := load(t)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 500*time.Millisecond, cfg.Client.ReconnectDelay)
	assert.Contains(t, cfg.Database.DSN(), "dbname=intelliconvo")
}

func TestGetApplicationConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown driver", "DATABASE__DRIVER", "mysql"},
		{"unknown provider", "ANALYSIS__PROVIDER", "magic"},
		{"openai without key", "ANALYSIS__PROVIDER", "openai"},
		{"bad encoding", "CLIENT__ENCODING", "opus"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv("ENV_PATH", "")
			t.Setenv(tt.key, tt.val)
			_, err := load(t)
			assert.Error(t, err)
		})
	}
}
