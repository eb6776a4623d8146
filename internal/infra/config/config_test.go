package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config",
			config: Config{
				Server: ServerConfig{Addr: ":8080"},
				Player: PlayerConfig{
					ChannelName:     "Content",
					ChannelPriority: 300,
				},
				Backends: BackendsConfig{Type: "simulated", Count: 2},
			},
			wantErr: false,
		},
		{
			name: "missing backend type",
			config: Config{
				Player:   PlayerConfig{ChannelPriority: 300},
				Backends: BackendsConfig{Count: 2},
			},
			wantErr: true,
			errMsg:  "Type",
		},
		{
			name: "backend count out of range",
			config: Config{
				Player:   PlayerConfig{ChannelPriority: 300},
				Backends: BackendsConfig{Type: "simulated", Count: 64},
			},
			wantErr: true,
			errMsg:  "Count",
		},
		{
			name: "non-positive channel priority",
			config: Config{
				Player:   PlayerConfig{ChannelPriority: 0},
				Backends: BackendsConfig{Type: "simulated", Count: 1},
			},
			wantErr: true,
			errMsg:  "ChannelPriority",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()

			if tt.wantErr {
				require.Error(t, err, "expected validation to fail")
				assert.Contains(t, err.Error(), tt.errMsg,
					"error message should mention the problematic field")
			} else {
				assert.NoError(t, err, "expected validation to pass")
			}
		})
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9000\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "Content", cfg.Player.ChannelName)
	assert.Equal(t, 300, cfg.Player.ChannelPriority)
	assert.Equal(t, "simulated", cfg.Backends.Type)
	assert.Equal(t, 2, cfg.Backends.Count)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 2, cfg.Backends.Count)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9000\"\nbackends:\n  count: 4\n"), 0o644))

	t.Setenv("PLAYERD_ADDR", ":7000")
	t.Setenv("PLAYERD_BACKEND_COUNT", "3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, 3, cfg.Backends.Count)
}

func TestLoad_InvalidEnvCount(t *testing.T) {
	t.Setenv("PLAYERD_BACKEND_COUNT", "lots")

	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PLAYERD_BACKEND_COUNT")
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not: a mapping\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backends:\n  count: 99\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}
