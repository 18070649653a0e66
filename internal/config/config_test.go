package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("NODE_ID", "node-a")
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "9000")
	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("LOG_FILE", "")
}

func TestLoad_MinimalValidConfig(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "node-a", cfg.NodeID)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Empty(t, cfg.BootstrapPeers)
	assert.Equal(t, 200*time.Millisecond, cfg.PublishInterval)
}

func TestLoad_MissingRequiredFieldFails(t *testing.T) {
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "9000")
	t.Setenv("LOG_LEVEL", "INFO")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_InvalidLogLevelFails(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("LOG_LEVEL", "VERBOSE")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_InvalidPortFails(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PORT", "not-a-number")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_ParsesBootstrapPeers(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("BOOTSTRAP_PEERS", "10.0.0.1:9001, 10.0.0.2:9002")

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.BootstrapPeers, 2)
	assert.Equal(t, Peer{Host: "10.0.0.1", Port: 9001}, cfg.BootstrapPeers[0])
	assert.Equal(t, Peer{Host: "10.0.0.2", Port: 9002}, cfg.BootstrapPeers[1])
}

func TestLoad_InvalidPeerFormatFails(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("BOOTSTRAP_PEERS", "not-a-host-port")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_OverridesClientTunables(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("BACKOFF_MODE", "linear")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.ClientConfig.ConnectTimeout)
	assert.EqualValues(t, "linear", cfg.ClientConfig.BackoffMode)
}

func TestLoad_InvalidBackoffModeFails(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("BACKOFF_MODE", "random")

	_, err := Load()
	require.Error(t, err)
}
