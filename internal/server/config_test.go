package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, ":3001", cfg.Port)
	require.Equal(t, []string{"http://localhost:5173"}, cfg.AllowedOrigins)
	require.EqualValues(t, 16384, cfg.MaxMessageSize)
	require.Equal(t, 256, cfg.SendBufferSize)
	require.Zero(t, cfg.RoomIdleTTL)
	require.Equal(t, time.Minute, cfg.ReapInterval)
	require.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "4000")
	t.Setenv("ALLOWED_ORIGINS", "https://chat.example.com, https://admin.example.com")
	t.Setenv("CORS_ORIGIN", "http://localhost:3000")
	t.Setenv("MAX_MESSAGE_SIZE", "8192")
	t.Setenv("ROOM_IDLE_TTL", "10m")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, ":4000", cfg.Port)
	require.Equal(t, []string{"https://chat.example.com", "https://admin.example.com", "http://localhost:3000"}, cfg.AllowedOrigins)
	require.EqualValues(t, 8192, cfg.MaxMessageSize)
	require.Equal(t, 10*time.Minute, cfg.RoomIdleTTL)
	require.Equal(t, "json", cfg.LogFormat)
}

func TestLoadConfigRejectsUnparsableValues(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "lots")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigNonPositiveFallsBack(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "-1")
	t.Setenv("SEND_BUFFER_SIZE", "0")
	t.Setenv("SHUTDOWN_TIMEOUT", "0s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.EqualValues(t, defaultMaxMessageSize, cfg.MaxMessageSize)
	require.Equal(t, defaultSendBufferSize, cfg.SendBufferSize)
	require.Equal(t, defaultShutdownTimeout, cfg.ShutdownTimeout)
}

func TestLoadConfigEmptyOriginsFallBack(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("CORS_ORIGIN", " ")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, []string{defaultOrigin}, cfg.AllowedOrigins)
}

func TestSanitizeConfigKeepsCORSOriginAlone(t *testing.T) {
	cfg := sanitizeConfig(Config{CORSOrigin: "https://chat.example.com"})
	require.Equal(t, []string{"https://chat.example.com"}, cfg.AllowedOrigins)
}

func TestLoadConfigEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=:5050\nREAP_INTERVAL=5s\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("PORT")
		_ = os.Unsetenv("REAP_INTERVAL")
	})

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":5050", cfg.Port)
	require.Equal(t, 5*time.Second, cfg.ReapInterval)
}

func TestLoadConfigMissingEnvFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}

func TestNormalizePort(t *testing.T) {
	tests := map[string]string{
		"":               ":3001",
		"8080":           ":8080",
		":8080":          ":8080",
		"127.0.0.1:9000": "127.0.0.1:9000",
	}
	for in, want := range tests {
		require.Equal(t, want, normalizePort(in), in)
	}
}
