package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var keys = []string{
	"LISTEN_ADDR", "CORS_ALLOWED_ORIGINS", "REDIS_URL", "REDIS_KEY_PREFIX", "DATABASE_URL",
	"NATS_URL", "NATS_SUBJECT_PREFIX", "SWEEP_INTERVAL", "FINISHED_ROOM_TTL", "IDLE_ROOM_TTL", "ROOM_TTL",
	"AI_BASE_URL", "AI_TIMEOUT", "MESSAGES_DIR",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.ListenAddr)
	require.Equal(t, "chess:", cfg.RedisKeyPrefix)
	require.Equal(t, "chess.rooms", cfg.NATSSubjectPrefix)
	require.Equal(t, time.Minute, cfg.SweepInterval)
	require.Equal(t, 10*time.Minute, cfg.FinishedRoomTTL)
	require.Equal(t, 30*time.Minute, cfg.IdleRoomTTL)
	require.Equal(t, 24*time.Hour, cfg.RoomTTL)
	require.Nil(t, cfg.AllowedOrigins)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_URL", "redis://r:6379")
	t.Setenv("REDIS_KEY_PREFIX", "")
	t.Setenv("SWEEP_INTERVAL", "15")
	t.Setenv("IDLE_ROOM_TTL", "2h")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	require.Empty(t, cfg.RedisKeyPrefix, "explicit empty prefix not kept")
	require.Equal(t, 15*time.Second, cfg.SweepInterval)
	require.Equal(t, 2*time.Hour, cfg.IdleRoomTTL)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	require.Error(t, err, "missing REDIS_URL accepted")

	t.Setenv("REDIS_URL", "redis://r")
	for _, v := range []string{"-5", "soon", "0s"} {
		t.Setenv("FINISHED_ROOM_TTL", v)
		_, err := Load()
		require.Error(t, err, "FINISHED_ROOM_TTL=%q accepted", v)
	}
	t.Setenv("FINISHED_ROOM_TTL", "")
	t.Setenv("ROOM_TTL", "20m")
	_, err = Load()
	require.Error(t, err, "ROOM_TTL shorter than IDLE_ROOM_TTL accepted")

	t.Setenv("ROOM_TTL", "1h")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, time.Hour, cfg.RoomTTL)
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	f := filepath.Join(dir, "local.env")
	require.NoError(t, os.WriteFile(f, []byte("REDIS_URL=redis://from-file\nAI_BASE_URL=http://ai\n"), 0o600))
	t.Setenv("AI_BASE_URL", "http://already-set")
	os.Unsetenv("REDIS_URL")

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), f))
	t.Cleanup(func() { os.Unsetenv("REDIS_URL") })
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "redis://from-file", cfg.RedisURL)
	require.Equal(t, "http://already-set", cfg.AIBaseURL)
}
