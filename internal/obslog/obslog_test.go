package obslog

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetLoggerRestores(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := SetLogger(zap.New(core))
	Named("room").Info("room_create", zap.String("code", "ABC234"))
	restore()
	L().Info("dropped")

	require.Equal(t, 1, logs.Len())
	e := logs.All()[0]
	require.Equal(t, "room", e.LoggerName)
	require.Equal(t, "room_create", e.Message)
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"WARNING": zapcore.WarnLevel,
		" error ": zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range cases {
		require.Equal(t, want, parseLevel(in), "parseLevel(%q)", in)
	}
}

func TestInitFromEnvConsoleOnly(t *testing.T) {
	t.Setenv("LOG_TO_FILE", "false")
	t.Setenv("LOG_FORMAT", "json")
	defer SetLogger(nil)()
	require.NoError(t, InitFromEnv())
	require.NotNil(t, L())
}
