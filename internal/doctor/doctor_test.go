package doctor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/actcue/actcue/internal/config"
)

type fakeProber struct{ err error }

func (f fakeProber) Health(context.Context) error { return f.err }

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestCheckRuntimeDir(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")
	check := checkRuntimeDir()
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "XDG_RUNTIME_DIR")

	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())
	check = checkRuntimeDir()
	require.True(t, check.Pass)
}

func TestCheckBackendHealth(t *testing.T) {
	check := checkBackendHealth(context.Background(), fakeProber{})
	require.True(t, check.Pass)

	check = checkBackendHealth(context.Background(), fakeProber{err: errors.New("connection refused")})
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "connection refused")

	check = checkBackendHealth(context.Background(), nil)
	require.False(t, check.Pass)
}

func TestCheckPendingStore(t *testing.T) {
	cfg := config.Default()
	cfg.Pending.DBPath = filepath.Join(t.TempDir(), "pending.sqlite")

	check := checkPendingStore(cfg)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "0 pending capture(s)")
}

func TestCheckTokenMissingIsNotFatal(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.TokenPath = filepath.Join(t.TempDir(), "token.json")

	check := checkToken(cfg)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "no token on disk")
}
