package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, content string) (*Manager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m, err := NewManager(path, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m, path
}

func TestManagerLoadsInitialConfig(t *testing.T) {
	m, _ := newTestManager(t, "server:\n  port: 9191\n")

	cfg := m.Current()
	require.NotNil(t, cfg)
	assert.Equal(t, 9191, cfg.Server.Port)

	st := m.Status()
	assert.NotEmpty(t, st.Checksum)
	assert.Equal(t, int64(1), st.ReloadCount)
	assert.False(t, st.LoadedAt.IsZero())
}

func TestManagerReload(t *testing.T) {
	m, path := newTestManager(t, "server:\n  port: 9191\n")
	before := m.Status()

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9292\n"), 0o644))
	require.NoError(t, m.Reload())

	assert.Equal(t, 9292, m.Current().Server.Port)

	after := m.Status()
	assert.Equal(t, int64(2), after.ReloadCount)
	assert.NotEqual(t, before.Checksum, after.Checksum)
}

func TestManagerKeepsConfigOnBadReload(t *testing.T) {
	m, path := newTestManager(t, "server:\n  port: 9191\n")

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: -1\n"), 0o644))
	require.Error(t, m.Reload())

	// The previous configuration stays active.
	assert.Equal(t, 9191, m.Current().Server.Port)
	assert.Equal(t, int64(1), m.Status().ReloadCount)
}

func TestManagerOnChange(t *testing.T) {
	m, path := newTestManager(t, "server:\n  port: 9191\n")

	got := make(chan int, 1)
	m.OnChange(func(c *Config) { got <- c.Server.Port })

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9393\n"), 0o644))
	require.NoError(t, m.Reload())

	select {
	case port := <-got:
		assert.Equal(t, 9393, port)
	default:
		t.Fatal("OnChange callback was not invoked")
	}
}

func TestManagerWatchPicksUpChanges(t *testing.T) {
	m, path := newTestManager(t, "server:\n  port: 9191\n")
	require.NoError(t, m.Watch())

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9494\n"), 0o644))

	require.Eventually(t, func() bool {
		return m.Current().Server.Port == 9494
	}, 5*time.Second, 50*time.Millisecond, "watcher did not pick up the change")
}

func TestManagerCloseIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t, "server:\n  port: 9191\n")
	require.NoError(t, m.Watch())

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}
