package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "build_strategy: no_op\n")

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("build_strategy: random\n"), 0o600))

	select {
	case cfg := <-reloaded:
		require.Equal(t, BuildStrategyRandom, cfg.BuildStrategy)
	case <-time.After(5 * time.Second):
		t.Fatal("configuration was not reloaded")
	}
}

func TestWatcherKeepsPreviousConfigOnInvalidFile(t *testing.T) {
	path := writeConfig(t, "build_strategy: no_op\n")

	called := make(chan struct{}, 1)
	w, err := NewWatcher(path, func(*Config) { called <- struct{}{} })
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("build_strategy: nonsense\n"), 0o600))
	w.reload()

	select {
	case <-called:
		t.Fatal("reload callback invoked for invalid configuration")
	default:
	}
	w.Stop()
}
