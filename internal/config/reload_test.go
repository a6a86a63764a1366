package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHolderGetReturnsInitial(t *testing.T) {
	cfg := Default()
	h := NewHolder(zerolog.Nop(), cfg, "")
	assert.Same(t, cfg, h.Get())
}

func TestHolderWatchWithoutPathIsNoop(t *testing.T) {
	h := NewHolder(zerolog.Nop(), Default(), "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, h.Watch(ctx))
}

func TestHolderHotReloadsSecretAndInterval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gridcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("secret:\n  value: v1\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	h := NewHolder(zerolog.Nop(), cfg, path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = h.Watch(ctx)
	}()
	time.Sleep(50 * time.Millisecond) // let the watcher register its fd.

	require.NoError(t, os.WriteFile(path, []byte("secret:\n  value: v2\ndistributor:\n  healthcheck-interval: 60s\n"), 0o644))

	require.Eventually(t, func() bool {
		return h.Get().Secret.Value == "v2"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 60*time.Second, h.Get().Distributor.HealthCheckInterval)
}

func TestHolderReloadKeepsOldConfigOnBrokenFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gridcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("secret:\n  value: good\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	h := NewHolder(zerolog.Nop(), cfg, path)

	require.NoError(t, os.WriteFile(path, []byte("not: [valid: yaml"), 0o644))
	h.reload()

	assert.Equal(t, "good", h.Get().Secret.Value)
}
