package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_CreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.FileExists(t, path)

	assert.Equal(t, int64(30), cfg.Expression.TransitionTicks)
	assert.Equal(t, int64(1800), cfg.Expression.DurationTicks)
	assert.Equal(t, 50*time.Millisecond, cfg.LipSync.PhonemeInterval)
	assert.Equal(t, 0.2, cfg.LipSync.SuddenChange)
	assert.Equal(t, 150*time.Millisecond, cfg.Blink.Duration)
	assert.Equal(t, 60.0, cfg.Idle.AffinityThreshold)
	assert.Equal(t, 999.0, cfg.Crossfade.InstantSpeed)
	assert.Equal(t, "/api/v1/avatar/state", cfg.Ingest.StreamPath)
	assert.Equal(t, 60*time.Second, cfg.Ingest.MaxBackoff)

	// the written file round-trips
	again, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadFrom_FileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
expression:
  duration_ticks: 600
lipsync:
  min_hold_time: 80ms
blink:
  interval_min: 2s
render_tree:
  dir: /srv/trees
  watch: false
`), 0644))

	t.Setenv("CORTEXPORTRAIT_LIPSYNC_GAIN", "4.5")
	t.Setenv("CORTEXPORTRAIT_FEED_ENABLED", "true")
	t.Setenv("CORTEXPORTRAIT_INGEST_URL", "http://brain:9000")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, int64(600), cfg.Expression.DurationTicks)
	assert.Equal(t, int64(30), cfg.Expression.TransitionTicks, "unset keys keep defaults")
	assert.Equal(t, 80*time.Millisecond, cfg.LipSync.MinHoldTime)
	assert.Equal(t, 2*time.Second, cfg.Blink.IntervalMin)
	assert.Equal(t, "/srv/trees", cfg.RenderTree.Dir)
	assert.False(t, cfg.RenderTree.Watch)
	assert.Equal(t, 4.5, cfg.LipSync.Gain)
	assert.True(t, cfg.Feed.Enabled)
	assert.Equal(t, "http://brain:9000", cfg.Ingest.URL)
}

func TestLoadFrom_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("expression: [oops"), 0644))

	_, err := LoadFrom(path)
	assert.Error(t, err)
}

func TestTickInterval(t *testing.T) {
	assert.Equal(t, time.Second/60, ExpressionConfig{}.TickInterval())
	assert.Equal(t, 50*time.Millisecond, ExpressionConfig{TickRate: 20}.TickInterval())
	assert.Equal(t, int64(30), ExpressionConfig{TransitionTicks: 30}.Machine().TransitionTicks)
}
