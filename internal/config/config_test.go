package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateQuality(t *testing.T) {
	for _, q := range []int{64, 128, 192, 256, 320} {
		assert.NoError(t, ValidateQuality(q), "quality %d", q)
	}

	for _, q := range []int{0, -1, 100, 191, 321} {
		err := ValidateQuality(q)
		require.Error(t, err, "quality %d", q)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "quality", verr.Field)
	}
}

func TestValidateMode(t *testing.T) {
	for _, m := range []string{"basic", "advanced", "smart"} {
		assert.NoError(t, ValidateMode(m))
	}

	for _, m := range []string{"", "turbo", "SMART"} {
		err := ValidateMode(m)
		require.Error(t, err, "mode %q", m)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "mode", verr.Field)
	}
}

func TestValidateWorkers(t *testing.T) {
	assert.NoError(t, ValidateWorkers(1))
	assert.NoError(t, ValidateWorkers(10))

	for _, w := range []int{0, -1, 11} {
		err := ValidateWorkers(w)
		require.Error(t, err, "workers %d", w)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "max_workers", verr.Field)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "downloads", cfg.OutputDir)
	assert.Equal(t, DefaultQuality, cfg.Quality)
	assert.Equal(t, DefaultMode, cfg.Mode)
	assert.Equal(t, DefaultMaxWorkers, cfg.MaxWorkers)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 10*time.Minute, cfg.ItemTimeout)
	assert.Equal(t, 24*time.Hour, cfg.TaskRetention)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("QUALITY", "320")
	t.Setenv("MODE", "basic")
	t.Setenv("MAX_WORKERS", "7")
	t.Setenv("ITEM_TIMEOUT", "5m")
	t.Setenv("TASK_RETENTION", "48h")
	t.Setenv("RATE_LIMIT_KBPS", "512")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 320, cfg.Quality)
	assert.Equal(t, "basic", cfg.Mode)
	assert.Equal(t, 7, cfg.MaxWorkers)
	assert.Equal(t, 5*time.Minute, cfg.ItemTimeout)
	assert.Equal(t, 48*time.Hour, cfg.TaskRetention)
	assert.Equal(t, 512, cfg.RateLimitKBps)
}

func TestLoad_InvalidQuality(t *testing.T) {
	t.Setenv("QUALITY", "100")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_MalformedIntFallsBack(t *testing.T) {
	t.Setenv("MAX_WORKERS", "lots")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxWorkers, cfg.MaxWorkers)
}

func TestLoad_MalformedDurationFallsBack(t *testing.T) {
	t.Setenv("ITEM_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, cfg.ItemTimeout)
}
