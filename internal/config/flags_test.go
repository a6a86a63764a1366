package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagsApplyOverridesNonZeroOnly(t *testing.T) {
	cfg := Default()
	cfg.Secret.Value = "from-config-file"

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags := BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--distributor.port=6000", "--secret=from-flag"}))

	flags.Apply(cfg)

	assert.Equal(t, 6000, cfg.Distributor.Port)
	assert.Equal(t, "from-flag", cfg.Secret.Value)
	// untouched flags leave the existing value alone.
	assert.Equal(t, "0.0.0.0", cfg.Distributor.Host)
}

func TestFlagsApplyHealthCheckIntervalIsFloored(t *testing.T) {
	cfg := Default()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags := BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--distributor.healthcheck-interval=1s"}))

	flags.Apply(cfg)

	assert.Equal(t, minHealthCheckInterval, cfg.Distributor.HealthCheckInterval)
}
