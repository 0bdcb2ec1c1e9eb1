package cfg

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestBindFlagsDefaults(t *testing.T) {
	viper.Reset()
	flagSet := pflag.NewFlagSet("ombud", pflag.ContinueOnError)
	require.NoError(t, BindFlags(flagSet))
	require.NoError(t, flagSet.Parse(nil))
	require.NoError(t, viper.BindPFlags(flagSet))

	c := FromViper()

	require.Equal(t, DefaultCacheDir, c.CacheDir)
	require.Equal(t, DefaultLogFormat, c.Logging.Format)
	require.Equal(t, DefaultLogSeverity, c.Logging.Severity)
	require.Equal(t, 0, c.Metrics.Port)
	require.Equal(t, -1, c.WorkerIndex)
}

func TestValidateConfigRejectsBadSeverity(t *testing.T) {
	c := &Config{Logging: LoggingConfig{Format: "text", Severity: "shout"}}
	require.Error(t, ValidateConfig(c))
}

func TestValidateConfigAcceptsDefaults(t *testing.T) {
	c := &Config{Logging: LoggingConfig{Format: DefaultLogFormat, Severity: DefaultLogSeverity}}
	require.NoError(t, ValidateConfig(c))
}
