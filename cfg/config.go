// Package cfg defines ombud's configuration surface and binds it to pflag
// and viper the way the teacher's generated cfg package does, hand-written
// here since ombud's flag set is small.
package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully resolved configuration for one ombud process,
// whether it's the supervisor or a re-exec'd worker.
type Config struct {
	Port    int
	Workers int

	CacheDir string

	Logging LoggingConfig
	Metrics MetricsConfig

	// WorkerIndex is set only on re-exec'd worker processes; the
	// supervisor itself leaves it at -1.
	WorkerIndex int
}

type LoggingConfig struct {
	Format   string
	Severity string
	FilePath string
}

type MetricsConfig struct {
	Port int
}

// BindFlags registers every ombud flag on flagSet and binds it through
// viper, mirroring the teacher's BindFlags pattern.
func BindFlags(flagSet *pflag.FlagSet) error {
	flagSet.String("cache-dir", DefaultCacheDir, "cache base directory")
	flagSet.String("log-format", DefaultLogFormat, "log output format: text|json")
	flagSet.String("log-severity", DefaultLogSeverity, "log severity: trace|debug|info|warning|error|off")
	flagSet.String("log-file", "", "path to a rotated log file (default: stderr)")
	flagSet.Int("metrics-port", 0, "port to serve Prometheus metrics on; 0 disables the metrics server")
	flagSet.Int("worker-index", -1, "internal: identifies a re-exec'd worker process")
	flagSet.MarkHidden("worker-index")

	for _, name := range []string{"cache-dir", "log-format", "log-severity", "log-file", "metrics-port", "worker-index"} {
		if err := viper.BindPFlag(name, flagSet.Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}

// FromViper builds a Config from whatever viper has bound, applying the
// ombud defaults for anything left unset.
func FromViper() *Config {
	c := &Config{
		CacheDir:    viper.GetString("cache-dir"),
		WorkerIndex: viper.GetInt("worker-index"),
		Logging: LoggingConfig{
			Format:   viper.GetString("log-format"),
			Severity: viper.GetString("log-severity"),
			FilePath: viper.GetString("log-file"),
		},
		Metrics: MetricsConfig{
			Port: viper.GetInt("metrics-port"),
		},
	}
	return c
}
