// Package cli builds ombud's cobra root command: "ombud [port] [workers]"
// plus the ambient-stack flags bound through cfg.BindFlags, mirroring the
// teacher's cmd/root.go pflag/viper wiring scaled down to ombud's surface.
package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/avtobiff/ombud/cfg"
)

// NewCommand builds the root command. run is invoked once flags/positional
// args have been parsed and validated.
func NewCommand(run func(*cfg.Config) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ombud [port] [workers]",
		Short: "Command-driven caching TCP proxy",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg.FromViper()

			// Positional port/workers deliberately fall back to defaults on
			// invalid input rather than erroring, same as the legacy CLI;
			// the actual fallback happens in internal/supervisor, which
			// knows workers' RLIMIT_NPROC ceiling. Here we only parse what
			// was given.
			if len(args) >= 1 {
				if p, err := strconv.Atoi(args[0]); err == nil {
					c.Port = p
				}
			}
			if len(args) >= 2 {
				if w, err := strconv.Atoi(args[1]); err == nil {
					c.Workers = w
				}
			}

			if err := cfg.ValidateConfig(c); err != nil {
				return err
			}

			return run(c)
		},
	}

	if err := cfg.BindFlags(cmd.Flags()); err != nil {
		panic(fmt.Sprintf("cli: bind flags: %v", err))
	}

	return cmd
}
