// Command factorvm drives a single factorcore VM instance through its
// primitive surface (§4.7), for interactive or scripted exploration of the
// collector and context manager outside a hosted language image.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cliConfig holds the persistent flags shared by every subcommand: the
// process-wide configuration parameters of spec.md §6, translated into a
// one-shot CLI surface since each invocation builds and discards its own
// VM (there is no running-daemon state to attach to).
type cliConfig struct {
	dsSize      uint64
	rsSize      uint64
	nurserySize uint64
	agingSize   uint64
	tenuredSize uint64
	hasAging    bool
	verbose     bool
}

func newRootCmd() *cobra.Command {
	cfg := &cliConfig{}

	root := &cobra.Command{
		Use:   "factorvm",
		Short: "Exercise the factorcore generational GC and execution-context core",
	}

	flags := root.PersistentFlags()
	flags.Uint64Var(&cfg.dsSize, "ds-size", 0, "data-stack segment size in bytes (0: use a default)")
	flags.Uint64Var(&cfg.rsSize, "rs-size", 0, "retain-stack segment size in bytes (0: use a default)")
	flags.Uint64Var(&cfg.nurserySize, "nursery-size", 0, "nursery generation size in bytes (0: use a default)")
	flags.Uint64Var(&cfg.agingSize, "aging-size", 0, "aging generation size in bytes (0: use a default)")
	flags.Uint64Var(&cfg.tenuredSize, "tenured-size", 0, "tenured generation size in bytes (0: use a default)")
	flags.BoolVar(&cfg.hasAging, "has-aging", true, "build with an aging generation between nursery and tenured")
	flags.BoolVar(&cfg.verbose, "verbose", false, "emit debug-level structured logs")

	root.AddCommand(
		newGCCmd(cfg),
		newMinorGCCmd(cfg),
		newGCStatsCmd(cfg),
		newClearGCStatsCmd(cfg),
		newDataStackCmd(cfg),
		newSetDataStackCmd(cfg),
		newBecomeCmd(cfg),
	)
	return root
}

func (c *cliConfig) logger() *zap.Logger {
	var zc zap.Config
	if c.verbose {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	logger, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
