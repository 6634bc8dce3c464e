// Command flashcore-emu drives the file-backed NAND emulator from the
// command line: format a blank image, mount it, inspect a block's page
// tags, or scan the whole device for bad blocks. It is a thin consumer of
// the device/config/emu packages' public API — no core logic lives here
// (spec.md §1, SPEC_FULL.md §10).
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		logLevel string
		logger   = logrus.New()
	)

	root := &cobra.Command{
		Use:   "flashcore-emu",
		Short: "Operate the flashcore file-backed NAND emulator",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("flashcore-emu: %w", err)
			}
			logger.SetLevel(level)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "logrus level: trace|debug|info|warn|error")

	root.AddCommand(
		newFormatCmd(logger),
		newMountCmd(logger),
		newInspectCmd(logger),
		newScanCmd(logger),
	)
	return root
}
