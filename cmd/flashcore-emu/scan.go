package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newScanCmd(logger *logrus.Logger) *cobra.Command {
	var imagePath, configPath string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Check every block's status byte and report the bad ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := openDevice(imagePath, configPath, logger)
			if err != nil {
				return errors.Wrap(err, "flashcore-emu scan")
			}
			defer dev.Unmount()

			total := dev.Attrs().TotalBlocks
			bad := []int{}
			for block := 0; block < total; block++ {
				isBad, err := dev.CheckBadBlock(block)
				if err != nil {
					return errors.Wrapf(err, "flashcore-emu scan: block %d", block)
				}
				if isBad {
					logger.WithField("block", block).Warn("bad block")
					bad = append(bad, block)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "scanned %d blocks, %d bad: %v\n", total, len(bad), bad)
			return nil
		},
	}
	addImageConfigFlags(cmd, &imagePath, &configPath)
	return cmd
}
