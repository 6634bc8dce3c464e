package main

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newMountCmd(logger *logrus.Logger) *cobra.Command {
	var imagePath, configPath string

	cmd := &cobra.Command{
		Use:   "mount",
		Short: "Mount an image and immediately unmount it, as a smoke test",
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := openDevice(imagePath, configPath, logger)
			if err != nil {
				return errors.Wrap(err, "flashcore-emu mount")
			}
			logger.WithField("device_id", dev.ID().String()).Info("mounted")

			if err := dev.Unmount(); err != nil {
				return errors.Wrap(err, "flashcore-emu mount: unmount")
			}
			logger.Info("unmounted cleanly")
			return nil
		},
	}
	addImageConfigFlags(cmd, &imagePath, &configPath)
	return cmd
}
