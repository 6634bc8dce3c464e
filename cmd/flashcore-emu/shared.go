package main

import (
	"os"

	"github.com/gouffs/flashcore/config"
	"github.com/gouffs/flashcore/device"
	"github.com/gouffs/flashcore/emu"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// loadConfig reads the sidecar YAML config a prior `format` run wrote,
// keeping max_cached_blocks around since config.Load only returns the
// derived flash.Attrs.
func loadConfig(path string) (config.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return config.Config{}, errors.Wrapf(err, "read %s", path)
	}
	var c config.Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return config.Config{}, errors.Wrapf(err, "parse %s", path)
	}
	return c, nil
}

// openDevice loads configPath, opens the image at imagePath through the
// file-backed emulator, and mounts a device.Device over it. Every
// subcommand but format shares this path.
func openDevice(imagePath, configPath string, logger *logrus.Logger) (*device.Device, error) {
	c, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	attrs, err := c.Attrs()
	if err != nil {
		return nil, errors.Wrap(err, "derive attrs")
	}

	f, err := emu.Open(imagePath, attrs)
	if err != nil {
		return nil, errors.Wrap(err, "open image")
	}

	dev, err := device.Open(attrs, f, c.MaxCachedBlocksOrDefault(), logger)
	if err != nil {
		f.ReleaseDevice()
		return nil, errors.Wrap(err, "mount device")
	}
	return dev, nil
}

func addImageConfigFlags(cmd *cobra.Command, imagePath, configPath *string) {
	cmd.Flags().StringVar(imagePath, "image", "nand.img", "path to the backing image file")
	cmd.Flags().StringVar(configPath, "config", "nand.yaml", "path to the device config written by `format`")
}
