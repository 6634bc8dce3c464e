package main

import (
	"os"

	"github.com/gouffs/flashcore/config"
	"github.com/gouffs/flashcore/emu"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newFormatCmd(logger *logrus.Logger) *cobra.Command {
	var (
		imagePath  string
		configPath string
		c          = config.Default()
	)

	cmd := &cobra.Command{
		Use:   "format",
		Short: "Create a blank, erased NAND image and its sidecar config",
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs, err := c.Attrs()
			if err != nil {
				return errors.Wrap(err, "flashcore-emu format")
			}

			f, err := emu.Format(imagePath, attrs)
			if err != nil {
				return errors.Wrap(err, "flashcore-emu format")
			}
			defer f.ReleaseDevice()

			data, err := yaml.Marshal(c)
			if err != nil {
				return errors.Wrap(err, "flashcore-emu format: marshal config")
			}
			if err := os.WriteFile(configPath, data, 0o644); err != nil {
				return errors.Wrap(err, "flashcore-emu format: write config")
			}

			logger.WithFields(logrus.Fields{
				"image":  imagePath,
				"config": configPath,
				"size":   f.Size(),
			}).Info("formatted image")
			return nil
		},
	}

	cmd.Flags().StringVar(&imagePath, "image", "nand.img", "path to the backing image file to create")
	cmd.Flags().StringVar(&configPath, "config", "nand.yaml", "path to write the derived device config")
	cmd.Flags().IntVar(&c.TotalBlocks, "total-blocks", c.TotalBlocks, "total number of blocks")
	cmd.Flags().IntVar(&c.PagesPerBlock, "pages-per-block", c.PagesPerBlock, "pages per block")
	cmd.Flags().IntVar(&c.PageDataSize, "page-size", c.PageDataSize, "page data size in bytes")
	cmd.Flags().StringVar(&c.ECCOpt, "ecc", c.ECCOpt, "ecc mode: none|soft|hw|hw_auto")
	cmd.Flags().StringVar(&c.LayoutOpt, "layout", c.LayoutOpt, "layout option: uffs-managed|flash-managed")
	cmd.Flags().IntVar(&c.MaxCachedBlocks, "max-cached-blocks", c.MaxCachedBlocksOrDefault(), "block-info cache size")
	return cmd
}
