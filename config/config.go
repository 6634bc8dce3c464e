// Package config declares the typed, YAML-loadable configuration record for
// a flashcore device, and translates it into the flash.Attrs storage
// attributes the core treats as immutable once mounted (spec.md §3, §9).
package config

import (
	"os"

	"github.com/gouffs/flashcore/flash"
	"github.com/gouffs/flashcore/spare"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration shape. ecc_opt and layout_opt are
// strings in the file and decode into the typed flash enums by Attrs.
type Config struct {
	TotalBlocks      int    `yaml:"total_blocks"`
	PagesPerBlock    int    `yaml:"pages_per_block"`
	PageDataSize     int    `yaml:"page_data_size"`
	PageSpareSize    int    `yaml:"page_spare_size"`
	StatusByteOffset int    `yaml:"status_byte_offset"`
	ECCOpt           string `yaml:"ecc_opt"`
	ECCSize          int    `yaml:"ecc_size"` // 0 = derive as 3*page_data_size/256
	LayoutOpt        string `yaml:"layout_opt"`
	MaxCachedBlocks  int    `yaml:"max_cached_blocks"`
}

// Default returns the configuration for a typical 512-byte-page soft-ECC
// device, matching scenario (1) of the testable properties.
func Default() Config {
	return Config{
		TotalBlocks:     1024,
		PagesPerBlock:   32,
		PageDataSize:    512,
		ECCOpt:          "soft",
		LayoutOpt:       "uffs-managed",
		MaxCachedBlocks: 16,
	}
}

// DefaultAttrs returns the derived flash.Attrs for Default(). It never
// errors in practice since Default()'s fields are all valid by
// construction; it panics rather than return an error callers would have
// to check for a configuration this package controls.
func DefaultAttrs() flash.Attrs {
	attrs, err := Default().Attrs()
	if err != nil {
		panic(errors.Wrap(err, "config: Default() produced an invalid configuration"))
	}
	return attrs
}

// Load reads and parses a YAML configuration file, applying the same
// derivation and validation rules as Attrs.
func Load(path string) (flash.Attrs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return flash.Attrs{}, errors.Wrapf(err, "config: read %s", path)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return flash.Attrs{}, errors.Wrapf(err, "config: parse %s", path)
	}
	return c.Attrs()
}

// Attrs validates c and derives the full flash.Attrs, rejecting unrecognized
// enum strings at load time rather than silently defaulting them.
func (c Config) Attrs() (flash.Attrs, error) {
	eccMode, err := parseECCMode(c.ECCOpt)
	if err != nil {
		return flash.Attrs{}, err
	}
	layoutOpt, err := parseLayoutOpt(c.LayoutOpt)
	if err != nil {
		return flash.Attrs{}, err
	}
	if c.PageDataSize <= 0 || c.PageDataSize%256 != 0 {
		return flash.Attrs{}, errors.Errorf("config: page_data_size %d must be a positive multiple of 256", c.PageDataSize)
	}

	eccSize := c.ECCSize
	if eccSize == 0 {
		eccSize = 3 * c.PageDataSize / 256
	}

	layouts := spare.DefaultLayouts(c.PageDataSize)
	spareSize := c.PageSpareSize
	if spareSize == 0 {
		spareSize = spare.RequiredSize(layouts, eccSize)
	}
	statusOffset := c.StatusByteOffset
	if statusOffset == 0 {
		statusOffset = layouts.StatusOffset
	}

	return flash.Attrs{
		TotalBlocks:      c.TotalBlocks,
		PagesPerBlock:    c.PagesPerBlock,
		PageDataSize:     c.PageDataSize,
		PageSpareSize:    spareSize,
		StatusByteOffset: statusOffset,
		ECCMode:          eccMode,
		ECCSize:          eccSize,
		LayoutOpt:        layoutOpt,
		Layouts:          layouts,
	}, nil
}

func parseECCMode(s string) (flash.ECCMode, error) {
	switch s {
	case "", "none":
		return flash.ECCNone, nil
	case "soft":
		return flash.ECCSoft, nil
	case "hw":
		return flash.ECCHardware, nil
	case "hw_auto":
		return flash.ECCHardwareAuto, nil
	default:
		return 0, errors.Errorf("config: unrecognized ecc_opt %q", s)
	}
}

func parseLayoutOpt(s string) (flash.LayoutOpt, error) {
	switch s {
	case "", "uffs-managed", "uffs_managed":
		return flash.LayoutUFFSManaged, nil
	case "flash-managed", "flash_managed":
		return flash.LayoutFlashManaged, nil
	default:
		return 0, errors.Errorf("config: unrecognized layout_opt %q", s)
	}
}

// MaxCachedBlocksOrDefault returns the configured block-info cache size, defaulting
// to 16 entries when unset.
func (c Config) MaxCachedBlocksOrDefault() int {
	if c.MaxCachedBlocks <= 0 {
		return 16
	}
	return c.MaxCachedBlocks
}
