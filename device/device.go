// Package device wires together a mounted flashcore device: immutable
// storage attributes, an injected flash.Driver, spare-buffer scratch
// memory, the bad-block registry, the block-info cache, and a logger —
// everything spec.md §5 describes as carried by "the device handle".
package device

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/gouffs/flashcore/badblock"
	"github.com/gouffs/flashcore/blockinfo"
	"github.com/gouffs/flashcore/flash"
	"github.com/gouffs/flashcore/tag"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Device implements flash.Handle and layers the block-info cache and
// bad-block registry on top, exposing the four flash page operations plus
// cache management as ordinary methods. Not safe for concurrent use: the
// core is single-threaded cooperative per device (spec.md §5); independent
// devices don't share any state.
type Device struct {
	id     uuid.UUID
	attrs  flash.Attrs
	driver flash.Driver
	spare  []byte
	reg    *badblock.Registry
	cache  *blockinfo.Cache
	log    *logrus.Entry
}

// Open initializes the driver and returns a mounted device handle, logging
// its session id (the Go-native stand-in for the spec's abstract mount
// event) for log correlation across a multi-device run.
func Open(attrs flash.Attrs, driver flash.Driver, maxCachedBlocks int, logger *logrus.Logger) (*Device, error) {
	if err := driver.InitDevice(); err != nil {
		return nil, errors.Wrap(err, "device: init")
	}

	if logger == nil {
		logger = logrus.StandardLogger()
	}
	id := uuid.New()
	entry := logger.WithFields(logrus.Fields{
		"device_id": id.String(),
	})

	d := &Device{
		id:     id,
		attrs:  attrs,
		driver: driver,
		spare:  make([]byte, attrs.PageSpareSize),
		reg:    badblock.New(attrs.TotalBlocks),
		cache:  blockinfo.New(maxCachedBlocks, attrs.PagesPerBlock),
		log:    entry,
	}
	d.log.Info("device mounted")
	return d, nil
}

// ID is this device's session identifier.
func (d *Device) ID() uuid.UUID { return d.id }

// Attrs implements flash.Handle.
func (d *Device) Attrs() flash.Attrs { return d.attrs }

// Driver implements flash.Handle.
func (d *Device) Driver() flash.Driver { return d.driver }

// SpareBuf implements flash.Handle.
func (d *Device) SpareBuf() []byte { return d.spare }

// BadBlocks implements flash.Handle.
func (d *Device) BadBlocks() *badblock.Registry { return d.reg }

// Log implements flash.Handle.
func (d *Device) Log() *logrus.Entry { return d.log }

// ReadPageData reads and ECC-verifies a page's data.
func (d *Device) ReadPageData(block, page int, buf []byte) (flash.Result, flash.DataMeta, error) {
	return flash.ReadPageData(d, block, page, buf)
}

// ReadPageSpare reads and ECC-verifies a page's tag.
func (d *Device) ReadPageSpare(block, page int) (flash.Result, tag.Tag, error) {
	return flash.ReadPageSpare(d, block, page)
}

// WritePageCombine runs the three-phase write protocol for one page.
func (d *Device) WritePageCombine(block, page int, buf []byte, t tag.Tag) (flash.Result, error) {
	return flash.WritePageCombine(d, block, page, buf, t)
}

// EraseBlock erases block, expiring its cached block-info entry so the next
// access re-reads the (now all-0xFF) spare.
func (d *Device) EraseBlock(block int) (flash.Result, error) {
	res, err := flash.EraseBlock(d, block)
	if bi, ok := d.cache.Peek(block); ok {
		d.cache.Expire(bi, blockinfo.All)
	}
	return res, err
}

// CheckBadBlock reports whether block is bad.
func (d *Device) CheckBadBlock(block int) (bool, error) {
	return flash.CheckBadBlock(d, block)
}

// MarkBadBlock writes the bad-block status byte directly (the deferred
// action badblock.Registry.WriteBack performs for blocks this device
// itself flagged).
func (d *Device) MarkBadBlock(block int) error {
	return flash.MarkBadBlock(d, block)
}

// GetBlockInfo pins and returns the cached page-tag summary for block. On
// first access the entry is all-expired; LoadBlockInfo populates it.
func (d *Device) GetBlockInfo(block int) (*blockinfo.BlockInfo, error) {
	bi, err := d.cache.Get(block)
	if err != nil {
		return nil, fmt.Errorf("device: get block info for block %d: %w", block, err)
	}
	return bi, nil
}

// PutBlockInfo releases one reference obtained from GetBlockInfo.
func (d *Device) PutBlockInfo(bi *blockinfo.BlockInfo) {
	d.cache.Put(bi)
}

// LoadBlockInfo populates page (or blockinfo.All) of bi's expired slots.
func (d *Device) LoadBlockInfo(bi *blockinfo.BlockInfo, page int) error {
	return d.cache.Load(d, bi, page)
}

// ExpireBlockInfo marks page (or blockinfo.All) of bi stale.
func (d *Device) ExpireBlockInfo(bi *blockinfo.BlockInfo, page int) {
	d.cache.Expire(bi, page)
}

// Unmount expires every cached block-info entry and releases the driver. Per spec.md §4.4's
// invariant, it refuses while any block-info entry is still pinned.
func (d *Device) Unmount() error {
	if !d.cache.IsAllFree() {
		return errors.New("device: unmount refused: block-info entries still pinned")
	}
	d.cache.ExpireAll()
	if err := d.driver.ReleaseDevice(); err != nil {
		return errors.Wrap(err, "device: release")
	}
	d.log.Info("device unmounted")
	return nil
}
