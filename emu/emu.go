// Package emu implements flash.Driver entirely on top of a single backing
// file, the same role uffs_fileem_defaults.c plays for UFFS's own test
// suite (SPEC_FULL.md §10): a flat image of total_blocks * pages_per_block
// * (page_data_size + spare_size) bytes, erased state is all-0xFF, and
// reads/writes are plain offset math into the file.
//
// Hooks let a caller inject bit flips and I/O errors on specific
// (block, page) pairs, driving every flash.Result branch the core can
// produce (ECC_OK, ECC_FAIL, IO_ERR, BAD_BLOCK) without real hardware.
package emu

import (
	"fmt"
	"os"

	"github.com/gouffs/flashcore/flash"
	"github.com/gouffs/flashcore/spare"
	"github.com/gouffs/flashcore/tag"
	"github.com/pkg/errors"
)

// Hooks lets a test or operator tool intercept individual driver
// operations before they touch the backing file. A nil hook runs the
// operation unmodified. A hook returning a non-nil error short-circuits
// the operation entirely (surfaces as flash.IOErr to the caller); a hook
// that mutates buf after letting the read through can simulate a bit flip
// or other page-level corruption.
type Hooks struct {
	OnReadPageData   func(block, page int, buf []byte) error
	OnReadPageSpare  func(block, page int, buf []byte) error
	OnWritePageData  func(block, page int, buf []byte) error
	OnWritePageSpare func(block, page int, buf []byte) error
	OnEraseBlock     func(block int) error

	// IsBadBlock, if set, makes File report a native bad-block check
	// (supported=true) instead of deferring to flash.CheckBadBlock's
	// status-byte fallback.
	IsBadBlock func(block int) bool
}

// File is a file-backed flash.Driver. Not safe for concurrent use, matching
// the single-threaded-per-device model (spec.md §5).
type File struct {
	f     *os.File
	attrs flash.Attrs
	hooks Hooks

	pageSpan  int64 // page_data_size + page_spare_size
	blockSpan int64 // pageSpan * pages_per_block

	markedBad map[int]bool
}

// Format creates a new backing file at path sized for attrs and fills it
// with the erased pattern (every byte 0xFF), matching the NAND erase
// contract in spec.md §3. An existing file at path is truncated.
func Format(path string, attrs flash.Attrs) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "emu: create %s", path)
	}

	ef := newFile(f, attrs)
	size := ef.blockSpan * int64(attrs.TotalBlocks)
	if err := ef.fillErased(0, size); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "emu: erase-fill %s", path)
	}
	return ef, nil
}

// Open opens an existing backing file at path, trusting attrs to describe
// its geometry (use DetectGeometry first if the geometry is unknown).
func Open(path string, attrs flash.Attrs) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "emu: open %s", path)
	}
	return newFile(f, attrs), nil
}

func newFile(f *os.File, attrs flash.Attrs) *File {
	pageSpan := int64(attrs.PageDataSize + attrs.PageSpareSize)
	return &File{
		f:         f,
		attrs:     attrs,
		pageSpan:  pageSpan,
		blockSpan: pageSpan * int64(attrs.PagesPerBlock),
		markedBad: map[int]bool{},
	}
}

// SetHooks installs wear-injection hooks, replacing any previously set.
func (e *File) SetHooks(h Hooks) { e.hooks = h }

func (e *File) dataOffset(block, page int) int64 {
	return int64(block)*e.blockSpan + int64(page)*e.pageSpan
}

func (e *File) spareOffset(block, page int) int64 {
	return e.dataOffset(block, page) + int64(e.attrs.PageDataSize)
}

func (e *File) fillErased(off, n int64) error {
	const chunk = 64 * 1024
	buf := make([]byte, chunk)
	for i := range buf {
		buf[i] = 0xFF
	}
	for n > 0 {
		take := int64(len(buf))
		if take > n {
			take = n
		}
		if _, err := e.f.WriteAt(buf[:take], off); err != nil {
			return err
		}
		off += take
		n -= take
	}
	return nil
}

// InitDevice implements flash.Driver; the backing file is already open by
// Format/Open, so there is nothing further to do.
func (e *File) InitDevice() error { return nil }

// ReleaseDevice implements flash.Driver, closing the backing file.
func (e *File) ReleaseDevice() error {
	return errors.Wrap(e.f.Close(), "emu: close")
}

// ReadPageData implements flash.Driver. The emulator carries no separate
// hardware-ECC channel, so it always returns a nil ecc_out; callers running
// in hardware-ECC mode against this driver will see ECCMode treated as if
// no ECC bytes were supplied.
func (e *File) ReadPageData(block, page int, buf []byte) (flash.Result, []byte, error) {
	if _, err := e.f.ReadAt(buf, e.dataOffset(block, page)); err != nil {
		return flash.IOErr, nil, errors.Wrapf(err, "emu: read data block %d page %d", block, page)
	}
	if e.hooks.OnReadPageData != nil {
		if err := e.hooks.OnReadPageData(block, page, buf); err != nil {
			return flash.IOErr, nil, err
		}
	}
	return flash.NoErr, nil, nil
}

// ReadPageSpare implements flash.Driver.
func (e *File) ReadPageSpare(block, page int, buf []byte) (flash.Result, error) {
	if _, err := e.f.ReadAt(buf, e.spareOffset(block, page)); err != nil {
		return flash.IOErr, errors.Wrapf(err, "emu: read spare block %d page %d", block, page)
	}
	if e.hooks.OnReadPageSpare != nil {
		if err := e.hooks.OnReadPageSpare(block, page, buf); err != nil {
			return flash.IOErr, err
		}
	}
	return flash.NoErr, nil
}

// ReadPageSpareWithLayout implements flash.Driver's flash-managed path by
// doing what a real flash-managed controller would: reading the raw spare
// itself and decoding it with the same spare.Unpack the uffs-managed path
// uses, so LayoutFlashManaged is exercised against real bytes rather than
// stubbed out.
func (e *File) ReadPageSpareWithLayout(block, page int) (flash.Result, tag.Tag, []byte, error) {
	buf := make([]byte, e.attrs.PageSpareSize)
	res, err := e.ReadPageSpare(block, page, buf)
	if err != nil {
		return res, tag.Tag{}, nil, err
	}
	t, eccBytes, uErr := spare.Unpack(e.attrs.Layouts, buf, e.attrs.ECCSize)
	if uErr != nil {
		return flash.IOErr, tag.Tag{}, nil, uErr
	}
	return res, t, eccBytes, nil
}

// WritePageData implements flash.Driver.
func (e *File) WritePageData(block, page int, buf []byte, eccIn []byte) (flash.Result, error) {
	if e.hooks.OnWritePageData != nil {
		if err := e.hooks.OnWritePageData(block, page, buf); err != nil {
			return flash.IOErr, err
		}
	}
	if _, err := e.f.WriteAt(buf, e.dataOffset(block, page)); err != nil {
		return flash.IOErr, errors.Wrapf(err, "emu: write data block %d page %d", block, page)
	}
	return flash.NoErr, nil
}

// WritePageSpare implements flash.Driver.
func (e *File) WritePageSpare(block, page int, buf []byte) (flash.Result, error) {
	if e.hooks.OnWritePageSpare != nil {
		if err := e.hooks.OnWritePageSpare(block, page, buf); err != nil {
			return flash.IOErr, err
		}
	}
	if _, err := e.f.WriteAt(buf, e.spareOffset(block, page)); err != nil {
		return flash.IOErr, errors.Wrapf(err, "emu: write spare block %d page %d", block, page)
	}
	return flash.NoErr, nil
}

// WritePageSpareWithLayout implements flash.Driver's flash-managed path by
// packing the tag with spare.Pack before writing it, mirroring
// ReadPageSpareWithLayout.
func (e *File) WritePageSpareWithLayout(block, page int, t tag.Tag, eccBytes []byte) (flash.Result, error) {
	buf := spare.Pack(e.attrs.Layouts, &t, eccBytes, e.attrs.ECCMode != flash.ECCNone)
	return e.WritePageSpare(block, page, buf)
}

// EraseBlock implements flash.Driver, resetting the whole block span to the
// erased pattern.
func (e *File) EraseBlock(block int) (flash.Result, error) {
	if e.hooks.OnEraseBlock != nil {
		if err := e.hooks.OnEraseBlock(block); err != nil {
			return flash.IOErr, err
		}
	}
	if err := e.fillErased(int64(block)*e.blockSpan, e.blockSpan); err != nil {
		return flash.IOErr, errors.Wrapf(err, "emu: erase block %d", block)
	}
	return flash.NoErr, nil
}

// MarkBadBlock implements flash.Driver by writing a non-0xFF status byte at
// page 0's spare, the on-flash convention spec.md §3 defines.
func (e *File) MarkBadBlock(block int) error {
	e.markedBad[block] = true
	buf := make([]byte, 1)
	_, err := e.f.WriteAt(buf, e.spareOffset(block, 0)+int64(e.attrs.StatusByteOffset))
	return errors.Wrapf(err, "emu: mark bad block %d", block)
}

// IsBadBlock implements flash.Driver. Without a hook installed, the
// emulator defers to flash.CheckBadBlock's status-byte fallback
// (supported=false) the way a controller without native bad-block
// reporting would.
func (e *File) IsBadBlock(block int) (bad bool, supported bool) {
	if e.hooks.IsBadBlock == nil {
		return false, false
	}
	return e.hooks.IsBadBlock(block), true
}

// Size returns the backing file's total span in bytes.
func (e *File) Size() int64 {
	return e.blockSpan * int64(e.attrs.TotalBlocks)
}

func (e *File) String() string {
	return fmt.Sprintf("emu.File{blocks=%d, pages_per_block=%d, page=%d+%d}",
		e.attrs.TotalBlocks, e.attrs.PagesPerBlock, e.attrs.PageDataSize, e.attrs.PageSpareSize)
}
