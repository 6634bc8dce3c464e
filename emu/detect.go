package emu

import (
	"io"

	"github.com/gouffs/flashcore/ecc"
	"github.com/gouffs/flashcore/flash"
	"github.com/gouffs/flashcore/spare"
	"github.com/gouffs/flashcore/tag"
	"github.com/pkg/errors"
)

// candidatePageSizes bounds the search DetectGeometry performs, the same
// brute-force-over-a-small-table approach the teacher's detectSettings uses
// for YAFFS images, retargeted at UFFS's page/spare conventions (page data
// sizes are always a multiple of 256, per spec.md §3); the spare size for
// each candidate is derived from its default layout rather than searched
// separately.
var candidatePageSizes = []int{256, 512, 1024, 2048, 4096}

// Geometry is the subset of flash.Attrs DetectGeometry can recover by
// inspecting an image's first two pages; callers still need to supply
// total_blocks, pages_per_block, and the ECC mode, which aren't recoverable
// from page/spare bytes alone.
type Geometry struct {
	PageDataSize  int
	PageSpareSize int
}

// DetectGeometry sniffs page and spare size from an already-written image
// by trying each candidate page size's default layout (spec.md §6) against
// the first two pages, accepting the first candidate where both pages
// decode to a self-consistent tag: either the fully-erased pattern
// (RawDirty=1, RawValid=1) or a committed tag (Valid=0) whose tag_ecc
// verifies. This is the UFFS-tag analogue of the teacher's approach of
// verifying candidate settings by parsing two consecutive spare structures
// and checking they parse as valid headers.
func DetectGeometry(r io.ReaderAt) (Geometry, error) {
	for _, pageSize := range candidatePageSizes {
		layouts := spare.DefaultLayouts(pageSize)
		eccSize := ecc.Size(pageSize)
		spareSize := spare.RequiredSize(layouts, eccSize)

		ok := true
		for page := 0; page < 2; page++ {
			off := int64(page) * int64(pageSize+spareSize)
			buf := make([]byte, spareSize)
			if _, err := r.ReadAt(buf, off+int64(pageSize)); err != nil {
				ok = false
				break
			}
			if !looksLikeSpare(layouts, eccSize, buf) {
				ok = false
				break
			}
		}
		if ok {
			return Geometry{PageDataSize: pageSize, PageSpareSize: spareSize}, nil
		}
	}
	return Geometry{}, errors.New("emu: no candidate page/spare geometry matched this image")
}

func looksLikeSpare(layouts spare.Layouts, eccSize int, buf []byte) bool {
	t, _, err := spare.Unpack(layouts, buf, eccSize)
	if err != nil {
		return false
	}
	if t.Dirty == 1 && t.Valid == 1 {
		return true // erased page, never written
	}
	if t.Valid != 0 {
		return false // dirty==0 but valid==1 is a torn write; ambiguous for detection
	}
	store := t.MarshalStore()
	covered := store[:tag.ECCCoveredSize]
	if allZero(covered) {
		// An all-zero tag body always has a zero syndrome, so it would
		// trivially "verify" against a zero stored ECC regardless of
		// whether this candidate geometry is the right one. That makes it
		// useless as a detection signal; treat it as inconclusive rather
		// than a match.
		return false
	}
	computed := ecc.Make8(covered)
	return ecc.Correct8(covered, t.TagECC, computed) == 0
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// DetectAttrs is DetectGeometry plus the caller-supplied fields it can't
// recover, assembled into a ready-to-use flash.Attrs.
func DetectAttrs(r io.ReaderAt, totalBlocks, pagesPerBlock int, eccMode flash.ECCMode) (flash.Attrs, error) {
	g, err := DetectGeometry(r)
	if err != nil {
		return flash.Attrs{}, err
	}
	layouts := spare.DefaultLayouts(g.PageDataSize)
	return flash.Attrs{
		TotalBlocks:      totalBlocks,
		PagesPerBlock:    pagesPerBlock,
		PageDataSize:     g.PageDataSize,
		PageSpareSize:    g.PageSpareSize,
		StatusByteOffset: layouts.StatusOffset,
		ECCMode:          eccMode,
		ECCSize:          ecc.Size(g.PageDataSize),
		LayoutOpt:        flash.LayoutUFFSManaged,
		Layouts:          layouts,
	}, nil
}
