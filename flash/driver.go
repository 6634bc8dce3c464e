package flash

import "github.com/gouffs/flashcore/tag"

// Driver is the low-level capability this package builds on (spec.md §6):
// an injected set of operations over a concrete NAND device, each returning
// a Result alongside any genuine transport-level Go error (device gone,
// context misuse — not an ECC/IO condition, which travels in Result).
//
// Either the raw-spare pair (ReadPageSpare/WritePageSpare) or the
// with-layout pair is used per call, selected by Attrs.LayoutOpt.
type Driver interface {
	InitDevice() error
	ReleaseDevice() error

	// ReadPageData reads page data into buf and, in hardware-ECC mode,
	// returns the driver-computed ECC bytes alongside (nil otherwise).
	ReadPageData(block, page int, buf []byte) (Result, []byte, error)
	// ReadPageSpare reads the raw spare area into buf.
	ReadPageSpare(block, page int, buf []byte) (Result, error)
	// ReadPageSpareWithLayout asks a flash-managed driver to apply its own
	// layout and hand back an already-decoded tag plus raw data ECC bytes.
	ReadPageSpareWithLayout(block, page int) (Result, tag.Tag, []byte, error)

	// WritePageData writes page data, passing along a precomputed data ECC
	// for drivers that burn it alongside in hardware.
	WritePageData(block, page int, buf []byte, eccIn []byte) (Result, error)
	WritePageSpare(block, page int, buf []byte) (Result, error)
	WritePageSpareWithLayout(block, page int, t tag.Tag, eccBytes []byte) (Result, error)

	EraseBlock(block int) (Result, error)
	MarkBadBlock(block int) error
	// IsBadBlock reports the driver's native bad-block check, if it has
	// one; supported is false when the driver defers to the status-byte
	// fallback this package implements itself.
	IsBadBlock(block int) (bad bool, supported bool)
}
