// Package spare translates between a logical (tag, ecc) pair and the raw
// bytes of the NAND spare area, according to a layout descriptor table keyed
// by page size (spec.md §4.2).
package spare

import (
	"fmt"

	"github.com/gouffs/flashcore/ecc"
	"github.com/gouffs/flashcore/tag"
)

// Segment is one (offset, length) byte range within the spare area that a
// logical field occupies.
type Segment struct {
	Offset int
	Length int
}

// Layout is a sequence of segments. Unlike the original C representation
// (a byte array terminated by the 0xFF sentinel), a Go slice's length is
// already known; ParseBytes below accepts the legacy wire form for callers
// that have one.
type Layout []Segment

// ParseBytes decodes a legacy (offset, length)... 0xFF-terminated byte array
// into a Layout, the wire form the on-flash format table in spec.md §6 is
// expressed in.
func ParseBytes(b []byte) Layout {
	var l Layout
	for i := 0; i+1 < len(b) && b[i] != 0xFF; i += 2 {
		l = append(l, Segment{Offset: int(b[i]), Length: int(b[i+1])})
	}
	return l
}

// Layouts bundles the three descriptors a device configuration carries, plus
// the fixed block-status offset (spec.md §3, §6).
type Layouts struct {
	Data         Layout // tag data placement
	ECC          Layout // data ECC placement
	TagECC       Layout // tag ECC placement (informational; tag ECC travels inside Data)
	StatusOffset int
}

// idx_tbl from uffs_FlashInterfaceInit: 256->0, 512->1, 1024->2, 2048 and
// anything larger ->3 (the original duplicates the last table entry so that
// oversized pages fall through to the 2048 descriptor; spec.md §6 states
// this in prose, so here it's an explicit bucket switch rather than the
// original's array indexed past its exact entries).
func bucketIndex(pageDataSize int) int {
	switch {
	case pageDataSize <= 256:
		return 0
	case pageDataSize <= 512:
		return 1
	case pageDataSize <= 1024:
		return 2
	default:
		return 3
	}
}

var defaultTable = [4]Layouts{
	{ // 256
		Data:         Layout{{0, 4}},
		ECC:          Layout{{4, 1}, {6, 2}},
		TagECC:       nil,
		StatusOffset: 5,
	},
	{ // 512
		Data:         Layout{{0, 5}, {6, 1}},
		ECC:          Layout{{9, 6}},
		TagECC:       Layout{{7, 2}},
		StatusOffset: 5,
	},
	{ // 1024
		Data:         Layout{{0, 5}, {6, 1}},
		ECC:          Layout{{9, 12}},
		TagECC:       Layout{{7, 2}},
		StatusOffset: 5,
	},
	{ // 2048+
		Data:         Layout{{0, 5}, {6, 1}},
		ECC:          Layout{{9, 24}},
		TagECC:       Layout{{7, 2}},
		StatusOffset: 5,
	},
}

// DefaultLayouts returns the built-in layout descriptors for a given page
// data size, per the table in spec.md §6. The leading Data segments match
// that table byte-for-byte (the wire-compatibility-critical prefix); since
// this reimplementation's Tag carries more opaque bytes than the historical
// struct the table was sized for, a trailing segment is appended — starting
// right after the ECC region — to carry the remainder of tag.StoreSize, per
// §4.2's own allowance that "callers size segments to cover the full tag".
func DefaultLayouts(pageDataSize int) Layouts {
	base := defaultTable[bucketIndex(pageDataSize)]
	l := Layouts{
		Data:         append(Layout(nil), base.Data...),
		ECC:          base.ECC,
		TagECC:       base.TagECC,
		StatusOffset: base.StatusOffset,
	}

	prefixLen := 0
	for _, seg := range l.Data {
		prefixLen += seg.Length
	}
	if remaining := tag.StoreSize - prefixLen; remaining > 0 {
		eccEnd := lastOffset(l.ECC, totalLength(l.ECC))
		l.Data = append(l.Data, Segment{Offset: eccEnd, Length: remaining})
	}
	return l
}

func totalLength(l Layout) int {
	n := 0
	for _, seg := range l {
		n += seg.Length
	}
	return n
}

// RequiredSize computes the minimum spare buffer size for a layout and a
// given data-ECC size, matching the original's _calculate_spare_buf_size:
// the max of the last ECC byte written, the last tag byte written, and
// status_offset+1.
func RequiredSize(l Layouts, eccSize int) int {
	eccLast := lastOffset(l.ECC, eccSize)
	tagLast := lastOffset(l.Data, tag.StoreSize)
	n := eccLast
	if tagLast > n {
		n = tagLast
	}
	if l.StatusOffset+1 > n {
		n = l.StatusOffset + 1
	}
	return n
}

func lastOffset(layout Layout, budget int) int {
	last := 0
	for _, seg := range layout {
		if budget <= 0 {
			break
		}
		take := seg.Length
		if take > budget {
			take = budget
		}
		last = seg.Offset + take
		budget -= take
	}
	return last
}

// Pack initializes a spare buffer to all-0xFF, writes eccBytes across the
// ECC layout, computes t.TagECC (0xFFFF when eccEnabled is false), and
// writes the tag store across the Data layout. Excess source bytes beyond
// a layout's last segment are silently dropped; the engine never writes
// outside segment ranges.
func Pack(l Layouts, t *tag.Tag, eccBytes []byte, eccEnabled bool) []byte {
	size := RequiredSize(l, len(eccBytes))
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = 0xFF
	}

	writeSegments(buf, l.ECC, eccBytes)

	store := t.MarshalStore()
	if eccEnabled {
		t.TagECC = ecc.Make8(store[:tag.ECCCoveredSize])
	} else {
		t.TagECC = 0xFFFF
	}
	t.PutStore(store)
	writeSegments(buf, l.Data, store)

	return buf
}

// UnpackRaw reads the raw tag store bytes from the Data layout, an
// eccSize-byte data ECC from the ECC layout, and the block-status byte from
// its fixed offset — without interpreting the store bytes as a Tag. Callers
// that need to ECC-correct the tag bytes before trusting them (flash.
// ReadPageSpare) need this raw form: correction flips a bit position within
// the store run, which must happen before tag.ParseStore, not after.
func UnpackRaw(l Layouts, buf []byte, eccSize int) (store []byte, eccBytes []byte, blockStatus uint8, err error) {
	need := RequiredSize(l, eccSize)
	if len(buf) < need {
		return nil, nil, 0, fmt.Errorf("spare: buffer too small: have %d, need %d", len(buf), need)
	}

	store = make([]byte, tag.StoreSize)
	readSegments(store, l.Data, buf)

	if eccSize > 0 {
		eccBytes = make([]byte, eccSize)
		readSegments(eccBytes, l.ECC, buf)
	}

	return store, eccBytes, buf[l.StatusOffset], nil
}

// Unpack is UnpackRaw followed by tag.ParseStore, for callers that don't
// need to ECC-correct the store bytes themselves (e.g. round-trip tests, or
// a flash-managed driver that already applies its own tag ECC).
func Unpack(l Layouts, buf []byte, eccSize int) (tag.Tag, []byte, error) {
	store, eccBytes, status, err := UnpackRaw(l, buf, eccSize)
	if err != nil {
		return tag.Tag{}, nil, err
	}
	t := tag.ParseStore(store)
	t.BlockStatus = status
	return t, eccBytes, nil
}

func writeSegments(buf []byte, layout Layout, src []byte) {
	n := len(src)
	si := 0
	for _, seg := range layout {
		if n <= 0 {
			break
		}
		take := seg.Length
		if take > n {
			take = n
		}
		copy(buf[seg.Offset:seg.Offset+take], src[si:si+take])
		si += take
		n -= take
	}
}

func readSegments(dst []byte, layout Layout, buf []byte) {
	n := len(dst)
	di := 0
	for _, seg := range layout {
		if n <= 0 {
			break
		}
		take := seg.Length
		if take > n {
			take = n
		}
		copy(dst[di:di+take], buf[seg.Offset:seg.Offset+take])
		di += take
		n -= take
	}
}
