// Package tag defines the per-page metadata record UFFS stores in the NAND
// spare area, and the bit layout that makes it survive an erase as all-0xFF.
package tag

import "encoding/binary"

// BlockType classifies the role a block plays; opaque to this core beyond
// storage and round-tripping.
type BlockType uint8

const (
	BlockTypeData BlockType = iota
	BlockTypeDirectory
	BlockTypeFile
	BlockTypeSuper
)

// offsets within the on-wire tag byte run, fixed so volumes stay readable
// across languages (design note, spec.md §9). Unused bits inside Flags are
// left at 1 so an erased (all-0xFF) page decodes as Dirty=1, Valid=1.
const (
	offFlags     = 0
	offBlockType = 1
	offPageID    = 2 // uint16 LE
	offObjectID  = 4 // uint32 LE
	offParent    = 8 // uint32 LE
	offSerial    = 12
	offLength    = 14
	offChecksum  = 16
	offTagECC    = 18 // uint16 LE, trailing

	flagDirtyBit = 0
	flagValidBit = 1

	// StoreSize is TAG_STORE_SIZE from the original: the full tag byte run
	// including the trailing tag_ecc field.
	StoreSize = offTagECC + 2
	// ECCCoveredSize is the number of leading bytes the tag ECC protects;
	// it excludes the ECC field itself.
	ECCCoveredSize = offTagECC
)

// Tag is UFFS's per-page metadata record. Dirty and Valid are the
// write-protocol bits (spec.md §3); the rest are opaque higher-level fields
// this core only stores, ECC-protects, and round-trips.
type Tag struct {
	Dirty uint8 // 1 bit: 0 once a page has begun writing
	Valid uint8 // 1 bit: 0 once the full tag/data is committed

	BlockType BlockType
	ObjectID  uint32
	Parent    uint32
	Serial    uint16
	PageID    uint16
	Length    uint16
	Checksum  uint16

	TagECC uint16 // 16-bit ECC over the preceding tag bytes

	// BlockStatus is not part of the tag byte run; it lives at a fixed
	// spare offset (block_status_offs) independent of layout and is copied
	// in here by the unpack path for caller convenience.
	BlockStatus uint8

	// RawDirty / RawValid mirror Dirty/Valid exactly as read from flash,
	// captured before any higher-level interpretation, so a caller can
	// distinguish "never written" (both 1) from other states.
	RawDirty uint8
	RawValid uint8
}

// Blank returns a tag with every field at its erased (0xFF) value except
// Dirty, which is cleared. This is "phase 1" of write_page_combine: it
// claims the page without committing any data.
func Blank() Tag {
	return Tag{
		Dirty:     0,
		Valid:     1,
		BlockType: 0xFF,
		ObjectID:  0xFFFFFFFF,
		Parent:    0xFFFFFFFF,
		Serial:    0xFFFF,
		PageID:    0xFFFF,
		Length:    0xFFFF,
		Checksum:  0xFFFF,
		TagECC:    0xFFFF,
	}
}

// MarshalStore encodes the tag (excluding BlockStatus, RawDirty, RawValid —
// none of which are wire fields) into a StoreSize-byte buffer.
func (t *Tag) MarshalStore() []byte {
	buf := make([]byte, StoreSize)
	t.PutStore(buf)
	return buf
}

// PutStore encodes the tag into buf, which must be at least StoreSize bytes.
func (t *Tag) PutStore(buf []byte) {
	_ = buf[StoreSize-1]

	var flags uint8 = 0xFC // reserved bits set; bits 0-1 filled below
	if t.Dirty != 0 {
		flags |= 1 << flagDirtyBit
	}
	if t.Valid != 0 {
		flags |= 1 << flagValidBit
	}
	buf[offFlags] = flags
	buf[offBlockType] = uint8(t.BlockType)
	binary.LittleEndian.PutUint16(buf[offPageID:], t.PageID)
	binary.LittleEndian.PutUint32(buf[offObjectID:], t.ObjectID)
	binary.LittleEndian.PutUint32(buf[offParent:], t.Parent)
	binary.LittleEndian.PutUint16(buf[offSerial:], t.Serial)
	binary.LittleEndian.PutUint16(buf[offLength:], t.Length)
	binary.LittleEndian.PutUint16(buf[offChecksum:], t.Checksum)
	binary.LittleEndian.PutUint16(buf[offTagECC:], t.TagECC)
}

// ParseStore decodes a StoreSize-byte buffer into the tag, including the raw
// dirty/valid mirrors.
func ParseStore(buf []byte) Tag {
	_ = buf[StoreSize-1]

	var t Tag
	flags := buf[offFlags]
	t.Dirty = (flags >> flagDirtyBit) & 1
	t.Valid = (flags >> flagValidBit) & 1
	t.RawDirty = t.Dirty
	t.RawValid = t.Valid
	t.BlockType = BlockType(buf[offBlockType])
	t.PageID = binary.LittleEndian.Uint16(buf[offPageID:])
	t.ObjectID = binary.LittleEndian.Uint32(buf[offObjectID:])
	t.Parent = binary.LittleEndian.Uint32(buf[offParent:])
	t.Serial = binary.LittleEndian.Uint16(buf[offSerial:])
	t.Length = binary.LittleEndian.Uint16(buf[offLength:])
	t.Checksum = binary.LittleEndian.Uint16(buf[offChecksum:])
	t.TagECC = binary.LittleEndian.Uint16(buf[offTagECC:])
	return t
}

// PageSpareSlot is the per-page cache entry kept inside a block-info entry
// (spec.md §3): whether the cached tag is known stale, whether its checksum
// verified, the raw block-status bit, and the unpacked tag itself.
type PageSpareSlot struct {
	Expired     bool
	CheckOK     bool
	BlockStatus uint8
	Tag         Tag
}
