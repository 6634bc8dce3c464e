package spare

import (
	"testing"

	"github.com/gouffs/flashcore/ecc"
	"github.com/gouffs/flashcore/tag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTag() tag.Tag {
	return tag.Tag{
		Dirty:     0,
		Valid:     0,
		BlockType: 2,
		ObjectID:  7,
		Parent:    1,
		Serial:    42,
		PageID:    3,
		Length:    0x1234,
		Checksum:  0x5678,
	}
}

func TestRequiredSize(t *testing.T) {
	assert.Equal(t, 24, RequiredSize(DefaultLayouts(256), ecc.Size(256)))
	assert.Equal(t, 29, RequiredSize(DefaultLayouts(512), ecc.Size(512)))
	assert.Equal(t, 35, RequiredSize(DefaultLayouts(1024), ecc.Size(1024)))
	assert.Equal(t, 47, RequiredSize(DefaultLayouts(2048), ecc.Size(2048)))
	// Anything past 2048 reuses the 2048 bucket's layout.
	assert.Equal(t, DefaultLayouts(2048), DefaultLayouts(4096))
}

func TestPackUnpackRoundTrip(t *testing.T) {
	for _, pageSize := range []int{256, 512, 1024, 2048} {
		layout := DefaultLayouts(pageSize)
		eccSize := ecc.Size(pageSize)
		eccBytes := make([]byte, eccSize)
		for i := range eccBytes {
			eccBytes[i] = byte(i + 1)
		}

		in := sampleTag()
		buf := Pack(layout, &in, eccBytes, true)

		out, gotECC, err := Unpack(layout, buf, eccSize)
		require.NoError(t, err)

		assert.Equal(t, in.ObjectID, out.ObjectID)
		assert.Equal(t, in.Parent, out.Parent)
		assert.Equal(t, in.Serial, out.Serial)
		assert.Equal(t, in.PageID, out.PageID)
		assert.Equal(t, in.Length, out.Length)
		assert.Equal(t, in.Checksum, out.Checksum)
		assert.Equal(t, in.BlockType, out.BlockType)
		assert.Equal(t, in.TagECC, out.TagECC)
		assert.Equal(t, eccBytes, gotECC, "page size %d", pageSize)
	}
}

func TestPackEccDisabledSetsAllOnesTagECC(t *testing.T) {
	layout := DefaultLayouts(512)
	in := sampleTag()
	buf := Pack(layout, &in, nil, false)

	out, _, err := Unpack(layout, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xFFFF), in.TagECC)
	assert.Equal(t, uint16(0xFFFF), out.TagECC)
}

func TestParseBytesMatchesDefaultLayout(t *testing.T) {
	raw := []byte{0, 5, 6, 1, 0xFF, 0}
	got := ParseBytes(raw)
	want := Layout{{0, 5}, {6, 1}}
	assert.Equal(t, want, got)
}

func TestBlockStatusCopiedFromFixedOffset(t *testing.T) {
	layout := DefaultLayouts(512)
	in := sampleTag()
	buf := Pack(layout, &in, make([]byte, ecc.Size(512)), true)
	buf[layout.StatusOffset] = 0x00

	out, _, err := Unpack(layout, buf, ecc.Size(512))
	require.NoError(t, err)
	assert.Equal(t, uint8(0x00), out.BlockStatus)
}
