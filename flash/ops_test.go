package flash

import (
	"io"
	"testing"

	"github.com/gouffs/flashcore/badblock"
	"github.com/gouffs/flashcore/ecc"
	"github.com/gouffs/flashcore/spare"
	"github.com/gouffs/flashcore/tag"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDriver is an in-memory Driver backed by plain byte slices, enough to
// exercise the three-phase write protocol and read paths without touching
// any real storage.
type fakeDriver struct {
	pages        [][]byte // one slice of page_data_size bytes per (block*pagesPerBlock+page)
	spares       [][]byte
	pageSize     int
	statusOffset int

	markedBad map[int]bool
}

func newFakeDriver(blocks, pagesPerBlock, pageSize, spareSize, statusOffset int) *fakeDriver {
	n := blocks * pagesPerBlock
	d := &fakeDriver{
		pages:        make([][]byte, n),
		spares:       make([][]byte, n),
		pageSize:     pageSize,
		statusOffset: statusOffset,
		markedBad:    map[int]bool{},
	}
	for i := range d.pages {
		d.pages[i] = blankBytes(pageSize)
		d.spares[i] = blankBytes(spareSize)
	}
	return d
}

func blankBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = 0xFF
	}
	return b
}

func (d *fakeDriver) InitDevice() error    { return nil }
func (d *fakeDriver) ReleaseDevice() error { return nil }

func (d *fakeDriver) ReadPageData(block, page int, buf []byte) (Result, []byte, error) {
	i := block*8 + page
	copy(buf, d.pages[i])
	return NoErr, nil, nil
}

func (d *fakeDriver) ReadPageSpare(block, page int, buf []byte) (Result, error) {
	i := block*8 + page
	copy(buf, d.spares[i])
	return NoErr, nil
}

func (d *fakeDriver) ReadPageSpareWithLayout(block, page int) (Result, tag.Tag, []byte, error) {
	return NoErr, tag.Tag{}, nil, nil
}

func (d *fakeDriver) WritePageData(block, page int, buf []byte, eccIn []byte) (Result, error) {
	i := block*8 + page
	copy(d.pages[i], buf)
	return NoErr, nil
}

func (d *fakeDriver) WritePageSpare(block, page int, buf []byte) (Result, error) {
	i := block*8 + page
	copy(d.spares[i], buf)
	return NoErr, nil
}

func (d *fakeDriver) WritePageSpareWithLayout(block, page int, t tag.Tag, eccBytes []byte) (Result, error) {
	return NoErr, nil
}

func (d *fakeDriver) EraseBlock(block int) (Result, error) {
	for p := 0; p < 8; p++ {
		i := block*8 + p
		d.pages[i] = blankBytes(d.pageSize)
		d.spares[i] = blankBytes(len(d.spares[i]))
	}
	return NoErr, nil
}

func (d *fakeDriver) MarkBadBlock(block int) error {
	d.markedBad[block] = true
	return nil
}

func (d *fakeDriver) IsBadBlock(block int) (bool, bool) {
	return false, false // defer to the status-byte fallback
}

type fakeHandle struct {
	attrs  Attrs
	driver Driver
	spare  []byte
	reg    *badblock.Registry
	log    *logrus.Entry
}

func newFakeHandle(attrs Attrs, d Driver) *fakeHandle {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &fakeHandle{
		attrs:  attrs,
		driver: d,
		spare:  make([]byte, attrs.PageSpareSize),
		reg:    badblock.New(attrs.TotalBlocks),
		log:    logrus.NewEntry(logger),
	}
}

func (h *fakeHandle) Attrs() Attrs                  { return h.attrs }
func (h *fakeHandle) Driver() Driver                { return h.driver }
func (h *fakeHandle) SpareBuf() []byte              { return h.spare }
func (h *fakeHandle) BadBlocks() *badblock.Registry { return h.reg }
func (h *fakeHandle) Log() *logrus.Entry            { return h.log }

func softECCAttrs(pageSize int) Attrs {
	layouts := spare.DefaultLayouts(pageSize)
	return Attrs{
		TotalBlocks:      64,
		PagesPerBlock:    8,
		PageDataSize:     pageSize,
		PageSpareSize:    spare.RequiredSize(layouts, ecc.Size(pageSize)),
		StatusByteOffset: layouts.StatusOffset,
		ECCMode:          ECCSoft,
		ECCSize:          ecc.Size(pageSize),
		LayoutOpt:        LayoutUFFSManaged,
		Layouts:          layouts,
	}
}

func TestWriteReadRoundTripNoCorruption(t *testing.T) {
	attrs := softECCAttrs(512)
	drv := newFakeDriver(int(attrs.TotalBlocks), attrs.PagesPerBlock, attrs.PageDataSize, attrs.PageSpareSize, attrs.StatusByteOffset)
	h := newFakeHandle(attrs, drv)

	buf := make([]byte, 512)
	buf[0], buf[1] = 0x34, 0x12 // data_len = 0x1234
	buf[2], buf[3] = 0x78, 0x56 // check_sum = 0x5678

	in := tag.Tag{ObjectID: 7, PageID: 3}

	res, err := WritePageCombine(h, 10, 4, buf, in)
	require.NoError(t, err)
	assert.Equal(t, NoErr, res.Base())

	dataRes, meta, err := ReadPageData(h, 10, 4, make([]byte, 512))
	require.NoError(t, err)
	assert.Contains(t, []Result{NoErr, ECCOk}, dataRes.Base())
	assert.Equal(t, uint16(0x1234), meta.DataLen)
	assert.Equal(t, uint16(0x5678), meta.CheckSum)

	spareRes, outTag, err := ReadPageSpare(h, 10, 4)
	require.NoError(t, err)
	assert.Contains(t, []Result{NoErr, ECCOk}, spareRes.Base())
	assert.Equal(t, uint32(7), outTag.ObjectID)
	assert.Equal(t, uint16(3), outTag.PageID)
	assert.Equal(t, uint8(0), outTag.RawDirty)
	assert.Equal(t, uint8(0), outTag.RawValid)
}

func TestEraseBlockResetsToErasedPattern(t *testing.T) {
	attrs := softECCAttrs(512)
	drv := newFakeDriver(int(attrs.TotalBlocks), attrs.PagesPerBlock, attrs.PageDataSize, attrs.PageSpareSize, attrs.StatusByteOffset)
	h := newFakeHandle(attrs, drv)

	buf := make([]byte, 512)
	_, err := WritePageCombine(h, 2, 0, buf, tag.Tag{})
	require.NoError(t, err)

	res, err := EraseBlock(h, 2)
	require.NoError(t, err)
	assert.Equal(t, NoErr, res.Base())

	_, outTag, err := ReadPageSpare(h, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), outTag.RawDirty)
	assert.Equal(t, uint8(1), outTag.RawValid)

	bad, err := CheckBadBlock(h, 2)
	require.NoError(t, err)
	assert.False(t, bad)
}

func TestSingleBitFlipInPageDataIsCorrected(t *testing.T) {
	attrs := softECCAttrs(512)
	drv := newFakeDriver(int(attrs.TotalBlocks), attrs.PagesPerBlock, attrs.PageDataSize, attrs.PageSpareSize, attrs.StatusByteOffset)
	h := newFakeHandle(attrs, drv)

	buf := make([]byte, 512)
	for i := range buf {
		buf[i] = byte(i)
	}
	_, err := WritePageCombine(h, 1, 0, buf, tag.Tag{ObjectID: 1})
	require.NoError(t, err)

	i := 1*attrs.PagesPerBlock + 0
	drv.pages[i][100] ^= 0x01

	res, meta, err := ReadPageData(h, 1, 0, make([]byte, 512))
	require.NoError(t, err)
	assert.Equal(t, ECCOk, res.Base())
	assert.False(t, IsBadBlock(res))
	_ = meta
}

func TestTwoBitFlipInPageDataFlagsBlockBad(t *testing.T) {
	attrs := softECCAttrs(512)
	drv := newFakeDriver(int(attrs.TotalBlocks), attrs.PagesPerBlock, attrs.PageDataSize, attrs.PageSpareSize, attrs.StatusByteOffset)
	h := newFakeHandle(attrs, drv)

	buf := make([]byte, 512)
	for i := range buf {
		buf[i] = byte(i * 3)
	}
	_, err := WritePageCombine(h, 3, 0, buf, tag.Tag{ObjectID: 2})
	require.NoError(t, err)

	i := 3*attrs.PagesPerBlock + 0
	drv.pages[i][10] ^= 0x01
	drv.pages[i][200] ^= 0x04

	res, _, err := ReadPageData(h, 3, 0, make([]byte, 512))
	require.NoError(t, err)
	assert.Equal(t, ECCFail, res.Base())
	assert.True(t, IsBadBlock(res))
	assert.True(t, h.BadBlocks().Contains(3))
}

func TestCheckBadBlockRequiresTwoAgreeingReads(t *testing.T) {
	attrs := softECCAttrs(512)
	drv := newFakeDriver(int(attrs.TotalBlocks), attrs.PagesPerBlock, attrs.PageDataSize, attrs.PageSpareSize, attrs.StatusByteOffset)
	h := newFakeHandle(attrs, drv)

	i := 5 * attrs.PagesPerBlock
	drv.spares[i][attrs.StatusByteOffset] = 0x00

	bad, err := CheckBadBlock(h, 5)
	require.NoError(t, err)
	assert.True(t, bad)
}

// transientFlipDriver reports a non-0xFF status byte on the first read of a
// block and the genuine 0xFF on the second, simulating a single spontaneous
// bit flip that the double-read defense must not mistake for a bad block.
type transientFlipDriver struct {
	*fakeDriver
	reads map[int]int
}

func (d *transientFlipDriver) ReadPageSpare(block, page int, buf []byte) (Result, error) {
	res, err := d.fakeDriver.ReadPageSpare(block, page, buf)
	if err != nil {
		return res, err
	}
	d.reads[block]++
	if d.reads[block] == 1 {
		buf[d.statusOffset] = 0x00
	}
	return res, nil
}

func TestCheckBadBlockToleratesSingleSpontaneousFlip(t *testing.T) {
	attrs := softECCAttrs(512)
	base := newFakeDriver(int(attrs.TotalBlocks), attrs.PagesPerBlock, attrs.PageDataSize, attrs.PageSpareSize, attrs.StatusByteOffset)
	drv := &transientFlipDriver{fakeDriver: base, reads: map[int]int{}}
	h := newFakeHandle(attrs, drv)

	bad, err := CheckBadBlock(h, 6)
	require.NoError(t, err)
	assert.False(t, bad, "a single transient flip on the first read must not flag the block bad")
	assert.Equal(t, 2, drv.reads[6], "both reads must happen before deciding")
}
