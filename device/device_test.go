package device

import (
	"io"
	"testing"

	"github.com/gouffs/flashcore/blockinfo"
	"github.com/gouffs/flashcore/config"
	"github.com/gouffs/flashcore/flash"
	"github.com/gouffs/flashcore/tag"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	pagesPerBlock int
	pages         [][]byte
	spares        [][]byte
}

func newFakeDriver(totalBlocks, pagesPerBlock, pageSize, spareSize int) *fakeDriver {
	n := totalBlocks * pagesPerBlock
	d := &fakeDriver{
		pagesPerBlock: pagesPerBlock,
		pages:         make([][]byte, n),
		spares:        make([][]byte, n),
	}
	for i := range d.pages {
		d.pages[i] = blank(pageSize)
		d.spares[i] = blank(spareSize)
	}
	return d
}

func (d *fakeDriver) idx(block, page int) int { return block*d.pagesPerBlock + page }

func blank(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = 0xFF
	}
	return b
}

func (d *fakeDriver) InitDevice() error    { return nil }
func (d *fakeDriver) ReleaseDevice() error { return nil }
func (d *fakeDriver) ReadPageData(block, page int, buf []byte) (flash.Result, []byte, error) {
	copy(buf, d.pages[d.idx(block, page)])
	return flash.NoErr, nil, nil
}
func (d *fakeDriver) ReadPageSpare(block, page int, buf []byte) (flash.Result, error) {
	copy(buf, d.spares[d.idx(block, page)])
	return flash.NoErr, nil
}
func (d *fakeDriver) ReadPageSpareWithLayout(block, page int) (flash.Result, tag.Tag, []byte, error) {
	return flash.NoErr, tag.Tag{}, nil, nil
}
func (d *fakeDriver) WritePageData(block, page int, buf, eccIn []byte) (flash.Result, error) {
	copy(d.pages[d.idx(block, page)], buf)
	return flash.NoErr, nil
}
func (d *fakeDriver) WritePageSpare(block, page int, buf []byte) (flash.Result, error) {
	copy(d.spares[d.idx(block, page)], buf)
	return flash.NoErr, nil
}
func (d *fakeDriver) WritePageSpareWithLayout(block, page int, t tag.Tag, eccBytes []byte) (flash.Result, error) {
	return flash.NoErr, nil
}
func (d *fakeDriver) EraseBlock(block int) (flash.Result, error) {
	for p := 0; p < d.pagesPerBlock; p++ {
		i := d.idx(block, p)
		d.pages[i] = blank(len(d.pages[i]))
		d.spares[i] = blank(len(d.spares[i]))
	}
	return flash.NoErr, nil
}
func (d *fakeDriver) MarkBadBlock(block int) error      { return nil }
func (d *fakeDriver) IsBadBlock(block int) (bool, bool) { return false, false }

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func openTestDevice(t *testing.T) (*Device, *fakeDriver) {
	t.Helper()
	attrs := config.DefaultAttrs()
	drv := newFakeDriver(attrs.TotalBlocks, attrs.PagesPerBlock, attrs.PageDataSize, attrs.PageSpareSize)
	d, err := Open(attrs, drv, 4, testLogger())
	require.NoError(t, err)
	return d, drv
}

func TestOpenAssignsSessionID(t *testing.T) {
	d, _ := openTestDevice(t)
	assert.NotEqual(t, d.ID().String(), "00000000-0000-0000-0000-000000000000")
}

func TestWriteReadThroughDevice(t *testing.T) {
	d, _ := openTestDevice(t)

	buf := make([]byte, d.Attrs().PageDataSize)
	buf[0] = 0x01

	res, err := d.WritePageCombine(0, 0, buf, tag.Tag{ObjectID: 42})
	require.NoError(t, err)
	assert.Equal(t, flash.NoErr, res.Base())

	_, outTag, err := d.ReadPageSpare(0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), outTag.ObjectID)
}

func TestEraseBlockExpiresCachedBlockInfo(t *testing.T) {
	d, _ := openTestDevice(t)

	bi, err := d.GetBlockInfo(1)
	require.NoError(t, err)
	require.NoError(t, d.LoadBlockInfo(bi, blockinfo.All))
	for _, s := range bi.Slots {
		assert.False(t, s.Expired)
	}
	d.PutBlockInfo(bi)

	_, err = d.EraseBlock(1)
	require.NoError(t, err)

	bi2, err := d.GetBlockInfo(1)
	require.NoError(t, err)
	for _, s := range bi2.Slots {
		assert.True(t, s.Expired, "erase must expire cached slots so the next load re-reads")
	}
	d.PutBlockInfo(bi2)
}

func TestUnmountRefusesWithPinnedEntries(t *testing.T) {
	d, _ := openTestDevice(t)
	bi, err := d.GetBlockInfo(0)
	require.NoError(t, err)

	assert.Error(t, d.Unmount())

	d.PutBlockInfo(bi)
	assert.NoError(t, d.Unmount())
}
