package flash

import (
	"github.com/gouffs/flashcore/badblock"
	"github.com/sirupsen/logrus"
)

// Handle is everything the operations in this package need from a mounted
// device: its immutable attributes, the injected driver, spare-buffer
// scratch memory, the bad-block registry this package is the sole inserter
// into, and a logger already carrying device-identifying fields. device.
// Device implements this; the split exists so flash stays importable (and
// testable) without pulling in the cache/config machinery that wires a
// device together.
type Handle interface {
	Attrs() Attrs
	Driver() Driver
	SpareBuf() []byte
	BadBlocks() *badblock.Registry
	Log() *logrus.Entry
}

func recordBadBlock(h Handle, block int) {
	if err := h.BadBlocks().Add(block); err != nil {
		h.Log().WithError(err).WithField("block", block).Warn("bad block add rejected")
		return
	}
	h.Log().WithField("block", block).Warn("block flagged bad")
}

func setBase(r Result, base Result) Result {
	return base | (r & BadBlock)
}
