package flash

import "github.com/gouffs/flashcore/spare"

// ECCMode selects how page data and tags are protected (spec.md §3).
type ECCMode int

const (
	ECCNone ECCMode = iota
	ECCSoft
	ECCHardware
	ECCHardwareAuto
)

func (m ECCMode) String() string {
	switch m {
	case ECCNone:
		return "none"
	case ECCSoft:
		return "soft"
	case ECCHardware:
		return "hw"
	case ECCHardwareAuto:
		return "hw_auto"
	default:
		return "unknown"
	}
}

// LayoutOpt selects who is responsible for placing the tag/ECC bytes within
// the spare area: this package (uffs-managed) or the driver itself
// (flash-managed), per spec.md §3, §6.
type LayoutOpt int

const (
	LayoutUFFSManaged LayoutOpt = iota
	LayoutFlashManaged
)

// Attrs are the storage attributes, immutable once a device is mounted
// (spec.md §3, §5).
type Attrs struct {
	TotalBlocks      int
	PagesPerBlock    int
	PageDataSize     int
	PageSpareSize    int
	StatusByteOffset int
	ECCMode          ECCMode
	ECCSize          int
	LayoutOpt        LayoutOpt
	Layouts          spare.Layouts
}
