package flash

import (
	"encoding/binary"

	"github.com/gouffs/flashcore/ecc"
	"github.com/gouffs/flashcore/spare"
	"github.com/gouffs/flashcore/tag"
)

// DataMeta is the caller-facing metadata ReadPageData decodes from the
// leading bytes of a successfully read page (spec.md §4.3).
type DataMeta struct {
	DataLen  uint16
	CheckSum uint16
}

// ReadPageData asks the driver for page data (plus hardware ECC, if that
// mode is in use), verifies/corrects it, and on success decodes the
// leading data_len/check_sum pair. Any ECC_FAIL, and any driver bad-block
// signal, raise BadBlock on the returned Result and record the block.
func ReadPageData(h Handle, block, page int, buf []byte) (Result, DataMeta, error) {
	attrs := h.Attrs()
	drv := h.Driver()

	driverRes, hwECC, err := drv.ReadPageData(block, page, buf)
	if err != nil {
		return IOErr, DataMeta{}, err
	}
	res := driverRes

	switch attrs.ECCMode {
	case ECCSoft:
		spareBuf := h.SpareBuf()
		spareRes, sErr := drv.ReadPageSpare(block, page, spareBuf)
		if sErr != nil {
			return IOErr, DataMeta{}, sErr
		}
		if IsBadBlock(spareRes) {
			res |= BadBlock
		}
		_, storedECC, uErr := spare.Unpack(attrs.Layouts, spareBuf, attrs.ECCSize)
		if uErr != nil {
			return setBase(res, IOErr), DataMeta{}, uErr
		}
		res = applyDataECC(h, block, res, buf, storedECC)

	case ECCHardware, ECCHardwareAuto:
		if hwECC != nil {
			res = applyDataECC(h, block, res, buf, hwECC)
		}
	}

	if IsBadBlock(res) {
		recordBadBlock(h, block)
	}

	if base := res.Base(); base != NoErr && base != ECCOk {
		return res, DataMeta{}, nil
	}

	return res, DataMeta{
		DataLen:  binary.LittleEndian.Uint16(buf[0:2]),
		CheckSum: binary.LittleEndian.Uint16(buf[2:4]),
	}, nil
}

func applyDataECC(h Handle, block int, res Result, buf, storedECC []byte) Result {
	computed := ecc.Make(buf)
	switch ecc.Correct(buf, storedECC, computed) {
	case 0:
		return setBase(res, NoErr)
	case 1:
		h.Log().WithField("block", block).Warn("ecc corrected page data")
		return setBase(res, ECCOk)
	default:
		return setBase(res, ECCFail) | BadBlock
	}
}

// ReadPageSpare reads a page's tag, following Attrs.LayoutOpt to choose
// between the raw-spare and with-layout driver calls. RawDirty/RawValid
// mirror the as-read flags before any interpretation. A page whose Valid
// bit is still set (never fully committed) is returned without ECC
// checking the tag, per spec.md §4.3.
func ReadPageSpare(h Handle, block, page int) (Result, tag.Tag, error) {
	attrs := h.Attrs()
	drv := h.Driver()

	var t tag.Tag
	var res Result
	var store []byte

	if attrs.LayoutOpt == LayoutFlashManaged {
		r, decoded, _, err := drv.ReadPageSpareWithLayout(block, page)
		if err != nil {
			return IOErr, tag.Tag{}, err
		}
		res = r
		t = decoded
	} else {
		buf := h.SpareBuf()
		r, err := drv.ReadPageSpare(block, page, buf)
		if err != nil {
			return IOErr, tag.Tag{}, err
		}
		res = r

		var status uint8
		var uErr error
		store, _, status, uErr = spare.UnpackRaw(attrs.Layouts, buf, attrs.ECCSize)
		if uErr != nil {
			return setBase(res, IOErr), tag.Tag{}, uErr
		}
		t = tag.ParseStore(store)
		t.BlockStatus = status
	}

	t.RawDirty = t.Dirty
	t.RawValid = t.Valid

	if IsBadBlock(res) {
		recordBadBlock(h, block)
	}

	if t.Valid == 1 {
		return res, t, nil
	}

	if attrs.ECCMode != ECCNone && attrs.LayoutOpt != LayoutFlashManaged {
		computed := ecc.Make8(store[:tag.ECCCoveredSize])
		switch ecc.Correct8(store[:tag.ECCCoveredSize], t.TagECC, computed) {
		case 0:
			res = setBase(res, NoErr)
		case 1:
			status := t.BlockStatus
			t = tag.ParseStore(store)
			t.BlockStatus = status
			t.RawDirty = t.Dirty
			t.RawValid = t.Valid
			h.Log().WithField("block", block).Warn("ecc corrected tag")
			res = setBase(res, ECCOk)
		default:
			res = setBase(res, ECCFail) | BadBlock
			recordBadBlock(h, block)
		}
	}

	return res, t, nil
}

// WritePageCombine runs the crash-safe three-phase write protocol (spec.md
// §4.3): a minimal claim tag, the page payload, then the full committing
// tag. Data ECC is computed once in phase 2 and reused in phase 3. The
// function aborts on the first I/O error, flagging the block bad if the
// driver signals it.
func WritePageCombine(h Handle, block, page int, buf []byte, t tag.Tag) (Result, error) {
	attrs := h.Attrs()
	drv := h.Driver()

	// Phase 1: claim. No data ECC exists yet, so none is written.
	claim := tag.Blank()
	if res, err := writeTag(h, attrs, drv, block, page, claim, nil); err != nil {
		return res, err
	} else if res.Base() != NoErr {
		return res, nil
	}

	// Phase 2: payload, with data ECC computed once.
	var dataECC []byte
	if attrs.ECCMode != ECCNone {
		dataECC = ecc.Make(buf)
	}
	dataRes, err := drv.WritePageData(block, page, buf, dataECC)
	if err != nil {
		return IOErr, err
	}
	if IsBadBlock(dataRes) {
		recordBadBlock(h, block)
	}
	if dataRes.Base() != NoErr {
		return dataRes, nil
	}

	// Phase 3: commit, reusing the data ECC computed in phase 2.
	commit := t
	commit.Dirty = 0
	commit.Valid = 0
	commitRes, err := writeTag(h, attrs, drv, block, page, commit, dataECC)
	if err != nil {
		return commitRes, err
	}
	if IsBadBlock(commitRes) {
		recordBadBlock(h, block)
	}
	return commitRes, nil
}

// writeTag packs and writes one tag (+ optional data ECC, reused from
// phase 2 in the commit phase) via whichever driver call Attrs.LayoutOpt
// selects.
func writeTag(h Handle, attrs Attrs, drv Driver, block, page int, t tag.Tag, dataECC []byte) (Result, error) {
	if attrs.LayoutOpt == LayoutFlashManaged {
		res, err := drv.WritePageSpareWithLayout(block, page, t, dataECC)
		if err != nil {
			return IOErr, err
		}
		if IsBadBlock(res) {
			recordBadBlock(h, block)
		}
		return res, nil
	}

	buf := spare.Pack(attrs.Layouts, &t, dataECC, attrs.ECCMode != ECCNone)
	res, err := drv.WritePageSpare(block, page, buf)
	if err != nil {
		return IOErr, err
	}
	if IsBadBlock(res) {
		recordBadBlock(h, block)
	}
	return res, nil
}

// EraseBlock delegates to the driver, recording a bad-block signal if one
// comes back.
func EraseBlock(h Handle, block int) (Result, error) {
	res, err := h.Driver().EraseBlock(block)
	if err != nil {
		return IOErr, err
	}
	if IsBadBlock(res) {
		recordBadBlock(h, block)
	}
	return res, nil
}

// CheckBadBlock checks block status. If the driver offers a native check,
// it wins. Otherwise page 0's status byte is read twice; only if both reads
// agree the byte is non-0xFF is the block reported bad, tolerating a single
// spontaneous bit flip (spec.md §4.3).
func CheckBadBlock(h Handle, block int) (bool, error) {
	if bad, supported := h.Driver().IsBadBlock(block); supported {
		return bad, nil
	}

	first, err := readStatusByte(h, block)
	if err != nil {
		return false, err
	}
	if first == 0xFF {
		return false, nil
	}

	second, err := readStatusByte(h, block)
	if err != nil {
		return false, err
	}
	return second != 0xFF, nil
}

func readStatusByte(h Handle, block int) (uint8, error) {
	attrs := h.Attrs()
	buf := h.SpareBuf()
	if _, err := h.Driver().ReadPageSpare(block, 0, buf); err != nil {
		return 0, err
	}
	return buf[attrs.StatusByteOffset], nil
}

// MarkBadBlock delegates to the driver's status-byte write.
func MarkBadBlock(h Handle, block int) error {
	return h.Driver().MarkBadBlock(block)
}
