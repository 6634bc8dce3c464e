// Package badblock is the registry the flash interface reports suspected
// bad blocks into (spec.md §4.3, §6). Insertion is additive and idempotent;
// this package never reads or writes flash itself — that happens later,
// under the higher layer's control, via WriteBack.
package badblock

import (
	"fmt"
	"sort"

	"github.com/bits-and-blooms/bitset"
)

// Registry tracks which blocks, within a device of a known total block
// count, have been flagged bad. One bit per block makes membership and
// iteration cheap and bounds memory to totalBlocks/8 bytes per bitset (the
// membership set plus the dirty set below) regardless of how many blocks
// actually go bad.
type Registry struct {
	bits        *bitset.BitSet
	totalBlocks uint

	// dirty tracks blocks added since the last WriteBack, so WriteBack only
	// has to push the delta to the caller's writer.
	dirty *bitset.BitSet
}

// New returns an empty registry sized for a device with totalBlocks blocks.
func New(totalBlocks int) *Registry {
	return &Registry{
		bits:        bitset.New(uint(totalBlocks)),
		totalBlocks: uint(totalBlocks),
		dirty:       bitset.New(uint(totalBlocks)),
	}
}

// Add idempotently records block as bad. Safe to call repeatedly for the
// same block; only the first call for a given block marks it dirty for the
// next WriteBack.
func (r *Registry) Add(block int) error {
	if err := r.checkRange(block); err != nil {
		return err
	}
	b := uint(block)
	if !r.bits.Test(b) {
		r.dirty.Set(b)
	}
	r.bits.Set(b)
	return nil
}

// Contains reports whether block is currently flagged bad.
func (r *Registry) Contains(block int) bool {
	if block < 0 || uint(block) >= r.totalBlocks {
		return false
	}
	return r.bits.Test(uint(block))
}

// List returns every flagged block number in ascending order.
func (r *Registry) List() []int {
	out := make([]int, 0, r.bits.Count())
	for i, e := r.bits.NextSet(0); e; i, e = r.bits.NextSet(i + 1) {
		out = append(out, int(i))
	}
	sort.Ints(out)
	return out
}

// Count returns the number of blocks currently flagged bad.
func (r *Registry) Count() int {
	return int(r.bits.Count())
}

// Writer performs the actual higher-layer action of persisting a bad-block
// mark onto a specific block (normally device.MarkBadBlock).
type Writer interface {
	MarkBadBlock(block int) error
}

// WriteBack pushes every block added since the last successful WriteBack
// through w, in ascending block order, clearing the dirty set as it goes.
// It stops at the first error, leaving the remaining blocks dirty so a
// later retry picks them back up.
func (r *Registry) WriteBack(w Writer) error {
	for i, e := r.dirty.NextSet(0); e; i, e = r.dirty.NextSet(i + 1) {
		if err := w.MarkBadBlock(int(i)); err != nil {
			return fmt.Errorf("badblock: write back block %d: %w", i, err)
		}
		r.dirty.Clear(i)
	}
	return nil
}

func (r *Registry) checkRange(block int) error {
	if block < 0 || uint(block) >= r.totalBlocks {
		return fmt.Errorf("badblock: block %d out of range [0,%d)", block, r.totalBlocks)
	}
	return nil
}
