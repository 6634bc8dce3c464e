// Package blockinfo maintains a bounded LRU-style cache of per-block page
// tag summaries (spec.md §4.4), so a scan across many pages in a block
// costs one read_page_spare per page instead of one per access.
//
// Entries live in a fixed-size arena and are linked by index rather than
// pointer, per the design note that an arena+index list sidesteps the
// ownership cycles a pointer-based doubly linked list would create between
// an entry and its neighbors (spec.md §9).
package blockinfo

import (
	"fmt"

	"github.com/gouffs/flashcore/flash"
	"github.com/gouffs/flashcore/tag"
)

// All requests every page in a block, for Load and Expire.
const All = -1

const sentinel = -1

// BlockInfo is one cached block's page tag summary (spec.md §3).
type BlockInfo struct {
	Block        int
	Slots        []tag.PageSpareSlot
	ExpiredCount int
	RefCount     int

	prev, next int // arena-index linkage; sentinel at either end
}

// Cache is the bounded block-info cache. Not safe for concurrent use,
// matching the single-threaded cooperative model (spec.md §5).
type Cache struct {
	pagesPerBlock int
	arena         []BlockInfo
	free          []int
	byBlock       map[int]int
	head, tail    int // MRU, LRU arena indices
}

// New allocates a cache for up to maxCachedBlocks entries, each holding
// pagesPerBlock page-spare slots.
func New(maxCachedBlocks, pagesPerBlock int) *Cache {
	c := &Cache{
		pagesPerBlock: pagesPerBlock,
		arena:         make([]BlockInfo, maxCachedBlocks),
		free:          make([]int, maxCachedBlocks),
		byBlock:       make(map[int]int, maxCachedBlocks),
		head:          sentinel,
		tail:          sentinel,
	}
	for i := range c.arena {
		c.arena[i].prev, c.arena[i].next = sentinel, sentinel
		c.free[i] = maxCachedBlocks - 1 - i
	}
	return c
}

// Get returns the cached entry for block, allocating (or evicting and
// reusing) one if it isn't already cached. Fails if every entry is pinned
// (RefCount > 0) and none is free — the caller must Put outstanding
// references before requesting more (spec.md §4.4).
func (c *Cache) Get(block int) (*BlockInfo, error) {
	if idx, ok := c.byBlock[block]; ok {
		bi := &c.arena[idx]
		bi.RefCount++
		c.moveToMRU(idx)
		return bi, nil
	}

	idx, err := c.acquireSlot(block)
	if err != nil {
		return nil, err
	}
	bi := &c.arena[idx]
	bi.RefCount = 1
	return bi, nil
}

func (c *Cache) acquireSlot(block int) (int, error) {
	if n := len(c.free); n > 0 {
		idx := c.free[n-1]
		c.free = c.free[:n-1]
		c.initEntry(idx, block)
		c.insertAtMRU(idx)
		c.byBlock[block] = idx
		return idx, nil
	}

	for idx := c.tail; idx != sentinel; idx = c.arena[idx].prev {
		if c.arena[idx].RefCount == 0 {
			delete(c.byBlock, c.arena[idx].Block)
			c.initEntry(idx, block)
			c.moveToMRU(idx)
			c.byBlock[block] = idx
			return idx, nil
		}
	}

	return 0, fmt.Errorf("blockinfo: no free entry for block %d; all %d entries pinned", block, len(c.arena))
}

func (c *Cache) initEntry(idx, block int) {
	bi := &c.arena[idx]
	bi.Block = block
	if len(bi.Slots) != c.pagesPerBlock {
		bi.Slots = make([]tag.PageSpareSlot, c.pagesPerBlock)
	}
	for i := range bi.Slots {
		bi.Slots[i] = tag.PageSpareSlot{Expired: true}
	}
	bi.ExpiredCount = c.pagesPerBlock
	bi.RefCount = 0
}

// Peek returns the cached entry for block without incrementing RefCount or
// touching its LRU position, for callers that only need to act on an
// already-cached entry (e.g. expiring it after an out-of-band erase).
func (c *Cache) Peek(block int) (*BlockInfo, bool) {
	idx, ok := c.byBlock[block]
	if !ok {
		return nil, false
	}
	return &c.arena[idx], true
}

// Put releases one reference on bi, moving it to the MRU end once the
// reference count reaches zero (making it eviction-eligible again, but
// least likely to be the first evicted).
func (c *Cache) Put(bi *BlockInfo) {
	bi.RefCount--
	if bi.RefCount == 0 {
		if idx, ok := c.byBlock[bi.Block]; ok {
			c.moveToMRU(idx)
		}
	}
}

// Load populates the tag for page (or every page, if page == All) whose
// slot is currently expired, via flash.ReadPageSpare. Already-fresh slots
// are left untouched.
func (c *Cache) Load(h flash.Handle, bi *BlockInfo, page int) error {
	lo, hi := page, page+1
	if page == All {
		lo, hi = 0, c.pagesPerBlock
	}
	for p := lo; p < hi; p++ {
		slot := &bi.Slots[p]
		if !slot.Expired {
			continue
		}
		res, t, err := flash.ReadPageSpare(h, bi.Block, p)
		if err != nil {
			return fmt.Errorf("blockinfo: load block %d page %d: %w", bi.Block, p, err)
		}
		slot.Tag = t
		slot.BlockStatus = t.BlockStatus
		slot.CheckOK = res.Base() == flash.NoErr || res.Base() == flash.ECCOk
		slot.Expired = false
		bi.ExpiredCount--
	}
	return nil
}

// Expire marks page (or every page, if page == All) as stale, forcing the
// next Load to re-read it.
func (c *Cache) Expire(bi *BlockInfo, page int) {
	lo, hi := page, page+1
	if page == All {
		lo, hi = 0, c.pagesPerBlock
	}
	for p := lo; p < hi; p++ {
		if !bi.Slots[p].Expired {
			bi.Slots[p].Expired = true
			bi.ExpiredCount++
		}
	}
}

// ExpireAll marks every page of every currently cached block stale.
func (c *Cache) ExpireAll() {
	for _, idx := range c.byBlock {
		c.Expire(&c.arena[idx], All)
	}
}

// IsAllFree reports whether every cached entry has RefCount == 0, the
// precondition for a clean unmount.
func (c *Cache) IsAllFree() bool {
	for _, idx := range c.byBlock {
		if c.arena[idx].RefCount != 0 {
			return false
		}
	}
	return true
}

func (c *Cache) removeFromList(idx int) {
	bi := &c.arena[idx]
	if bi.prev != sentinel {
		c.arena[bi.prev].next = bi.next
	} else {
		c.head = bi.next
	}
	if bi.next != sentinel {
		c.arena[bi.next].prev = bi.prev
	} else {
		c.tail = bi.prev
	}
	bi.prev, bi.next = sentinel, sentinel
}

func (c *Cache) insertAtMRU(idx int) {
	bi := &c.arena[idx]
	bi.prev = sentinel
	bi.next = c.head
	if c.head != sentinel {
		c.arena[c.head].prev = idx
	}
	c.head = idx
	if c.tail == sentinel {
		c.tail = idx
	}
}

func (c *Cache) moveToMRU(idx int) {
	if c.head == idx {
		return
	}
	c.removeFromList(idx)
	c.insertAtMRU(idx)
}
