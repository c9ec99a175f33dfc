// Package vmpool implements a per-process virtual memory pool (arena): a
// first-fit allocator over a fixed virtual address range, backed by demand
// paging through a PageTable.
package vmpool

import (
	"nanokernel/kernel/errors"
	"nanokernel/kernel/kfmt/early"
	"nanokernel/kernel/mem"
	"nanokernel/kernel/mem/pmm/contframepool"
	"nanokernel/kernel/mem/vmm"
)

// region describes one allocated range within the arena. In the original
// design these descriptors live inside the arena's own first page, packed
// 16 bytes apiece with the validity of a slot encoded in the low bit of its
// start address; here each slot is a plain Go struct and validity is an
// explicit field, but the slot-reuse, first-fit and self-terminating-tail
// behavior are unchanged.
type region struct {
	start, end   uintptr
	valid        bool
	prev, next   int
}

// Pool is a virtual memory arena: a range of virtual addresses from which
// a process can carve out sized regions, demand-paged through Table.
type Pool struct {
	BaseAddress uintptr
	Size        uintptr

	frames *contframepool.Pool
	table  *vmm.PageTable

	// regions holds every descriptor slot ever used, including freed ones
	// that are eligible for reuse. regions[0] is the permanent head/tail
	// sentinel: it terminates the list by pointing to itself, exactly as
	// the original's last list element does.
	regions []region
	head    int
}

// NewPool constructs an arena spanning [base, base+size) and installs its
// head sentinel record. table is loaded immediately, matching the original
// constructor's unconditional page_table->load() call.
func NewPool(base, size uintptr, frames *contframepool.Pool, table *vmm.PageTable) *Pool {
	p := &Pool{
		BaseAddress: base,
		Size:        size,
		frames:      frames,
		table:       table,
		regions:     []region{{start: base, end: base + uintptr(mem.PageSize) - 1, valid: true, prev: 0, next: 0}},
		head:        0,
	}
	table.RegisterPool(p)
	table.Load()

	early.Printf("vmpool: constructed pool base=%x size=%x\n", base, size)
	return p
}

// pagesFor returns the number of pages needed to hold size bytes.
func pagesFor(size uintptr) uintptr {
	n := size / uintptr(mem.PageSize)
	if size%uintptr(mem.PageSize) != 0 {
		n++
	}
	return n
}

// freeSlot returns the index of a region slot available for reuse,
// allocating a new one if every existing slot is in use.
func (p *Pool) freeSlot() int {
	for i, r := range p.regions {
		if !r.valid {
			return i
		}
	}
	p.regions = append(p.regions, region{})
	return len(p.regions) - 1
}

// Allocate reserves the first gap in the arena (or the space following the
// last allocated region) that is large enough to hold size bytes, rounded
// up to whole pages, and returns its starting address. It returns 0 if the
// arena has no region large enough.
func (p *Pool) Allocate(size uintptr) uintptr {
	pages := pagesFor(size)

	p.table.Load()

	cur := p.head
	for p.regions[cur].next != cur {
		next := p.regions[cur].next
		gapPages := (p.regions[next].start - p.regions[cur].end - 1) / uintptr(mem.PageSize)
		if gapPages >= pages {
			return p.insertAfter(cur, next, pages)
		}
		cur = next
	}

	// No gap fit; try the space remaining at the end of the arena.
	tailPages := (p.Size - (p.regions[cur].end - p.BaseAddress) - 1) / uintptr(mem.PageSize)
	if tailPages >= pages {
		return p.insertAfter(cur, cur, pages)
	}

	early.Printf("vmpool: failed to locate %d contiguous pages\n", pages)
	return 0
}

// insertAfter splices a new region of the given page count between cur and
// next (next may equal cur, meaning "append at the tail") and returns the
// new region's start address.
func (p *Pool) insertAfter(cur, next int, pages uintptr) uintptr {
	slot := p.freeSlot()
	start := p.regions[cur].end + 1
	end := start + pages*uintptr(mem.PageSize) - 1

	p.regions[slot] = region{start: start, end: end, valid: true, prev: cur, next: next}
	p.regions[cur].next = slot
	if next != cur {
		p.regions[next].prev = slot
	} else {
		// We appended at the tail: the new slot is now self-terminating.
		p.regions[slot].next = slot
	}

	early.Printf("vmpool: allocated region [%x, %x]\n", start, end)
	return start
}

// Release frees the region starting at start, unsplicing its descriptor
// and freeing every page it spans through the page table.
func (p *Pool) Release(start uintptr) error {
	p.table.Load()

	for i := range p.regions {
		r := p.regions[i]
		if !r.valid || r.start != start {
			continue
		}

		for page := r.start; page <= r.end; page += uintptr(mem.PageSize) {
			p.table.FreePage(page / uintptr(mem.PageSize))
		}

		if r.next == i {
			// r was the tail; its predecessor becomes the new, self-terminating tail.
			p.regions[r.prev].next = r.prev
		} else {
			p.regions[r.prev].next = r.next
			p.regions[r.next].prev = r.prev
		}
		p.regions[i].valid = false

		early.Printf("vmpool: released region starting at %x\n", start)
		return nil
	}

	return errors.ErrNotFound
}

// IsLegitimate reports whether addr falls within the arena's head sentinel
// (the first 16 bytes of BaseAddress, which always holds pool bookkeeping)
// or within a currently allocated region.
func (p *Pool) IsLegitimate(addr uintptr) bool {
	p.table.Load()

	if addr >= p.BaseAddress && addr < p.BaseAddress+16 {
		return true
	}

	for _, r := range p.regions {
		if r.valid && r.start != p.BaseAddress && addr >= r.start && addr <= r.end {
			return true
		}
	}
	return false
}
