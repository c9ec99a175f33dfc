// Package vmm implements the kernel's virtual memory mapping layer: a
// two-level (directory + page table) page table with demand-paged
// allocation of page table frames and data frames.
package vmm

import (
	"nanokernel/kernel"
	"nanokernel/kernel/cpu"
	"nanokernel/kernel/errors"
	"nanokernel/kernel/kfmt/early"
	"nanokernel/kernel/mem"
	"nanokernel/kernel/mem/pmm"
	"nanokernel/kernel/mem/pmm/contframepool"
)

const (
	entriesPerTable = 1024
	flagPresent     = 0x1
	flagRW          = 0x2

	// directoryShift selects the 1024-entry page directory index from a
	// virtual address; tableShift selects the page table index.
	directoryShift = 22
	tableShift     = 12
	tableIndexMask = 0x3FF

	// sharedRegionSize is the size of the low memory range that every
	// page table identity-maps on construction.
	sharedRegionSize = 4 * mem.Mb
)

// the following functions are mocked by tests and are automatically
// inlined by the compiler.
var (
	SwitchPDTFn = cpu.SwitchPDT
	ActivePDTFn = cpu.ActivePDT
	ReadCR0Fn   = cpu.ReadCR0
	WriteCR0Fn  = cpu.WriteCR0
	ReadCR2Fn   = cpu.ReadCR2
	FlushTLBFn  = cpu.FlushTLBEntry
	panicFn     = kernel.Panic
)

// memory models the simulated physical address space backing directory and
// table pages: each constructed page table frame owns one entry here. A
// hosted build with real physical RAM would instead dereference the frame's
// physical address directly, as the frame pool's Address() method returns.
var memory = map[pmm.Frame]*[entriesPerTable]uint64{}

func pageOf(f pmm.Frame) *[entriesPerTable]uint64 {
	page, ok := memory[f]
	if !ok {
		page = &[entriesPerTable]uint64{}
		memory[f] = page
	}
	return page
}

var (
	kernelPool, processPool poolAllocator

	// currentTable tracks the page table that was most recently Load()ed,
	// mirroring the process-global "currently active table" singleton.
	currentTable *PageTable

	pagingEnabled bool

	// sharedSize is the size of the identity-mapped low memory region
	// shared by every page table.
	sharedSize mem.Size = sharedRegionSize
)

// poolAllocator is satisfied by contframepool.Pool; kept as a narrow
// interface so InitPaging also accepts any other frame source, such as
// the fake pools the tests use.
type poolAllocator interface {
	GetFrames(n uint64) pmm.Frame
}

// InitPaging records the process-wide kernel and process frame pools and
// the size of the low-memory region every page table identity-maps. It
// must be called once, before the first PageTable is constructed.
func InitPaging(kernel, process poolAllocator, shared mem.Size) {
	kernelPool = kernel
	processPool = process
	sharedSize = shared
	early.Printf("vmm: initialized paging system\n")
}

// vmPool is satisfied by vmpool.Pool; it is an interface because vmpool
// imports this package, so importing vmpool here would be a cycle.
type vmPool interface {
	IsLegitimate(addr uintptr) bool
}

// PageTable is a two-level x86 page table: one page directory and the page
// tables it references. Each process (or the kernel) owns exactly one.
type PageTable struct {
	directory pmm.Frame
	pools     []vmPool
}

// NewPageTable allocates a page directory from the kernel pool and
// identity-maps the shared low-memory region described by InitPaging.
func NewPageTable() *PageTable {
	dirFrame := kernelPool.GetFrames(1)
	if dirFrame == 0 {
		panicFn(&kernel.Error{Module: "vmm", Message: string(errors.ErrPoolExhausted)})
		return nil
	}

	pt := &PageTable{directory: dirFrame}
	dir := pageOf(dirFrame)

	tableFrame := kernelPool.GetFrames(1)
	if tableFrame == 0 {
		panicFn(&kernel.Error{Module: "vmm", Message: string(errors.ErrPoolExhausted)})
		return nil
	}
	table := pageOf(tableFrame)

	nPages := uint64(sharedSize / mem.PageSize)
	for i := uint64(0); i < nPages && i < entriesPerTable; i++ {
		table[i] = (i << tableShift) | flagPresent | flagRW
	}

	dir[0] = (uint64(tableFrame) << tableShift) | flagPresent | flagRW
	for i := 1; i < entriesPerTable; i++ {
		dir[i] = 0
	}

	early.Printf("vmm: constructed page table\n")
	return pt
}

// Load installs this table as the currently active one by writing its
// directory's physical address to CR3.
func (pt *PageTable) Load() {
	SwitchPDTFn(pt.directory.Address())
	currentTable = pt
}

// IsLoaded reports whether this table's directory matches the physical
// address currently installed in CR3.
func (pt *PageTable) IsLoaded() bool {
	return ActivePDTFn() == pt.directory.Address()
}

// EnablePaging turns on paging by setting the PG bit in CR0. This is a
// one-way transition: once enabled it is never turned back off.
func (pt *PageTable) EnablePaging() {
	pagingEnabled = true
	WriteCR0Fn(ReadCR0Fn() | 0x80000000)
}

// RegisterPool records a VM pool arena in this page table's pool list.
// HandleFault and FreePage do not consult that list: a fault at any
// address is serviced whether or not a registered pool claims it.
func (pt *PageTable) RegisterPool(p vmPool) {
	pt.pools = append(pt.pools, p)
}

// HandleFault services a not-present page fault for the currently loaded
// table. It allocates a page table frame from the kernel pool if the
// relevant directory entry is missing, and a data frame from the process
// pool for the faulting page itself. Any other fault cause is not
// recoverable and is outside this subsystem's scope.
func (pt *PageTable) HandleFault(faultAddr uintptr) error {
	dirIndex := (faultAddr >> directoryShift) & tableIndexMask
	tblIndex := (faultAddr >> tableShift) & tableIndexMask

	dir := pageOf(pt.directory)

	var tableFrame pmm.Frame
	if dir[dirIndex]&flagPresent == 0 {
		tableFrame = kernelPool.GetFrames(1)
		if tableFrame == 0 {
			return &kernel.Error{Module: "vmm", Message: string(errors.ErrPoolExhausted)}
		}
		dir[dirIndex] = (uint64(tableFrame) << tableShift) | flagPresent | flagRW
		early.Printf("vmm: allocated new page table for directory entry %d\n", dirIndex)
	} else {
		tableFrame = pmm.Frame(dir[dirIndex] >> tableShift)
	}

	table := pageOf(tableFrame)
	if table[tblIndex]&flagPresent != 0 {
		// Already mapped; nothing to do (spurious or already-serviced fault).
		return nil
	}

	dataFrame := processPool.GetFrames(1)
	if dataFrame == 0 {
		return &kernel.Error{Module: "vmm", Message: string(errors.ErrPoolExhausted)}
	}
	table[tblIndex] = (uint64(dataFrame) << tableShift) | flagPresent | flagRW
	return nil
}

// FreePage clears the mapping for the page starting at virtual address
// page*PageSize, if one exists, and returns the frame it was backed by to
// the process pool. It is a no-op for unmapped pages.
func (pt *PageTable) FreePage(page uintptr) error {
	addr := page * uintptr(mem.PageSize)
	dirIndex := (addr >> directoryShift) & tableIndexMask
	tblIndex := (addr >> tableShift) & tableIndexMask

	dir := pageOf(pt.directory)
	if dir[dirIndex]&flagPresent == 0 {
		return nil
	}
	table := pageOf(pmm.Frame(dir[dirIndex] >> tableShift))
	if table[tblIndex]&flagPresent == 0 {
		return nil
	}
	dataFrame := pmm.Frame(table[tblIndex] >> tableShift)
	table[tblIndex] = 0
	FlushTLBFn(addr)
	contframepool.ReleaseFrames(dataFrame)
	return nil
}

// CurrentTable returns the page table most recently installed via Load.
func CurrentTable() *PageTable { return currentTable }

// HandleCurrentFault reads the faulting address from CR2 and services it
// against the currently loaded page table. It is the entry point a page
// fault exception vector would call.
func HandleCurrentFault() error {
	return currentTable.HandleFault(uintptr(ReadCR2Fn()))
}
