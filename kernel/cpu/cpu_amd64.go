package cpu

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr

// ReadCR0 returns the contents of the CR0 control register.
func ReadCR0() uint64

// WriteCR0 sets the contents of the CR0 control register.
func WriteCR0(val uint64)

// ReadCR2 returns the contents of the CR2 register, set by the CPU to the
// faulting address on the most recent page fault.
func ReadCR2() uint64

// OutB writes a byte to the given I/O port.
func OutB(port uint16, val uint8)

// OutW writes a word to the given I/O port.
func OutW(port uint16, val uint16)

// InB reads a byte from the given I/O port.
func InB(port uint16) uint8

// InW reads a word from the given I/O port.
func InW(port uint16) uint16
