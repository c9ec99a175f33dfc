package vmm

import (
	"os"
	"testing"
	"unsafe"

	"nanokernel/kernel/driver/video/console"
	"nanokernel/kernel/hal"
)

// noopSwitchPDT, noopFlushTLB and friends stand in for the real CPU
// port/register primitives in every test in this package: those
// primitives are body-less asm declarations with no implementation
// available outside a real boot image, so tests must never reach them.
func noopSwitchPDT(uintptr)  {}
func noopActivePDT() uintptr { return 0 }
func noopReadCR0() uint64    { return 0 }
func noopWriteCR0(uint64)    {}
func noopReadCR2() uint64    { return 0 }
func noopFlushTLB(uintptr)   {}

// TestMain attaches a fake console to hal.ActiveTerminal before any test
// runs, since NewPageTable/HandleFault write bootstrap diagnostics
// through early.Printf, which panics on the zero-value (unattached)
// terminal, and replaces every cpu.* seam with a no-op so tests never
// call into the unimplemented hardware primitives.
func TestMain(m *testing.M) {
	fb := make([]uint16, 80*25)
	var cons console.Ega
	cons.Init(80, 25, uintptr(unsafe.Pointer(&fb[0])))
	hal.ActiveTerminal.AttachTo(&cons)

	SwitchPDTFn = noopSwitchPDT
	ActivePDTFn = noopActivePDT
	ReadCR0Fn = noopReadCR0
	WriteCR0Fn = noopWriteCR0
	ReadCR2Fn = noopReadCR2
	FlushTLBFn = noopFlushTLB

	os.Exit(m.Run())
}
