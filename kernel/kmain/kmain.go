// Package kmain wires together every subsystem this module implements,
// in the order spec.md's data flow requires: frame pools before page
// tables, page tables before arenas, arenas before the disk and file
// system. It is a bootstrap demonstration, not a real entry point —
// installing interrupt handlers and talking to an actual bootloader are
// outside this module's scope.
package kmain

import (
	"nanokernel/kernel"
	"nanokernel/kernel/disk"
	"nanokernel/kernel/fs"
	"nanokernel/kernel/kfmt/early"
	"nanokernel/kernel/mem"
	"nanokernel/kernel/mem/pmm"
	"nanokernel/kernel/mem/pmm/contframepool"
	"nanokernel/kernel/mem/vmm"
	"nanokernel/kernel/mem/vmpool"
	"nanokernel/kernel/sched"
)

const (
	// kernelPoolFrames/processPoolFrames size the two ContFramePools
	// built at bootstrap. The numbers are arbitrary for a demonstration
	// kernel; a real port would size them from the multiboot memory map.
	kernelPoolFrames  = 1024
	processPoolFrames = 1024

	// processArenaSize is the size of the single per-process VM arena
	// this demo registers; it must span whole pages.
	processArenaSize = 4 * mem.Mb

	// diskBlocks is the capacity, in 512-byte blocks, of the disk the
	// demo mounts a file system onto.
	diskBlocks = 2048

	// demoFileID is the id of the file this demo creates on the mounted
	// file system.
	demoFileID = 1
)

var errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

// Run performs the full bootstrap sequence against the real ATA port
// controller and then halts, exactly as the rt0 entry point expects of
// Kmain: this function is not supposed to return. Console setup and
// interrupt-handler installation are assumed to have already happened
// by the time Run is called, same as the port I/O and control-register
// primitives it calls into — all are external collaborators this module
// consumes but does not implement.
//
//go:noinline
func Run() {
	controller := disk.NewPortController(disk.PrimaryPorts)
	if err := bootstrap(controller); err != nil {
		kernel.Panic(err)
	}

	// Use kernel.Panic instead of panic to prevent the compiler from
	// treating kernel.Panic as dead-code and eliminating it.
	kernel.Panic(errKmainReturned)
}

// bootstrap builds the two frame pools, a page table, a per-process VM
// arena, a blocking disk driven by controller, and a mounted file
// system, then creates one empty demo file; it does not write or read
// file data. It mirrors, step for
// step, the data flow described for this module: pools, then paging,
// then arenas, then storage. Taking the disk controller as a parameter
// keeps this function exercisable by a test with a fake controller,
// rather than the real port-I/O one Run supplies.
func bootstrap(controller disk.Controller) error {
	kernelPool, err := buildPool(1, kernelPoolFrames)
	if err != nil {
		return err
	}
	processPool, err := buildPool(1+kernelPoolFrames, processPoolFrames)
	if err != nil {
		return err
	}

	vmm.InitPaging(kernelPool, processPool, 4*mem.Mb)

	pt := vmm.NewPageTable()
	pt.Load()
	pt.EnablePaging()

	arena := vmpool.NewPool(0x00400000, uintptr(processArenaSize), processPool, pt)
	early.Printf("kmain: registered process arena at %x\n", arena.BaseAddress)

	scheduler := sched.NewCooperativeScheduler()
	scheduler.NewThread()

	blockDisk := disk.NewBlockingDisk(controller, disk.Master, diskBlocks, scheduler)

	if err := fs.Format(blockDisk, diskBlocks); err != nil {
		return err
	}
	fsys, err := fs.Mount(blockDisk)
	if err != nil {
		return err
	}

	if !fsys.CreateFile(demoFileID) {
		return &kernel.Error{Module: "kmain", Message: "demo file already exists"}
	}
	early.Printf("kmain: bootstrap complete\n")
	return nil
}

// buildPool constructs a ContFramePool spanning nFrames frames starting
// at base, self-hosting its own bitmap inside its own frame range.
func buildPool(base pmm.Frame, nFrames uint64) (*contframepool.Pool, error) {
	return contframepool.NewPool(base, nFrames, pmm.InvalidFrame, 0)
}
