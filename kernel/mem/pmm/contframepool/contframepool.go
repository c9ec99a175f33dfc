// Package contframepool implements a contiguous physical frame pool: a
// frame allocator that can hand out runs of physically contiguous frames
// rather than single, possibly scattered, pages.
package contframepool

import (
	"nanokernel/kernel"
	"nanokernel/kernel/errors"
	"nanokernel/kernel/kfmt/early"
	"nanokernel/kernel/mem"
	"nanokernel/kernel/mem/pmm"
)

// frameState is the per-frame status recorded in a Pool's bitmap. Two bits
// are used per frame so that the first frame of an allocated run can be
// told apart from the frames that follow it.
type frameState byte

const (
	// stateFree marks a frame that is available for allocation.
	stateFree frameState = 0x3 // 11
	// stateHead marks the first frame of an allocated run.
	stateHead frameState = 0x1 // 01
	// stateBody marks an allocated frame that is not the first in its run.
	stateBody frameState = 0x0 // 00
)

// coarseFreeMask has the high state bit set for every frame in a byte
// (four frames/byte). Only stateFree has that bit set, so ANDing a bitmap
// byte against it is zero only when none of the four frames it covers are
// free, letting GetFrames skip whole allocated bytes instead of testing
// frame by frame.
const coarseFreeMask = 0xAA

// panicFn is mocked by tests and is automatically inlined by the compiler.
var panicFn = kernel.Panic

// Registry tracks every Pool that has been constructed so that
// ReleaseFrames can locate the owning pool given only a frame number. Pools
// are appended on construction and never removed, matching the process-wide,
// append-only lifetime of the pools themselves.
var Registry []*Pool

// Pool manages the allocation state of a contiguous range of physical
// frames using a 2-bit-per-frame bitmap.
type Pool struct {
	// BaseFrame is the frame number of the first frame managed by this pool.
	BaseFrame pmm.Frame

	// NFrames is the number of frames managed by this pool. It must be a
	// multiple of 4 so that the bitmap divides evenly into bytes.
	NFrames uint64

	// InfoFrame is the frame that holds this pool's bookkeeping (its
	// bitmap). It is either BaseFrame itself or a frame supplied by the
	// caller when the pool's own range cannot host its own metadata.
	InfoFrame pmm.Frame

	// NInfoFrames is the number of frames reserved for bookkeeping.
	NInfoFrames uint64

	// NFreeFrames is the number of currently free frames in the pool.
	NFreeFrames uint64

	bitmap []byte
}

// NeededInfoFrames returns the number of frames required to hold the
// bitmap for a pool managing n frames.
func NeededInfoFrames(n uint64) uint64 {
	// Each frame of bookkeeping storage holds 2 bits per managed frame,
	// i.e. it can describe 4*PageSize managed frames.
	framesPerInfoFrame := 4 * uint64(mem.PageSize)
	if n%framesPerInfoFrame == 0 {
		return n / framesPerInfoFrame
	}
	return n/framesPerInfoFrame + 1
}

// NewPool constructs a Pool managing nFrames frames starting at base. If
// infoFrame is pmm.InvalidFrame the pool keeps its own bookkeeping inside
// its first frame(s); otherwise the caller-supplied frame is used instead
// (e.g. when base is itself inside a pool that must remain entirely free).
// If nInfoFrames is 0 it is computed via NeededInfoFrames.
func NewPool(base pmm.Frame, nFrames uint64, infoFrame pmm.Frame, nInfoFrames uint64) (*Pool, error) {
	if nFrames == 0 || nFrames%4 != 0 {
		err := &kernel.Error{Module: "contframepool", Message: "frame count must be a non-zero multiple of 4"}
		panicFn(err)
		return nil, err
	}

	if nInfoFrames == 0 {
		nInfoFrames = NeededInfoFrames(nFrames)
	}

	p := &Pool{
		BaseFrame:   base,
		NFrames:     nFrames,
		NFreeFrames: nFrames,
		InfoFrame:   infoFrame,
		NInfoFrames: nInfoFrames,
		bitmap:      make([]byte, nFrames/4),
	}

	if !p.InfoFrame.IsValid() {
		p.InfoFrame = base
	}

	for i := range p.bitmap {
		p.bitmap[i] = 0xFF
	}

	if p.owns(p.InfoFrame) {
		p.markRun(p.InfoFrame, nInfoFrames)
		p.NFreeFrames -= nInfoFrames
	}

	Registry = append(Registry, p)

	early.Printf("contframepool: initialized pool base=%d frames=%d\n", uint64(base), nFrames)
	return p, nil
}

// frameIndex returns the bitmap byte index and bit mask for the given frame.
func (p *Pool) frameIndex(f pmm.Frame) (byteIdx uint64, shift uint) {
	offset := uint64(f - p.BaseFrame)
	byteIdx = offset / 4
	shift = uint(6 - 2*(offset%4))
	return
}

func (p *Pool) stateOf(f pmm.Frame) frameState {
	byteIdx, shift := p.frameIndex(f)
	return frameState((p.bitmap[byteIdx] >> shift) & 0x3)
}

func (p *Pool) setState(f pmm.Frame, s frameState) {
	byteIdx, shift := p.frameIndex(f)
	p.bitmap[byteIdx] = (p.bitmap[byteIdx] &^ (0x3 << shift)) | (byte(s) << shift)
}

// markRun marks frame base as the head of an allocated sequence and the
// following n-1 frames as the body of that sequence.
func (p *Pool) markRun(base pmm.Frame, n uint64) {
	p.setState(base, stateHead)
	for i := uint64(1); i < n; i++ {
		p.setState(base+pmm.Frame(i), stateBody)
	}
}

// GetFrames scans the pool for the first run of n contiguous free frames,
// marks it allocated and returns the number of its first frame. It returns
// 0 if no such run exists.
func (p *Pool) GetFrames(n uint64) pmm.Frame {
	if p.NFreeFrames == 0 {
		early.Printf("contframepool: pool exhausted\n")
		return 0
	}

	var (
		nBytes   = p.NFrames / 4
		runStart = uint64(0)
		runLen   = uint64(0)
	)

	for frameOffset := uint64(0); frameOffset < p.NFrames; frameOffset++ {
		byteIdx := frameOffset / 4
		// Coarse-skip a whole byte (4 frames) when none of them are free.
		if frameOffset%4 == 0 && byteIdx < nBytes && (p.bitmap[byteIdx]&coarseFreeMask) == 0 {
			frameOffset += 3
			runLen = 0
			continue
		}

		if p.stateOf(p.BaseFrame+pmm.Frame(frameOffset)) == stateFree {
			if runLen == 0 {
				runStart = frameOffset
			}
			runLen++
			if runLen == n {
				first := p.BaseFrame + pmm.Frame(runStart)
				p.markRun(first, n)
				p.NFreeFrames -= n
				return first
			}
		} else {
			runLen = 0
		}
	}

	early.Printf("contframepool: could not satisfy request for %d contiguous frames\n", n)
	return 0
}

// MarkInaccessible marks the run of n frames starting at base as allocated
// without searching for it; every frame in the run must currently be free.
func (p *Pool) MarkInaccessible(base pmm.Frame, n uint64) error {
	for i := uint64(0); i < n; i++ {
		if p.stateOf(base+pmm.Frame(i)) != stateFree {
			err := &kernel.Error{Module: "contframepool", Message: "attempt to mark an already-allocated frame inaccessible"}
			panicFn(err)
			return err
		}
	}
	p.markRun(base, n)
	p.NFreeFrames -= n
	return nil
}

// owns reports whether frame f falls within this pool's managed range.
func (p *Pool) owns(f pmm.Frame) bool {
	return f >= p.BaseFrame && f < p.BaseFrame+pmm.Frame(p.NFrames)
}

// release frees the run beginning at the head frame first. first must be
// marked stateHead; the release walk continues until it reaches a frame
// that is free or is itself a new head.
func (p *Pool) release(first pmm.Frame) error {
	if p.stateOf(first) != stateHead {
		err := &kernel.Error{Module: "contframepool", Message: string(errors.ErrNotHeadOfSequence)}
		panicFn(err)
		return err
	}

	p.setState(first, stateFree)
	p.NFreeFrames++

	for offset := uint64(first - p.BaseFrame) + 1; offset < p.NFrames; offset++ {
		f := p.BaseFrame + pmm.Frame(offset)
		if p.stateOf(f) != stateBody {
			break
		}
		p.setState(f, stateFree)
		p.NFreeFrames++
	}

	return nil
}

// ReleaseFrames walks the Registry to find the pool that owns first and
// releases the allocated run starting there. It panics if no registered
// pool claims the frame, matching the original allocator's fatal-error
// behavior for an unrecognized release.
func ReleaseFrames(first pmm.Frame) {
	for i := len(Registry) - 1; i >= 0; i-- {
		if Registry[i].owns(first) {
			_ = Registry[i].release(first)
			return
		}
	}
	panicFn(&kernel.Error{Module: "contframepool", Message: string(errors.ErrPoolNotOwner)})
}
