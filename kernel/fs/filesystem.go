// Package fs implements a minimal disk-backed file system over a
// disk.BlockDevice: a single allocation bitmap in block 0, one info
// block per file holding a direct-block table, and data blocks with no
// indirection. It follows the Format-then-Mount two-step lifecycle
// exactly as specified rather than collapsing the two into one call.
package fs

import (
	"math/bits"

	pkgerrors "github.com/pkg/errors"

	"nanokernel/kernel/disk"
	"nanokernel/kernel/errors"
)

// BlockBytes is the size in bytes of one file system block; it matches
// the underlying disk's sector size, since blocks are not sub-divided.
const BlockBytes = disk.SectorBytes

// bitsPerWord is the number of blocks one bitmap word accounts for.
const bitsPerWord = 32

// maxDirectBlocks is the fan-out of a file's direct-block table: with no
// indirection supported, this also bounds the maximum file size.
const maxDirectBlocks = 7

// MaxFileSize is the largest a file can grow: 7 direct blocks of
// BlockBytes each.
const MaxFileSize = maxDirectBlocks * BlockBytes

// FileSystem is a mounted, in-memory view of a disk's allocation bitmap
// and file list. Block 0 of Disk always holds the packed bitmap.
type FileSystem struct {
	Disk   disk.BlockDevice
	bitmap []uint32
	Size   uint32 // total blocks managed by this file system

	files *File // head of a singly-linked file list
}

// formattedSize records the block count Format stamped onto a disk,
// consumed by the following Mount. mounted tracks the live FileSystem
// instance attached to a disk so a later Format can destroy its file
// list, mirroring the original design's disk-held back-reference.
var (
	formattedSize = map[disk.BlockDevice]uint32{}
	mounted       = map[disk.BlockDevice]*FileSystem{}
)

// Format stamps size (in blocks) onto d and, if a FileSystem is already
// mounted on d, destroys its file list. It does not itself construct a
// FileSystem; the caller is expected to call Mount next.
func Format(d disk.BlockDevice, size uint32) error {
	if size == 0 {
		return errors.ErrInvalidParamValue
	}
	if fs, ok := mounted[d]; ok {
		fs.files = nil
	}
	formattedSize[d] = size
	return nil
}

// Mount builds a fresh FileSystem over d: the bitmap is zeroed, bit 0 is
// set (the bitmap's own block is always allocated), and the file list
// starts empty. The bitmap length is derived from the block count a
// prior Format call stamped onto d, falling back to the device's full
// capacity if Format was never called.
func Mount(d disk.BlockDevice) (*FileSystem, error) {
	size, ok := formattedSize[d]
	if !ok {
		size = d.Blocks()
	}
	if size == 0 {
		return nil, pkgerrors.Wrap(errors.ErrDiskNotReady, "mount: attached disk reports zero capacity")
	}

	words := (size + bitsPerWord - 1) / bitsPerWord
	bitmap := make([]uint32, words)
	bitmap[0] |= 1 // block 0 holds the bitmap itself

	fs := &FileSystem{Disk: d, bitmap: bitmap, Size: size}
	fs.flushBitmap()
	mounted[d] = fs
	return fs, nil
}

// LookupFile returns the file with the given id, if one exists.
func (fs *FileSystem) LookupFile(id int) (*File, bool) {
	for f := fs.files; f != nil; f = f.next {
		if f.id == id {
			return f, true
		}
	}
	return nil, false
}

// CreateFile allocates an info block and adds an empty file with the
// given id to the file list. It fails if id is already in use.
func (fs *FileSystem) CreateFile(id int) bool {
	if _, ok := fs.LookupFile(id); ok {
		return false
	}

	infoBlock := fs.freeBlock()
	f := &File{
		id:        id,
		fs:        fs,
		infoBlock: infoBlock,
		endByte:   -1,
		next:      fs.files,
	}
	fs.flushInfoBlock(f)
	fs.files = f
	return true
}

// DeleteFile releases every block a file owns (its data blocks and its
// info block) and removes it from the file list.
func (fs *FileSystem) DeleteFile(id int) bool {
	var prev *File
	for f := fs.files; f != nil; f = f.next {
		if f.id != id {
			prev = f
			continue
		}

		fs.freeBlocks(f)
		fs.clearBit(f.infoBlock)
		fs.flushBitmap()

		if prev == nil {
			fs.files = f.next
		} else {
			prev.next = f.next
		}
		return true
	}
	return false
}

// freeBlock scans the bitmap word by word for the first word that still
// has a clear bit, sets the lowest clear bit, flushes the bitmap to
// block 0 and returns the block number that bit represents.
func (fs *FileSystem) freeBlock() uint32 {
	for wordIdx, word := range fs.bitmap {
		if word == ^uint32(0) {
			continue
		}
		bit := bits.TrailingZeros32(^word)
		fs.bitmap[wordIdx] |= 1 << uint(bit)
		fs.flushBitmap()
		return uint32(wordIdx)*bitsPerWord + uint32(bit)
	}
	return 0
}

// clearBit marks block free in the in-memory bitmap without flushing;
// callers batch clears and flush once.
func (fs *FileSystem) clearBit(block uint32) {
	wordIdx := block / bitsPerWord
	bit := block % bitsPerWord
	fs.bitmap[wordIdx] &^= 1 << bit
}

// freeBlocks clears every data block f currently occupies, derived from
// f.endByte, and flushes the bitmap once.
func (fs *FileSystem) freeBlocks(f *File) {
	if f.endByte < 0 {
		return
	}
	numBlocks := (f.endByte + 1 + BlockBytes - 1) / BlockBytes
	for i := 0; i < numBlocks; i++ {
		fs.clearBit(f.directBlocks[i])
	}
	fs.flushBitmap()
}

// flushBitmap packs the in-memory bitmap words little-endian into block
// 0 and writes it out.
func (fs *FileSystem) flushBitmap() {
	var buf [BlockBytes]byte
	for i, word := range fs.bitmap {
		off := i * 4
		if off+4 > BlockBytes {
			break
		}
		buf[off] = byte(word)
		buf[off+1] = byte(word >> 8)
		buf[off+2] = byte(word >> 16)
		buf[off+3] = byte(word >> 24)
	}
	fs.Disk.WriteBlock(0, buf)
}

// flushInfoBlock packs f's direct-block table little-endian into f's
// info block and writes it out, zero-padding the remainder.
func (fs *FileSystem) flushInfoBlock(f *File) {
	var buf [BlockBytes]byte
	for i, block := range f.directBlocks {
		off := i * 4
		buf[off] = byte(block)
		buf[off+1] = byte(block >> 8)
		buf[off+2] = byte(block >> 16)
		buf[off+3] = byte(block >> 24)
	}
	fs.Disk.WriteBlock(f.infoBlock, buf)
}
