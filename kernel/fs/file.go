package fs

// File is a byte-addressed view over up to maxDirectBlocks data blocks,
// cached through a single 512-byte buffer. There is no indirection: a
// file's size is capped at MaxFileSize.
type File struct {
	id           int
	fs           *FileSystem
	infoBlock    uint32
	directBlocks [maxDirectBlocks]uint32

	curByte int
	endByte int // -1 means the file holds no data yet

	buffer [BlockBytes]byte

	next *File // next file in the owning FileSystem's list
}

// ID returns the file's identifier.
func (f *File) ID() int { return f.id }

// Read copies up to n bytes starting at the current cursor into buf,
// loading data blocks through the cache as the cursor crosses block
// boundaries, and stops once the cursor passes endByte. It returns the
// number of bytes actually copied. The loop condition is deliberately
// curByte <= endByte, not the EoF predicate: endByte is the index of the
// last valid byte, so a >= comparison would skip it.
func (f *File) Read(n int, buf []byte) int {
	copied := 0
	for copied < n && copied < len(buf) && f.curByte <= f.endByte {
		blockIdx := f.curByte / BlockBytes
		offset := f.curByte % BlockBytes

		if offset == 0 {
			block := f.directBlocks[blockIdx]
			f.buffer = f.fs.Disk.ReadBlock(block)
		}

		buf[copied] = f.buffer[offset]
		f.curByte++
		copied++
	}
	return copied
}

// Write copies up to n bytes from buf starting at the current cursor,
// allocating a new data block whenever the cursor crosses into a block
// that has not yet been allocated. A newly allocated block's number is
// recorded in the direct-block table and that table is flushed to the
// info block before any data is written to the new block. The tail of a
// partially filled final block is zero-padded.
func (f *File) Write(n int, buf []byte) int {
	written := 0
	for written < n && written < len(buf) {
		blockIdx := f.curByte / BlockBytes
		if blockIdx >= maxDirectBlocks {
			break
		}
		offset := f.curByte % BlockBytes

		if offset == 0 {
			if f.directBlocks[blockIdx] == 0 {
				f.directBlocks[blockIdx] = f.fs.freeBlock()
				f.fs.flushInfoBlock(f)
			}
			f.buffer = [BlockBytes]byte{}
		}

		f.buffer[offset] = buf[written]
		f.curByte++
		written++

		if f.curByte%BlockBytes == 0 || written == n {
			f.fs.Disk.WriteBlock(f.directBlocks[blockIdx], f.buffer)
		}
	}

	if f.curByte-1 > f.endByte {
		f.endByte = f.curByte - 1
	}
	return written
}

// Reset moves the cursor back to the start of the file without
// releasing any data.
func (f *File) Reset() {
	f.curByte = 0
}

// Rewrite releases every data block the file currently holds and resets
// it to the empty state, ready to be written from scratch.
func (f *File) Rewrite() {
	f.fs.freeBlocks(f)
	f.directBlocks = [maxDirectBlocks]uint32{}
	f.curByte = 0
	f.endByte = -1
}

// EoF reports whether the cursor has reached the end of the file's
// written data.
func (f *File) EoF() bool {
	return f.curByte >= f.endByte
}
