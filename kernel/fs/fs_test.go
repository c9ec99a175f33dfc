package fs

import (
	"testing"

	"nanokernel/kernel/disk"
)

// memDisk is an in-memory disk.BlockDevice test double.
type memDisk struct {
	blocks [][disk.SectorBytes]byte
}

func newMemDisk(nblocks uint32) *memDisk {
	return &memDisk{blocks: make([][disk.SectorBytes]byte, nblocks)}
}

func (d *memDisk) ReadBlock(block uint32) [disk.SectorBytes]byte { return d.blocks[block] }

func (d *memDisk) WriteBlock(block uint32, buf [disk.SectorBytes]byte) { d.blocks[block] = buf }

func (d *memDisk) Blocks() uint32 { return uint32(len(d.blocks)) }

func mustMount(t *testing.T, nblocks uint32) (*FileSystem, *memDisk) {
	t.Helper()
	d := newMemDisk(nblocks)
	if err := Format(d, nblocks); err != nil {
		t.Fatalf("unexpected Format error: %v", err)
	}
	fsys, err := Mount(d)
	if err != nil {
		t.Fatalf("unexpected Mount error: %v", err)
	}
	return fsys, d
}

func TestMountZeroesBitmapAndReservesBlockZero(t *testing.T) {
	fsys, _ := mustMount(t, 64)
	if fsys.bitmap[0]&1 == 0 {
		t.Fatal("expected block 0 to be marked allocated for the bitmap itself")
	}
	if fsys.bitmap[0]&^1 != 0 {
		t.Fatal("expected every other bit in the first bitmap word to start clear")
	}
}

func TestCreateFileRejectsDuplicateID(t *testing.T) {
	fsys, _ := mustMount(t, 64)
	if !fsys.CreateFile(1) {
		t.Fatal("expected the first CreateFile(1) to succeed")
	}
	if fsys.CreateFile(1) {
		t.Fatal("expected a second CreateFile(1) to fail")
	}
}

func TestFileRoundTrip(t *testing.T) {
	fsys, _ := mustMount(t, 64)
	fsys.CreateFile(42)
	f, ok := fsys.LookupFile(42)
	if !ok {
		t.Fatal("expected to find the file just created")
	}

	data := make([]byte, 800)
	for i := range data {
		data[i] = byte(i % 251)
	}

	if n := f.Write(len(data), data); n != len(data) {
		t.Fatalf("expected Write to copy all %d bytes; copied %d", len(data), n)
	}
	f.Reset()

	got := make([]byte, len(data))
	if n := f.Read(len(got), got); n != len(got) {
		t.Fatalf("expected Read to return all %d bytes; got %d", len(got), n)
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("byte %d mismatch: wrote %x, read %x", i, data[i], got[i])
		}
	}
	if !f.EoF() {
		t.Fatal("expected EoF after reading every written byte")
	}
}

func TestWriteRejectsBeyondMaxFileSize(t *testing.T) {
	fsys, _ := mustMount(t, 64)
	fsys.CreateFile(7)
	f, _ := fsys.LookupFile(7)

	data := make([]byte, MaxFileSize+512)
	n := f.Write(len(data), data)
	if n != MaxFileSize {
		t.Fatalf("expected Write to stop at MaxFileSize (%d); wrote %d", MaxFileSize, n)
	}
}

func TestDeleteFileFreesInfoAndDataBlocks(t *testing.T) {
	fsys, _ := mustMount(t, 64)
	fsys.CreateFile(1)
	f, _ := fsys.LookupFile(1)

	data := make([]byte, 512)
	f.Write(len(data), data)

	freeBefore := countFreeBits(fsys)
	if !fsys.DeleteFile(1) {
		t.Fatal("expected DeleteFile to succeed")
	}
	freeAfter := countFreeBits(fsys)

	if freeAfter != freeBefore+2 {
		t.Fatalf("expected deleting a file with one data block to free 2 blocks (info+data); freed %d", freeAfter-freeBefore)
	}
	if _, ok := fsys.LookupFile(1); ok {
		t.Fatal("expected the file to be gone from the file list")
	}
}

func TestRewriteFreesBlocksBackToPostCreateLevel(t *testing.T) {
	fsys, _ := mustMount(t, 64)
	fsys.CreateFile(1)
	f, _ := fsys.LookupFile(1)

	freeAfterCreate := countFreeBits(fsys)

	data := make([]byte, 512*3)
	f.Write(len(data), data)
	f.Rewrite()

	if got := countFreeBits(fsys); got != freeAfterCreate {
		t.Fatalf("expected free block count to return to its post-CreateFile level (%d); got %d", freeAfterCreate, got)
	}
}

func countFreeBits(fsys *FileSystem) int {
	free := 0
	for blockNo := uint32(0); blockNo < fsys.Size; blockNo++ {
		word := fsys.bitmap[blockNo/bitsPerWord]
		if word&(1<<(blockNo%bitsPerWord)) == 0 {
			free++
		}
	}
	return free
}
