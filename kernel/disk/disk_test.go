package disk

import "testing"

// fakeController is a Controller test double that never touches real
// ports: Ready is driven by a test-controlled flag, and transfers record
// whatever was issued against them.
type fakeController struct {
	ready     bool
	lastOp    Op
	lastBlock uint32
	lastID    DiskID
	outWords  [SectorWords]uint16
	inWords   [SectorWords]uint16
}

func (c *fakeController) IssueCommand(op Op, block uint32, id DiskID) {
	c.lastOp, c.lastBlock, c.lastID = op, block, id
}

func (c *fakeController) TransferIn() [SectorWords]uint16 { return c.inWords }

func (c *fakeController) TransferOut(words [SectorWords]uint16) { c.outWords = words }

func (c *fakeController) Ready(id DiskID) bool { return c.ready }

func TestSimpleDiskReadRejectsOutOfRangeBlock(t *testing.T) {
	c := &fakeController{ready: true}
	d := NewSimpleDisk(c, Master, 4)

	if _, err := d.Read(4); err == nil {
		t.Fatal("expected an error reading a block past the disk's capacity")
	}
}

func TestSimpleDiskReadPacksWordsLittleEndian(t *testing.T) {
	c := &fakeController{ready: true}
	c.inWords[0] = 0xABCD
	d := NewSimpleDisk(c, Master, 4)

	buf, err := d.Read(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf[0] != 0xCD || buf[1] != 0xAB {
		t.Fatalf("expected little-endian packing of 0xABCD; got %x %x", buf[0], buf[1])
	}
	if c.lastOp != OpRead || c.lastBlock != 0 {
		t.Fatalf("expected a read command for block 0; got op=%v block=%d", c.lastOp, c.lastBlock)
	}
}

func TestSimpleDiskWriteUnpacksWords(t *testing.T) {
	c := &fakeController{ready: true}
	d := NewSimpleDisk(c, Master, 4)

	var buf [SectorBytes]byte
	buf[0], buf[1] = 0xCD, 0xAB
	if err := d.Write(0, buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.outWords[0] != 0xABCD {
		t.Fatalf("expected unpacked word 0xABCD; got %x", c.outWords[0])
	}
	if c.lastOp != OpWrite {
		t.Fatalf("expected a write command; got %v", c.lastOp)
	}
}
