package disk

import (
	"nanokernel/kernel/sched"
)

// BlockingDisk layers the suspend/resume protocol of the concurrency
// contract onto SimpleDisk: rather than busy-waiting for the controller,
// the calling thread is parked on a FIFO and the scheduler is asked to
// preempt it until the controller reports ready.
type BlockingDisk struct {
	SimpleDisk
	Scheduler sched.Scheduler
	queue     *waitQueue
}

// NewBlockingDisk returns a BlockingDisk driven by c and parking waiters
// on sch.
func NewBlockingDisk(c Controller, id DiskID, size uint32, sch sched.Scheduler) *BlockingDisk {
	return &BlockingDisk{
		SimpleDisk: SimpleDisk{Controller: c, ID: id, Size: size},
		Scheduler:  sch,
		queue:      newWaitQueue(),
	}
}

// Read issues a read for block, suspends the current thread until the
// controller reports ready, then transfers and returns the sector.
func (d *BlockingDisk) Read(block uint32) [SectorBytes]byte {
	d.Controller.IssueCommand(OpRead, block, d.ID)

	self := d.Scheduler.CurrentThread()
	d.queue.PushBack(self)
	self.SetWaitingForIO(true)
	d.Scheduler.Preempt(self)

	// Execution resumes here once dispatch_to_blocked has verified the
	// controller is ready and re-dispatched this thread.
	self.SetWaitingForIO(false)
	words := d.Controller.TransferIn()
	var out [SectorBytes]byte
	packWords(&out, words)

	d.Scheduler.ResumeFromBlocking(self)
	d.Scheduler.YieldAfterIO()
	return out
}

// Write issues a write of buf to block and suspends the current thread
// the same way Read does.
func (d *BlockingDisk) Write(block uint32, buf [SectorBytes]byte) {
	words := unpackWords(buf)
	d.Controller.IssueCommand(OpWrite, block, d.ID)

	self := d.Scheduler.CurrentThread()
	d.queue.PushBack(self)
	self.SetWaitingForIO(true)
	d.Scheduler.Preempt(self)

	self.SetWaitingForIO(false)
	d.Controller.TransferOut(words)

	d.Scheduler.ResumeFromBlocking(self)
	d.Scheduler.YieldAfterIO()
}

// CheckReady reports whether the controller's DRQ bit is set.
func (d *BlockingDisk) CheckReady() bool {
	return d.Controller.Ready(d.ID)
}

// DispatchToBlocked pops the head of the wait queue and dispatches to it
// directly, bypassing the normal ready queue. A thread whose
// WaitingForIO flag has already been cleared is a spurious wake (some
// earlier, unrelated controller-ready event already serviced it) and is
// skipped rather than redispatched.
func (d *BlockingDisk) DispatchToBlocked() {
	t := d.queue.PopFront()
	if t == nil {
		return
	}
	if !t.WaitingForIO() {
		return
	}
	d.Scheduler.DispatchTo(t)
}

// QueueLen reports how many threads are currently parked on this disk.
func (d *BlockingDisk) QueueLen() int {
	return d.queue.Len()
}

// ReadBlock and WriteBlock satisfy disk.BlockDevice for the file system
// layer, which has no use for a distinct method name per driver.
func (d *BlockingDisk) ReadBlock(block uint32) [SectorBytes]byte { return d.Read(block) }

func (d *BlockingDisk) WriteBlock(block uint32, buf [SectorBytes]byte) { d.Write(block, buf) }

// Blocks reports the device's capacity in blocks.
func (d *BlockingDisk) Blocks() uint32 { return d.Size }
