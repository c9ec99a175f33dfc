package disk

import (
	"nanokernel/kernel/sched"
)

// MirroredDisk drives two spindles (master/slave) kept in lockstep: a
// write is not complete until both controllers have signaled ready, so
// the calling thread is preempted twice, once per spindle, and each
// spindle keeps its own wait queue. A read is satisfied from the master
// spindle alone; unlike the single-wait-after-double-enqueue sequence of
// the original mirrored driver (which enqueues a reading thread onto
// both FIFOs but only ever waits on one, leaving a dangling entry on the
// slave queue), this implementation enqueues and waits on the master
// queue only — see DESIGN.md for the rationale.
type MirroredDisk struct {
	Scheduler sched.Scheduler
	Size      uint32

	Master  Controller
	Slave   Controller
	masterQ *waitQueue
	slaveQ  *waitQueue
}

// NewMirroredDisk returns a MirroredDisk driving the given master/slave
// controllers, both addressing size blocks.
func NewMirroredDisk(master, slave Controller, size uint32, sch sched.Scheduler) *MirroredDisk {
	return &MirroredDisk{
		Scheduler: sch,
		Size:      size,
		Master:    master,
		Slave:     slave,
		masterQ:   newWaitQueue(),
		slaveQ:    newWaitQueue(),
	}
}

// Read issues a read against the master spindle only, suspending the
// current thread on the master queue until it is ready.
func (d *MirroredDisk) Read(block uint32) [SectorBytes]byte {
	d.Master.IssueCommand(OpRead, block, Master)

	self := d.Scheduler.CurrentThread()
	d.masterQ.PushBack(self)
	self.SetWaitingForIO(true)
	d.Scheduler.Preempt(self)

	self.SetWaitingForIO(false)
	words := d.Master.TransferIn()
	var out [SectorBytes]byte
	packWords(&out, words)

	d.Scheduler.ResumeFromBlocking(self)
	d.Scheduler.YieldAfterIO()
	return out
}

// Write issues a write against both spindles and suspends the current
// thread twice: once waiting for the master, once for the slave. Both
// transfers must complete before the write is considered done.
func (d *MirroredDisk) Write(block uint32, buf [SectorBytes]byte) {
	words := unpackWords(buf)
	d.Master.IssueCommand(OpWrite, block, Master)
	d.Slave.IssueCommand(OpWrite, block, Slave)

	self := d.Scheduler.CurrentThread()

	d.masterQ.PushBack(self)
	self.SetWaitingForIO(true)
	d.Scheduler.Preempt(self)
	self.SetWaitingForIO(false)
	d.Master.TransferOut(words)

	d.slaveQ.PushBack(self)
	self.SetWaitingForIO(true)
	d.Scheduler.Preempt(self)
	self.SetWaitingForIO(false)
	d.Slave.TransferOut(words)

	d.Scheduler.ResumeFromBlocking(self)
	d.Scheduler.YieldAfterIO()
}

// CheckMasterReady and CheckSlaveReady both read the master controller's
// status; the slave controller's status is never consulted, the same as
// the original driver's check_master_ready/check_slave_ready pair — see
// DESIGN.md.
func (d *MirroredDisk) CheckMasterReady() bool {
	return d.Master.Ready(Master)
}

func (d *MirroredDisk) CheckSlaveReady() bool {
	return d.Master.Ready(Slave)
}

// DispatchToMasterBlocked pops and dispatches the head of the master
// queue, skipping a stale (already-serviced) spurious wake.
func (d *MirroredDisk) DispatchToMasterBlocked() {
	t := d.masterQ.PopFront()
	if t == nil || !t.WaitingForIO() {
		return
	}
	d.Scheduler.DispatchTo(t)
}

// DispatchToSlaveBlocked pops and dispatches the head of the slave
// queue, skipping a stale spurious wake.
func (d *MirroredDisk) DispatchToSlaveBlocked() {
	t := d.slaveQ.PopFront()
	if t == nil || !t.WaitingForIO() {
		return
	}
	d.Scheduler.DispatchTo(t)
}

// MasterQueueLen and SlaveQueueLen report how many threads are parked on
// each spindle's queue.
func (d *MirroredDisk) MasterQueueLen() int { return d.masterQ.Len() }
func (d *MirroredDisk) SlaveQueueLen() int  { return d.slaveQ.Len() }

// ReadBlock and WriteBlock satisfy disk.BlockDevice.
func (d *MirroredDisk) ReadBlock(block uint32) [SectorBytes]byte { return d.Read(block) }

func (d *MirroredDisk) WriteBlock(block uint32, buf [SectorBytes]byte) { d.Write(block, buf) }

// Blocks reports the device's capacity in blocks.
func (d *MirroredDisk) Blocks() uint32 { return d.Size }
