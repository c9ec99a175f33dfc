package disk

import (
	"container/list"

	"nanokernel/kernel/sched"
)

// waitQueue is a FIFO of threads parked on a disk operation, wrapping
// container/list the way biscuit's fs.BlkList_t wraps a block list:
// a thin, typed front/back interface over the standard library's
// doubly-linked list rather than a hand-rolled one.
type waitQueue struct {
	l *list.List
}

// newWaitQueue returns an empty wait queue.
func newWaitQueue() *waitQueue {
	return &waitQueue{l: list.New()}
}

// PushBack enqueues t at the tail of the queue.
func (q *waitQueue) PushBack(t sched.Thread) {
	q.l.PushBack(t)
}

// PopFront removes and returns the thread at the head of the queue, or
// nil if the queue is empty.
func (q *waitQueue) PopFront() sched.Thread {
	e := q.l.Front()
	if e == nil {
		return nil
	}
	q.l.Remove(e)
	return e.Value.(sched.Thread)
}

// Len reports the number of threads currently waiting.
func (q *waitQueue) Len() int {
	return q.l.Len()
}
