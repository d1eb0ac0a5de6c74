package storage

import "iter"

// Segment routes inside a ConcatQueue.
const (
	segFront uint32 = iota // resident frames
	segBack                // ghost frames
	segCount
)

// ConcatQueue joins two basic queues into one ordered sequence. The front
// segment holds resident frames and the back segment holds ghosts evicted
// from it, most recently evicted first.
type ConcatQueue struct {
	segs [segCount]*Queue
}

// NewConcatQueue creates an empty concatenated queue.
func NewConcatQueue() *ConcatQueue {
	return &ConcatQueue{segs: [segCount]*Queue{NewQueue(), NewQueue()}}
}

// BasicQueueCount is the number of routes a ConcatQueue occupies.
func (c *ConcatQueue) BasicQueueCount() int { return int(segCount) }

func (c *ConcatQueue) seg(h Handle, op string) *Queue {
	invariant(h.route < segCount, op, "route %d outside concatenated queue", h.route)
	return c.segs[h.route]
}

// Enqueue inserts f at the front of the front segment.
func (c *ConcatQueue) Enqueue(f *Frame) Handle {
	return c.segs[segFront].InsertFront(f).withRoute(segFront)
}

// Access moves the element at h to the front of the front segment and returns
// its new handle.
func (c *ConcatQueue) Access(h Handle) Handle {
	if h.route == segFront {
		return c.segs[segFront].Access(h)
	}
	f := c.seg(h, "ConcatQueue.Access").Remove(h)
	return c.Enqueue(f)
}

// Dequeue removes the element at h.
func (c *ConcatQueue) Dequeue(h Handle) *Frame {
	return c.seg(h, "ConcatQueue.Dequeue").Remove(h)
}

// DequeueBack removes the back-most element of the whole sequence: the oldest
// ghost, or the back of the front segment when there are no ghosts.
func (c *ConcatQueue) DequeueBack() *Frame {
	if f := c.segs[segBack].RemoveBack(); f != nil {
		return f
	}
	return c.segs[segFront].RemoveBack()
}

// BlowOneItem moves the back of the front segment to the front of the back
// segment and returns the element's new handle, or NilHandle if the front
// segment is empty.
func (c *ConcatQueue) BlowOneItem() Handle {
	f := c.segs[segFront].RemoveBack()
	if f == nil {
		return NilHandle
	}
	return c.segs[segBack].InsertFront(f).withRoute(segBack)
}

// Victim returns the frame BlowOneItem would move, without moving it.
func (c *ConcatQueue) Victim() *Frame { return c.segs[segFront].Back() }

// Frame returns the frame at h.
func (c *ConcatQueue) Frame(h Handle) *Frame {
	return c.seg(h, "ConcatQueue.Frame").Frame(h)
}

// InFront reports whether h lies in the front segment.
func (c *ConcatQueue) InFront(h Handle) bool { return h.route == segFront }

func (c *ConcatQueue) FrontSize() int { return c.segs[segFront].Size() }
func (c *ConcatQueue) BackSize() int { return c.segs[segBack].Size() }
func (c *ConcatQueue) Size() int { return c.FrontSize() + c.BackSize() }

// All yields the front segment then the back segment, each front to back.
func (c *ConcatQueue) All() iter.Seq[*Frame] {
	return func(yield func(*Frame) bool) {
		for _, s := range c.segs {
			for f := range s.All() {
				if !yield(f) {
					return
				}
			}
		}
	}
}
