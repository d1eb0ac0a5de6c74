package storage

import "iter"

const nilNode int32 = -1

type qnode struct {
	frame *Frame
	prev  int32
	next  int32
	gen   uint32
	live  bool
}

// Queue is a doubly linked list of frames stored in an index arena. The front
// is the most recently inserted or accessed end. Removed nodes are recycled
// through a free list linked by next.
type Queue struct {
	nodes    []qnode
	freeHead int32
	head     int32
	tail     int32
	size     int
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{freeHead: nilNode, head: nilNode, tail: nilNode}
}

func (q *Queue) handleOf(idx int32) Handle {
	return Handle{node: idx + 1, gen: q.nodes[idx].gen}
}

func (q *Queue) resolve(h Handle, op string) int32 {
	idx := h.node - 1
	invariant(idx >= 0 && int(idx) < len(q.nodes), op, "handle %s outside arena of %d nodes", h, len(q.nodes))
	n := &q.nodes[idx]
	invariant(n.live && n.gen == h.gen, op, "stale handle %s", h)
	return idx
}

func (q *Queue) allocNode(f *Frame) int32 {
	var idx int32
	if q.freeHead != nilNode {
		idx = q.freeHead
		q.freeHead = q.nodes[idx].next
	} else {
		q.nodes = append(q.nodes, qnode{})
		idx = int32(len(q.nodes) - 1)
	}
	n := &q.nodes[idx]
	n.frame = f
	n.prev, n.next = nilNode, nilNode
	n.live = true
	return idx
}

func (q *Queue) releaseNode(idx int32) {
	n := &q.nodes[idx]
	n.frame = nil
	n.live = false
	n.gen++
	n.prev = nilNode
	n.next = q.freeHead
	q.freeHead = idx
}

func (q *Queue) linkFront(idx int32) {
	n := &q.nodes[idx]
	n.prev = nilNode
	n.next = q.head
	if q.head != nilNode {
		q.nodes[q.head].prev = idx
	} else {
		q.tail = idx
	}
	q.head = idx
}

func (q *Queue) unlink(idx int32) {
	n := &q.nodes[idx]
	if n.prev != nilNode {
		q.nodes[n.prev].next = n.next
	} else {
		q.head = n.next
	}
	if n.next != nilNode {
		q.nodes[n.next].prev = n.prev
	} else {
		q.tail = n.prev
	}
	n.prev, n.next = nilNode, nilNode
}

// InsertFront adds f at the front and returns its handle.
func (q *Queue) InsertFront(f *Frame) Handle {
	idx := q.allocNode(f)
	q.linkFront(idx)
	q.size++
	return q.handleOf(idx)
}

// Access moves the element at h to the front. The handle stays valid.
func (q *Queue) Access(h Handle) Handle {
	idx := q.resolve(h, "Queue.Access")
	if idx != q.head {
		q.unlink(idx)
		q.linkFront(idx)
	}
	return h
}

// Remove unlinks the element at h and returns its frame.
func (q *Queue) Remove(h Handle) *Frame {
	idx := q.resolve(h, "Queue.Remove")
	f := q.nodes[idx].frame
	q.unlink(idx)
	q.releaseNode(idx)
	q.size--
	return f
}

// RemoveBack removes the back-most element, or returns nil if q is empty.
func (q *Queue) RemoveBack() *Frame {
	if q.tail == nilNode {
		return nil
	}
	return q.Remove(q.handleOf(q.tail))
}

// Size returns the number of elements.
func (q *Queue) Size() int { return q.size }

// Frame returns the frame stored at h.
func (q *Queue) Frame(h Handle) *Frame {
	return q.nodes[q.resolve(h, "Queue.Frame")].frame
}

// Contains reports whether h refers to a live element of q.
func (q *Queue) Contains(h Handle) bool {
	idx := h.node - 1
	if idx < 0 || int(idx) >= len(q.nodes) {
		return false
	}
	n := &q.nodes[idx]
	return n.live && n.gen == h.gen
}

// Front returns the front-most frame or nil.
func (q *Queue) Front() *Frame {
	if q.head == nilNode {
		return nil
	}
	return q.nodes[q.head].frame
}

// Back returns the back-most frame or nil.
func (q *Queue) Back() *Frame {
	if q.tail == nilNode {
		return nil
	}
	return q.nodes[q.tail].frame
}

// BackHandle returns the handle of the back-most element or NilHandle.
func (q *Queue) BackHandle() Handle {
	if q.tail == nilNode {
		return NilHandle
	}
	return q.handleOf(q.tail)
}

// All yields frames from front to back. The queue must not be modified
// during iteration.
func (q *Queue) All() iter.Seq[*Frame] {
	return func(yield func(*Frame) bool) {
		for idx := q.head; idx != nilNode; idx = q.nodes[idx].next {
			if !yield(q.nodes[idx].frame) {
				return
			}
		}
	}
}

// Backward yields handles and frames from back to front. The queue must not be
// modified during iteration.
func (q *Queue) Backward() iter.Seq2[Handle, *Frame] {
	return func(yield func(Handle, *Frame) bool) {
		for idx := q.tail; idx != nilNode; idx = q.nodes[idx].prev {
			if !yield(q.handleOf(idx), q.nodes[idx].frame) {
				return
			}
		}
	}
}
