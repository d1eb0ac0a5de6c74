package storage

import (
	"iter"

	pair "github.com/notEpsilon/go-pair"
)

// MultiQueue routes a single handle space over several concatenated queues,
// one per policy category. Each inner basic queue occupies one route; the
// route table maps a route back to (category, inner route).
type MultiQueue struct {
	queues  []*ConcatQueue
	offsets []uint32
	routes  []pair.Pair[int, uint32]
}

// NewMultiQueue creates a router with n empty categories.
func NewMultiQueue(n int) *MultiQueue {
	invariant(n > 0, "NewMultiQueue", "need at least one category, got %d", n)
	m := &MultiQueue{
		queues:  make([]*ConcatQueue, n),
		offsets: make([]uint32, n),
	}
	for i := range m.queues {
		q := NewConcatQueue()
		m.queues[i] = q
		m.offsets[i] = uint32(len(m.routes))
		for inner := 0; inner < q.BasicQueueCount(); inner++ {
			m.routes = append(m.routes, pair.Pair[int, uint32]{First: i, Second: uint32(inner)})
		}
	}
	return m
}

// inwards translates an outer handle to (category, inner handle).
func (m *MultiQueue) inwards(h Handle, op string) (int, Handle) {
	invariant(h.Valid(), op, "nil handle")
	invariant(int(h.route) < len(m.routes), op, "route %d outside table of %d", h.route, len(m.routes))
	r := m.routes[h.route]
	return r.First, h.withRoute(r.Second)
}

// outwards translates an inner handle of category cat to an outer handle.
func (m *MultiQueue) outwards(cat int, h Handle) Handle {
	if !h.Valid() {
		return h
	}
	return h.withRoute(m.offsets[cat] + h.route)
}

func (m *MultiQueue) queue(cat int, op string) *ConcatQueue {
	invariant(cat >= 0 && cat < len(m.queues), op, "category %d outside router of %d", cat, len(m.queues))
	return m.queues[cat]
}

// Categories returns the number of categories.
func (m *MultiQueue) Categories() int { return len(m.queues) }

// Route returns the category an element at h belongs to.
func (m *MultiQueue) Route(h Handle) int {
	cat, _ := m.inwards(h, "MultiQueue.Route")
	return cat
}

// InFront reports whether h lies in the resident segment of its category.
func (m *MultiQueue) InFront(h Handle) bool {
	_, inner := m.inwards(h, "MultiQueue.InFront")
	return inner.route == segFront
}

// Enqueue inserts f at the front of category cat's resident segment.
func (m *MultiQueue) Enqueue(cat int, f *Frame) Handle {
	return m.outwards(cat, m.queue(cat, "MultiQueue.Enqueue").Enqueue(f))
}

// Dequeue removes the element at h.
func (m *MultiQueue) Dequeue(h Handle) *Frame {
	cat, inner := m.inwards(h, "MultiQueue.Dequeue")
	return m.queues[cat].Dequeue(inner)
}

// DequeueBack removes the back-most element of category cat.
func (m *MultiQueue) DequeueBack(cat int) *Frame {
	return m.queue(cat, "MultiQueue.DequeueBack").DequeueBack()
}

// Access moves the element at h to the front of its category and returns the
// new handle.
func (m *MultiQueue) Access(h Handle) Handle {
	cat, inner := m.inwards(h, "MultiQueue.Access")
	return m.outwards(cat, m.queues[cat].Access(inner))
}

// BlowOneItem moves the back-most resident element of cat into its ghost
// segment and returns the new handle.
func (m *MultiQueue) BlowOneItem(cat int) Handle {
	return m.outwards(cat, m.queue(cat, "MultiQueue.BlowOneItem").BlowOneItem())
}

// Victim returns the frame BlowOneItem(cat) would move.
func (m *MultiQueue) Victim(cat int) *Frame {
	return m.queue(cat, "MultiQueue.Victim").Victim()
}

// Frame returns the frame at h.
func (m *MultiQueue) Frame(h Handle) *Frame {
	cat, inner := m.inwards(h, "MultiQueue.Frame")
	return m.queues[cat].Frame(inner)
}

func (m *MultiQueue) FrontSize(cat int) int {
	return m.queue(cat, "MultiQueue.FrontSize").FrontSize()
}

func (m *MultiQueue) BackSize(cat int) int {
	return m.queue(cat, "MultiQueue.BackSize").BackSize()
}

// Size returns the number of elements over all categories.
func (m *MultiQueue) Size() int {
	n := 0
	for _, q := range m.queues {
		n += q.Size()
	}
	return n
}

// All yields every frame, category by category.
func (m *MultiQueue) All() iter.Seq[*Frame] {
	return func(yield func(*Frame) bool) {
		for _, q := range m.queues {
			for f := range q.All() {
				if !yield(f) {
					return
				}
			}
		}
	}
}
