package storage

// SlotPool is a fixed set of page-sized data slots carved from one buffer.
// Free slots form a singly linked list through nextFree.
type SlotPool struct {
	pageSize int
	data     []byte
	nextFree []int
	freeHead int
	inUse    int
	onFull   func() error
}

// NewSlotPool allocates npages slots of pageSize bytes. onFull is called when
// AllocSlot finds no free slot and must free at least one.
func NewSlotPool(npages, pageSize int, onFull func() error) *SlotPool {
	p := &SlotPool{
		pageSize: pageSize,
		data:     make([]byte, npages*pageSize),
		nextFree: make([]int, npages),
		freeHead: NoSlot,
		onFull:   onFull,
	}
	for i := npages - 1; i >= 0; i-- {
		p.nextFree[i] = p.freeHead
		p.freeHead = i
	}
	return p
}

// AllocSlot hands out a free slot, invoking the exhaustion callback first if
// none is left. Errors from the callback are returned unchanged.
func (p *SlotPool) AllocSlot() (int, error) {
	if p.freeHead == NoSlot {
		invariant(p.onFull != nil, "AllocSlot", "pool of %d slots exhausted and no callback set", len(p.nextFree))
		if err := p.onFull(); err != nil {
			return NoSlot, err
		}
		invariant(p.freeHead != NoSlot, "AllocSlot", "exhaustion callback freed no slot")
	}

	slot := p.freeHead
	p.freeHead = p.nextFree[slot]
	p.nextFree[slot] = NoSlot
	p.inUse++
	return slot, nil
}

// FreeSlot returns slot to the free list. The pool does not detect double frees.
func (p *SlotPool) FreeSlot(slot int) {
	invariant(slot >= 0 && slot < len(p.nextFree), "FreeSlot", "slot %d out of range", slot)
	p.nextFree[slot] = p.freeHead
	p.freeHead = slot
	p.inUse--
}

// Slot returns the bytes of slot. The slice aliases pool memory.
func (p *SlotPool) Slot(slot int) []byte {
	off := slot * p.pageSize
	return p.data[off : off+p.pageSize : off+p.pageSize]
}

func (p *SlotPool) NPages() int { return len(p.nextFree) }
func (p *SlotPool) PageSize() int { return p.pageSize }
func (p *SlotPool) InUse() int { return p.inUse }
func (p *SlotPool) FreeCount() int { return len(p.nextFree) - p.inUse }
