package storage

import "fmt"

// NoSlot marks a frame that holds no page data (a ghost).
const NoSlot = -1

// AccessType distinguishes read and write requests.
type AccessType uint8

const (
	AccessRead AccessType = iota
	AccessWrite
)

func (a AccessType) String() string {
	if a == AccessWrite {
		return "write"
	}
	return "read"
}

// Frame is the per-page metadata tracked by a buffer manager. A frame is
// created on first reference and lives until its policy forgets the page.
type Frame struct {
	id     uint32
	slot   int
	dirty  bool
	handle Handle
	aux    any // policy-owned state
}

func newFrame(id uint32) *Frame {
	return &Frame{id: id, slot: NoSlot}
}

// ID returns the page id.
func (f *Frame) ID() uint32 { return f.id }

// Slot returns the index of the data slot holding the page, or NoSlot.
func (f *Frame) Slot() int { return f.slot }

// Resident reports whether the page currently occupies a slot.
func (f *Frame) Resident() bool { return f.slot != NoSlot }

// Dirty reports whether the slot holds data newer than the device copy.
func (f *Frame) Dirty() bool { return f.dirty }

// Handle returns the frame's position in its policy's primary queue.
func (f *Frame) Handle() Handle { return f.handle }

func (f *Frame) String() string {
	return fmt.Sprintf("Frame{id=%d, dirty=%t, slot=%d}", f.id, f.dirty, f.slot)
}

// Handle is an opaque position inside a queue. Handles index into the node
// arena of a basic queue; the route field selects the basic queue inside a
// concatenated queue or a multi-queue router. A handle is invalidated when the
// frame moves; using it afterwards panics.
type Handle struct {
	route uint32
	node  int32 // arena index + 1, zero means nil
	gen   uint32
}

// NilHandle refers to no position.
var NilHandle = Handle{}

// Valid reports whether h refers to a position.
func (h Handle) Valid() bool { return h.node != 0 }

// Route returns the basic-queue route index of h.
func (h Handle) Route() uint32 { return h.route }

func (h Handle) withRoute(route uint32) Handle {
	h.route = route
	return h
}

func (h Handle) String() string {
	if !h.Valid() {
		return "Handle{nil}"
	}
	return fmt.Sprintf("Handle{route=%d, node=%d, gen=%d}", h.route, h.node-1, h.gen)
}
