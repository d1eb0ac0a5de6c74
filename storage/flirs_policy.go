package storage

import (
	"fmt"
	"math"
)

// flirsStack is a recency stack of one access type and the number of its LIR
// entries.
type flirsStack struct {
	q   *Queue
	lir int
}

// flirsEntry is the per-frame state of FLIRSPolicy. h and lir are indexed by
// AccessType.
type flirsEntry struct {
	h    [2]Handle
	lir  [2]bool
	held bool
	qH   Handle // resident HIR queue
	gH   Handle // ghost list
}

func (e *flirsEntry) stacked() bool { return e.h[AccessRead].Valid() || e.h[AccessWrite].Valid() }

// FLIRSPolicy is LIRS with separate read and write recency stacks.
//
// A page re-read while still in the read stack becomes read-LIR. A page
// rewritten while still in the write stack becomes write-LIR, which protects
// it until it is flushed. Resident pages that are neither sit in Q, whose
// back is the next victim. When too many pages are protected, the bottom
// LIR entry of one stack is demoted: the write stack gives one up when it is
// longer than the read stack scaled by the write/read cost ratio.
type FLIRSPolicy struct {
	m          *Manager
	ratio      float64
	hirRatio   float64
	ghostRatio float64
	lirLimit   int
	hirLimit   int
	ghostLimit int
	held       int
	stacks     [2]flirsStack
	q          *Queue
	g          *Queue
}

// NewFLIRSPolicy creates a read/write-aware LIRS policy. ratio is the write to
// read cost ratio; hirRatio and ghostRatio are as for NewLIRSPolicy.
func NewFLIRSPolicy(ratio, hirRatio, ghostRatio float64) *FLIRSPolicy {
	return &FLIRSPolicy{ratio: ratio, hirRatio: hirRatio, ghostRatio: ghostRatio}
}

func (p *FLIRSPolicy) Name() string { return "FLIRS" }

func (p *FLIRSPolicy) Description() string {
	return fmt.Sprintf("FLIRS(ratio=%.2f, hir=%.2f, ghost=%.2f)", p.ratio, p.hirRatio, p.ghostRatio)
}

func (p *FLIRSPolicy) Attach(m *Manager) error {
	n := m.Capacity()
	if n < 2 {
		return ErrInvalidConfig("FLIRS.Attach", "need at least 2 pages, got %d", n)
	}
	if !(p.ratio > 0) || math.IsInf(p.ratio, 0) {
		return ErrInvalidConfig("FLIRS.Attach", "cost ratio must be positive, got %g", p.ratio)
	}
	if p.hirRatio <= 0 || p.hirRatio >= 1 {
		return ErrInvalidConfig("FLIRS.Attach", "hir ratio must be in (0, 1), got %g", p.hirRatio)
	}
	if p.ghostRatio < 0 {
		return ErrInvalidConfig("FLIRS.Attach", "ghost ratio must not be negative, got %g", p.ghostRatio)
	}
	p.m = m
	p.hirLimit = min(n-1, max(1, int(math.Ceil(p.hirRatio*float64(n)))))
	p.lirLimit = n - p.hirLimit
	p.ghostLimit = int(p.ghostRatio * float64(n))
	p.stacks = [2]flirsStack{{q: NewQueue()}, {q: NewQueue()}}
	p.q, p.g = NewQueue(), NewQueue()
	return nil
}

// Limits returns the protected set size and the resident HIR share.
func (p *FLIRSPolicy) Limits() (lir, hir int) { return p.lirLimit, p.hirLimit }

// StackSizes returns the lengths of the read and write stacks.
func (p *FLIRSPolicy) StackSizes() (reads, writes int) {
	return p.stacks[AccessRead].q.Size(), p.stacks[AccessWrite].q.Size()
}

func flirsOf(f *Frame) *flirsEntry { return f.aux.(*flirsEntry) }

// reference moves f to the top of the op stack. A page already in that stack
// becomes LIR there.
func (p *FLIRSPolicy) reference(f *Frame, e *flirsEntry, op AccessType, lir bool) {
	st := &p.stacks[op]
	if e.h[op].Valid() {
		st.q.Access(e.h[op])
		lir = true
	} else {
		e.h[op] = st.q.InsertFront(f)
	}
	if lir && !e.lir[op] {
		e.lir[op] = true
		st.lir++
	}
	p.prune(op)
}

// prune removes non-LIR entries from the bottom of the op stack until an LIR
// entry is there. A stack without LIR entries keeps its history. Ghosts that
// leave both stacks are forgotten.
func (p *FLIRSPolicy) prune(op AccessType) {
	st := &p.stacks[op]
	if st.lir == 0 {
		return
	}
	for {
		h := st.q.BackHandle()
		b := st.q.Frame(h)
		e := flirsOf(b)
		if e.lir[op] {
			return
		}
		st.q.Remove(h)
		e.h[op] = NilHandle
		if !b.Resident() && !e.stacked() {
			p.g.Remove(e.gH)
			e.gH = NilHandle
			p.m.forget(b)
		}
	}
}

func (p *FLIRSPolicy) unstack(e *flirsEntry) {
	for op := range e.h {
		if e.h[op].Valid() {
			p.stacks[op].q.Remove(e.h[op])
			e.h[op] = NilHandle
		}
	}
}

// settle puts a resident frame in Q or takes it out, depending on whether it
// holds an LIR bit.
func (p *FLIRSPolicy) settle(f *Frame, e *flirsEntry) {
	held := e.lir[AccessRead] || e.lir[AccessWrite]
	if held == e.held && (held || e.qH.Valid()) {
		return
	}
	if held {
		if e.qH.Valid() {
			p.q.Remove(e.qH)
			e.qH = NilHandle
		}
		p.held++
	} else {
		if e.held {
			p.held--
		}
		e.qH = p.q.InsertFront(f)
	}
	e.held = held
}

// costlier picks the stack that gives up an LIR entry.
func (p *FLIRSPolicy) costlier() AccessType {
	r, w := &p.stacks[AccessRead], &p.stacks[AccessWrite]
	if w.lir > 0 && (r.lir == 0 || float64(w.q.Size()) > float64(r.q.Size())*p.ratio) {
		return AccessWrite
	}
	return AccessRead
}

// tidy demotes bottom LIR entries until the protected set fits its limit.
func (p *FLIRSPolicy) tidy() {
	for p.held > p.lirLimit {
		op := p.costlier()
		st := &p.stacks[op]
		b := st.q.Back()
		e := flirsOf(b)
		invariant(e.lir[op], "FLIRS.tidy", "%s stack bottom %s is not LIR", op, b)
		e.lir[op] = false
		st.lir--
		st.q.Remove(e.h[op])
		e.h[op] = NilHandle
		p.prune(op)
		p.settle(b, e)
	}
}

func (p *FLIRSPolicy) OnMiss(f *Frame, op AccessType) Handle {
	e := &flirsEntry{}
	f.aux = e
	p.reference(f, e, op, p.held < p.lirLimit)
	p.settle(f, e)
	return e.h[op]
}

func (p *FLIRSPolicy) OnHit(f *Frame, op AccessType) (Handle, error) {
	e := flirsOf(f)
	switch {
	case !f.Resident():
		p.g.Remove(e.gH)
		e.gH = NilHandle
		// Ghost entries hold no LIR bit, so eviction during load cannot prune them.
		if err := p.m.load(f, op); err != nil {
			p.unstack(e)
			f.aux = nil
			return NilHandle, err
		}
	case e.qH.Valid():
		p.q.Access(e.qH)
	}
	p.reference(f, e, op, false)
	p.settle(f, e)
	p.tidy()
	return e.h[op], nil
}

func (p *FLIRSPolicy) OnPoolFull() error {
	victim := p.q.Back()
	if victim == nil {
		noVictim("FLIRS.OnPoolFull", "no resident HIR frame")
	}
	if err := p.m.writeBack(victim); err != nil {
		return err
	}
	e := flirsOf(victim)
	p.q.Remove(e.qH)
	e.qH = NilHandle
	p.m.release(victim)

	if !e.stacked() {
		p.m.forget(victim)
		return nil
	}
	e.gH = p.g.InsertFront(victim)
	if p.g.Size() > p.ghostLimit {
		old := p.g.RemoveBack()
		oe := flirsOf(old)
		oe.gH = NilHandle
		p.unstack(oe)
		p.m.forget(old)
	}
	return nil
}

// OnFlush drops the write-LIR bit of cleaned pages.
func (p *FLIRSPolicy) OnFlush(flushed []*Frame) {
	w := &p.stacks[AccessWrite]
	for _, f := range flushed {
		e := flirsOf(f)
		if !e.lir[AccessWrite] {
			continue
		}
		e.lir[AccessWrite] = false
		w.lir--
		p.settle(f, e)
	}
	p.prune(AccessWrite)
}

func (p *FLIRSPolicy) checkInvariants() error {
	held, queued := 0, 0
	var lir, entries [2]int
	for _, f := range p.m.frames {
		e := flirsOf(f)
		for op := range e.h {
			if e.h[op].Valid() {
				entries[op]++
			}
			if !e.lir[op] {
				continue
			}
			lir[op]++
			if !f.Resident() || !e.h[op].Valid() {
				return fmt.Errorf("%s-LIR %s must be resident and in its stack", AccessType(op), f)
			}
		}
		if e.lir[AccessWrite] && !f.Dirty() {
			return fmt.Errorf("write-LIR %s is clean", f)
		}
		switch {
		case e.held:
			held++
			if !e.lir[AccessRead] && !e.lir[AccessWrite] || e.qH.Valid() {
				return fmt.Errorf("protected %s must hold an LIR bit and not be in Q", f)
			}
		case f.Resident():
			queued++
			if !e.qH.Valid() || e.gH.Valid() || e.lir[AccessRead] || e.lir[AccessWrite] {
				return fmt.Errorf("resident HIR %s must be in Q only", f)
			}
		default:
			if !e.stacked() || !e.gH.Valid() || e.qH.Valid() {
				return fmt.Errorf("ghost %s must be in a stack and G only", f)
			}
		}
	}
	if held != p.held || held > p.lirLimit {
		return fmt.Errorf("%d protected frames, counter %d, limit %d", held, p.held, p.lirLimit)
	}
	if queued != p.q.Size() {
		return fmt.Errorf("%d resident HIR frames, Q holds %d", queued, p.q.Size())
	}
	if p.g.Size() > p.ghostLimit {
		return fmt.Errorf("%d ghosts exceed limit %d", p.g.Size(), p.ghostLimit)
	}
	for op := range p.stacks {
		st := &p.stacks[op]
		if lir[op] != st.lir || entries[op] != st.q.Size() {
			return fmt.Errorf("%s stack: %d LIR of %d entries, counters %d of %d",
				AccessType(op), lir[op], entries[op], st.lir, st.q.Size())
		}
		if b := st.q.Back(); st.lir > 0 && !flirsOf(b).lir[op] {
			return fmt.Errorf("%s stack bottom %s is not LIR", AccessType(op), b)
		}
	}
	return nil
}
