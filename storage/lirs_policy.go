package storage

import (
	"fmt"
	"math"
)

// lirsEntry is the per-frame state of LIRSPolicy.
type lirsEntry struct {
	lir bool
	sH  Handle // recency stack
	qH  Handle // resident HIR queue
	gH  Handle // ghost list
}

// LIRSPolicy implements Low Inter-reference Recency Set replacement.
//
// The stack S orders frames by recency and keeps an LIR frame at its bottom.
// Q holds every resident HIR frame; its back is the next victim. Evicted HIR
// frames that are still in S stay as ghosts; G bounds their number, oldest
// ghost first.
type LIRSPolicy struct {
	m          *Manager
	hirRatio   float64
	ghostRatio float64
	lirLimit   int
	hirLimit   int
	ghostLimit int
	lirCount   int
	s          *Queue
	q          *Queue
	g          *Queue
}

// NewLIRSPolicy creates a LIRS policy. hirRatio is the share of the pool
// reserved for HIR frames; ghostRatio bounds non-resident history relative to
// the pool size.
func NewLIRSPolicy(hirRatio, ghostRatio float64) *LIRSPolicy {
	return &LIRSPolicy{hirRatio: hirRatio, ghostRatio: ghostRatio}
}

func (p *LIRSPolicy) Name() string { return "LIRS" }

func (p *LIRSPolicy) Description() string {
	return fmt.Sprintf("LIRS(hir=%.2f, ghost=%.2f)", p.hirRatio, p.ghostRatio)
}

func (p *LIRSPolicy) Attach(m *Manager) error {
	n := m.Capacity()
	if n < 2 {
		return ErrInvalidConfig("LIRS.Attach", "need at least 2 pages, got %d", n)
	}
	if p.hirRatio <= 0 || p.hirRatio >= 1 {
		return ErrInvalidConfig("LIRS.Attach", "hir ratio must be in (0, 1), got %g", p.hirRatio)
	}
	if p.ghostRatio < 0 {
		return ErrInvalidConfig("LIRS.Attach", "ghost ratio must not be negative, got %g", p.ghostRatio)
	}
	p.m = m
	p.hirLimit = min(n-1, max(1, int(math.Ceil(p.hirRatio*float64(n)))))
	p.lirLimit = n - p.hirLimit
	p.ghostLimit = int(p.ghostRatio * float64(n))
	p.s, p.q, p.g = NewQueue(), NewQueue(), NewQueue()
	return nil
}

// Limits returns the LIR set size and the resident HIR share.
func (p *LIRSPolicy) Limits() (lir, hir int) { return p.lirLimit, p.hirLimit }

func lirsOf(f *Frame) *lirsEntry { return f.aux.(*lirsEntry) }

func (p *LIRSPolicy) toStackTop(f *Frame, e *lirsEntry) {
	if e.sH.Valid() {
		p.s.Access(e.sH)
		return
	}
	e.sH = p.s.InsertFront(f)
}

func (p *LIRSPolicy) removeFromStack(e *lirsEntry) {
	p.s.Remove(e.sH)
	e.sH = NilHandle
}

// prune removes HIR frames from the bottom of the stack until an LIR frame
// is there. Ghosts pruned this way are forgotten.
func (p *LIRSPolicy) prune() {
	for p.s.Size() > 0 {
		b := p.s.Back()
		e := lirsOf(b)
		if e.lir {
			return
		}
		p.removeFromStack(e)
		if !b.Resident() {
			p.g.Remove(e.gH)
			e.gH = NilHandle
			p.m.forget(b)
		}
	}
}

// demote turns the bottom LIR frame into a resident HIR frame.
func (p *LIRSPolicy) demote() {
	b := p.s.Back()
	e := lirsOf(b)
	invariant(e.lir, "LIRS.demote", "stack bottom %s is not LIR", b)
	e.lir = false
	p.lirCount--
	p.removeFromStack(e)
	e.qH = p.q.InsertFront(b)
	p.prune()
}

func (p *LIRSPolicy) promote(e *lirsEntry) {
	e.lir = true
	p.lirCount++
	if p.lirCount > p.lirLimit {
		p.demote()
	}
}

func (p *LIRSPolicy) OnMiss(f *Frame, op AccessType) Handle {
	e := &lirsEntry{}
	f.aux = e
	p.toStackTop(f, e)
	if p.lirCount < p.lirLimit {
		e.lir = true
		p.lirCount++
	} else {
		e.qH = p.q.InsertFront(f)
	}
	return e.sH
}

func (p *LIRSPolicy) OnHit(f *Frame, op AccessType) (Handle, error) {
	e := lirsOf(f)
	switch {
	case f.Resident() && e.lir:
		bottom := p.s.BackHandle() == e.sH
		p.s.Access(e.sH)
		if bottom {
			p.prune()
		}

	case f.Resident() && e.sH.Valid():
		// HIR with a short reuse distance becomes LIR.
		p.s.Access(e.sH)
		p.q.Remove(e.qH)
		e.qH = NilHandle
		p.promote(e)

	case f.Resident():
		e.sH = p.s.InsertFront(f)
		p.q.Access(e.qH)

	default:
		p.g.Remove(e.gH)
		e.gH = NilHandle
		if err := p.m.load(f, op); err != nil {
			p.removeFromStack(e)
			f.aux = nil
			return NilHandle, err
		}
		p.s.Access(e.sH)
		p.promote(e)
	}
	return e.sH, nil
}

func (p *LIRSPolicy) OnPoolFull() error {
	victim := p.q.Back()
	if victim == nil {
		noVictim("LIRS.OnPoolFull", "no resident HIR frame")
	}
	if err := p.m.writeBack(victim); err != nil {
		return err
	}
	e := lirsOf(victim)
	p.q.Remove(e.qH)
	e.qH = NilHandle
	p.m.release(victim)

	if !e.sH.Valid() {
		p.m.forget(victim)
		return nil
	}
	e.gH = p.g.InsertFront(victim)
	if p.g.Size() > p.ghostLimit {
		old := p.g.RemoveBack()
		oe := lirsOf(old)
		oe.gH = NilHandle
		p.removeFromStack(oe)
		p.m.forget(old)
	}
	return nil
}

func (p *LIRSPolicy) OnFlush([]*Frame) {}

func (p *LIRSPolicy) checkInvariants() error {
	lir := 0
	for _, f := range p.m.frames {
		e := lirsOf(f)
		switch {
		case e.lir:
			lir++
			if !f.Resident() || !e.sH.Valid() || e.qH.Valid() {
				return fmt.Errorf("LIR %s must be resident, in S and not in Q", f)
			}
		case f.Resident():
			if !e.qH.Valid() || e.gH.Valid() {
				return fmt.Errorf("resident HIR %s must be in Q only", f)
			}
		default:
			if !e.sH.Valid() || !e.gH.Valid() || e.qH.Valid() {
				return fmt.Errorf("ghost %s must be in S and G only", f)
			}
		}
	}
	if lir != p.lirCount || lir > p.lirLimit {
		return fmt.Errorf("%d LIR frames, counter %d, limit %d", lir, p.lirCount, p.lirLimit)
	}
	if p.g.Size() > p.ghostLimit {
		return fmt.Errorf("%d ghosts exceed limit %d", p.g.Size(), p.ghostLimit)
	}
	if b := p.s.Back(); b != nil && !lirsOf(b).lir {
		return fmt.Errorf("stack bottom %s is not LIR", b)
	}
	return nil
}
