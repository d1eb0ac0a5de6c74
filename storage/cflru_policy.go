package storage

import (
	"fmt"
	"math"
)

// CFLRUPolicy is clean-first LRU: within a window at the LRU end of the list,
// clean pages are evicted before dirty ones so write-backs are deferred.
type CFLRUPolicy struct {
	m           *Manager
	q           *Queue
	windowRatio float64
	window      int
}

// NewCFLRUPolicy creates a CFLRU policy whose clean-first window covers
// windowRatio of the pool.
func NewCFLRUPolicy(windowRatio float64) *CFLRUPolicy {
	return &CFLRUPolicy{windowRatio: windowRatio}
}

func (p *CFLRUPolicy) Name() string { return "CFLRU" }

func (p *CFLRUPolicy) Description() string {
	return fmt.Sprintf("CFLRU(window=%.2f)", p.windowRatio)
}

func (p *CFLRUPolicy) Attach(m *Manager) error {
	if p.windowRatio <= 0 || p.windowRatio > 1 {
		return ErrInvalidConfig("CFLRU.Attach", "window ratio must be in (0, 1], got %g", p.windowRatio)
	}
	p.m = m
	p.q = NewQueue()
	p.window = max(1, int(math.Ceil(p.windowRatio*float64(m.Capacity()))))
	return nil
}

// Window returns the number of LRU-end frames searched for a clean victim.
func (p *CFLRUPolicy) Window() int { return p.window }

func (p *CFLRUPolicy) OnMiss(f *Frame, op AccessType) Handle {
	return p.q.InsertFront(f)
}

func (p *CFLRUPolicy) OnHit(f *Frame, op AccessType) (Handle, error) {
	invariant(f.Resident(), "CFLRU.OnHit", "ghost %s in a policy without history", f)
	return p.q.Access(f.handle), nil
}

func (p *CFLRUPolicy) OnPoolFull() error {
	vh := p.q.BackHandle()
	if !vh.Valid() {
		noVictim("CFLRU.OnPoolFull", "queue is empty")
	}
	scanned := 0
	for h, f := range p.q.Backward() {
		if scanned == p.window {
			break
		}
		scanned++
		if !f.dirty {
			vh = h
			break
		}
	}

	victim := p.q.Frame(vh)
	if err := p.m.writeBack(victim); err != nil {
		return err
	}
	p.q.Remove(vh)
	p.m.release(victim)
	p.m.forget(victim)
	return nil
}

func (p *CFLRUPolicy) OnFlush([]*Frame) {}

func (p *CFLRUPolicy) checkInvariants() error {
	if p.q.Size() != len(p.m.frames) {
		return fmt.Errorf("queue holds %d frames, manager tracks %d", p.q.Size(), len(p.m.frames))
	}
	return nil
}
