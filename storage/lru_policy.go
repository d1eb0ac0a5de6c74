package storage

import "fmt"

// LRUPolicy evicts the least recently used page and keeps no history.
type LRUPolicy struct {
	m *Manager
	q *Queue
}

// NewLRUPolicy creates an LRU policy.
func NewLRUPolicy() *LRUPolicy {
	return &LRUPolicy{}
}

func (p *LRUPolicy) Name() string        { return "LRU" }
func (p *LRUPolicy) Description() string { return "LRU" }

func (p *LRUPolicy) Attach(m *Manager) error {
	p.m = m
	p.q = NewQueue()
	return nil
}

func (p *LRUPolicy) OnMiss(f *Frame, op AccessType) Handle {
	return p.q.InsertFront(f)
}

func (p *LRUPolicy) OnHit(f *Frame, op AccessType) (Handle, error) {
	invariant(f.Resident(), "LRU.OnHit", "ghost %s in a policy without history", f)
	return p.q.Access(f.handle), nil
}

func (p *LRUPolicy) OnPoolFull() error {
	victim := p.q.Back()
	if victim == nil {
		noVictim("LRU.OnPoolFull", "queue is empty")
	}
	if err := p.m.writeBack(victim); err != nil {
		return err
	}
	p.q.RemoveBack()
	p.m.release(victim)
	p.m.forget(victim)
	return nil
}

func (p *LRUPolicy) OnFlush([]*Frame) {}

func (p *LRUPolicy) checkInvariants() error {
	if p.q.Size() != len(p.m.frames) {
		return fmt.Errorf("queue holds %d frames, manager tracks %d", p.q.Size(), len(p.m.frames))
	}
	for f := range p.q.All() {
		if !f.Resident() {
			return fmt.Errorf("non-resident %s in queue", f)
		}
	}
	return nil
}
