package storage

import (
	"fmt"
	"math"
)

// 2Q categories: A1in with its A1out ghosts, and the main LRU queue Am.
const (
	twoQIn = iota
	twoQMain
	twoQCategories
)

// TwoQPolicy implements the full 2Q algorithm. First-time pages enter the
// A1in FIFO; pages evicted from it are remembered in A1out, and a page that is
// referenced again while remembered is promoted to the Am LRU queue.
//
// Recommended ratios: Kin = 25% of the pool, Kout = 50%.
type TwoQPolicy struct {
	m         *Manager
	q         *MultiQueue
	kinRatio  float64
	koutRatio float64
	kin       int
	kout      int
}

// NewTwoQPolicy creates a 2Q policy with the given A1in and A1out ratios.
func NewTwoQPolicy(kinRatio, koutRatio float64) *TwoQPolicy {
	return &TwoQPolicy{kinRatio: kinRatio, koutRatio: koutRatio}
}

func (p *TwoQPolicy) Name() string { return "2Q" }

func (p *TwoQPolicy) Description() string {
	return fmt.Sprintf("2Q(kin=%.2f, kout=%.2f)", p.kinRatio, p.koutRatio)
}

func (p *TwoQPolicy) Attach(m *Manager) error {
	if p.kinRatio <= 0 || p.kinRatio >= 1 {
		return ErrInvalidConfig("2Q.Attach", "kin ratio must be in (0, 1), got %g", p.kinRatio)
	}
	if p.koutRatio < 0 {
		return ErrInvalidConfig("2Q.Attach", "kout ratio must not be negative, got %g", p.koutRatio)
	}
	n := m.Capacity()
	p.m = m
	p.q = NewMultiQueue(twoQCategories)
	p.kin = max(1, int(math.Floor(p.kinRatio*float64(n))))
	p.kout = int(math.Floor(p.koutRatio * float64(n)))
	return nil
}

func (p *TwoQPolicy) OnMiss(f *Frame, op AccessType) Handle {
	return p.q.Enqueue(twoQIn, f)
}

func (p *TwoQPolicy) OnHit(f *Frame, op AccessType) (Handle, error) {
	h := f.handle
	switch {
	case p.q.Route(h) == twoQMain:
		return p.q.Access(h), nil
	case f.Resident():
		// A1in is FIFO; hits there do not reorder.
		return h, nil
	}

	p.q.Dequeue(h)
	if err := p.m.load(f, op); err != nil {
		return NilHandle, err
	}
	return p.q.Enqueue(twoQMain, f), nil
}

func (p *TwoQPolicy) OnPoolFull() error {
	cat := twoQMain
	if p.q.FrontSize(twoQIn) > p.kin || p.q.FrontSize(twoQMain) == 0 {
		cat = twoQIn
	}
	victim := p.q.Victim(cat)
	if victim == nil {
		noVictim("2Q.OnPoolFull", "both queues are empty")
	}
	if err := p.m.writeBack(victim); err != nil {
		return err
	}

	if cat == twoQIn {
		victim.handle = p.q.BlowOneItem(twoQIn)
		p.m.release(victim)
		if p.q.BackSize(twoQIn) > p.kout {
			p.m.forget(p.q.DequeueBack(twoQIn))
		}
		return nil
	}

	p.q.Dequeue(victim.handle)
	p.m.release(victim)
	p.m.forget(victim)
	return nil
}

func (p *TwoQPolicy) OnFlush([]*Frame) {}

func (p *TwoQPolicy) checkInvariants() error {
	if p.q.Size() != len(p.m.frames) {
		return fmt.Errorf("router holds %d frames, manager tracks %d", p.q.Size(), len(p.m.frames))
	}
	if p.q.BackSize(twoQMain) != 0 {
		return fmt.Errorf("Am has %d ghosts", p.q.BackSize(twoQMain))
	}
	if p.q.BackSize(twoQIn) > p.kout {
		return fmt.Errorf("A1out holds %d entries, limit %d", p.q.BackSize(twoQIn), p.kout)
	}
	for _, f := range p.m.frames {
		if p.q.Frame(f.handle) != f || p.q.InFront(f.handle) != f.Resident() {
			return fmt.Errorf("%s is misplaced", f)
		}
	}
	return nil
}
