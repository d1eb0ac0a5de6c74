package storage

import "fmt"

// ARC categories: T1 with its ghosts B1, T2 with its ghosts B2.
const (
	arcRecent = iota
	arcFrequent
	arcCategories
)

// ARCPolicy implements the Adaptive Replacement Cache algorithm.
//   - T1: pages seen once recently; B1 remembers pages evicted from T1
//   - T2: pages seen at least twice; B2 remembers pages evicted from T2
//
// The target size p of T1 grows on B1 hits and shrinks on B2 hits, so the
// cache drifts between favouring recency and frequency.
type ARCPolicy struct {
	m        *Manager
	q        *MultiQueue
	capacity int
	p        int
	hitInB2  bool
}

// NewARCPolicy creates an ARC policy.
func NewARCPolicy() *ARCPolicy {
	return &ARCPolicy{}
}

func (a *ARCPolicy) Name() string        { return "ARC" }
func (a *ARCPolicy) Description() string { return fmt.Sprintf("ARC(p=%d)", a.p) }

func (a *ARCPolicy) Attach(m *Manager) error {
	a.m = m
	a.q = NewMultiQueue(arcCategories)
	a.capacity = m.Capacity()
	return nil
}

// Target returns the adaptive target size of T1.
func (a *ARCPolicy) Target() int { return a.p }

func (a *ARCPolicy) OnMiss(f *Frame, op AccessType) Handle {
	h := a.q.Enqueue(arcRecent, f)
	a.trimDirectory()
	return h
}

func (a *ARCPolicy) OnHit(f *Frame, op AccessType) (Handle, error) {
	h := f.handle
	cat := a.q.Route(h)
	if f.Resident() {
		if cat == arcFrequent {
			return a.q.Access(h), nil
		}
		a.q.Dequeue(h)
		return a.q.Enqueue(arcFrequent, f), nil
	}

	b1, b2 := a.q.BackSize(arcRecent), a.q.BackSize(arcFrequent)
	if cat == arcRecent {
		// Cache hit in B1: favour recency
		delta := max(1, b2/b1)
		a.p = min(a.p+delta, a.capacity)
	} else {
		// Cache hit in B2: favour frequency
		delta := max(1, b1/b2)
		a.p = max(a.p-delta, 0)
		a.hitInB2 = true
	}

	a.q.Dequeue(h)
	err := a.m.load(f, op)
	a.hitInB2 = false
	if err != nil {
		return NilHandle, err
	}
	return a.q.Enqueue(arcFrequent, f), nil
}

// OnPoolFull is ARC's REPLACE step.
func (a *ARCPolicy) OnPoolFull() error {
	t1 := a.q.FrontSize(arcRecent)
	cat := arcFrequent
	if t1 > 0 && (t1 > a.p || (a.hitInB2 && t1 == a.p) || a.q.FrontSize(arcFrequent) == 0) {
		cat = arcRecent
	}
	victim := a.q.Victim(cat)
	if victim == nil {
		noVictim("ARC.OnPoolFull", "T1 and T2 are empty")
	}
	if err := a.m.writeBack(victim); err != nil {
		return err
	}
	victim.handle = a.q.BlowOneItem(cat)
	a.m.release(victim)
	a.trimDirectory()
	return nil
}

// trimDirectory keeps |T1|+|B1| <= c and the whole directory within 2c.
func (a *ARCPolicy) trimDirectory() {
	if a.q.FrontSize(arcRecent)+a.q.BackSize(arcRecent) > a.capacity && a.q.BackSize(arcRecent) > 0 {
		a.m.forget(a.q.DequeueBack(arcRecent))
	}
	if a.q.Size() > 2*a.capacity {
		switch {
		case a.q.BackSize(arcFrequent) > 0:
			a.m.forget(a.q.DequeueBack(arcFrequent))
		case a.q.BackSize(arcRecent) > 0:
			a.m.forget(a.q.DequeueBack(arcRecent))
		}
	}
}

func (a *ARCPolicy) OnFlush([]*Frame) {}

func (a *ARCPolicy) checkInvariants() error {
	if a.q.Size() != len(a.m.frames) {
		return fmt.Errorf("router holds %d frames, manager tracks %d", a.q.Size(), len(a.m.frames))
	}
	if l1 := a.q.FrontSize(arcRecent) + a.q.BackSize(arcRecent); l1 > a.capacity {
		return fmt.Errorf("|T1|+|B1| = %d exceeds %d", l1, a.capacity)
	}
	if a.q.Size() > 2*a.capacity {
		return fmt.Errorf("directory of %d exceeds %d", a.q.Size(), 2*a.capacity)
	}
	if a.p < 0 || a.p > a.capacity {
		return fmt.Errorf("target %d out of range", a.p)
	}
	for _, f := range a.m.frames {
		if a.q.Frame(f.handle) != f || a.q.InFront(f.handle) != f.Resident() {
			return fmt.Errorf("%s is misplaced", f)
		}
	}
	return nil
}
