package storage

import "fmt"

// Tn categories. Each is a concatenated queue whose back segment holds the
// category's ghosts.
const (
	tnClean = iota
	tnDirty
	tnSingle
	tnCategories
)

// TnConfig tunes the segmented adaptive policy. The zero value is the plain
// two-category variant: no single-access segment and no optional adjustments.
type TnConfig struct {
	// AdjustDRWhenReadInDR refreshes recency of resident dirty pages on reads.
	AdjustDRWhenReadInDR bool
	// EnlargeCRWhenReadInDNR grows the clean limit on reads of dirty ghosts.
	EnlargeCRWhenReadInDNR bool
	// SRLimit is the resident share of the single-access segment. Zero disables it.
	SRLimit uint32
	// SNRLimit bounds the ghosts kept for the single-access segment.
	SNRLimit uint32
	// PickOffSRWhenHitInSR moves resident single-access pages out on a hit.
	PickOffSRWhenHitInSR bool
}

// TnPolicy keeps clean, dirty and single-access pages in separate segments.
// The clean limit adapts: a ghost hit in clean history grows it by one and a
// ghost write hit in dirty history shrinks it by kickN, the write/read cost
// ratio. The dirty limit takes the rest of the pool.
type TnPolicy struct {
	m        *Manager
	q        *MultiQueue
	conf     TnConfig
	kickN    uint32
	npages   uint32
	crLimit  uint32
	cnrLimit uint32
	dnrLimit uint32
}

// NewTnPolicy creates a Tn policy. kickN is how far a dirty ghost write hit
// shrinks the clean limit.
func NewTnPolicy(kickN uint32, conf TnConfig) *TnPolicy {
	return &TnPolicy{kickN: kickN, conf: conf}
}

func (p *TnPolicy) Name() string { return "Tn" }

func (p *TnPolicy) Description() string {
	return fmt.Sprintf("NPages=%d,KickN=%d,AdjustDR=%d,EnlargeCR=%d,SRLimit=%d,SNRLimit=%d,KickOffSR=%d",
		p.npages, p.kickN,
		b2i(p.conf.AdjustDRWhenReadInDR),
		b2i(p.conf.EnlargeCRWhenReadInDNR),
		p.conf.SRLimit, p.conf.SNRLimit,
		b2i(p.conf.PickOffSRWhenHitInSR))
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (p *TnPolicy) Attach(m *Manager) error {
	n := uint32(m.Capacity())
	if p.conf.SRLimit > n {
		return ErrInvalidConfig("Tn.Attach", "single limit %d exceeds %d pages", p.conf.SRLimit, n)
	}
	p.m = m
	p.q = NewMultiQueue(tnCategories)
	p.npages = n
	p.crLimit = min(n/2, n-p.conf.SRLimit)
	p.cnrLimit = n / 2
	p.dnrLimit = n / 2
	return nil
}

// CRLimit is the current resident target of the clean segment.
func (p *TnPolicy) CRLimit() uint32 { return p.crLimit }

// DRLimit is the resident target of the dirty segment.
func (p *TnPolicy) DRLimit() uint32 { return p.npages - p.crLimit - p.conf.SRLimit }

func (p *TnPolicy) srLimit() uint32 { return p.conf.SRLimit }

// enlargeCRLimit moves the clean limit by delta, clamped to [0, N-SRLimit].
func (p *TnPolicy) enlargeCRLimit(delta int) {
	limit := int64(p.crLimit) + int64(delta)
	limit = max(0, min(limit, int64(p.npages-p.conf.SRLimit)))
	p.crLimit = uint32(limit)
}

// reload detaches a ghost, makes it resident and enqueues it into cat.
func (p *TnPolicy) reload(f *Frame, op AccessType, cat int) (Handle, error) {
	p.q.Dequeue(f.handle)
	if err := p.m.load(f, op); err != nil {
		return NilHandle, err
	}
	return p.q.Enqueue(cat, f), nil
}

func (p *TnPolicy) OnMiss(f *Frame, op AccessType) Handle {
	if p.conf.SRLimit == 0 {
		if op == AccessRead {
			return p.q.Enqueue(tnClean, f)
		}
		return p.q.Enqueue(tnDirty, f)
	}
	return p.q.Enqueue(tnSingle, f)
}

func (p *TnPolicy) OnHit(f *Frame, op AccessType) (Handle, error) {
	h := f.handle
	cat := p.q.Route(h)
	resident := f.Resident()
	isRead := op == AccessRead

	switch {
	case cat == tnClean && isRead:
		if resident {
			return p.q.Access(h), nil
		}
		p.enlargeCRLimit(1)
		return p.reload(f, op, tnClean)

	case cat == tnClean:
		if resident {
			p.q.Dequeue(h)
			return p.q.Enqueue(tnDirty, f), nil
		}
		return p.reload(f, op, tnDirty)

	case cat == tnDirty && isRead:
		if resident {
			if p.conf.AdjustDRWhenReadInDR {
				return p.q.Access(h), nil
			}
			return h, nil
		}
		if p.conf.EnlargeCRWhenReadInDNR {
			p.enlargeCRLimit(1)
		}
		return p.reload(f, op, tnClean)

	case cat == tnDirty:
		if resident {
			return p.q.Access(h), nil
		}
		p.enlargeCRLimit(-int(p.kickN))
		return p.reload(f, op, tnDirty)

	case cat == tnSingle && resident:
		if !p.conf.PickOffSRWhenHitInSR {
			return h, nil
		}
		p.q.Dequeue(h)
		if isRead {
			return p.q.Enqueue(tnClean, f), nil
		}
		return p.q.Enqueue(tnDirty, f), nil

	case cat == tnSingle:
		if isRead {
			return p.reload(f, op, tnClean)
		}
		return p.reload(f, op, tnDirty)
	}

	invariant(false, "Tn.OnHit", "unreachable: category %d, resident %t, %s", cat, resident, op)
	return NilHandle, nil
}

// victimCategory applies the eviction order: over-limit clean, dirty, single,
// then any clean, any dirty, and finally single.
func (p *TnPolicy) victimCategory() int {
	switch {
	case uint32(p.q.FrontSize(tnClean)) > p.crLimit:
		return tnClean
	case uint32(p.q.FrontSize(tnDirty)) > p.DRLimit():
		return tnDirty
	case uint32(p.q.FrontSize(tnSingle)) > p.srLimit():
		return tnSingle
	case p.q.FrontSize(tnClean) != 0:
		return tnClean
	case p.q.FrontSize(tnDirty) != 0:
		return tnDirty
	default:
		return tnSingle
	}
}

func (p *TnPolicy) OnPoolFull() error {
	cat := p.victimCategory()
	victim := p.q.Victim(cat)
	if victim == nil {
		noVictim("Tn.OnPoolFull", "every resident segment is empty")
	}
	if err := p.m.writeBack(victim); err != nil {
		return err
	}
	victim.handle = p.q.BlowOneItem(cat)
	p.m.release(victim)

	p.trimGhosts(tnClean, p.cnrLimit)
	p.trimGhosts(tnDirty, p.dnrLimit)
	p.trimGhosts(tnSingle, p.conf.SNRLimit)
	return nil
}

func (p *TnPolicy) trimGhosts(cat int, limit uint32) {
	if uint32(p.q.BackSize(cat)) > limit {
		p.m.forget(p.q.DequeueBack(cat))
	}
}

// OnFlush moves cleaned pages out of the dirty segment into the clean one.
func (p *TnPolicy) OnFlush(flushed []*Frame) {
	for _, f := range flushed {
		if p.q.Route(f.handle) == tnDirty {
			p.q.Dequeue(f.handle)
			f.handle = p.q.Enqueue(tnClean, f)
		}
	}
}

func (p *TnPolicy) checkInvariants() error {
	if p.q.Size() != len(p.m.frames) {
		return fmt.Errorf("router holds %d frames, manager tracks %d", p.q.Size(), len(p.m.frames))
	}
	for _, f := range p.m.frames {
		if p.q.Frame(f.handle) != f {
			return fmt.Errorf("handle of %s points elsewhere", f)
		}
		if p.q.InFront(f.handle) != f.Resident() {
			return fmt.Errorf("%s is in the wrong segment", f)
		}
	}
	if p.crLimit > p.npages-p.conf.SRLimit {
		return fmt.Errorf("clean limit %d out of range", p.crLimit)
	}
	if uint32(p.q.BackSize(tnClean)) > p.cnrLimit ||
		uint32(p.q.BackSize(tnDirty)) > p.dnrLimit ||
		uint32(p.q.BackSize(tnSingle)) > p.conf.SNRLimit {
		return fmt.Errorf("ghost segment over limit")
	}
	return nil
}
