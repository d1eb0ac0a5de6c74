package storage

import (
	"fmt"
	"slices"
)

// BlowerConfig tunes BlowerPolicy.
type BlowerConfig struct {
	// ScanCredit is the quota granted for every write-list step of the victim
	// scan; each read-list step costs one unit.
	ScanCredit int
	// ReadWindowStep is subtracted from the quota when a read hits the read window.
	ReadWindowStep int
	// WriteWindowStep is added to the quota when a write hits the write window.
	WriteWindowStep int
}

// DefaultBlowerConfig scans three read candidates per write candidate and
// leaves the window adjustments off.
func DefaultBlowerConfig() BlowerConfig {
	return BlowerConfig{ScanCredit: 3}
}

// BlowerPolicy keeps separate recency lists of page ids for reads and
// writes. The victim scan walks both lists from their old ends, alternating
// by a quota: a non-negative quota scans the read list, a negative one the
// write list. A page found in the unscanned part of the other list is skipped.
//
// History is never forgotten.
type BlowerPolicy struct {
	m          *Manager
	conf       BlowerConfig
	readQueue  []uint32 // index 0 is the most recent
	writeQueue []uint32
	windowSize int
	quota      int
}

// NewBlowerPolicy creates a Blower policy.
func NewBlowerPolicy(conf BlowerConfig) *BlowerPolicy {
	return &BlowerPolicy{conf: conf}
}

func (p *BlowerPolicy) Name() string { return "Blower" }

func (p *BlowerPolicy) Description() string {
	return fmt.Sprintf("Blower(credit=%d, readStep=%d, writeStep=%d)",
		p.conf.ScanCredit, p.conf.ReadWindowStep, p.conf.WriteWindowStep)
}

func (p *BlowerPolicy) Attach(m *Manager) error {
	if p.conf.ScanCredit <= 0 {
		return ErrInvalidConfig("Blower.Attach", "scan credit must be positive, got %d", p.conf.ScanCredit)
	}
	p.m = m
	p.windowSize = m.Capacity() / 2
	return nil
}

// Quota returns the current scan quota.
func (p *BlowerPolicy) Quota() int { return p.quota }

func (p *BlowerPolicy) lastIndexOfResident(list []uint32) int {
	for i := len(list) - 1; i >= 0; i-- {
		if p.m.frames[list[i]].Resident() {
			return i
		}
	}
	return -1
}

// indexIn searches list[begin:begin+count] for id.
func indexIn(list []uint32, id uint32, begin, count int) int {
	end := min(len(list), begin+count)
	if begin >= end {
		return -1
	}
	if i := slices.Index(list[begin:end], id); i >= 0 {
		return begin + i
	}
	return -1
}

// inWindow reports whether id lies in the window of list that starts at the
// oldest resident entry, widened towards the recent end by reach.
func (p *BlowerPolicy) inWindow(list []uint32, id uint32, reach int) bool {
	end := p.lastIndexOfResident(list) + 1
	if end == 0 {
		return false
	}
	begin := end
	if reach >= 0 {
		begin = max(0, end-reach)
	}
	return indexIn(list, id, begin, p.windowSize) >= 0
}

func moveToFront(list []uint32, id uint32) []uint32 {
	if i := slices.Index(list, id); i >= 0 {
		list = slices.Delete(list, i, i+1)
	}
	return slices.Insert(list, 0, id)
}

func removeID(list []uint32, id uint32) []uint32 {
	if i := slices.Index(list, id); i >= 0 {
		return slices.Delete(list, i, i+1)
	}
	return list
}

func (p *BlowerPolicy) OnMiss(f *Frame, op AccessType) Handle {
	if op == AccessRead {
		p.readQueue = slices.Insert(p.readQueue, 0, f.id)
	} else {
		p.writeQueue = slices.Insert(p.writeQueue, 0, f.id)
	}
	return NilHandle
}

func (p *BlowerPolicy) OnHit(f *Frame, op AccessType) (Handle, error) {
	if !f.Resident() {
		// Ghosts are never scanned, so the frame can stay listed while it loads.
		if err := p.m.load(f, op); err != nil {
			p.readQueue = removeID(p.readQueue, f.id)
			p.writeQueue = removeID(p.writeQueue, f.id)
			return NilHandle, err
		}
	}

	if op == AccessRead {
		if p.inWindow(p.readQueue, f.id, p.quota) {
			p.quota -= p.conf.ReadWindowStep
		}
		p.readQueue = moveToFront(p.readQueue, f.id)
	} else {
		if p.inWindow(p.writeQueue, f.id, -p.quota) {
			p.quota += p.conf.WriteWindowStep
		}
		p.writeQueue = moveToFront(p.writeQueue, f.id)
	}
	return NilHandle, nil
}

func (p *BlowerPolicy) OnPoolFull() error {
	checkRead := p.lastIndexOfResident(p.readQueue)
	checkWrite := p.lastIndexOfResident(p.writeQueue)
	quota := p.quota

	var victim *Frame
	for victim == nil {
		if checkRead < 0 && checkWrite < 0 {
			noVictim("Blower.OnPoolFull", "no resident page in either list")
		}
		if quota >= 0 {
			quota--
			if checkRead < 0 {
				continue
			}
			id := p.readQueue[checkRead]
			checkRead--
			if f := p.m.frames[id]; f.Resident() && indexIn(p.writeQueue, id, 0, checkWrite+1) < 0 {
				victim = f
			}
		} else {
			quota += p.conf.ScanCredit
			if checkWrite < 0 {
				continue
			}
			id := p.writeQueue[checkWrite]
			checkWrite--
			if f := p.m.frames[id]; f.Resident() && indexIn(p.readQueue, id, 0, checkRead+1) < 0 {
				victim = f
			}
		}
	}

	if err := p.m.writeBack(victim); err != nil {
		return err
	}
	p.quota = quota
	p.m.release(victim)
	return nil
}

func (p *BlowerPolicy) OnFlush([]*Frame) {}

func (p *BlowerPolicy) checkInvariants() error {
	listed := make(map[uint32]bool, len(p.m.frames))
	for _, list := range [][]uint32{p.readQueue, p.writeQueue} {
		seen := make(map[uint32]bool, len(list))
		for _, id := range list {
			if seen[id] {
				return fmt.Errorf("page %d listed twice", id)
			}
			if p.m.frames[id] == nil {
				return fmt.Errorf("page %d listed but not tracked", id)
			}
			seen[id] = true
			listed[id] = true
		}
	}
	if len(listed) != len(p.m.frames) {
		return fmt.Errorf("%d pages listed, %d tracked", len(listed), len(p.m.frames))
	}
	return nil
}
