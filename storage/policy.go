package storage

// Policy decides where frames live and which frame leaves the pool. A Manager
// drives exactly one policy and calls it synchronously.
//
// Contract:
//   - OnMiss receives a new frame that is already resident.
//   - OnHit receives a tracked frame. If the frame is a ghost the policy must
//     make it resident with Manager.load at a point where eviction can neither
//     select nor forget it, usually while it is detached from every queue. On
//     error the policy must hold no reference to the frame; the manager then
//     forgets the page.
//   - OnPoolFull is the slot pool's exhaustion callback. It must free exactly
//     one slot. Dirty victims are written back before anything moves, so a
//     device error leaves the policy state unchanged.
//   - OnFlush is told which frames a flush just cleaned.
type Policy interface {
	Name() string
	Description() string
	Attach(m *Manager) error
	OnMiss(f *Frame, op AccessType) Handle
	OnHit(f *Frame, op AccessType) (Handle, error)
	OnPoolFull() error
	OnFlush(flushed []*Frame)
}

// invariantChecker is implemented by policies that can verify their own state.
type invariantChecker interface {
	checkInvariants() error
}
