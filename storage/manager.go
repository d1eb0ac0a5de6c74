package storage

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"go.uber.org/zap"
)

// BufferManager is the page cache seen by workloads.
type BufferManager interface {
	Name() string
	Description() string
	PageSize() int
	Read(pageID uint32) ([]byte, error)
	ReadInto(pageID uint32, buf []byte) error
	Write(pageID uint32, data []byte) error
	Flush() error
	FlushCount() int
	Device() BlockDevice
	Metrics() *Metrics
	Close() error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for eviction tracing.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics makes the manager record into an existing Metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithInvariantChecks verifies manager and policy invariants after every call.
// Meant for tests; a failed check panics.
func WithInvariantChecks() Option {
	return func(m *Manager) { m.checks = true }
}

// Manager is a fixed-capacity page cache whose replacement decisions are made
// by a Policy.
type Manager struct {
	dev        BlockDevice
	pool       *SlotPool
	frames     map[uint32]*Frame
	policy     Policy
	metrics    *Metrics
	logger     *zap.Logger
	flushCount int
	closed     bool
	checks     bool
}

// NewManager creates a manager with npages slots over dev. A nil dev is
// replaced by a TrivialDevice with DefaultPageSize.
func NewManager(dev BlockDevice, npages int, policy Policy, opts ...Option) (*Manager, error) {
	if npages <= 0 {
		return nil, ErrInvalidConfig("NewManager", "page count must be positive, got %d", npages)
	}
	if policy == nil {
		return nil, ErrInvalidConfig("NewManager", "no policy given")
	}
	if dev == nil {
		dev = NewTrivialDevice(DefaultPageSize)
	}

	m := &Manager{
		dev:    dev,
		frames: make(map[uint32]*Frame),
		policy: policy,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.metrics == nil {
		m.metrics = NewMetrics()
	}
	m.pool = NewSlotPool(npages, dev.PageSize(), m.onPoolFull)

	if err := policy.Attach(m); err != nil {
		return nil, err
	}
	m.logger.Debug("Buffer manager created",
		zap.String("policy", policy.Name()),
		zap.Int("pages", npages),
		zap.Int("page_size", dev.PageSize()),
		zap.String("device", dev.Name()))
	return m, nil
}

func (m *Manager) Name() string        { return m.policy.Name() }
func (m *Manager) Description() string { return m.policy.Description() }
func (m *Manager) PageSize() int       { return m.pool.PageSize() }
func (m *Manager) Capacity() int       { return m.pool.NPages() }
func (m *Manager) Device() BlockDevice { return m.dev }
func (m *Manager) Metrics() *Metrics   { return m.metrics }
func (m *Manager) FlushCount() int     { return m.flushCount }
func (m *Manager) Policy() Policy      { return m.policy }

// Resident returns the number of frames holding a slot.
func (m *Manager) Resident() int { return m.pool.InUse() }

// Tracked returns the number of frames, resident or not.
func (m *Manager) Tracked() int { return len(m.frames) }

// Frame returns the frame of pageID, or nil if the page is not tracked.
func (m *Manager) Frame(pageID uint32) *Frame { return m.frames[pageID] }

// Read returns a copy of the page.
func (m *Manager) Read(pageID uint32) ([]byte, error) {
	buf := make([]byte, m.pool.PageSize())
	if err := m.ReadInto(pageID, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadInto copies the page into buf, which must be exactly one page long.
func (m *Manager) ReadInto(pageID uint32, buf []byte) error {
	if m.closed {
		return ErrClosed("Read")
	}
	if len(buf) != m.pool.PageSize() {
		return ErrPageSizeMismatch("Read", m.pool.PageSize(), len(buf))
	}
	start := time.Now()
	f, err := m.access(pageID, AccessRead)
	if err != nil {
		return err
	}
	copy(buf, m.pool.Slot(f.slot))
	m.metrics.RecordAccessLatency(time.Since(start))
	m.verify("Read")
	return nil
}

// Write replaces the page contents. data must be exactly one page long.
func (m *Manager) Write(pageID uint32, data []byte) error {
	if m.closed {
		return ErrClosed("Write")
	}
	if len(data) != m.pool.PageSize() {
		return ErrPageSizeMismatch("Write", m.pool.PageSize(), len(data))
	}
	start := time.Now()
	f, err := m.access(pageID, AccessWrite)
	if err != nil {
		return err
	}
	copy(m.pool.Slot(f.slot), data)
	f.dirty = true
	m.metrics.RecordAccessLatency(time.Since(start))
	m.verify("Write")
	return nil
}

// access makes pageID resident and lets the policy reposition it.
func (m *Manager) access(pageID uint32, op AccessType) (*Frame, error) {
	m.metrics.RecordRequest(op)

	f, tracked := m.frames[pageID]
	if !tracked {
		m.metrics.RecordCacheMiss()
		f = newFrame(pageID)
		// Made resident before it is tracked so eviction never sees it.
		if err := m.load(f, op); err != nil {
			return nil, err
		}
		m.frames[pageID] = f
		f.handle = m.policy.OnMiss(f, op)
		return f, nil
	}

	if f.Resident() {
		m.metrics.RecordCacheHit()
	} else {
		m.metrics.RecordGhostHit()
	}
	h, err := m.policy.OnHit(f, op)
	if err != nil {
		invariant(!f.Resident(), "access", "policy failed on resident %s", f)
		delete(m.frames, pageID)
		m.metrics.RecordForgotten()
		return nil, err
	}
	invariant(f.Resident(), "access", "policy %s left %s non-resident after a hit", m.policy.Name(), f)
	f.handle = h
	return f, nil
}

// Flush writes every dirty resident page back and clears its dirty flag.
// Pages are written in ascending id order.
func (m *Manager) Flush() error {
	if m.closed {
		return ErrClosed("Flush")
	}
	if err := m.flush(); err != nil {
		return err
	}
	m.flushCount++
	m.metrics.RecordFlush()
	m.verify("Flush")
	return nil
}

func (m *Manager) flush() error {
	var flushed []*Frame
	for _, id := range slices.Sorted(maps.Keys(m.frames)) {
		f := m.frames[id]
		if !f.dirty {
			continue
		}
		if err := m.writeBack(f); err != nil {
			m.policy.OnFlush(flushed)
			return err
		}
		flushed = append(flushed, f)
	}
	m.policy.OnFlush(flushed)
	return nil
}

// Close flushes and rejects later calls. Closing a closed manager is a
// no-op. If the flush fails the manager stays open so Close can be retried.
func (m *Manager) Close() error {
	if m.closed {
		return nil
	}
	if err := m.flush(); err != nil {
		return err
	}
	m.closed = true
	return nil
}

func (m *Manager) onPoolFull() error {
	return m.policy.OnPoolFull()
}

// load gives f a slot and, for reads, fills it from the device. On error f is
// left non-resident.
func (m *Manager) load(f *Frame, op AccessType) error {
	invariant(!f.Resident(), "load", "%s already resident", f)
	slot, err := m.pool.AllocSlot()
	if err != nil {
		return err
	}
	if op == AccessRead {
		if err := m.dev.Read(f.id, m.pool.Slot(slot)); err != nil {
			m.pool.FreeSlot(slot)
			return ErrDeviceRead("load", f.id, err)
		}
	}
	f.slot = slot
	return nil
}

// writeBack writes f to the device if it is dirty.
func (m *Manager) writeBack(f *Frame) error {
	if !f.dirty {
		return nil
	}
	invariant(f.Resident(), "writeBack", "dirty frame %s has no slot", f)
	if err := m.dev.Write(f.id, m.pool.Slot(f.slot)); err != nil {
		return ErrDeviceWrite("writeBack", f.id, err)
	}
	f.dirty = false
	m.metrics.RecordWriteBack()
	return nil
}

// release frees the slot of a clean resident frame.
func (m *Manager) release(f *Frame) {
	invariant(f.Resident(), "release", "%s holds no slot", f)
	invariant(!f.dirty, "release", "%s is dirty", f)
	m.pool.FreeSlot(f.slot)
	f.slot = NoSlot
	m.metrics.RecordEviction()
	m.logger.Debug("Evicted page", zap.Uint32("page", f.id), zap.String("policy", m.policy.Name()))
}

// evict writes f back if needed and frees its slot.
func (m *Manager) evict(f *Frame) error {
	if err := m.writeBack(f); err != nil {
		return err
	}
	m.release(f)
	return nil
}

// forget drops all history of a non-resident frame.
func (m *Manager) forget(f *Frame) {
	invariant(!f.Resident(), "forget", "%s is resident", f)
	invariant(m.frames[f.id] == f, "forget", "%s is not tracked", f)
	delete(m.frames, f.id)
	m.metrics.RecordForgotten()
	m.logger.Debug("Forgot page", zap.Uint32("page", f.id), zap.String("policy", m.policy.Name()))
}

func (m *Manager) verify(op string) {
	if !m.checks {
		return
	}
	if err := m.CheckInvariants(); err != nil {
		panic(NewStorageError(ErrCodeInvariantViolation, op, "post-condition failed", err))
	}
}

// CheckInvariants verifies that the lookup map, the slot pool and the policy
// agree with each other.
func (m *Manager) CheckInvariants() error {
	resident := 0
	slots := make(map[int]uint32)
	for id, f := range m.frames {
		if f.id != id {
			return fmt.Errorf("frame %s stored under id %d", f, id)
		}
		if f.dirty && !f.Resident() {
			return fmt.Errorf("dirty frame %s is not resident", f)
		}
		if !f.Resident() {
			continue
		}
		resident++
		if other, dup := slots[f.slot]; dup {
			return fmt.Errorf("slot %d shared by pages %d and %d", f.slot, other, id)
		}
		slots[f.slot] = id
	}
	if resident > m.pool.NPages() {
		return fmt.Errorf("%d resident frames exceed capacity %d", resident, m.pool.NPages())
	}
	if resident != m.pool.InUse() {
		return fmt.Errorf("%d resident frames but %d slots in use", resident, m.pool.InUse())
	}
	if c, ok := m.policy.(invariantChecker); ok {
		if err := c.checkInvariants(); err != nil {
			return fmt.Errorf("%s: %w", m.policy.Name(), err)
		}
	}
	return nil
}

// Stats reports manager counters together with device activity.
type Stats struct {
	MetricsSnapshot
	DeviceReads  uint64
	DeviceWrites uint64
	Resident     int
	Tracked      int
	FlushCount   int
}

// Stats collects the current counters.
func (m *Manager) Stats() Stats {
	return Stats{
		MetricsSnapshot: m.metrics.Snapshot(),
		DeviceReads:     m.dev.ReadCount(),
		DeviceWrites:    m.dev.WriteCount(),
		Resident:        m.pool.InUse(),
		Tracked:         len(m.frames),
		FlushCount:      m.flushCount,
	}
}
