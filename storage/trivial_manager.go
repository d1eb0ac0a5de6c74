package storage

import "time"

// TrivialManager is a BufferManager without a cache. Every read and write
// goes straight to the device, which makes it the baseline for cost
// comparisons.
type TrivialManager struct {
	dev        BlockDevice
	metrics    *Metrics
	flushCount int
	closed     bool
}

// NewTrivialManager creates a pass-through manager over dev. A nil dev is
// replaced by a TrivialDevice with DefaultPageSize.
func NewTrivialManager(dev BlockDevice, metrics *Metrics) *TrivialManager {
	if dev == nil {
		dev = NewTrivialDevice(DefaultPageSize)
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &TrivialManager{dev: dev, metrics: metrics}
}

func (m *TrivialManager) Name() string        { return "Trivial" }
func (m *TrivialManager) Description() string { return "Trivial(" + m.dev.Name() + ")" }
func (m *TrivialManager) PageSize() int       { return m.dev.PageSize() }
func (m *TrivialManager) FlushCount() int     { return m.flushCount }
func (m *TrivialManager) Device() BlockDevice { return m.dev }
func (m *TrivialManager) Metrics() *Metrics   { return m.metrics }

func (m *TrivialManager) Read(pageID uint32) ([]byte, error) {
	buf := make([]byte, m.dev.PageSize())
	if err := m.ReadInto(pageID, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (m *TrivialManager) ReadInto(pageID uint32, buf []byte) error {
	if m.closed {
		return ErrClosed("Read")
	}
	if len(buf) != m.dev.PageSize() {
		return ErrPageSizeMismatch("Read", m.dev.PageSize(), len(buf))
	}
	start := time.Now()
	m.metrics.RecordRequest(AccessRead)
	m.metrics.RecordCacheMiss()
	if err := m.dev.Read(pageID, buf); err != nil {
		return ErrDeviceRead("Read", pageID, err)
	}
	m.metrics.RecordAccessLatency(time.Since(start))
	return nil
}

func (m *TrivialManager) Write(pageID uint32, data []byte) error {
	if m.closed {
		return ErrClosed("Write")
	}
	if len(data) != m.dev.PageSize() {
		return ErrPageSizeMismatch("Write", m.dev.PageSize(), len(data))
	}
	start := time.Now()
	m.metrics.RecordRequest(AccessWrite)
	m.metrics.RecordCacheMiss()
	if err := m.dev.Write(pageID, data); err != nil {
		return ErrDeviceWrite("Write", pageID, err)
	}
	m.metrics.RecordAccessLatency(time.Since(start))
	return nil
}

// Flush has nothing to write but is still counted.
func (m *TrivialManager) Flush() error {
	if m.closed {
		return ErrClosed("Flush")
	}
	m.flushCount++
	m.metrics.RecordFlush()
	return nil
}

func (m *TrivialManager) Close() error {
	m.closed = true
	return nil
}
