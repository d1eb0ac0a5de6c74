package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var errInjected = errors.New("injected device failure")

// faultyDevice wraps a MemoryDevice and fails on demand.
type faultyDevice struct {
	*MemoryDevice
	failRead  map[uint32]bool
	failWrite bool
}

func newFaultyDevice(pageSize int) *faultyDevice {
	return &faultyDevice{MemoryDevice: NewMemoryDevice(pageSize), failRead: map[uint32]bool{}}
}

func (d *faultyDevice) Read(pageID uint32, buf []byte) error {
	if d.failRead[pageID] {
		return errInjected
	}
	return d.MemoryDevice.Read(pageID, buf)
}

func (d *faultyDevice) Write(pageID uint32, data []byte) error {
	if d.failWrite {
		return errInjected
	}
	return d.MemoryDevice.Write(pageID, data)
}

func newTestManager(t *testing.T, dev BlockDevice, npages int, p Policy) *Manager {
	t.Helper()
	m, err := NewManager(dev, npages, p, WithInvariantChecks())
	require.NoError(t, err)
	return m
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(nil, 0, NewLRUPolicy())
	assert.True(t, IsErrorCode(err, ErrCodeInvalidConfig))

	_, err = NewManager(nil, 4, nil)
	assert.True(t, IsErrorCode(err, ErrCodeInvalidConfig))

	_, err = NewManager(nil, 1, NewLIRSPolicy(0.1, 1))
	assert.True(t, IsErrorCode(err, ErrCodeInvalidConfig))

	m, err := NewManager(nil, 4, NewLRUPolicy())
	require.NoError(t, err)
	assert.Equal(t, "Trivial", m.Device().Name())
	assert.Equal(t, DefaultPageSize, m.PageSize())
	assert.Equal(t, 4, m.Capacity())
	assert.Equal(t, "LRU", m.Name())
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	dev := NewMemoryDevice(testPageSize)
	m := newTestManager(t, dev, 2, NewLRUPolicy())

	for _, id := range []uint32{1, 2, 3} {
		_, err := m.Read(id)
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(3), dev.ReadCount())
	assert.Nil(t, m.Frame(1), "page 1 should be evicted and forgotten")

	_, err := m.Read(2)
	require.NoError(t, err)
	_, err = m.Read(3)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), dev.ReadCount())
	assert.Equal(t, uint64(2), m.Metrics().Snapshot().CacheHits)

	_, err = m.Read(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), dev.ReadCount(), "page 1 must be re-read")
	assert.Nil(t, m.Frame(2))
}

func TestWriteFlushRead(t *testing.T) {
	for _, name := range []string{"lru", "cflru", "lirs", "flirs", "2q", "arc", "tn", "blower"} {
		t.Run(name, func(t *testing.T) {
			p, err := NewPolicy(name, nil, nil)
			require.NoError(t, err)
			dev := NewMemoryDevice(testPageSize)
			m := newTestManager(t, dev, 3, p)

			require.NoError(t, m.Write(1, pageOf('A')))
			require.NoError(t, m.Write(2, pageOf('B')))
			require.NoError(t, m.Flush())

			got, err := m.Read(1)
			require.NoError(t, err)
			assert.Equal(t, pageOf('A'), got)
			assert.Equal(t, 1, m.FlushCount())
			assert.Equal(t, uint64(2), dev.WriteCount())
			for _, id := range []uint32{1, 2} {
				assert.False(t, m.Frame(id).Dirty(), "page %d still dirty", id)
			}
		})
	}
}

func TestFlushIsIdempotent(t *testing.T) {
	dev := NewMemoryDevice(testPageSize)
	m := newTestManager(t, dev, 4, NewTnPolicy(1, TnConfig{}))

	require.NoError(t, m.Write(5, pageOf(5)))
	require.NoError(t, m.Write(3, pageOf(3)))
	require.NoError(t, m.Flush())
	writes := dev.WriteCount()
	require.NoError(t, m.Flush())

	assert.Equal(t, writes, dev.WriteCount())
	assert.Equal(t, 2, m.FlushCount())
	assert.Equal(t, uint64(2), m.Metrics().Snapshot().Flushes)
}

func TestPageSizeMismatchChangesNothing(t *testing.T) {
	m := newTestManager(t, NewMemoryDevice(testPageSize), 2, NewLRUPolicy())

	err := m.Write(1, make([]byte, testPageSize-1))
	assert.True(t, IsErrorCode(err, ErrCodePageSizeMismatch))
	err = m.ReadInto(1, make([]byte, 1))
	assert.True(t, IsErrorCode(err, ErrCodePageSizeMismatch))

	assert.Zero(t, m.Tracked())
	s := m.Stats()
	assert.Zero(t, s.ReadRequests+s.WriteRequests)
}

func TestDeviceReadFailureForgetsPage(t *testing.T) {
	dev := newFaultyDevice(testPageSize)
	dev.failRead[7] = true
	m := newTestManager(t, dev, 2, NewLRUPolicy())

	_, err := m.Read(7)
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrCodeDeviceReadFailed))
	assert.ErrorIs(t, err, errInjected)
	assert.Zero(t, m.Tracked())
	assert.Zero(t, m.Resident())

	_, err = m.Read(8)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Resident())
}

func TestWriteBackFailureLeavesVictim(t *testing.T) {
	dev := newFaultyDevice(testPageSize)
	m := newTestManager(t, dev, 1, NewLRUPolicy())
	require.NoError(t, m.Write(1, pageOf(1)))

	dev.failWrite = true
	_, err := m.Read(2)
	assert.True(t, IsErrorCode(err, ErrCodeDeviceWriteFailed))
	assert.True(t, IsDeviceError(err))
	assert.True(t, m.Frame(1).Resident())
	assert.True(t, m.Frame(1).Dirty())
	assert.Nil(t, m.Frame(2))

	dev.failWrite = false
	_, err = m.Read(2)
	require.NoError(t, err)
	buf := make([]byte, testPageSize)
	require.NoError(t, dev.MemoryDevice.Read(1, buf))
	assert.Equal(t, pageOf(1), buf)
}

func TestGhostReloadFailureForgetsPage(t *testing.T) {
	dev := newFaultyDevice(testPageSize)
	m := newTestManager(t, dev, 2, NewTnPolicy(1, TnConfig{}))

	for _, id := range []uint32{1, 2, 3} {
		_, err := m.Read(id)
		require.NoError(t, err)
	}
	require.NotNil(t, m.Frame(1))
	require.False(t, m.Frame(1).Resident(), "page 1 should be a ghost")

	dev.failRead[1] = true
	_, err := m.Read(1)
	assert.True(t, IsErrorCode(err, ErrCodeDeviceReadFailed))
	assert.Nil(t, m.Frame(1))
	assert.NoError(t, m.CheckInvariants())

	dev.failRead[1] = false
	_, err = m.Read(1)
	require.NoError(t, err)
}

func TestCloseFlushesOnce(t *testing.T) {
	dev := NewMemoryDevice(testPageSize)
	m := newTestManager(t, dev, 2, NewLRUPolicy())
	require.NoError(t, m.Write(1, pageOf(1)))

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Equal(t, uint64(1), dev.WriteCount())
	assert.Zero(t, m.FlushCount())

	_, err := m.Read(1)
	assert.True(t, IsErrorCode(err, ErrCodeClosed))
	assert.True(t, IsErrorCode(m.Write(1, pageOf(1)), ErrCodeClosed))
	assert.True(t, IsErrorCode(m.Flush(), ErrCodeClosed))
}

func TestManagerLogsEvictions(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	m, err := NewManager(NewMemoryDevice(testPageSize), 1, NewLRUPolicy(), WithLogger(zap.New(core)))
	require.NoError(t, err)

	_, err = m.Read(1)
	require.NoError(t, err)
	_, err = m.Read(2)
	require.NoError(t, err)

	assert.Equal(t, 1, logs.FilterMessage("Evicted page").Len())
	assert.Equal(t, 1, logs.FilterMessage("Forgot page").Len())
}

func TestManagerStats(t *testing.T) {
	metrics := NewMetrics()
	dev := NewMemoryDevice(testPageSize)
	m, err := NewManager(dev, 2, NewLRUPolicy(), WithMetrics(metrics))
	require.NoError(t, err)
	assert.Same(t, metrics, m.Metrics())

	require.NoError(t, m.Write(1, pageOf(1)))
	_, err = m.Read(1)
	require.NoError(t, err)
	_, err = m.Read(2)
	require.NoError(t, err)
	_, err = m.Read(3)
	require.NoError(t, err)

	s := m.Stats()
	assert.Equal(t, uint64(3), s.ReadRequests)
	assert.Equal(t, uint64(1), s.WriteRequests)
	assert.Equal(t, uint64(1), s.CacheHits)
	assert.Equal(t, uint64(3), s.CacheMisses)
	assert.Equal(t, uint64(1), s.Evictions)
	assert.Equal(t, uint64(1), s.WriteBacks)
	assert.Equal(t, uint64(2), s.DeviceReads)
	assert.Equal(t, uint64(1), s.DeviceWrites)
	assert.Equal(t, 2, s.Resident)
	assert.Equal(t, 2, s.Tracked)
}

func TestTrivialManagerPassesThrough(t *testing.T) {
	dev := NewMemoryDevice(testPageSize)
	var m BufferManager = NewTrivialManager(dev, nil)

	require.NoError(t, m.Write(4, pageOf(4)))
	got, err := m.Read(4)
	require.NoError(t, err)
	assert.Equal(t, pageOf(4), got)
	_, err = m.Read(4)
	require.NoError(t, err)

	assert.Equal(t, uint64(2), dev.ReadCount())
	assert.Equal(t, uint64(1), dev.WriteCount())
	require.NoError(t, m.Flush())
	assert.Equal(t, 1, m.FlushCount())
	assert.Zero(t, m.Metrics().Snapshot().CacheHits)

	err = m.Write(4, pageOf(4)[:1])
	assert.True(t, IsErrorCode(err, ErrCodePageSizeMismatch))

	require.NoError(t, m.Close())
	assert.True(t, IsErrorCode(m.Flush(), ErrCodeClosed))
}

func TestCloseRetriesAfterFailedFlush(t *testing.T) {
	dev := newFaultyDevice(testPageSize)
	m := newTestManager(t, dev, 2, NewLRUPolicy())
	require.NoError(t, m.Write(1, pageOf(1)))

	dev.failWrite = true
	assert.True(t, IsErrorCode(m.Close(), ErrCodeDeviceWriteFailed))
	assert.True(t, m.Frame(1).Dirty())

	dev.failWrite = false
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Equal(t, uint64(1), dev.WriteCount())

	buf := make([]byte, testPageSize)
	require.NoError(t, dev.MemoryDevice.Read(1, buf))
	assert.Equal(t, pageOf(1), buf)
	_, err := m.Read(1)
	assert.True(t, IsErrorCode(err, ErrCodeClosed))
}
