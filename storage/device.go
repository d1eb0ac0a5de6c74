package storage

// DefaultPageSize is the page size used when no device dictates one.
const DefaultPageSize = 4096

// BlockDevice is the page store beneath a buffer manager. Read fills buf with
// the page contents; Write stores data. Both require buffers of exactly
// PageSize bytes. Devices count the operations they serve.
type BlockDevice interface {
	Name() string
	PageSize() int
	Read(pageID uint32, buf []byte) error
	Write(pageID uint32, data []byte) error
	ReadCount() uint64
	WriteCount() uint64
}

// ioCounters implements the counting half of BlockDevice.
type ioCounters struct {
	reads  uint64
	writes uint64
}

func (c *ioCounters) ReadCount() uint64  { return c.reads }
func (c *ioCounters) WriteCount() uint64 { return c.writes }

func checkPageBuffer(op string, pageSize int, buf []byte) error {
	if len(buf) != pageSize {
		return ErrPageSizeMismatch(op, pageSize, len(buf))
	}
	return nil
}

// TrivialDevice stores nothing. Reads return zeroed pages and writes are
// discarded; only the operation counts are kept.
type TrivialDevice struct {
	ioCounters
	name     string
	pageSize int
}

// NewTrivialDevice creates a counting device with the given page size.
func NewTrivialDevice(pageSize int) *TrivialDevice {
	return &TrivialDevice{name: "Trivial", pageSize: pageSize}
}

// NewNullDevice creates a counting device with zero-length pages.
func NewNullDevice() *TrivialDevice {
	return &TrivialDevice{name: "Null", pageSize: 0}
}

func (d *TrivialDevice) Name() string  { return d.name }
func (d *TrivialDevice) PageSize() int { return d.pageSize }

func (d *TrivialDevice) Read(pageID uint32, buf []byte) error {
	if err := checkPageBuffer("TrivialDevice.Read", d.pageSize, buf); err != nil {
		return err
	}
	clear(buf)
	d.reads++
	return nil
}

func (d *TrivialDevice) Write(pageID uint32, data []byte) error {
	if err := checkPageBuffer("TrivialDevice.Write", d.pageSize, data); err != nil {
		return err
	}
	d.writes++
	return nil
}
