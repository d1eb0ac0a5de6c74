package storage

import (
	"errors"
	"fmt"
	"io"

	"github.com/dsnet/golib/memfile"
)

// MemoryDevice keeps every written page in an in-memory file, so reads return
// exactly what was last written. Pages never written read as zeros. It is the
// device used to verify policies end to end.
type MemoryDevice struct {
	ioCounters
	pageSize int
	file     *memfile.File
}

// NewMemoryDevice creates an empty in-memory device.
func NewMemoryDevice(pageSize int) *MemoryDevice {
	return &MemoryDevice{pageSize: pageSize, file: memfile.New(make([]byte, 0))}
}

func (d *MemoryDevice) Name() string  { return "MemorySimulated" }
func (d *MemoryDevice) PageSize() int { return d.pageSize }

// Size returns the number of bytes backing the device.
func (d *MemoryDevice) Size() int64 { return int64(len(d.file.Bytes())) }

func (d *MemoryDevice) Read(pageID uint32, buf []byte) error {
	if err := checkPageBuffer("MemoryDevice.Read", d.pageSize, buf); err != nil {
		return err
	}
	d.reads++
	if d.pageSize == 0 {
		return nil
	}
	n, err := d.file.ReadAt(buf, int64(pageID)*int64(d.pageSize))
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("memory device read page %d: %w", pageID, err)
	}
	clear(buf[n:])
	return nil
}

func (d *MemoryDevice) Write(pageID uint32, data []byte) error {
	if err := checkPageBuffer("MemoryDevice.Write", d.pageSize, data); err != nil {
		return err
	}
	d.writes++
	if d.pageSize == 0 {
		return nil
	}
	if _, err := d.file.WriteAt(data, int64(pageID)*int64(d.pageSize)); err != nil {
		return fmt.Errorf("memory device write page %d: %w", pageID, err)
	}
	return nil
}
