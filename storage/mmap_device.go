package storage

import (
	"errors"
	"fmt"
	"os"
)

// MmapGrowPages is how many pages the mapping grows by when a write lands past its end.
const MmapGrowPages = 1024

// MmapDevice stores pages in a memory-mapped file. The mapping grows on demand;
// pages beyond the mapped region read as zeros.
type MmapDevice struct {
	ioCounters
	file     *os.File
	pageSize int
	size     int64
	data     []byte
	state    mmapState
	broken   error // set when no mapping could be restored
}

// OpenMmapDevice maps the file at path, creating it with room for
// initialPages pages if it is smaller.
func OpenMmapDevice(path string, pageSize, initialPages int) (*MmapDevice, error) {
	if pageSize <= 0 {
		return nil, ErrInvalidConfig("OpenMmapDevice", "page size must be positive, got %d", pageSize)
	}
	if initialPages <= 0 {
		initialPages = MmapGrowPages
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open/create file %s: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	d := &MmapDevice{file: file, pageSize: pageSize}
	size := info.Size()
	if want := int64(initialPages) * int64(pageSize); size < want {
		size = want
	}
	if err := d.resize(size); err != nil {
		file.Close()
		return nil, err
	}
	return d, nil
}

func (d *MmapDevice) Name() string  { return "Mmap" }
func (d *MmapDevice) PageSize() int { return d.pageSize }

// MappedSize returns the current length of the mapping.
func (d *MmapDevice) MappedSize() int64 { return d.size }

// resize remaps the file at size. If the file cannot be grown the old mapping
// is restored. If no mapping can be restored every later call fails.
func (d *MmapDevice) resize(size int64) error {
	if d.data != nil {
		if err := d.unmap(); err != nil {
			return err
		}
	}
	if err := d.file.Truncate(size); err != nil {
		err = fmt.Errorf("failed to grow file: %w", err)
		if d.size > 0 {
			if merr := d.mmap(); merr != nil {
				d.fail(errors.Join(err, merr))
			}
		}
		return err
	}
	d.size = size
	if err := d.mmap(); err != nil {
		d.fail(err)
		return err
	}
	return nil
}

func (d *MmapDevice) fail(err error) {
	d.broken = err
	d.size = 0
}

func (d *MmapDevice) Read(pageID uint32, buf []byte) error {
	if err := checkPageBuffer("MmapDevice.Read", d.pageSize, buf); err != nil {
		return err
	}
	if d.broken != nil {
		return fmt.Errorf("mmap device unusable: %w", d.broken)
	}
	d.reads++
	off := int64(pageID) * int64(d.pageSize)
	if off+int64(d.pageSize) > d.size {
		clear(buf)
		return nil
	}
	copy(buf, d.data[off:off+int64(d.pageSize)])
	return nil
}

func (d *MmapDevice) Write(pageID uint32, data []byte) error {
	if err := checkPageBuffer("MmapDevice.Write", d.pageSize, data); err != nil {
		return err
	}
	if d.broken != nil {
		return fmt.Errorf("mmap device unusable: %w", d.broken)
	}
	off := int64(pageID) * int64(d.pageSize)
	if end := off + int64(d.pageSize); end > d.size {
		grow := int64(MmapGrowPages) * int64(d.pageSize)
		if err := d.resize((end + grow - 1) / grow * grow); err != nil {
			return err
		}
	}
	copy(d.data[off:], data)
	d.writes++
	return nil
}

// Close unmaps the file and closes it.
func (d *MmapDevice) Close() error {
	if d.file == nil {
		return nil
	}
	var err error
	if d.data != nil {
		err = d.unmap()
	}
	if cerr := d.file.Close(); err == nil {
		err = cerr
	}
	d.file = nil
	return err
}
