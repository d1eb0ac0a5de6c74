package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// FileDevice stores pages in a regular file at offset pageID*pageSize.
// Reads past the end of the file return zeros.
type FileDevice struct {
	ioCounters
	file     *os.File
	pageSize int
}

// OpenFileDevice opens or creates the file at path.
func OpenFileDevice(path string, pageSize int) (*FileDevice, error) {
	if pageSize <= 0 {
		return nil, ErrInvalidConfig("OpenFileDevice", "page size must be positive, got %d", pageSize)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open/create file %s: %w", path, err)
	}
	return &FileDevice{file: file, pageSize: pageSize}, nil
}

func (d *FileDevice) Name() string  { return "File" }
func (d *FileDevice) PageSize() int { return d.pageSize }

func (d *FileDevice) Read(pageID uint32, buf []byte) error {
	if err := checkPageBuffer("FileDevice.Read", d.pageSize, buf); err != nil {
		return err
	}
	n, err := d.file.ReadAt(buf, int64(pageID)*int64(d.pageSize))
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read page %d: %w", pageID, err)
	}
	clear(buf[n:])
	d.reads++
	return nil
}

func (d *FileDevice) Write(pageID uint32, data []byte) error {
	if err := checkPageBuffer("FileDevice.Write", d.pageSize, data); err != nil {
		return err
	}
	if _, err := d.file.WriteAt(data, int64(pageID)*int64(d.pageSize)); err != nil {
		return fmt.Errorf("failed to write page %d: %w", pageID, err)
	}
	d.writes++
	return nil
}

// Close closes the underlying file
func (d *FileDevice) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}
