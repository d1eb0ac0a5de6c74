//go:build unix

package storage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

type mmapState struct{}

func (d *MmapDevice) mmap() error {
	data, err := unix.Mmap(int(d.file.Fd()), 0, int(d.size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("failed to map file: %w", err)
	}
	d.data = data
	return nil
}

func (d *MmapDevice) unmap() error {
	if err := unix.Munmap(d.data); err != nil {
		return fmt.Errorf("failed to unmap file: %w", err)
	}
	d.data = nil
	return nil
}
