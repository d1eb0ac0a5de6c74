//go:build windows

package storage

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

type mmapState struct {
	mapping windows.Handle
}

func (d *MmapDevice) mmap() error {
	mapping, err := windows.CreateFileMapping(
		windows.Handle(d.file.Fd()),
		nil,
		windows.PAGE_READWRITE,
		uint32(d.size>>32),
		uint32(d.size&0xFFFFFFFF),
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create file mapping: %w", err)
	}

	addr, err := windows.MapViewOfFile(mapping, windows.FILE_MAP_READ|windows.FILE_MAP_WRITE, 0, 0, uintptr(d.size))
	if err != nil {
		windows.CloseHandle(mapping)
		return fmt.Errorf("failed to map view of file: %w", err)
	}

	d.state.mapping = mapping
	d.data = unsafe.Slice((*byte)(unsafe.Pointer(addr)), d.size)
	return nil
}

func (d *MmapDevice) unmap() error {
	if err := windows.UnmapViewOfFile(uintptr(unsafe.Pointer(&d.data[0]))); err != nil {
		return fmt.Errorf("failed to unmap view: %w", err)
	}
	d.data = nil
	if d.state.mapping != 0 {
		windows.CloseHandle(d.state.mapping)
		d.state.mapping = 0
	}
	return nil
}
