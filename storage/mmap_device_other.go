//go:build !unix && !windows

package storage

import "errors"

type mmapState struct{}

var errMmapUnsupported = errors.New("memory-mapped files are not supported on this platform")

func (d *MmapDevice) mmap() error { return errMmapUnsupported }
func (d *MmapDevice) unmap() error { return errMmapUnsupported }
