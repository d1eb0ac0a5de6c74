package trace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
)

// Compression of a trace file, chosen by its extension.
type Compression int

const (
	CompressionNone   Compression = iota
	CompressionSnappy             // .sz, snappy framing format
	CompressionLZ4                // .lz4, lz4 frame format
)

func (c Compression) String() string {
	switch c {
	case CompressionSnappy:
		return "snappy"
	case CompressionLZ4:
		return "lz4"
	}
	return "none"
}

// CompressionOf returns the compression implied by the extension of path.
func CompressionOf(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sz":
		return CompressionSnappy
	case ".lz4":
		return CompressionLZ4
	}
	return CompressionNone
}

// FileReader reads records from a trace file.
type FileReader struct {
	*Reader
	f *os.File
}

// Open opens a trace file, decompressing it according to its extension.
func Open(path string) (*FileReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	var r io.Reader = f
	switch CompressionOf(path) {
	case CompressionSnappy:
		r = snappy.NewReader(f)
	case CompressionLZ4:
		r = lz4.NewReader(f)
	}
	return &FileReader{Reader: NewReader(r), f: f}, nil
}

func (fr *FileReader) Close() error { return fr.f.Close() }

// FileWriter writes records to a trace file.
type FileWriter struct {
	*Writer
	zw io.WriteCloser // nil when uncompressed
	f  *os.File
}

// Create creates or truncates a trace file, compressing it according to its
// extension.
func Create(path string) (*FileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create trace: %w", err)
	}
	fw := &FileWriter{f: f}
	switch CompressionOf(path) {
	case CompressionSnappy:
		fw.zw = snappy.NewBufferedWriter(f)
	case CompressionLZ4:
		fw.zw = lz4.NewWriter(f)
	}
	if fw.zw != nil {
		fw.Writer = NewWriter(fw.zw)
	} else {
		fw.Writer = NewWriter(f)
	}
	return fw, nil
}

// Close flushes buffered records and closes the file.
func (fw *FileWriter) Close() error {
	err := fw.Flush()
	if fw.zw != nil {
		err = errors.Join(err, fw.zw.Close())
	}
	return errors.Join(err, fw.f.Close())
}
