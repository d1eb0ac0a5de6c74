package storage

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
)

// CompressionType represents the compression algorithm used
type CompressionType uint8

const (
	CompressionNone   CompressionType = 0
	CompressionLZ4    CompressionType = 1
	CompressionSnappy CompressionType = 2
	// CompressionBest tries every algorithm per page and keeps the smallest image.
	CompressionBest CompressionType = 0xFF
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionSnappy:
		return "snappy"
	case CompressionBest:
		return "best"
	default:
		return fmt.Sprintf("CompressionType(%d)", uint8(c))
	}
}

// ParseCompressionType maps a configuration name to a CompressionType.
func ParseCompressionType(name string) (CompressionType, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "snappy":
		return CompressionSnappy, nil
	case "best":
		return CompressionBest, nil
	}
	return CompressionNone, ErrInvalidConfig("ParseCompressionType", "unknown compression %q", name)
}

// CompressedPage is one page image plus what is needed to restore it.
type CompressedPage struct {
	CompressionType  CompressionType
	UncompressedSize uint32
	CompressedData   []byte
	OriginalChecksum uint32 // CRC32 (IEEE) of the original data
}

// Serialized layout:
// [0-1]: magic 0xC0DE
// [2]: compression type
// [3]: reserved
// [4-7]: uncompressed size
// [8-11]: compressed size
// [12-15]: checksum of the original data
// [16+]: compressed data
const (
	CompressedPageMagic     = 0xC0DE
	CompressedHeaderSize    = 16
	MinCompressionThreshold = 64 // bytes a codec must save to be kept
)

// CompressPage compresses data with the given algorithm. When the codec saves
// less than MinCompressionThreshold bytes the page is stored uncompressed.
func CompressPage(data []byte, compressionType CompressionType) (*CompressedPage, error) {
	if compressionType == CompressionBest {
		return ChooseBestCompression(data)
	}

	var compressed []byte
	switch compressionType {
	case CompressionNone:
		compressed = data

	case CompressionLZ4:
		compressed = make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, compressed, nil)
		if err != nil {
			return nil, NewStorageError(ErrCodeCompression, "CompressPage", "lz4 compression failed", err)
		}
		// n == 0 means lz4 found the data incompressible
		if n == 0 {
			compressed = data
			compressionType = CompressionNone
		} else {
			compressed = compressed[:n]
		}

	case CompressionSnappy:
		compressed = snappy.Encode(nil, data)

	default:
		return nil, NewStorageError(ErrCodeCompression, "CompressPage",
			fmt.Sprintf("unsupported compression type %d", compressionType), nil)
	}

	if compressionType != CompressionNone && len(data)-len(compressed) < MinCompressionThreshold {
		compressionType = CompressionNone
		compressed = data
	}

	return &CompressedPage{
		CompressionType:  compressionType,
		UncompressedSize: uint32(len(data)),
		CompressedData:   compressed,
		OriginalChecksum: crc32.ChecksumIEEE(data),
	}, nil
}

// DecompressPage restores the original page and verifies its checksum.
func DecompressPage(cp *CompressedPage) ([]byte, error) {
	var out []byte
	switch cp.CompressionType {
	case CompressionNone:
		out = cp.CompressedData

	case CompressionLZ4:
		out = make([]byte, cp.UncompressedSize)
		n, err := lz4.UncompressBlock(cp.CompressedData, out)
		if err != nil {
			return nil, NewStorageError(ErrCodeCompression, "DecompressPage", "lz4 decompression failed", err)
		}
		if n != int(cp.UncompressedSize) {
			return nil, NewStorageError(ErrCodeCompression, "DecompressPage",
				fmt.Sprintf("lz4 size mismatch: got %d, expected %d", n, cp.UncompressedSize), nil)
		}

	case CompressionSnappy:
		var err error
		out, err = snappy.Decode(nil, cp.CompressedData)
		if err != nil {
			return nil, NewStorageError(ErrCodeCompression, "DecompressPage", "snappy decompression failed", err)
		}
		if len(out) != int(cp.UncompressedSize) {
			return nil, NewStorageError(ErrCodeCompression, "DecompressPage",
				fmt.Sprintf("snappy size mismatch: got %d, expected %d", len(out), cp.UncompressedSize), nil)
		}

	default:
		return nil, NewStorageError(ErrCodeCompression, "DecompressPage",
			fmt.Sprintf("unsupported compression type %d", cp.CompressionType), nil)
	}

	if sum := crc32.ChecksumIEEE(out); sum != cp.OriginalChecksum {
		return nil, NewStorageError(ErrCodeCompression, "DecompressPage",
			fmt.Sprintf("checksum mismatch: got %08x, expected %08x", sum, cp.OriginalChecksum), nil)
	}
	return out, nil
}

// SerializeCompressedPage encodes cp with its header. The result is not padded.
func SerializeCompressedPage(cp *CompressedPage) []byte {
	buf := make([]byte, CompressedHeaderSize+len(cp.CompressedData))
	binary.LittleEndian.PutUint16(buf[0:2], CompressedPageMagic)
	buf[2] = uint8(cp.CompressionType)
	binary.LittleEndian.PutUint32(buf[4:8], cp.UncompressedSize)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(cp.CompressedData)))
	binary.LittleEndian.PutUint32(buf[12:16], cp.OriginalChecksum)
	copy(buf[CompressedHeaderSize:], cp.CompressedData)
	return buf
}

// DeserializeCompressedPage decodes a buffer written by SerializeCompressedPage.
func DeserializeCompressedPage(data []byte) (*CompressedPage, error) {
	if len(data) < CompressedHeaderSize {
		return nil, NewStorageError(ErrCodeCompression, "DeserializeCompressedPage",
			fmt.Sprintf("%d bytes is too short for a header", len(data)), nil)
	}
	if magic := binary.LittleEndian.Uint16(data[0:2]); magic != CompressedPageMagic {
		return nil, NewStorageError(ErrCodeCompression, "DeserializeCompressedPage",
			fmt.Sprintf("invalid magic number %04x", magic), nil)
	}
	size := binary.LittleEndian.Uint32(data[8:12])
	if CompressedHeaderSize+int(size) > len(data) {
		return nil, NewStorageError(ErrCodeCompression, "DeserializeCompressedPage",
			fmt.Sprintf("need %d bytes, have %d", CompressedHeaderSize+int(size), len(data)), nil)
	}
	return &CompressedPage{
		CompressionType:  CompressionType(data[2]),
		UncompressedSize: binary.LittleEndian.Uint32(data[4:8]),
		CompressedData:   data[CompressedHeaderSize : CompressedHeaderSize+int(size)],
		OriginalChecksum: binary.LittleEndian.Uint32(data[12:16]),
	}, nil
}

// CompressionRatio returns compressed/uncompressed, 1.0 for an empty page.
func (cp *CompressedPage) CompressionRatio() float64 {
	if cp.UncompressedSize == 0 {
		return 1.0
	}
	return float64(len(cp.CompressedData)) / float64(cp.UncompressedSize)
}

// ChooseBestCompression compresses with every codec and keeps the smallest.
func ChooseBestCompression(data []byte) (*CompressedPage, error) {
	best, err := CompressPage(data, CompressionNone)
	if err != nil {
		return nil, err
	}
	for _, ct := range []CompressionType{CompressionLZ4, CompressionSnappy} {
		cp, err := CompressPage(data, ct)
		if err != nil {
			continue
		}
		if len(cp.CompressedData) < len(best.CompressedData) {
			best = cp
		}
	}
	return best, nil
}

// PageCompressionStats aggregates compression results over many pages
type PageCompressionStats struct {
	TotalPages        uint64
	CompressedPages   uint64
	UncompressedBytes uint64
	CompressedBytes   uint64
	LZ4Pages          uint64
	SnappyPages       uint64
}

// Record adds one page image to the statistics.
func (s *PageCompressionStats) Record(cp *CompressedPage) {
	s.TotalPages++
	s.UncompressedBytes += uint64(cp.UncompressedSize)
	s.CompressedBytes += uint64(len(cp.CompressedData))
	switch cp.CompressionType {
	case CompressionLZ4:
		s.CompressedPages++
		s.LZ4Pages++
	case CompressionSnappy:
		s.CompressedPages++
		s.SnappyPages++
	}
}

// SpaceSavings returns the saved fraction of bytes as a percentage.
func (s *PageCompressionStats) SpaceSavings() float64 {
	if s.UncompressedBytes == 0 {
		return 0
	}
	return (1 - float64(s.CompressedBytes)/float64(s.UncompressedBytes)) * 100.0
}
