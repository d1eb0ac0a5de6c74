package storage

import (
	"bytes"
	"math/rand/v2"
	"testing"
)

func compressiblePage() []byte {
	data := make([]byte, DefaultPageSize)
	for i := range data {
		data[i] = byte(i % 16)
	}
	return data
}

func randomPage(seed uint64) []byte {
	r := rand.New(rand.NewPCG(seed, seed))
	data := make([]byte, DefaultPageSize)
	for i := range data {
		data[i] = byte(r.Uint32())
	}
	return data
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	algorithms := []struct {
		name string
		typ  CompressionType
	}{
		{"None", CompressionNone},
		{"LZ4", CompressionLZ4},
		{"Snappy", CompressionSnappy},
		{"Best", CompressionBest},
	}

	for _, alg := range algorithms {
		t.Run(alg.name, func(t *testing.T) {
			original := compressiblePage()

			cp, err := CompressPage(original, alg.typ)
			if err != nil {
				t.Fatalf("Compression failed: %v", err)
			}
			if cp.UncompressedSize != DefaultPageSize {
				t.Errorf("Uncompressed size mismatch: got %d, expected %d", cp.UncompressedSize, DefaultPageSize)
			}

			decompressed, err := DecompressPage(cp)
			if err != nil {
				t.Fatalf("Decompression failed: %v", err)
			}
			if !bytes.Equal(original, decompressed) {
				t.Error("Decompressed data doesn't match original")
			}
		})
	}
}

func TestHighlyCompressibleData(t *testing.T) {
	for _, alg := range []CompressionType{CompressionLZ4, CompressionSnappy} {
		cp, err := CompressPage(compressiblePage(), alg)
		if err != nil {
			t.Fatalf("%s: compression failed: %v", alg, err)
		}
		if cp.CompressionType != alg {
			t.Errorf("%s: page was stored as %s", alg, cp.CompressionType)
		}
		if ratio := cp.CompressionRatio(); ratio > 0.5 {
			t.Errorf("%s: expected ratio below 0.5, got %.2f", alg, ratio)
		}
	}
}

func TestIncompressibleData(t *testing.T) {
	original := randomPage(7)

	cp, err := CompressPage(original, CompressionLZ4)
	if err != nil {
		t.Fatalf("Compression failed: %v", err)
	}
	if cp.CompressionType != CompressionNone {
		t.Errorf("Random data should fall back to uncompressed, got %s", cp.CompressionType)
	}

	decompressed, err := DecompressPage(cp)
	if err != nil {
		t.Fatalf("Decompression failed: %v", err)
	}
	if !bytes.Equal(original, decompressed) {
		t.Error("Decompressed data doesn't match original")
	}
}

func TestSerializeDeserializeCompressedPage(t *testing.T) {
	original := compressiblePage()
	cp, err := CompressPage(original, CompressionSnappy)
	if err != nil {
		t.Fatalf("Compression failed: %v", err)
	}

	serialized := SerializeCompressedPage(cp)
	if len(serialized) != CompressedHeaderSize+len(cp.CompressedData) {
		t.Errorf("Unexpected serialized size %d", len(serialized))
	}

	deserialized, err := DeserializeCompressedPage(serialized)
	if err != nil {
		t.Fatalf("Deserialization failed: %v", err)
	}
	if deserialized.CompressionType != cp.CompressionType ||
		deserialized.OriginalChecksum != cp.OriginalChecksum {
		t.Errorf("Header mismatch: got %+v", deserialized)
	}

	decompressed, err := DecompressPage(deserialized)
	if err != nil {
		t.Fatalf("Decompression failed: %v", err)
	}
	if !bytes.Equal(original, decompressed) {
		t.Error("Decompressed data doesn't match original")
	}
}

func TestDeserializeRejectsCorruptHeaders(t *testing.T) {
	cp, _ := CompressPage(compressiblePage(), CompressionLZ4)
	good := SerializeCompressedPage(cp)

	tests := []struct {
		name string
		data []byte
	}{
		{"short", good[:CompressedHeaderSize-1]},
		{"bad magic", append([]byte{0, 0}, good[2:]...)},
		{"truncated body", good[:len(good)-1]},
	}
	for _, test := range tests {
		_, err := DeserializeCompressedPage(test.data)
		if !IsErrorCode(err, ErrCodeCompression) {
			t.Errorf("%s: expected compression error, got %v", test.name, err)
		}
	}
}

func TestChecksumValidation(t *testing.T) {
	cp, err := CompressPage(compressiblePage(), CompressionLZ4)
	if err != nil {
		t.Fatalf("Compression failed: %v", err)
	}
	cp.OriginalChecksum ^= 1

	if _, err := DecompressPage(cp); !IsErrorCode(err, ErrCodeCompression) {
		t.Errorf("Expected checksum error, got %v", err)
	}
}

func TestChooseBestCompression(t *testing.T) {
	data := compressiblePage()

	best, err := ChooseBestCompression(data)
	if err != nil {
		t.Fatalf("ChooseBestCompression failed: %v", err)
	}
	for _, ct := range []CompressionType{CompressionLZ4, CompressionSnappy} {
		cp, _ := CompressPage(data, ct)
		if len(best.CompressedData) > len(cp.CompressedData) {
			t.Errorf("%s beats the chosen %s", ct, best.CompressionType)
		}
	}
}

func TestParseCompressionType(t *testing.T) {
	for _, ct := range []CompressionType{CompressionNone, CompressionLZ4, CompressionSnappy, CompressionBest} {
		got, err := ParseCompressionType(ct.String())
		if err != nil || got != ct {
			t.Errorf("ParseCompressionType(%q) = %v, %v", ct.String(), got, err)
		}
	}
	if _, err := ParseCompressionType("zstd"); !IsErrorCode(err, ErrCodeInvalidConfig) {
		t.Errorf("Expected config error for zstd, got %v", err)
	}
}

func TestPageCompressionStats(t *testing.T) {
	var stats PageCompressionStats

	for i := 0; i < 4; i++ {
		cp, _ := CompressPage(compressiblePage(), CompressionLZ4)
		stats.Record(cp)
	}
	cp, _ := CompressPage(randomPage(1), CompressionLZ4)
	stats.Record(cp)

	if stats.TotalPages != 5 || stats.CompressedPages != 4 || stats.LZ4Pages != 4 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if savings := stats.SpaceSavings(); savings <= 0 || savings >= 100 {
		t.Errorf("Expected savings in (0, 100), got %.2f", savings)
	}
}

func BenchmarkCompressLZ4(b *testing.B) {
	data := compressiblePage()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := CompressPage(data, CompressionLZ4); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCompressSnappy(b *testing.B) {
	data := compressiblePage()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := CompressPage(data, CompressionSnappy); err != nil {
			b.Fatal(err)
		}
	}
}
