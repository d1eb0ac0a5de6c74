package storage

// CompressedDevice is an in-memory device that keeps each page as a
// compressed image. It returns what was written, like MemoryDevice, and
// reports how much space the images occupy.
type CompressedDevice struct {
	ioCounters
	pageSize    int
	compression CompressionType
	images      map[uint32][]byte
	stored      int64
	stats       PageCompressionStats
}

// NewCompressedDevice creates an empty device compressing with ct.
func NewCompressedDevice(pageSize int, ct CompressionType) *CompressedDevice {
	return &CompressedDevice{
		pageSize:    pageSize,
		compression: ct,
		images:      make(map[uint32][]byte),
	}
}

func (d *CompressedDevice) Name() string  { return "Compressed(" + d.compression.String() + ")" }
func (d *CompressedDevice) PageSize() int { return d.pageSize }

// StoredBytes returns the total size of the stored page images, headers included.
func (d *CompressedDevice) StoredBytes() int64 { return d.stored }

// Stats returns the compression statistics over every write so far.
func (d *CompressedDevice) Stats() PageCompressionStats { return d.stats }

func (d *CompressedDevice) Read(pageID uint32, buf []byte) error {
	if err := checkPageBuffer("CompressedDevice.Read", d.pageSize, buf); err != nil {
		return err
	}
	d.reads++
	img, ok := d.images[pageID]
	if !ok {
		clear(buf)
		return nil
	}
	cp, err := DeserializeCompressedPage(img)
	if err != nil {
		return err
	}
	data, err := DecompressPage(cp)
	if err != nil {
		return err
	}
	copy(buf, data)
	return nil
}

func (d *CompressedDevice) Write(pageID uint32, data []byte) error {
	if err := checkPageBuffer("CompressedDevice.Write", d.pageSize, data); err != nil {
		return err
	}
	cp, err := CompressPage(data, d.compression)
	if err != nil {
		return err
	}
	img := SerializeCompressedPage(cp)
	d.stored += int64(len(img)) - int64(len(d.images[pageID]))
	d.images[pageID] = img
	d.stats.Record(cp)
	d.writes++
	return nil
}
