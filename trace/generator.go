package trace

import (
	"encoding/binary"
	"io"
	"iter"
	"math/rand/v2"

	"github.com/spaolacci/murmur3"

	"github.com/sibexico/HexSim/storage"
)

// GeneratorConfig describes a synthetic workload with a hot set.
type GeneratorConfig struct {
	Pages      uint32  // address space in pages
	HotPages   uint32  // size of the hot set
	HotRatio   float64 // probability that a run starts in the hot set
	WriteRatio float64 // probability that a run is a write
	MaxRun     uint32  // longest run, at least 1
	Seed       uint64
}

// DefaultGeneratorConfig returns an 80/20 workload over 16384 pages.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Pages:      16384,
		HotPages:   3276,
		HotRatio:   0.8,
		WriteRatio: 0.3,
		MaxRun:     8,
		Seed:       1,
	}
}

// Generator produces a deterministic record stream for a seed.
type Generator struct {
	conf GeneratorConfig
	rng  *rand.Rand
}

// NewGenerator creates a generator. Zero sizes are raised to 1 and the hot
// set is clamped to the address space.
func NewGenerator(conf GeneratorConfig) *Generator {
	conf.Pages = max(1, conf.Pages)
	conf.HotPages = min(max(1, conf.HotPages), conf.Pages)
	conf.MaxRun = max(1, conf.MaxRun)
	return &Generator{
		conf: conf,
		rng:  rand.New(rand.NewPCG(conf.Seed, conf.Seed^0x9e3779b97f4a7c15)),
	}
}

// hotPage scatters hot set members over the address space so that they do
// not form one contiguous range.
func (g *Generator) hotPage(i uint32) uint32 {
	var key [4]byte
	binary.LittleEndian.PutUint32(key[:], i)
	return murmur3.Sum32WithSeed(key[:], uint32(g.conf.Seed)) % g.conf.Pages
}

// Next returns the next record.
func (g *Generator) Next() (Record, error) {
	var page uint32
	if g.rng.Float64() < g.conf.HotRatio {
		page = g.hotPage(g.rng.Uint32N(g.conf.HotPages))
	} else {
		page = g.rng.Uint32N(g.conf.Pages)
	}
	count := 1 + g.rng.Uint32N(g.conf.MaxRun)
	count = min(count, g.conf.Pages-page)

	op := storage.AccessRead
	if g.rng.Float64() < g.conf.WriteRatio {
		op = storage.AccessWrite
	}
	return Record{Page: page, Count: count, Op: op}, nil
}

// Records yields n records.
func (g *Generator) Records(n int) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for range n {
			r, _ := g.Next()
			if !yield(r) {
				return
			}
		}
	}
}

// Limit wraps a source so that it ends with io.EOF after n records.
func Limit(src Source, n int) Source {
	return &limited{src: src, left: n}
}

type limited struct {
	src  Source
	left int
}

func (l *limited) Next() (Record, error) {
	if l.left <= 0 {
		return Record{}, io.EOF
	}
	l.left--
	return l.src.Next()
}
