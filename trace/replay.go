package trace

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sibexico/HexSim/storage"
)

// Source yields records until it returns io.EOF.
type Source interface {
	Next() (Record, error)
}

// SliceSource replays a fixed list of records.
type SliceSource struct {
	records []Record
	pos     int
}

func NewSliceSource(records []Record) *SliceSource {
	return &SliceSource{records: records}
}

func (s *SliceSource) Next() (Record, error) {
	if s.pos >= len(s.records) {
		return Record{}, io.EOF
	}
	r := s.records[s.pos]
	s.pos++
	return r, nil
}

// Chain replays sources one after another as a single source.
func Chain(srcs ...Source) Source {
	return &chain{srcs: srcs}
}

type chain struct {
	srcs []Source
}

func (c *chain) Next() (Record, error) {
	for len(c.srcs) > 0 {
		r, err := c.srcs[0].Next()
		if err != io.EOF {
			return r, err
		}
		c.srcs = c.srcs[1:]
	}
	return Record{}, io.EOF
}

// Options controls Replay.
type Options struct {
	// Verify checks every read against the last image written to the page.
	// Pages never written are expected to read as zeros, so the device must
	// start empty.
	Verify bool
	// FlushEvery flushes the manager after every FlushEvery records. Zero
	// disables periodic flushes.
	FlushEvery int
	// ProgressInterval is the minimum time between progress log lines.
	ProgressInterval time.Duration
	Logger           *zap.Logger
}

// Summary describes a finished or interrupted replay.
type Summary struct {
	Records         uint64
	Reads           uint64 // page reads issued
	Writes          uint64 // page writes issued
	Verified        uint64
	Flushes         int
	DistinctPages   int
	DistinctWritten int
	Elapsed         time.Duration
}

// VerifyError reports a read that returned other data than last written.
type VerifyError struct {
	Page    uint32
	Version uint32
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("page %d: read data does not match write #%d", e.Page, e.Version)
}

// FillPage writes the deterministic image of version v of a page into buf.
// Version 0 is the empty page.
func FillPage(buf []byte, page, v uint32) {
	if v == 0 {
		clear(buf)
		return
	}
	seed := page*2654435761 ^ v*40503
	for i := range buf {
		shift := 8 * (i % 4)
		buf[i] = byte(seed>>shift) ^ byte(i)
	}
	if len(buf) >= 8 {
		binary.LittleEndian.PutUint32(buf[0:], page)
		binary.LittleEndian.PutUint32(buf[4:], v)
	}
}

// Replay issues every page access of src against mgr. The manager is not
// closed. On error the summary covers the records replayed so far.
func Replay(ctx context.Context, mgr storage.BufferManager, src Source, opts Options) (Summary, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	interval := opts.ProgressInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	progress := rate.Sometimes{Interval: interval}

	ps := mgr.PageSize()
	buf := make([]byte, ps)
	expect := make([]byte, ps)
	versions := make(map[uint32]uint32)
	touched := mapset.NewThreadUnsafeSet[uint32]()
	written := mapset.NewThreadUnsafeSet[uint32]()

	var s Summary
	start := time.Now()
	done := func(err error) (Summary, error) {
		s.DistinctPages = touched.Cardinality()
		s.DistinctWritten = written.Cardinality()
		s.Elapsed = time.Since(start)
		return s, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return done(err)
		}
		rec, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return done(err)
		}
		s.Records++
		if uint64(rec.Page)+uint64(rec.Pages()) > math.MaxUint32+1 {
			return done(fmt.Errorf("record %d: %s passes the last page id", s.Records, rec))
		}

		for i := range rec.Pages() {
			page := rec.Page + i
			touched.Add(page)
			if rec.Op == storage.AccessWrite {
				versions[page]++
				FillPage(buf, page, versions[page])
				if err := mgr.Write(page, buf); err != nil {
					return done(fmt.Errorf("record %d: %w", s.Records, err))
				}
				written.Add(page)
				s.Writes++
				continue
			}

			if err := mgr.ReadInto(page, buf); err != nil {
				return done(fmt.Errorf("record %d: %w", s.Records, err))
			}
			s.Reads++
			if opts.Verify && ps > 0 {
				FillPage(expect, page, versions[page])
				if !bytes.Equal(buf, expect) {
					return done(&VerifyError{Page: page, Version: versions[page]})
				}
				s.Verified++
			}
		}

		if opts.FlushEvery > 0 && s.Records%uint64(opts.FlushEvery) == 0 {
			if err := mgr.Flush(); err != nil {
				return done(fmt.Errorf("flush after record %d: %w", s.Records, err))
			}
			s.Flushes++
		}

		progress.Do(func() {
			log.Info("replay progress",
				zap.Uint64("records", s.Records),
				zap.Uint64("reads", s.Reads),
				zap.Uint64("writes", s.Writes),
				zap.Float64("hit_rate", mgr.Metrics().Snapshot().HitRate))
		})
	}

	log.Debug("replay finished",
		zap.String("manager", mgr.Description()),
		zap.Uint64("records", s.Records),
		zap.Int("distinct_pages", touched.Cardinality()))
	return done(nil)
}
