package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/sibexico/HexSim/logger"
	"github.com/sibexico/HexSim/storage"
)

// session owns the logger, device and manager built from one config.
type session struct {
	cfg      *storage.Config
	log      *zap.Logger
	closeLog func()
	dev      storage.BlockDevice
	mgr      storage.BufferManager
	closed   bool
}

func openSession(cfg *storage.Config) (*session, error) {
	log, closeLog, err := logger.New(logger.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		OutputFile: cfg.LogOutput,
	})
	if err != nil {
		return nil, err
	}

	dev, err := storage.NewDevice(cfg)
	if err != nil {
		closeLog()
		return nil, err
	}
	mgr, err := storage.NewBufferManager(cfg, dev, storage.WithLogger(log))
	if err != nil {
		closeDevice(dev)
		closeLog()
		return nil, err
	}

	log.Info("buffer manager ready",
		zap.String("manager", mgr.Description()),
		zap.Int("pages", cfg.PageCount),
		zap.Int("page_size", mgr.PageSize()))
	return &session{cfg: cfg, log: log, closeLog: closeLog, dev: dev, mgr: mgr}, nil
}

func closeDevice(dev storage.BlockDevice) error {
	if c, ok := dev.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Close flushes the manager, then releases the device and the log file.
// The log stays usable until the first successful Close.
func (s *session) Close() error {
	if s.closed {
		return nil
	}
	if err := s.mgr.Close(); err != nil {
		return err
	}
	s.closed = true
	err := closeDevice(s.dev)
	s.closeLog()
	return err
}

// report prints the counters of the session as an aligned table.
func (s *session) report(w io.Writer, rows ...[2]string) error {
	snap := s.mgr.Metrics().Snapshot()
	dev := s.mgr.Device()

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", r[0], r[1])
	}
	fmt.Fprintf(tw, "manager\t%s\n", s.mgr.Description())
	fmt.Fprintf(tw, "requests\t%d reads, %d writes\n", snap.ReadRequests, snap.WriteRequests)
	fmt.Fprintf(tw, "hit ratio\t%.2f%%\n", snap.HitRate)
	fmt.Fprintf(tw, "ghost hits\t%d\n", snap.GhostHits)
	fmt.Fprintf(tw, "evictions\t%d\n", snap.Evictions)
	fmt.Fprintf(tw, "write backs\t%d\n", snap.WriteBacks)
	fmt.Fprintf(tw, "flushes\t%d\n", s.mgr.FlushCount())
	fmt.Fprintf(tw, "device\t%s\n", dev.Name())
	fmt.Fprintf(tw, "device reads\t%d\n", dev.ReadCount())
	fmt.Fprintf(tw, "device writes\t%d\n", dev.WriteCount())
	if cd, ok := dev.(*storage.CompressedDevice); ok {
		fmt.Fprintf(tw, "stored bytes\t%d\n", cd.StoredBytes())
	}
	fmt.Fprintf(tw, "cost\t%g\n", s.cfg.Cost(dev.ReadCount(), dev.WriteCount()))
	return tw.Flush()
}
