package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sibexico/HexSim/storage"
	"github.com/sibexico/HexSim/trace"
)

func addGeneratorFlags(fs *flag.FlagSet) *trace.GeneratorConfig {
	g := trace.DefaultGeneratorConfig()
	c := &g
	fs.Func("space", "synthetic address space in pages (default "+strconv.FormatUint(uint64(g.Pages), 10)+")", parseUint32(&c.Pages))
	fs.Func("hot", "synthetic hot set size in pages (default "+strconv.FormatUint(uint64(g.HotPages), 10)+")", parseUint32(&c.HotPages))
	fs.Float64Var(&c.HotRatio, "hot-ratio", g.HotRatio, "probability that a synthetic run hits the hot set")
	fs.Float64Var(&c.WriteRatio, "write-ratio", g.WriteRatio, "probability that a synthetic run is a write")
	fs.Func("max-run", "longest synthetic run in pages (default "+strconv.FormatUint(uint64(g.MaxRun), 10)+")", parseUint32(&c.MaxRun))
	fs.Uint64Var(&c.Seed, "seed", g.Seed, "synthetic workload seed")
	return c
}

func parseUint32(dst *uint32) func(string) error {
	return func(s string) error {
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return err
		}
		*dst = uint32(n)
		return nil
	}
}

func cmdRun(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stdout)
	cf := addConfigFlags(fs)
	gen := addGeneratorFlags(fs)
	records := fs.Int("records", 100000, "synthetic records to replay when no trace is given")
	flushEvery := fs.Int("flush-every", 0, "flush after this many records (0 never)")
	progress := fs.Duration("progress", 5*time.Second, "interval between progress log lines")
	metricsPath := fs.String("metrics", "", "write Prometheus metrics to this text file")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: hexsim run [flags] [trace ...]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := cf.load()
	if err != nil {
		return err
	}
	s, err := openSession(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runID := uuid.NewString()
	opts := trace.Options{
		Verify:           cfg.Verify,
		FlushEvery:       *flushEvery,
		ProgressInterval: *progress,
		Logger:           s.log.With(zap.String("run_id", runID)),
	}

	var src trace.Source
	if fs.NArg() == 0 {
		src = trace.Limit(trace.NewGenerator(*gen), *records)
	} else {
		srcs := make([]trace.Source, 0, fs.NArg())
		for _, path := range fs.Args() {
			r, err := trace.Open(path)
			if err != nil {
				return errors.Join(err, s.Close())
			}
			defer r.Close()
			srcs = append(srcs, fileSource{path: path, r: r})
		}
		src = trace.Chain(srcs...)
	}
	total, replayErr := trace.Replay(ctx, s.mgr, src, opts)

	if replayErr != nil {
		s.log.Error("replay failed", zap.String("run_id", runID), zap.Error(replayErr))
	}
	if err := s.Close(); err != nil {
		replayErr = errors.Join(replayErr, err)
	}

	rows := [][2]string{
		{"run", runID},
		{"records", strconv.FormatUint(total.Records, 10)},
		{"elapsed", total.Elapsed.Round(time.Millisecond).String()},
		{"distinct pages", fmt.Sprintf("%d (%d written)", total.DistinctPages, total.DistinctWritten)},
	}
	if cfg.Verify {
		rows = append(rows, [2]string{"verified reads", strconv.FormatUint(total.Verified, 10)})
	}
	if err := s.report(stdout, rows...); err != nil {
		return err
	}

	if *metricsPath != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(storage.NewCollector(s.mgr.Name(), s.mgr.Metrics(), s.mgr.Device()))
		if err := prometheus.WriteToTextfile(*metricsPath, reg); err != nil {
			return errors.Join(replayErr, fmt.Errorf("write metrics: %w", err))
		}
	}
	return replayErr
}

// fileSource prefixes the errors of a trace file with its path.
type fileSource struct {
	path string
	r    *trace.FileReader
}

func (f fileSource) Next() (trace.Record, error) {
	rec, err := f.r.Next()
	if err != nil && err != io.EOF {
		err = fmt.Errorf("%s: %w", f.path, err)
	}
	return rec, err
}

func cmdGen(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("gen", flag.ContinueOnError)
	fs.SetOutput(stdout)
	gen := addGeneratorFlags(fs)
	records := fs.Int("records", 100000, "records to write")
	out := fs.String("o", "", "output trace file; .sz and .lz4 are compressed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return errors.New("gen: -o is required")
	}

	w, err := trace.Create(*out)
	if err != nil {
		return err
	}
	if err := w.WriteComment(fmt.Sprintf("hexsim gen seed=%d space=%d hot=%d hot-ratio=%g write-ratio=%g",
		gen.Seed, gen.Pages, gen.HotPages, gen.HotRatio, gen.WriteRatio)); err != nil {
		w.Close()
		return err
	}
	for r := range trace.NewGenerator(*gen).Records(*records) {
		if err := w.Write(r, ""); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %d records to %s (%s)\n", *records, *out, trace.CompressionOf(*out))
	return nil
}
