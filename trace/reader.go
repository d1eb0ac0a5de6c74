package trace

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/sibexico/HexSim/storage"
)

// ParseError reports a malformed trace line.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("trace line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Reader parses records from a text trace.
type Reader struct {
	scanner *bufio.Scanner
	line    int
}

// NewReader creates a reader over r.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 1024*1024)
	return &Reader{scanner: s}
}

// Line returns the number of the last line read.
func (r *Reader) Line() int { return r.line }

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (Record, error) {
	for r.scanner.Scan() {
		r.line++
		text := r.scanner.Text()
		rec, ok, err := parseLine(text)
		if err != nil {
			return Record{}, &ParseError{Line: r.line, Text: text, Err: err}
		}
		if ok {
			return rec, nil
		}
	}
	if err := r.scanner.Err(); err != nil {
		return Record{}, err
	}
	return Record{}, io.EOF
}

// ReadAll reads every remaining record.
func (r *Reader) ReadAll() ([]Record, error) {
	var out []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

func parseLine(text string) (Record, bool, error) {
	if i := strings.IndexByte(text, '#'); i >= 0 {
		text = text[:i]
	}
	fields := strings.Split(text, "\t")
	if strings.TrimSpace(fields[0]) == "" {
		return Record{}, false, nil
	}
	if len(fields) < 3 {
		return Record{}, false, fmt.Errorf("want 3 fields, got %d", len(fields))
	}

	page, err := strconv.ParseUint(strings.TrimSpace(fields[0]), 10, 32)
	if err != nil {
		return Record{}, false, fmt.Errorf("page: %w", err)
	}
	count, err := strconv.ParseUint(strings.TrimSpace(fields[1]), 10, 32)
	if err != nil {
		return Record{}, false, fmt.Errorf("count: %w", err)
	}
	if page+max(count, 1) > math.MaxUint32+1 {
		return Record{}, false, fmt.Errorf("run of %d pages from %d passes the last page id", count, page)
	}
	op := storage.AccessRead
	switch strings.TrimSpace(fields[2]) {
	case "0":
	case "1":
		op = storage.AccessWrite
	default:
		return Record{}, false, fmt.Errorf("isWrite must be 0 or 1, got %q", fields[2])
	}
	return Record{Page: uint32(page), Count: uint32(count), Op: op}, true, nil
}
