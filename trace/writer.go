package trace

import (
	"bufio"
	"fmt"
	"io"

	"github.com/sibexico/HexSim/storage"
)

// Writer emits records in the text trace format.
type Writer struct {
	w *bufio.Writer
}

// NewWriter creates a buffered writer over w. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write appends one record with an optional comment.
func (w *Writer) Write(r Record, comment string) error {
	isWrite := 0
	if r.Op == storage.AccessWrite {
		isWrite = 1
	}
	_, err := fmt.Fprintf(w.w, "%d\t%d\t%d\t# %s\n", r.Page, r.Count, isWrite, comment)
	return err
}

// WriteComment appends a line without accesses.
func (w *Writer) WriteComment(comment string) error {
	_, err := fmt.Fprintf(w.w, "\t\t\t# %s\n", comment)
	return err
}

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error { return w.w.Flush() }
