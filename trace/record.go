// Package trace reads, writes, generates and replays page access traces.
//
// A trace is a text file with one access run per line:
//
//	page<TAB>count<TAB>isWrite<TAB># comment
//
// where the run covers pages page..page+count-1 and isWrite is 0 or 1. Lines
// whose first field is empty (I/O on non-file descriptors) and lines starting
// with '#' carry no accesses.
package trace

import (
	"fmt"

	"github.com/sibexico/HexSim/storage"
)

// Record is one access run.
type Record struct {
	Page  uint32
	Count uint32
	Op    storage.AccessType
}

// Pages returns the number of page accesses the record expands to. A zero
// count still touches one page.
func (r Record) Pages() uint32 { return max(1, r.Count) }

func (r Record) String() string {
	return fmt.Sprintf("%s %d+%d", r.Op, r.Page, r.Pages())
}
