package backup

import (
	"fmt"
	"io"
)

// BoardSummary counts enabled and paired servos on one board.
type BoardSummary struct {
	Index   int
	Address int
	Enabled int
	Paired  int
}

// Summarize reduces the document's boards to per-board counts.
func Summarize(d Document) ([]BoardSummary, bool) {
	boards, ok := d.Boards()
	if !ok {
		return nil, false
	}
	out := make([]BoardSummary, 0, len(boards))
	for _, b := range boards {
		s := BoardSummary{Index: b.Index, Address: b.Address}
		for _, sv := range b.Servos {
			if sv.Enabled {
				s.Enabled++
			}
			if sv.IsPair {
				s.Paired++
			}
		}
		out = append(out, s)
	}
	return out, true
}

func (s BoardSummary) String() string {
	return fmt.Sprintf("Board %d (0x%02X): %d enabled servos, %d paired", s.Index, s.Address, s.Enabled, s.Paired)
}

// WriteSummary prints the backed up configuration summary. Nothing is
// written when the document has no usable boards.
func WriteSummary(w io.Writer, d Document) {
	sums, ok := Summarize(d)
	if !ok {
		return
	}
	fmt.Fprintln(w, "\nBacked up configuration summary:")
	for _, s := range sums {
		fmt.Fprintf(w, "  %s\n", s)
	}
}
