package wireformat

import (
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/msglog/msglog/internal/tokendiff"
)

// ANSI 256-color backgrounds for colored inline diffs.
const (
	ansiReset = "\x1b[0m"
	blackFG   = "\x1b[30m"
	pinkSpan  = "\x1b[48;5;217m" // removed text
	greenSpan = "\x1b[48;5;114m" // added text
)

// Inline renders r as one string holding both texts: removed text is wrapped in [-...-] and added text in {+...+}. With color, removed and added text get pink and
// green backgrounds instead of markers.
//
// Inline output is for people. It does not escape text that contains the markers, so it cannot be parsed back; use WriteText for that.
func Inline(r tokendiff.Result, color bool) string {
	var b strings.Builder
	for _, seg := range r {
		switch {
		case seg.Op == tokendiff.OpUnchanged:
			b.WriteString(seg.Text)
		case color:
			bg := greenSpan
			if seg.Op == tokendiff.OpRemoved {
				bg = pinkSpan
			}
			b.WriteString(blackFG + bg + seg.Text + ansiReset)
		case seg.Op == tokendiff.OpRemoved:
			b.WriteString("[-" + seg.Text + "-]")
		default:
			b.WriteString("{+" + seg.Text + "+}")
		}
	}
	return b.String()
}

// ColorEnabled reports whether Inline output to w should be colored: w is a terminal and NO_COLOR is unset.
func ColorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
