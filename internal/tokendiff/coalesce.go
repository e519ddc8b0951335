package tokendiff

import "strings"

// coalesce merges adjacent segments with the same Op. Empty segments are dropped.
func coalesce(segments []Segment) Result {
	out := make(Result, 0, len(segments))
	var buf strings.Builder
	flush := func() {
		if buf.Len() > 0 {
			out[len(out)-1].Text = buf.String()
			buf.Reset()
		}
	}
	for _, seg := range segments {
		if seg.Text == "" {
			continue
		}
		if len(out) > 0 && out[len(out)-1].Op == seg.Op {
			if buf.Len() == 0 {
				buf.WriteString(out[len(out)-1].Text)
			}
			buf.WriteString(seg.Text)
			continue
		}
		flush()
		out = append(out, seg)
	}
	flush()
	return out
}
