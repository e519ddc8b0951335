package tokendiff

import "fmt"

// Verify checks that r is a well-formed diff from oldText to newText and returns an error on the first violation.
func (r Result) Verify(oldText, newText string) error {
	for i, seg := range r {
		switch seg.Op {
		case OpUnchanged, OpAdded, OpRemoved:
		default:
			return fmt.Errorf("segment[%d]: invalid op %d", i, int(seg.Op))
		}
		if seg.Text == "" {
			return fmt.Errorf("segment[%d]: empty %s text", i, seg.Op)
		}
		if i > 0 && r[i-1].Op == seg.Op {
			return fmt.Errorf("segment[%d]: same op as previous segment (%s)", i, seg.Op)
		}
	}

	gotOld, gotNew := Reconstruct(r)
	if gotOld != oldText {
		return fmt.Errorf("diff: segments do not reconstruct old text")
	}
	if gotNew != newText {
		return fmt.Errorf("diff: segments do not reconstruct new text")
	}
	return nil
}
