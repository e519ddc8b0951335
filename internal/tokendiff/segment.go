package tokendiff

import (
	"fmt"
	"strings"
)

// Op is the provenance of a Segment.
type Op int

// Provenances of diff text.
const (
	OpUnchanged Op = iota
	OpAdded
	OpRemoved
)

func (op Op) String() string {
	switch op {
	case OpUnchanged:
		return "unchanged"
	case OpAdded:
		return "added"
	case OpRemoved:
		return "removed"
	default:
		return fmt.Sprintf("Op(%d)", int(op))
	}
}

// MarshalText encodes op as "unchanged", "added", or "removed".
func (op Op) MarshalText() ([]byte, error) {
	switch op {
	case OpUnchanged, OpAdded, OpRemoved:
		return []byte(op.String()), nil
	}
	return nil, fmt.Errorf("tokendiff: invalid op %d", int(op))
}

// UnmarshalText is the inverse of MarshalText.
func (op *Op) UnmarshalText(b []byte) error {
	switch string(b) {
	case "unchanged":
		*op = OpUnchanged
	case "added":
		*op = OpAdded
	case "removed":
		*op = OpRemoved
	default:
		return fmt.Errorf("tokendiff: unknown op %q", string(b))
	}
	return nil
}

// Segment is a run of text with a single provenance.
type Segment struct {
	Op   Op     `json:"type" msgpack:"type"`
	Text string `json:"text" msgpack:"text"`
}

// Result is an ordered diff from an old text to a new text.
type Result []Segment

// Reconstruct returns the old and new texts described by r.
func Reconstruct(r Result) (oldText, newText string) {
	var o, n strings.Builder
	for _, seg := range r {
		switch seg.Op {
		case OpUnchanged:
			o.WriteString(seg.Text)
			n.WriteString(seg.Text)
		case OpRemoved:
			o.WriteString(seg.Text)
		case OpAdded:
			n.WriteString(seg.Text)
		}
	}
	return o.String(), n.String()
}

// Changed reports whether r contains any added or removed text.
func (r Result) Changed() bool {
	for _, seg := range r {
		if seg.Op != OpUnchanged {
			return true
		}
	}
	return false
}
