package tokendiff

import (
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Token indexes are mapped onto runes, skipping the surrogate block so every index survives a string round trip.
const (
	surrogateMin  = 0xD800
	surrogateSize = 0x800
	maxTokenIndex = 0x10FFFF - surrogateSize
)

// tokenRunes interns tokens as runes so a rune-based diff cannot split a token.
type tokenRunes struct {
	index  map[string]rune
	tokens []string
}

func (tr *tokenRunes) encode(tokens []string) ([]rune, bool) {
	out := make([]rune, len(tokens))
	for i, tok := range tokens {
		r, ok := tr.index[tok]
		if !ok {
			n := len(tr.tokens)
			if n > maxTokenIndex {
				return nil, false
			}
			r = rune(n)
			if r >= surrogateMin {
				r += surrogateSize
			}
			tr.index[tok] = r
			tr.tokens = append(tr.tokens, tok)
		}
		out[i] = r
	}
	return out, true
}

func (tr *tokenRunes) decode(r rune) string {
	n := int(r)
	if r >= surrogateMin+surrogateSize {
		n -= surrogateSize
	}
	return tr.tokens[n]
}

// myersDiff aligns oldTokens to newTokens with diffmatchpatch's Myers implementation, which needs O(m+n) memory. The result satisfies the Result invariants,
// but on equal-cost alternatives it may choose a different alignment than align. ok is false if the tokens cannot be interned.
func myersDiff(oldTokens, newTokens []string, timeout time.Duration) (segments []Segment, ok bool) {
	tr := &tokenRunes{index: map[string]rune{}}
	oldRunes, ok := tr.encode(oldTokens)
	if !ok {
		return nil, false
	}
	newRunes, ok := tr.encode(newTokens)
	if !ok {
		return nil, false
	}

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = timeout
	diffs := dmp.DiffMainRunes(oldRunes, newRunes, false)

	segments = make([]Segment, 0, len(diffs))
	for _, d := range diffs {
		var op Op
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			op = OpUnchanged
		case diffmatchpatch.DiffInsert:
			op = OpAdded
		case diffmatchpatch.DiffDelete:
			op = OpRemoved
		}
		for _, r := range d.Text {
			segments = append(segments, Segment{Op: op, Text: tr.decode(r)})
		}
	}
	return segments, true
}
