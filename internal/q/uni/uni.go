// Package uni segments text into extended grapheme clusters (UAX #29).
package uni

import (
	"github.com/clipperhouse/uax29/v2/graphemes"
)

// Iterator iterates over grapheme clusters.
type Iterator[T string | []byte] struct {
	iter *graphemes.Iterator[T]
}

// NewGraphemeIterator returns a new grapheme iterator for str (string or []byte).
func NewGraphemeIterator[T string | []byte](str T) *Iterator[T] {
	return &Iterator[T]{iter: newGraphemeIterator(str)}
}

func (iter *Iterator[T]) Next() bool {
	return iter.iter.Next()
}

func (iter *Iterator[T]) Value() T {
	return iter.iter.Value()
}

// Start returns the byte position of the current cluster in the original data.
func (iter *Iterator[T]) Start() int {
	return iter.iter.Start()
}

// End returns the byte position after the current cluster in the original data. Allows looping over bytes [Start(), End()).
func (iter *Iterator[T]) End() int {
	return iter.iter.End()
}

// GraphemeLen returns the byte length of the first grapheme cluster of str, or 0 if str is empty.
func GraphemeLen[T string | []byte](str T) int {
	iter := newGraphemeIterator(str)
	if !iter.Next() {
		return 0
	}
	return iter.End()
}

// Graphemes splits str into grapheme clusters.
func Graphemes(str string) []string {
	var out []string
	iter := newGraphemeIterator(str)
	for iter.Next() {
		out = append(out, iter.Value())
	}
	return out
}

func newGraphemeIterator[T string | []byte](text T) *graphemes.Iterator[T] {
	switch v := any(text).(type) {
	case string:
		iter := graphemes.FromString(v)
		return any(&iter).(*graphemes.Iterator[T])
	case []byte:
		iter := graphemes.FromBytes(v)
		return any(&iter).(*graphemes.Iterator[T])
	default:
		panic("unsupported type")
	}
}
