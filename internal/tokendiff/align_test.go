package tokendiff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlign_TokenGranular(t *testing.T) {
	got := align([]string{"c", "a", "t"}, []string{"c", "o", "t"})
	assert.Equal(t, []Segment{u("c"), r("a"), a("o"), u("t")}, got)
}

func TestAlign_EmptySides(t *testing.T) {
	assert.Empty(t, align(nil, nil))
	assert.Equal(t, []Segment{a("x"), a("y")}, align(nil, []string{"x", "y"}))
	assert.Equal(t, []Segment{r("x"), r("y")}, align([]string{"x", "y"}, nil))
}

func TestLCSLength(t *testing.T) {
	assert.Equal(t, 0, lcsLength(nil, []string{"a"}))
	assert.Equal(t, 4, lcsLength(Tokenize("kitten"), Tokenize("sitting")))
	assert.Equal(t, 3, lcsLength(Tokenize("a<@1>b"), Tokenize("a<@1>b")))
	assert.Equal(t, 2, lcsLength(Tokenize("a<@1>b"), Tokenize("a<@2>b")))
}

func TestCoalesce(t *testing.T) {
	got := coalesce([]Segment{u("a"), u("b"), a(""), a("c"), a("d"), r("e"), u(""), r("f")})
	assert.Equal(t, Result{u("ab"), a("cd"), r("ef")}, got)
	assert.Empty(t, coalesce(nil))
}

func TestTokenRunes_SkipsSurrogates(t *testing.T) {
	tr := &tokenRunes{index: map[string]rune{}}
	tr.tokens = make([]string, surrogateMin)
	runes, ok := tr.encode([]string{"x", "y", "x"})
	assert.True(t, ok)
	assert.Equal(t, rune(surrogateMin+surrogateSize), runes[0])
	assert.Equal(t, runes[0], runes[2])
	assert.Equal(t, "x", tr.decode(runes[0]))
	assert.Equal(t, "y", tr.decode(runes[1]))

	// Interned runes survive a string round trip.
	assert.Equal(t, runes, []rune(string(runes)))
}
