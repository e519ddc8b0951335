package tokendiff

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/msglog/msglog/internal/q/uni"
)

// Granularity selects what a simple (non-structured) token is.
type Granularity string

const (
	// GranularityCodepoint makes every codepoint its own token. Combining marks and ZWJ emoji sequences become several tokens.
	GranularityCodepoint Granularity = "codepoint"

	// GranularityGrapheme makes every extended grapheme cluster (UAX #29) its own token. This changes alignment for inputs with combining marks or emoji
	// sequences, so it is opt-in.
	GranularityGrapheme Granularity = "grapheme"
)

// ParseGranularity parses s. The empty string means GranularityCodepoint.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(strings.ToLower(strings.TrimSpace(s))) {
	case "", GranularityCodepoint:
		return GranularityCodepoint, nil
	case GranularityGrapheme:
		return GranularityGrapheme, nil
	}
	return "", fmt.Errorf("unknown granularity %q (want %q or %q)", s, GranularityCodepoint, GranularityGrapheme)
}

// Tokenize splits text into tokens at codepoint granularity. Concatenating the tokens yields text.
func Tokenize(text string) []string {
	return tokenize(text, GranularityCodepoint)
}

func tokenize(text string, g Granularity) []string {
	tokens := make([]string, 0, len(text))
	for i := 0; i < len(text); {
		n := structuredTokenLen(text[i:])
		if n == 0 {
			n = simpleTokenLen(text[i:], g)
		}
		tokens = append(tokens, text[i:i+n])
		i += n
	}
	return tokens
}

// structuredTokenLen returns the byte length of the mention, channel reference, or custom emoji that s starts with, or 0. An opening tag without a closing '>'
// is not a structured token.
func structuredTokenLen(s string) int {
	if len(s) < 2 || s[0] != '<' {
		return 0
	}
	switch {
	case s[1] == ':', s[1] == '@', s[1] == '#':
	case strings.HasPrefix(s[1:], "a:"):
	default:
		return 0
	}
	end := strings.IndexByte(s, '>')
	if end < 0 {
		return 0
	}
	return end + 1
}

// simpleTokenLen returns the byte length of the simple token at the start of s (len(s) > 0). Invalid UTF-8 is consumed one byte at a time.
func simpleTokenLen(s string, g Granularity) int {
	_, size := utf8.DecodeRuneInString(s)
	if g != GranularityGrapheme {
		return size
	}
	n := uni.GraphemeLen(s)
	if n <= size {
		return size
	}
	// A cluster must not swallow the '<' that opens a structured token.
	for i := size; i < n; i++ {
		if s[i] == '<' && structuredTokenLen(s[i:]) > 0 {
			return i
		}
	}
	return n
}
