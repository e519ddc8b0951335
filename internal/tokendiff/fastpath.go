package tokendiff

import "strings"

// Strategy names the path that produced a Result.
type Strategy string

// Strategies, in the order they are tried.
const (
	StrategyEqual         Strategy = "equal"
	StrategyAppend        Strategy = "append"
	StrategyPrepend       Strategy = "prepend"
	StrategyTruncateEnd   Strategy = "truncate-end"
	StrategyTruncateStart Strategy = "truncate-start"
	StrategyLCS           Strategy = "lcs"
	StrategyFallback      Strategy = "fallback"
)

// fastPath handles edits that do not need alignment, working on the raw strings. The checks are ordered; the first match wins.
func fastPath(oldText, newText string) (Result, Strategy, bool) {
	switch {
	case oldText == newText:
		return unchangedOrEmpty(oldText), StrategyEqual, true

	case len(oldText) < len(newText) && strings.HasPrefix(newText, oldText):
		return append(unchangedOrEmpty(oldText), Segment{Op: OpAdded, Text: newText[len(oldText):]}), StrategyAppend, true

	case len(oldText) < len(newText) && strings.HasSuffix(newText, oldText):
		head := Segment{Op: OpAdded, Text: newText[:len(newText)-len(oldText)]}
		return append(Result{head}, unchangedOrEmpty(oldText)...), StrategyPrepend, true

	case len(newText) < len(oldText) && strings.HasPrefix(oldText, newText):
		return append(unchangedOrEmpty(newText), Segment{Op: OpRemoved, Text: oldText[len(newText):]}), StrategyTruncateEnd, true

	case len(newText) < len(oldText) && strings.HasSuffix(oldText, newText):
		head := Segment{Op: OpRemoved, Text: oldText[:len(oldText)-len(newText)]}
		return append(Result{head}, unchangedOrEmpty(newText)...), StrategyTruncateStart, true
	}
	return nil, "", false
}

func unchangedOrEmpty(text string) Result {
	if text == "" {
		return Result{}
	}
	return Result{{Op: OpUnchanged, Text: text}}
}
