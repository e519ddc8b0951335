package tokendiff

import "time"

// DefaultFallbackTimeout bounds the Myers fallback when Options.FallbackTimeout is zero.
const DefaultFallbackTimeout = time.Second

// Options configure an Engine. The zero value reproduces CreateMessageDiff.
type Options struct {
	Granularity Granularity // Simple-token granularity. "" means GranularityCodepoint.

	// MaxCells caps the LCS table at (len(oldTokens)+1)*(len(newTokens)+1) cells. Larger inputs are aligned with the Myers fallback instead. 0 means no cap.
	MaxCells int

	FallbackTimeout time.Duration // Deadline for the Myers fallback. 0 means DefaultFallbackTimeout; negative means no deadline.
}

// Engine computes message diffs. An Engine is immutable and safe for concurrent use.
type Engine struct {
	opts Options
}

// Stats describes how a pair of texts was diffed.
type Stats struct {
	Strategy  Strategy `json:"strategy" msgpack:"strategy"`
	OldTokens int      `json:"oldTokens" msgpack:"oldTokens"` // 0 when a fast path handled the pair.
	NewTokens int      `json:"newTokens" msgpack:"newTokens"` // 0 when a fast path handled the pair.
	Cells     int      `json:"cells" msgpack:"cells"`         // LCS table size that alignment needed (or would have needed, for the fallback).
	Segments  int      `json:"segments" msgpack:"segments"`
}

var defaultEngine = New(Options{})

// New returns an Engine configured by opts.
func New(opts Options) *Engine {
	if opts.Granularity == "" {
		opts.Granularity = GranularityCodepoint
	}
	if opts.MaxCells < 0 {
		opts.MaxCells = 0
	}
	switch {
	case opts.FallbackTimeout == 0:
		opts.FallbackTimeout = DefaultFallbackTimeout
	case opts.FallbackTimeout < 0:
		opts.FallbackTimeout = 0
	}
	return &Engine{opts: opts}
}

// Options returns the normalized options e was built with.
func (e *Engine) Options() Options {
	return e.opts
}

// CreateMessageDiff diffs previousContent to currentContent at codepoint granularity with no table ceiling.
func CreateMessageDiff(previousContent, currentContent string) Result {
	return defaultEngine.Diff(previousContent, currentContent)
}

// Diff diffs oldText to newText.
func (e *Engine) Diff(oldText, newText string) Result {
	r, _ := e.diff(oldText, newText)
	return r
}

// Stats diffs oldText to newText and reports how it was done.
func (e *Engine) Stats(oldText, newText string) Stats {
	_, st := e.diff(oldText, newText)
	return st
}

// DiffWithStats returns both the Result and its Stats.
func (e *Engine) DiffWithStats(oldText, newText string) (Result, Stats) {
	return e.diff(oldText, newText)
}

func (e *Engine) diff(oldText, newText string) (Result, Stats) {
	if r, strategy, ok := fastPath(oldText, newText); ok {
		return r, Stats{Strategy: strategy, Segments: len(r)}
	}

	oldTokens := tokenize(oldText, e.opts.Granularity)
	newTokens := tokenize(newText, e.opts.Granularity)
	st := Stats{
		Strategy:  StrategyLCS,
		OldTokens: len(oldTokens),
		NewTokens: len(newTokens),
		Cells:     tableCells(len(oldTokens), len(newTokens)),
	}

	var raw []Segment
	if e.opts.MaxCells > 0 && st.Cells > e.opts.MaxCells {
		if segs, ok := myersDiff(oldTokens, newTokens, e.opts.FallbackTimeout); ok {
			raw = segs
			st.Strategy = StrategyFallback
		}
	}
	if raw == nil {
		raw = align(oldTokens, newTokens)
	}

	r := coalesce(raw)
	st.Segments = len(r)
	return r, st
}

// tableCells returns (m+1)*(n+1), saturating instead of overflowing.
func tableCells(m, n int) int {
	const maxInt = int(^uint(0) >> 1)
	if n+1 != 0 && m+1 > maxInt/(n+1) {
		return maxInt
	}
	return (m + 1) * (n + 1)
}
