// Package tokendiff computes inline edit diffs between two versions of a chat message.
//
// Representation: a Result is an ordered slice of Segments. Each Segment has an Op:
//   - OpUnchanged: text present in both versions
//   - OpAdded: text present only in the new version
//   - OpRemoved: text present only in the old version
//
// Invariants:
//   - concat(Unchanged and Removed texts) == old
//   - concat(Unchanged and Added texts) == new
//   - no two adjacent segments share an Op, and no segment is empty
//   - structured tokens (mentions like <@123>, <@!123>, <@&123>, channel references like <#123>, custom emoji like <:wave:123> and <a:wave:123>) are never
//     split across segments
//
// Pipeline: a fast path handles equal strings and pure append/prepend/truncate edits directly on the raw strings. Otherwise both strings are tokenized, aligned
// with a longest-common-subsequence table, and adjacent same-Op tokens are coalesced. On equal scores, backtracking takes the Added branch first, so a removed
// run is emitted before the added run that replaces it (ex: "cat" -> "cot" is c, -a, +o, t).
//
// Getting a diff:
//
//	r := tokendiff.CreateMessageDiff(oldText, newText)
//	for _, seg := range r {
//		fmt.Println(seg.Op, seg.Text)
//	}
//
// Use an Engine for non-default behavior: a MaxCells ceiling that switches long, dissimilar inputs to a Myers diff over the same tokens, or grapheme-cluster
// granularity for simple tokens.
package tokendiff
