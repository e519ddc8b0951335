package tokendiff

// lcsTable is the (m+1)x(n+1) longest-common-subsequence table for two token slices, stored row-major.
type lcsTable struct {
	cols  int
	cells []int
}

func newLCSTable(oldTokens, newTokens []string) lcsTable {
	m, n := len(oldTokens), len(newTokens)
	t := lcsTable{cols: n + 1, cells: make([]int, (m+1)*(n+1))}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if oldTokens[i-1] == newTokens[j-1] {
				t.set(i, j, t.at(i-1, j-1)+1)
			} else {
				t.set(i, j, max(t.at(i-1, j), t.at(i, j-1)))
			}
		}
	}
	return t
}

func (t lcsTable) at(i, j int) int     { return t.cells[i*t.cols+j] }
func (t lcsTable) set(i, j int, v int) { t.cells[i*t.cols+j] = v }

// align returns token-granular segments for an optimal alignment of oldTokens to newTokens.
//
// Backtracking starts at the bottom-right corner and prefers, in order: a matching token, an added token when dp[i][j-1] >= dp[i-1][j], and otherwise a removed
// token. Because segments are discovered in reverse, the tie rule puts removals before the additions that replace them.
func align(oldTokens, newTokens []string) []Segment {
	t := newLCSTable(oldTokens, newTokens)

	i, j := len(oldTokens), len(newTokens)
	out := make([]Segment, 0, i+j-t.at(i, j))
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && oldTokens[i-1] == newTokens[j-1]:
			out = append(out, Segment{Op: OpUnchanged, Text: oldTokens[i-1]})
			i--
			j--
		case j > 0 && (i == 0 || t.at(i, j-1) >= t.at(i-1, j)):
			out = append(out, Segment{Op: OpAdded, Text: newTokens[j-1]})
			j--
		default:
			out = append(out, Segment{Op: OpRemoved, Text: oldTokens[i-1]})
			i--
		}
	}

	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}

// lcsLength returns the length of the longest common subsequence of oldTokens and newTokens.
func lcsLength(oldTokens, newTokens []string) int {
	return newLCSTable(oldTokens, newTokens).at(len(oldTokens), len(newTokens))
}
