package attribution

// PartialRatio scores in [0,100] how well the shorter string appears inside
// the longer one: the best ratio between the shorter string and any window
// of the same length in the longer string. Comparison is rune-wise and case
// sensitive; callers uppercase both sides.
func PartialRatio(a, b string) float64 {
	s, l := []rune(a), []rune(b)
	if len(s) > len(l) {
		s, l = l, s
	}
	if len(s) == 0 {
		return 0
	}

	best := 0.0
	for start := 0; start+len(s) <= len(l); start++ {
		score := ratio(s, l[start:start+len(s)])
		if score > best {
			best = score
			if best == 100 {
				break
			}
		}
	}
	return best
}

// ratio is the normalized indel similarity 2·LCS / (|a|+|b|) × 100.
func ratio(a, b []rune) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 100
	}
	return 200 * float64(lcs(a, b)) / float64(total)
}

// lcs returns the length of the longest common subsequence.
func lcs(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
