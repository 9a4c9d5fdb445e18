package match

// Ratio computes the Ratcliff/Obershelp similarity between two strings: the
// longest common contiguous block is found, the remaining left and right
// segments are processed the same way, and the result is 2*M/(len(a)+len(b))
// where M is the total matched length. The ratio is symmetric, 1 for equal
// strings (including two empty strings), and 0 when exactly one side is
// empty. Inputs are expected to be normalized already (ASCII), so matching
// operates on bytes.
func Ratio(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	m := matchedChars(a, b)
	return 2 * float64(m) / float64(len(a)+len(b))
}

// segment is a pending pair of half-open ranges [aLo,aHi) x [bLo,bHi).
type segment struct {
	aLo, aHi, bLo, bHi int
}

// matchedChars sums the lengths of all matching blocks using an explicit
// stack instead of recursion.
func matchedChars(a, b string) int {
	total := 0
	stack := []segment{{0, len(a), 0, len(b)}}
	for len(stack) > 0 {
		seg := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seg.aLo >= seg.aHi || seg.bLo >= seg.bHi {
			continue
		}
		ai, bi, size := longestCommonBlock(a, b, seg)
		if size == 0 {
			continue
		}
		total += size
		stack = append(stack,
			segment{seg.aLo, ai, seg.bLo, bi},
			segment{ai + size, seg.aHi, bi + size, seg.bHi},
		)
	}
	return total
}

// longestCommonBlock finds the longest common contiguous substring within the
// given segment. Ties prefer the earliest start in a, then in b, keeping the
// decomposition deterministic.
func longestCommonBlock(a, b string, seg segment) (ai, bi, size int) {
	ai, bi = seg.aLo, seg.bLo
	width := seg.bHi - seg.bLo
	prev := make([]int, width+1)
	cur := make([]int, width+1)
	for i := seg.aLo; i < seg.aHi; i++ {
		for j := seg.bLo; j < seg.bHi; j++ {
			jc := j - seg.bLo
			if a[i] == b[j] {
				k := prev[jc] + 1
				cur[jc+1] = k
				if k > size {
					size = k
					ai = i - k + 1
					bi = j - k + 1
				}
			} else {
				cur[jc+1] = 0
			}
		}
		prev, cur = cur, prev
	}
	return ai, bi, size
}
