package reference

import (
	"math"
	"strings"
)

// nameSimilarity computes a length-normalised similarity ratio between two
// airline names: twice the length of the longest common subsequence of the
// uppercased names divided by the total length, rounded to three decimals.
func nameSimilarity(a, b string) float64 {
	a = strings.ToUpper(a)
	b = strings.ToUpper(b)
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	ratio := 2 * float64(lcsLength(a, b)) / float64(len(a)+len(b))
	return math.Round(ratio*1000) / 1000
}

// lcsLength returns the length of the longest common subsequence using a
// two-row dynamic program.
func lcsLength(a, b string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
