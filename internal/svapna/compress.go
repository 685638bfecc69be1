package svapna

import (
	"math"
	"sort"
	"strings"

	"smriti/internal/tokenizer"
	"smriti/internal/types"
)

const (
	sinkhornIterations = 25
	sinkhornTolerance  = 1e-6
	sinkhornEpsilon    = 0.1
)

// classifyImportance implements spec.md §4.10.5 step 2: pramana
// classification from content heuristics, then the is_error floor.
func classifyImportance(t *types.Turn) (types.PramanaType, float64) {
	lower := strings.ToLower(t.Content)

	pt, weight := types.PramanaAnumana, 0.65
	for _, tc := range t.ToolCalls {
		if tc.Result != "" {
			pt, weight = types.PramanaPratyaksha, 0.95
			break
		}
	}
	if pt != types.PramanaPratyaksha {
		switch {
		case containsAny(lower, "according to", "the docs say", "specification", "per the reference"):
			pt, weight = types.PramanaShabda, 0.80
		case containsAny(lower, "similar to", "analogous to", "just as", "compared to"):
			pt, weight = types.PramanaUpamana, 0.50
		case containsAny(lower, "must be", "likely implies", "therefore", "probably means"):
			pt, weight = types.PramanaArthapatti, 0.40
		case containsAny(lower, "maybe", "perhaps", "possibly", "might", "could be"):
			pt, weight = types.PramanaAnupalabdhi, 0.25
		}
	}

	for _, tc := range t.ToolCalls {
		if tc.IsError && weight < 0.9 {
			weight = 0.9
		}
	}
	return pt, weight
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// sinkhorn runs the standard Sinkhorn-Knopp iterative row/column
// normalization between a source distribution r and a target distribution
// c over a position-preserving cost matrix, for at most maxIter
// iterations or until convergence.
func sinkhorn(r, c []float64, maxIter int, tol float64) [][]float64 {
	n, m := len(r), len(c)
	kernel := make([][]float64, n)
	for i := range kernel {
		kernel[i] = make([]float64, m)
		for j := range kernel[i] {
			pi := float64(i) / float64(maxInt(n-1, 1))
			pj := float64(j) / float64(maxInt(m-1, 1))
			dist := pi - pj
			if dist < 0 {
				dist = -dist
			}
			kernel[i][j] = math.Exp(-dist / sinkhornEpsilon)
		}
	}

	u := make([]float64, n)
	v := make([]float64, m)
	for i := range u {
		u[i] = 1
	}
	for j := range v {
		v[j] = 1
	}

	for iter := 0; iter < maxIter; iter++ {
		maxDev := 0.0

		for i := 0; i < n; i++ {
			var rowSum float64
			for j := 0; j < m; j++ {
				rowSum += kernel[i][j] * v[j]
			}
			newU := 0.0
			if rowSum > 0 {
				newU = r[i] / rowSum
			}
			if d := absFloat(newU - u[i]); d > maxDev {
				maxDev = d
			}
			u[i] = newU
		}

		for j := 0; j < m; j++ {
			var colSum float64
			for i := 0; i < n; i++ {
				colSum += kernel[i][j] * u[i]
			}
			newV := 0.0
			if colSum > 0 {
				newV = c[j] / colSum
			}
			if d := absFloat(newV - v[j]); d > maxDev {
				maxDev = d
			}
			v[j] = newV
		}

		if maxDev < tol {
			break
		}
	}

	plan := make([][]float64, n)
	for i := range plan {
		plan[i] = make([]float64, m)
		for j := range plan[i] {
			plan[i][j] = u[i] * kernel[i][j] * v[j]
		}
	}
	return plan
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func absFloat(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// compress implements spec.md §4.10.5: fewer than two turns is a no-op at
// ratio 1.0; otherwise build per-turn importance weights, transport them
// to a half-length target distribution via Sinkhorn-Knopp, and keep the
// turn most strongly assigned to each target slot.
func compress(turns []*types.Turn, tok tokenizer.Tokenizer) (float64, int64) {
	if len(turns) < 2 {
		return 1.0, 0
	}

	weights := make([]float64, len(turns))
	var total float64
	for i, t := range turns {
		_, w := classifyImportance(t)
		weights[i] = w
		total += w
	}
	if total == 0 {
		return 1.0, 0
	}
	r := make([]float64, len(weights))
	for i, w := range weights {
		r[i] = w / total
	}

	targetLen := len(turns) / 2
	if targetLen < 1 {
		targetLen = 1
	}
	c := make([]float64, targetLen)
	for j := range c {
		c[j] = 1.0 / float64(targetLen)
	}

	plan := sinkhorn(r, c, sinkhornIterations, sinkhornTolerance)

	keep := make(map[int]bool)
	for j := 0; j < targetLen; j++ {
		best, bestMass := -1, -1.0
		for i := 0; i < len(turns); i++ {
			if plan[i][j] > bestMass {
				bestMass = plan[i][j]
				best = i
			}
		}
		if best >= 0 {
			keep[best] = true
		}
	}

	kept := make([]int, 0, len(keep))
	for i := range keep {
		kept = append(kept, i)
	}
	sort.Ints(kept)

	var oldTokens, newTokens int64
	for i, t := range turns {
		n := int64(tok.Tokens(t.Content))
		oldTokens += n
		if keep[i] {
			newTokens += n
		}
	}
	if oldTokens == 0 {
		return 1.0, 0
	}

	ratio := float64(newTokens) / float64(oldTokens)
	if len(kept) == len(turns) {
		ratio = 1.0
	}
	return ratio, oldTokens - newTokens
}
