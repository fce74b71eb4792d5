package vectorstore

import "math"

// cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or their lengths differ.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// selectMMR picks up to k indices from candidates by maximal marginal
// relevance against query. The first pick is the most similar candidate;
// each later pick maximises
//
//	lambda*sim(query, d) - (1-lambda)*max(sim(d, s) for s in selected)
//
// Ties keep the earliest candidate. Returned indices are in pick order.
func selectMMR(query []float32, candidates [][]float32, k int, lambda float64) []int {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	k = min(k, len(candidates))

	querySim := make([]float64, len(candidates))
	for i, c := range candidates {
		querySim[i] = cosine(query, c)
	}

	first := 0
	for i := range querySim {
		if querySim[i] > querySim[first] {
			first = i
		}
	}
	selected := []int{first}
	picked := make([]bool, len(candidates))
	picked[first] = true

	// maxSim[i] tracks max similarity of candidate i to anything selected.
	maxSim := make([]float64, len(candidates))
	for i, c := range candidates {
		maxSim[i] = cosine(c, candidates[first])
	}

	for len(selected) < k {
		best, bestScore := -1, math.Inf(-1)
		for i := range candidates {
			if picked[i] {
				continue
			}
			score := lambda*querySim[i] - (1-lambda)*maxSim[i]
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			break
		}
		selected = append(selected, best)
		picked[best] = true
		for i, c := range candidates {
			if !picked[i] {
				maxSim[i] = math.Max(maxSim[i], cosine(c, candidates[best]))
			}
		}
	}
	return selected
}
