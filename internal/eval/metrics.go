package eval

import "math"

// Ranking metrics use binary relevance and 1-indexed ranks. Only the first
// k ids of ranked are considered. Every result is in [0,1].

// RecallAtK is 1 when any of the top-k ids is relevant, else 0.
func RecallAtK(ranked []string, q QueryCase, k int) float64 {
	for _, id := range topK(ranked, k) {
		if q.Relevant(id) {
			return 1
		}
	}
	return 0
}

// MRRAtK is the reciprocal rank of the first relevant id in the top k, or 0.
func MRRAtK(ranked []string, q QueryCase, k int) float64 {
	for i, id := range topK(ranked, k) {
		if q.Relevant(id) {
			return 1 / float64(i+1)
		}
	}
	return 0
}

// NDCGAtK normalises the DCG of the top k by the DCG of the same ids
// re-ordered relevant-first. Rank 1 contributes rel and rank i>1 contributes
// rel/log2(i). It is 0 when no retrieved id is relevant.
func NDCGAtK(ranked []string, q QueryCase, k int) float64 {
	top := topK(ranked, k)
	rels := make([]float64, len(top))
	hits := 0
	for i, id := range top {
		if q.Relevant(id) {
			rels[i] = 1
			hits++
		}
	}
	ideal := make([]float64, len(top))
	for i := range hits {
		ideal[i] = 1
	}
	idcg := dcg(ideal)
	if idcg == 0 {
		return 0
	}
	return dcg(rels) / idcg
}

func dcg(rels []float64) float64 {
	var s float64
	for i, rel := range rels {
		rank := i + 1
		if rank == 1 {
			s += rel
			continue
		}
		s += rel / math.Log2(float64(rank))
	}
	return s
}

func topK(ranked []string, k int) []string {
	if k < 0 {
		k = 0
	}
	if len(ranked) > k {
		return ranked[:k]
	}
	return ranked
}

// mean returns the arithmetic mean, or 0 for no values.
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}
