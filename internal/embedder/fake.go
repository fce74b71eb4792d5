package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// FakeEmbedder is a deterministic, dependency-free embedder. Each text is
// mapped to a hashed bag of its lowercase alphanumeric tokens, salted with
// the model name and L2-normalised. Texts sharing words land close together,
// which is enough for retrieval tests and offline evaluation without a model
// server. Vectors are stable across runs and processes.
type FakeEmbedder struct {
	// model salts the token hash so two fake models produce different spaces.
	model string
	// dims is the output vector length.
	dims int
}

// NewFakeEmbedder constructs a FakeEmbedder. dims <= 0 selects
// DefaultFakeDimensions.
func NewFakeEmbedder(model string, dims int) *FakeEmbedder {
	if dims <= 0 {
		dims = DefaultFakeDimensions
	}
	return &FakeEmbedder{model: model, dims: dims}
}

// Embed converts a batch of texts into their corresponding embeddings.
func (e *FakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *FakeEmbedder) vector(text string) []float32 {
	acc := make([]float64, e.dims)
	for _, tok := range tokens(text) {
		h := fnv.New64a()
		h.Write([]byte(e.model))
		h.Write([]byte{0})
		h.Write([]byte(tok))
		sum := h.Sum64()

		// Low bits pick the bucket, one high bit picks the sign.
		bucket := int(sum % uint64(e.dims))
		if sum>>63 == 1 {
			acc[bucket]--
		} else {
			acc[bucket]++
		}
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	vec := make([]float32, e.dims)
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

// tokens returns the lowercase alphanumeric runs of text.
func tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
