package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const defaultHashDimension = 256

// HashEmbedder maps texts to normalized bag-of-words vectors without any network call.
// Texts sharing words get similar vectors, which is enough for offline runs and tests.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = defaultHashDimension
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Dimension() int {
	return h.dim
}

// CreateEmbedding implements embeddings.EmbedderClient.
func (h *HashEmbedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = h.embed(text)
	}
	return vectors, nil
}

func (h *HashEmbedder) embed(text string) []float32 {
	vector := make([]float32, h.dim)
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		// Empty text still needs a unit vector so cosine stays defined.
		vector[0] = 1
		return vector
	}
	for _, token := range tokens {
		hash := fnv.New64a()
		_, _ = hash.Write([]byte(token))
		vector[hash.Sum64()%uint64(h.dim)]++
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	for j := range vector {
		vector[j] = float32(float64(vector[j]) / norm)
	}
	return vector
}

// Tokenize lower-cases text and splits it on anything that is not a letter or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
