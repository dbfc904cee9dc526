package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/cloudwego/eino/components/embedding"
)

const DefaultHashingDims = 256

// Hashing is a deterministic bag-of-words embedder using the hashing trick.
// It needs no network and is used offline and in tests.
type Hashing struct {
	dims int
}

func NewHashing(dims int) *Hashing {
	if dims <= 0 {
		dims = DefaultHashingDims
	}
	return &Hashing{dims: dims}
}

// EmbedStrings implements embedding.Embedder. Vectors are L2-normalised.
func (h *Hashing) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = h.embed(text)
	}
	return out, nil
}

func (h *Hashing) embed(text string) []float64 {
	vec := make([]float64, h.dims)
	for _, tok := range tokenize(text) {
		hf := fnv.New64a()
		_, _ = hf.Write([]byte(tok))
		sum := hf.Sum64()
		idx := int(sum % uint64(h.dims))
		// sign bit keeps collisions from always adding up
		if sum&(1<<63) != 0 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

var _ embedding.Embedder = (*Hashing)(nil)
