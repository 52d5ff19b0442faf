package testutil

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// FakeEmbedder is a deterministic ai.Embedder for tests. Equal inputs
// produce equal vectors, so similarity ordering is stable without calling
// any provider. Vectors are unit length to make cosine scores meaningful.
type FakeEmbedder struct {
	// Dimension of produced vectors. Defaults to 768 when zero, matching
	// the documents table schema.
	Dimension int

	// Err, when set, is returned by every Embed call.
	Err error
}

// Name implements ai.Embedder.
func (*FakeEmbedder) Name() string { return "testutil/fake-embedder" }

// Register implements ai.Embedder. The fake is used directly in tests and
// never registered with a Genkit registry.
func (*FakeEmbedder) Register(api.Registry) {}

// Embed implements ai.Embedder with a hash-seeded pseudo-embedding per
// input document.
func (f *FakeEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	if f.Err != nil {
		return nil, f.Err
	}

	dim := f.Dimension
	if dim == 0 {
		dim = 768
	}

	resp := &ai.EmbedResponse{}
	for _, doc := range req.Input {
		var text string
		for _, part := range doc.Content {
			text += part.Text
		}
		resp.Embeddings = append(resp.Embeddings, &ai.Embedding{
			Embedding: pseudoEmbedding(text, dim),
		})
	}
	return resp, nil
}

// pseudoEmbedding expands a hash of text into a normalized vector.
func pseudoEmbedding(text string, dim int) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, dim)
	var norm float64
	for i := range vec {
		// xorshift64 keeps the sequence deterministic per seed.
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		v := float64(int64(seed%2000)-1000) / 1000.0
		vec[i] = float32(v)
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
