// Package memory implements the long-term-memory store of spec §4.3
// stage 5/11: a Milvus-backed vector index for committed memories plus the
// Postgres-backed pending-memory safety net that stages a write until the
// vector insert succeeds.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
)

// EmbeddingDim is the vector width Conduit's collection is provisioned
// with. 1536 matches the common OpenAI-family embedding size; any
// Embedder implementation must produce vectors of this length.
const EmbeddingDim = 1536

// Embedder turns text into a fixed-width vector for similarity search.
// Production deployments wire a real embeddings endpoint here (e.g. an
// OpenAI-compatible /embeddings call through internal/llm's HTTP client);
// no pack example calls an embeddings API, so Conduit ships a
// deterministic local fallback (HashEmbedder) that keeps the waterfall
// retrieval path exercisable without a configured provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HashEmbedder derives a deterministic pseudo-embedding from a SHA-256
// hash of the input, expanded to EmbeddingDim floats. It carries no
// semantic meaning — similarity search over it is not useful for
// retrieval quality — but it keeps every code path that depends on an
// Embedder callable and testable in the absence of a real model.
type HashEmbedder struct{}

func (HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, EmbeddingDim)
	for i := range vec {
		byteIdx := i % len(sum)
		bitShift := uint(i%4) * 8
		var seed [4]byte
		for j := range seed {
			seed[j] = sum[(byteIdx+j)%len(sum)]
		}
		v := binary.BigEndian.Uint32(seed[:])
		vec[i] = float32((v>>bitShift)&0xFF) / 255.0
	}
	return vec, nil
}
