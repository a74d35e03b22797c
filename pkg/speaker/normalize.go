package speaker

// NormalizeEmbedding coerces an embedding vector to exactly dim components.
// Longer vectors are truncated positionally; shorter ones are right-padded
// with zeros. This is a lossy compatibility shim for embeddings produced by
// models with differing output dimensions, and must be applied to both sides
// of any comparison.
func NormalizeEmbedding(embedding []float32, dim int) []float32 {
	if len(embedding) == dim {
		return embedding
	}

	if len(embedding) > dim {
		return embedding[:dim]
	}

	padded := make([]float32, dim)
	copy(padded, embedding)
	return padded
}
