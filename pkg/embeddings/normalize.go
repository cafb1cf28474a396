// Package embeddings provides utilities for embedding vectors
// (L2 normalization, cosine distance).
package embeddings

import (
	"math"
)

// NormalizeL2 takes a raw embedding vector and normalizes it to a length of 1.
// It modifies the slice in-place to save memory allocations during batch runs.
func NormalizeL2(vector []float32) {
	var sumSquares float64

	// 1. Calculate the sum of the squared values
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}

	// Avoid division by zero (though a valid AI embedding will never be all zeros)
	if sumSquares == 0 {
		return
	}

	// 2. Find the square root (the magnitude/length of the vector)
	magnitude := math.Sqrt(sumSquares)

	// 3. Divide each dimension by the magnitude
	for i := range vector {
		vector[i] = float32(float64(vector[i]) / magnitude)
	}
}

// CosineDistance returns 1 - cosine similarity of a and b, matching the
// pgvector <=> operator. Range is 0 (identical direction) to 2 (opposite).
// Returns 1 for zero-magnitude or mismatched-length inputs.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}

	if magA == 0 || magB == 0 {
		return 1
	}

	return 1 - dot/(math.Sqrt(magA)*math.Sqrt(magB))
}
