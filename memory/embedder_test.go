package memory

import (
	"math"
	"testing"
)

func TestEmbeddingCodec_RoundTrip(t *testing.T) {
	vec := []float32{0.5, -1.25, 3.75, 0, float32(math.Pi)}

	decoded, err := DecodeEmbedding(EncodeEmbedding(vec))
	if err != nil {
		t.Fatalf("DecodeEmbedding: %v", err)
	}
	if len(decoded) != len(vec) {
		t.Fatalf("length = %d, want %d", len(decoded), len(vec))
	}
	for i := range vec {
		if decoded[i] != vec[i] {
			t.Errorf("decoded[%d] = %f, want %f", i, decoded[i], vec[i])
		}
	}
}

func TestEmbeddingCodec_Nil(t *testing.T) {
	if EncodeEmbedding(nil) != nil {
		t.Error("EncodeEmbedding(nil) should be nil")
	}
	decoded, err := DecodeEmbedding(nil)
	if err != nil || decoded != nil {
		t.Errorf("DecodeEmbedding(nil) = %v, %v; want nil, nil", decoded, err)
	}
}

func TestDecodeEmbedding_InvalidLength(t *testing.T) {
	if _, err := DecodeEmbedding([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for non-multiple-of-4 blob")
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	opposite := []float32{-1, 0, 0}

	if got := CosineSimilarity(a, a); math.Abs(got-1) > 1e-9 {
		t.Errorf("identical vectors: similarity = %f, want 1", got)
	}
	if got := CosineSimilarity(a, b); math.Abs(got) > 1e-9 {
		t.Errorf("orthogonal vectors: similarity = %f, want 0", got)
	}
	if got := CosineSimilarity(a, opposite); math.Abs(got+1) > 1e-9 {
		t.Errorf("opposite vectors: similarity = %f, want -1", got)
	}

	// Degenerate inputs yield zero rather than NaN.
	if got := CosineSimilarity(a, []float32{0, 0, 0}); got != 0 {
		t.Errorf("zero vector: similarity = %f, want 0", got)
	}
	if got := CosineSimilarity(a, []float32{1, 2}); got != 0 {
		t.Errorf("mismatched lengths: similarity = %f, want 0", got)
	}
}

func TestCosineDistance(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}

	if got := CosineDistance(a, a); math.Abs(got) > 1e-9 {
		t.Errorf("identical vectors: distance = %f, want 0", got)
	}
	if got := CosineDistance(a, b); math.Abs(got-1) > 1e-9 {
		t.Errorf("orthogonal vectors: distance = %f, want 1", got)
	}
	if got := CosineDistance(a, []float32{-1, 0}); math.Abs(got-2) > 1e-9 {
		t.Errorf("opposite vectors: distance = %f, want 2", got)
	}
}
