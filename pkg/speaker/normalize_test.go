package speaker

import (
	"reflect"
	"testing"
)

func TestNormalizeEmbedding(t *testing.T) {
	tests := []struct {
		name      string
		embedding []float32
		dim       int
		want      []float32
	}{
		{
			name:      "exact dimension unchanged",
			embedding: []float32{1, 2, 3},
			dim:       3,
			want:      []float32{1, 2, 3},
		},
		{
			name:      "longer vector truncated",
			embedding: []float32{1, 2, 3, 4, 5},
			dim:       3,
			want:      []float32{1, 2, 3},
		},
		{
			name:      "shorter vector zero padded",
			embedding: []float32{1, 2},
			dim:       4,
			want:      []float32{1, 2, 0, 0},
		},
		{
			name:      "empty vector becomes zeros",
			embedding: nil,
			dim:       3,
			want:      []float32{0, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeEmbedding(tt.embedding, tt.dim)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeEmbedding() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeEmbeddingIdempotent(t *testing.T) {
	v := []float32{1, 2, 3, 4, 5}
	once := NormalizeEmbedding(v, 3)
	twice := NormalizeEmbedding(once, 3)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("second normalization changed the vector: %v != %v", once, twice)
	}
}
