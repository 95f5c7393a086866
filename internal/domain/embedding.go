package domain

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// EmbeddingDim is the dimensionality every stored vector must have.
const EmbeddingDim = 768

// DecodeEmbedding decodes a stored embedding blob. Blobs whose length
// is a positive multiple of 4 are packed little-endian IEEE-754
// binary32; anything else is tried as a JSON number array. A vector of
// the wrong dimensionality is a deployment bug and maps to ErrInternal.
func DecodeEmbedding(blob []byte) ([]float32, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("%w: empty embedding blob", ErrInternal)
	}
	var vec []float32
	if len(blob)%4 == 0 {
		vec = make([]float32, 0, len(blob)/4)
		for i := 0; i+4 <= len(blob); i += 4 {
			vec = append(vec, math.Float32frombits(binary.LittleEndian.Uint32(blob[i:])))
		}
	} else {
		var nums []float64
		if err := json.Unmarshal(blob, &nums); err != nil {
			return nil, fmt.Errorf("%w: embedding blob is neither packed float32 nor JSON: %v", ErrInternal, err)
		}
		vec = make([]float32, len(nums))
		for i, n := range nums {
			vec[i] = float32(n)
		}
	}
	if len(vec) != EmbeddingDim {
		return nil, fmt.Errorf("%w: embedding has %d dimensions, want %d", ErrInternal, len(vec), EmbeddingDim)
	}
	return vec, nil
}

// EncodeEmbedding packs a vector as little-endian binary32, the
// storage format the helper writes.
func EncodeEmbedding(vec []float32) []byte {
	out := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(f))
	}
	return out
}
