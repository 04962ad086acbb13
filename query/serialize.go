package query

import (
	"encoding/binary"
	"math"
)

// VectorBlob32 serializes a float32 vector to its little-endian byte form
// for PARAMS binding against a FLOAT32 vector field.
func VectorBlob32(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// VectorBlob64 serializes a float64 vector to its little-endian byte form
// for PARAMS binding against a FLOAT64 vector field.
func VectorBlob64(v []float64) string {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return string(buf)
}

// BlobToVector32 decodes a little-endian float32 blob back to a vector.
func BlobToVector32(data []byte) []float32 {
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec
}
