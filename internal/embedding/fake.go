package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// FakeProvider produces deterministic unit-norm vectors derived from the
// input text. It exists for tests and for running the full pipeline without
// an embedding backend: identical texts embed identically, similar texts do
// not cluster in any meaningful way.
type FakeProvider struct {
	dim int
}

// NewFakeProvider creates a fake provider with the given dimension.
func NewFakeProvider(dim int) *FakeProvider {
	if dim <= 0 {
		dim = 16
	}
	return &FakeProvider{dim: dim}
}

// Embed derives a unit-norm vector from a hash expansion of text.
func (p *FakeProvider) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, p.dim)

	// Expand the seed hash until there are enough bytes for the vector.
	seed := sha256.Sum256([]byte(text))
	block := seed[:]
	stream := make([]byte, 0, p.dim*4)
	for len(stream) < p.dim*4 {
		stream = append(stream, block...)
		next := sha256.Sum256(block)
		block = next[:]
	}

	for i := 0; i < p.dim; i++ {
		bits := binary.BigEndian.Uint32(stream[i*4 : i*4+4])
		// Map to [-1, 1).
		vec[i] = float32(bits)/float32(math.MaxUint32)*2 - 1
	}

	// Normalize to unit length so magnitudes are comparable across texts.
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

// Dimension returns the configured vector length.
func (p *FakeProvider) Dimension() int {
	return p.dim
}
