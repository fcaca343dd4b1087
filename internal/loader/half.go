package loader

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// widenHalf decodes an F16 or BF16 payload into a Float32 tensor. The tensor
// stack has no half dtype, so half-precision exports widen at the boundary.
func widenHalf(name string, dtype SafeTensorsDType, shape tensor.Shape, data []byte, backend tensor.Backend) (*tensor.RawTensor, error) {
	n := shape.NumElements()
	if len(data) != 2*n {
		return nil, fmt.Errorf("tensor %s: %d data bytes for shape %v (%s needs %d)",
			name, len(data), shape, dtype, 2*n)
	}

	raw, err := tensor.NewRaw(shape, tensor.Float32, backend.Device())
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	out := raw.AsFloat32()
	for i := range n {
		bits := binary.LittleEndian.Uint16(data[2*i:])
		if dtype == SafeTensorsBF16 {
			out[i] = math.Float32frombits(uint32(bits) << 16)
		} else {
			out[i] = f16ToF32(bits)
		}
	}
	return raw, nil
}

// f16ToF32 converts an IEEE 754 binary16 value to float32.
func f16ToF32(bits uint16) float32 {
	sign := uint32(bits>>15) << 31
	exp := uint32(bits>>10) & 0x1f
	mant := uint32(bits) & 0x3ff

	switch exp {
	case 0:
		if mant == 0 {
			return math.Float32frombits(sign) // signed zero
		}
		// Subnormal in half precision is normal in single: renormalize.
		e := uint32(113)
		for mant&0x400 == 0 {
			mant <<= 1
			e--
		}
		return math.Float32frombits(sign | e<<23 | (mant&0x3ff)<<13)
	case 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | mant<<13) // Inf or NaN
	default:
		return math.Float32frombits(sign | (exp+112)<<23 | mant<<13)
	}
}
