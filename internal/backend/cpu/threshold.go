package cpu

import (
	"fmt"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// Threshold binarizes a tensor against a cutoff: values strictly above the
// cutoff become 1, everything else becomes 0. The result keeps the input
// dtype.
//
// Exposed as a capability method (not part of tensor.Backend), like ReLU and
// MSE. Thresholding is gradient-free: it normalizes labels and binarizes
// predicted fields, neither of which sits on the training tape.
func (cpu *CPUBackend) Threshold(x *tensor.RawTensor, cutoff float64) *tensor.RawTensor {
	result, err := tensor.NewRaw(x.Shape(), x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("threshold: %v", err))
	}

	switch x.DType() {
	case tensor.Float32:
		src := x.AsFloat32()
		dst := result.AsFloat32()
		c := float32(cutoff)
		for i, v := range src {
			if v > c {
				dst[i] = 1
			}
		}
	case tensor.Float64:
		src := x.AsFloat64()
		dst := result.AsFloat64()
		for i, v := range src {
			if v > cutoff {
				dst[i] = 1
			}
		}
	case tensor.Int32:
		src := x.AsInt32()
		dst := result.AsInt32()
		for i, v := range src {
			if float64(v) > cutoff {
				dst[i] = 1
			}
		}
	case tensor.Int64:
		src := x.AsInt64()
		dst := result.AsInt64()
		for i, v := range src {
			if float64(v) > cutoff {
				dst[i] = 1
			}
		}
	case tensor.Uint8:
		src := x.AsUint8()
		dst := result.AsUint8()
		for i, v := range src {
			if float64(v) > cutoff {
				dst[i] = 1
			}
		}
	default:
		panic(fmt.Sprintf("threshold: unsupported dtype %s", x.DType()))
	}

	return result
}
