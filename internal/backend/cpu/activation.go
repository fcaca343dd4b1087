package cpu

import (
	"fmt"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// ReLU computes max(0, x) element-wise.
//
// Exposed as a capability method (not part of tensor.Backend) so nn.ReLU can
// run directly on the raw CPU backend during inference. The autodiff
// decorator provides its own recording variant for training.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	result, err := tensor.NewRaw(x.Shape(), x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("relu: %v", err))
	}

	switch x.DType() {
	case tensor.Float32:
		reluFloat32(result, x)
	case tensor.Float64:
		reluFloat64(result, x)
	default:
		panic(fmt.Sprintf("relu: unsupported dtype %s (only float32/float64 supported)", x.DType()))
	}

	return result
}

func reluFloat32(result, x *tensor.RawTensor) {
	src := x.AsFloat32()
	dst := result.AsFloat32()

	for i, v := range src {
		if v > 0 {
			dst[i] = v
		} else {
			dst[i] = 0
		}
	}
}

func reluFloat64(result, x *tensor.RawTensor) {
	src := x.AsFloat64()
	dst := result.AsFloat64()

	for i, v := range src {
		if v > 0 {
			dst[i] = v
		} else {
			dst[i] = 0
		}
	}
}
