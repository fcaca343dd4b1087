package cpu

import (
	"fmt"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// MSE computes mean((a-b)^2) over all elements and returns it as a scalar
// tensor (empty shape).
//
// Exposed as a capability method (not part of tensor.Backend) so nn.MSELoss
// can use the fused kernel when available. Sums are accumulated in float64
// to keep the mean stable over large spatial tensors.
func (cpu *CPUBackend) MSE(a, b *tensor.RawTensor) *tensor.RawTensor {
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("mse: shape mismatch %v vs %v", a.Shape(), b.Shape()))
	}
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("mse: dtype mismatch %s vs %s", a.DType(), b.DType()))
	}

	result, err := tensor.NewRaw(tensor.Shape{}, a.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("mse: %v", err))
	}

	switch a.DType() {
	case tensor.Float32:
		aData := a.AsFloat32()
		bData := b.AsFloat32()
		var sum float64
		for i := range aData {
			d := float64(aData[i] - bData[i])
			sum += d * d
		}
		result.AsFloat32()[0] = float32(sum / float64(len(aData)))
	case tensor.Float64:
		aData := a.AsFloat64()
		bData := b.AsFloat64()
		var sum float64
		for i := range aData {
			d := aData[i] - bData[i]
			sum += d * d
		}
		result.AsFloat64()[0] = sum / float64(len(aData))
	default:
		panic(fmt.Sprintf("mse: unsupported dtype %s (only float32/float64 supported)", a.DType()))
	}

	return result
}
