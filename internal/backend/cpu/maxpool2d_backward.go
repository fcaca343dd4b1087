package cpu

import (
	"fmt"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// MaxPool2DBackward computes the gradient w.r.t. the MaxPool2D input.
//
// Gradients flow only to the cell that won each pooling window; every
// other cell in the window gets zero. maxIndices holds the flat input
// index of the winner per output position, in output iteration order,
// as captured by the recording layer during the forward pass.
func (cpu *CPUBackend) MaxPool2DBackward(input, grad *tensor.RawTensor, maxIndices []int, kernelSize, stride int) *tensor.RawTensor {
	inputShape := input.Shape()
	gradShape := grad.Shape()

	expectedLen := inputShape[0] * inputShape[1] * gradShape[2] * gradShape[3]
	if len(maxIndices) != expectedLen {
		panic(fmt.Sprintf("MaxPool2DBackward: maxIndices length %d != expected %d", len(maxIndices), expectedLen))
	}

	inputGrad, err := tensor.NewRaw(inputShape, grad.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("MaxPool2DBackward: failed to create gradient tensor: %v", err))
	}

	switch grad.DType() {
	case tensor.Float32:
		scatterPoolGrad(inputGrad.AsFloat32(), grad.AsFloat32(), maxIndices)
	case tensor.Float64:
		scatterPoolGrad(inputGrad.AsFloat64(), grad.AsFloat64(), maxIndices)
	default:
		panic("MaxPool2DBackward: unsupported dtype")
	}

	return inputGrad
}

// scatterPoolGrad routes each output gradient to its window winner.
// Overlapping windows (stride < kernelSize) can elect the same cell, so
// contributions accumulate. The gradient buffer starts zeroed.
func scatterPoolGrad[T floating](inputGrad, grad []T, maxIndices []int) {
	for i, maxPos := range maxIndices {
		inputGrad[maxPos] += grad[i]
	}
}
