package ops

import (
	"fmt"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// MaxPool2DOp records a max pooling operation. Pooling has no parameters;
// the only gradient is the input's, and it flows solely to the position that
// won each window. The winning positions are found once at construction and
// stored as flat indices for the backward kernel.
type MaxPool2DOp struct {
	unaryOp
	maxIndices []int
	kernelSize int
	stride     int
}

// NewMaxPool2DOp creates a max pooling operation and records the argmax of
// every pooling window.
func NewMaxPool2DOp(input, output *tensor.RawTensor, kernelSize, stride int) *MaxPool2DOp {
	op := &MaxPool2DOp{
		unaryOp:    unaryOp{input: input, output: output},
		maxIndices: make([]int, output.Shape().NumElements()),
		kernelSize: kernelSize,
		stride:     stride,
	}
	switch input.DType() {
	case tensor.Float32:
		maxIndicesInto(op.maxIndices, input.AsFloat32(), input.Shape(), output.Shape(), kernelSize, stride)
	case tensor.Float64:
		maxIndicesInto(op.maxIndices, input.AsFloat64(), input.Shape(), output.Shape(), kernelSize, stride)
	default:
		panic(fmt.Sprintf("maxpool2d: unsupported dtype %s", input.DType()))
	}
	return op
}

// maxIndicesInto records, for every output cell, the flat input index that
// held the window maximum. Ties keep the first position scanned.
func maxIndicesInto[T floatValue](indices []int, input []T, inShape, outShape tensor.Shape, kernelSize, stride int) {
	N, C, H, W := inShape[0], inShape[1], inShape[2], inShape[3]
	HOut, WOut := outShape[2], outShape[3]

	outIdx := 0
	for n := 0; n < N; n++ {
		for c := 0; c < C; c++ {
			planeBase := (n*C + c) * H * W
			plane := input[planeBase : planeBase+H*W]
			for oh := 0; oh < HOut; oh++ {
				for ow := 0; ow < WOut; ow++ {
					hStart, wStart := oh*stride, ow*stride
					best := hStart*W + wStart
					for kh := 0; kh < kernelSize; kh++ {
						row := (hStart + kh) * W
						for kw := 0; kw < kernelSize; kw++ {
							if idx := row + wStart + kw; plane[idx] > plane[best] {
								best = idx
							}
						}
					}
					indices[outIdx] = planeBase + best
					outIdx++
				}
			}
		}
	}
}

// Backward scatters the gradient to the recorded argmax positions through the
// backend kernel. Every other input position stays zero.
func (op *MaxPool2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{
		backend.MaxPool2DBackward(op.input, outputGrad, op.maxIndices, op.kernelSize, op.stride),
	}
}
