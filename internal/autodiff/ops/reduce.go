package ops

import (
	"fmt"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// reduceOp carries what the axis reductions share: the reduced axis, with
// the dim normalized to a non-negative index at construction.
type reduceOp struct {
	unaryOp
	dim     int
	keepDim bool
}

func newReduceOp(input, output *tensor.RawTensor, dim int, keepDim bool) reduceOp {
	if dim < 0 {
		dim += len(input.Shape())
	}
	return reduceOp{unaryOp: unaryOp{input: input, output: output}, dim: dim, keepDim: keepDim}
}

// expand undoes the shape change of the reduction: re-inserts the collapsed
// axis when keepDim was false, then replicates the gradient back to the
// input shape. The result is always freshly allocated and safe to mutate.
func (op *reduceOp) expand(grad *tensor.RawTensor, backend tensor.Backend) *tensor.RawTensor {
	if !op.keepDim {
		shape := grad.Shape()
		unsqueezed := make(tensor.Shape, 0, len(shape)+1)
		unsqueezed = append(unsqueezed, shape[:op.dim]...)
		unsqueezed = append(unsqueezed, 1)
		unsqueezed = append(unsqueezed, shape[op.dim:]...)
		grad = backend.Reshape(grad, unsqueezed)
	}
	return broadcastTo(grad, op.input.Shape())
}

// SumDimOp records a sum along one axis. Every input element that fed a given
// output sum receives that output's gradient.
type SumDimOp struct {
	reduceOp
}

// NewSumDimOp creates a sum-along-dimension operation.
func NewSumDimOp(input, output *tensor.RawTensor, dim int, keepDim bool) *SumDimOp {
	return &SumDimOp{newReduceOp(input, output, dim, keepDim)}
}

// Backward re-expands the gradient across the summed axis.
func (op *SumDimOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{op.expand(outputGrad, backend)}
}

// MeanDimOp records an average along one axis. The backward pass distributes
// the gradient evenly: expand like sum, then divide by the axis length.
type MeanDimOp struct {
	reduceOp
	dimSize int
}

// NewMeanDimOp creates a mean-along-dimension operation.
func NewMeanDimOp(input, output *tensor.RawTensor, dim int, keepDim bool) *MeanDimOp {
	base := newReduceOp(input, output, dim, keepDim)
	return &MeanDimOp{reduceOp: base, dimSize: input.Shape()[base.dim]}
}

// Backward re-expands the gradient and scales it by 1/n for the axis length n.
func (op *MeanDimOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	expanded := op.expand(outputGrad, backend)
	switch expanded.DType() {
	case tensor.Float32:
		scaleSlice(expanded.AsFloat32(), 1/float32(op.dimSize))
	case tensor.Float64:
		scaleSlice(expanded.AsFloat64(), 1/float64(op.dimSize))
	default:
		panic(fmt.Sprintf("meandim: unsupported dtype %s", expanded.DType()))
	}
	return []*tensor.RawTensor{expanded}
}

func scaleSlice[T floatValue](data []T, factor T) {
	for i := range data {
		data[i] *= factor
	}
}

// broadcastTo replicates grad up to shape. The shapes align from the right
// and grad axes of size 1 repeat across the matching target axis. The result
// is always a fresh tensor, even when the shapes already match.
func broadcastTo(grad *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	out, err := tensor.NewRaw(shape, grad.DType(), grad.Device())
	if err != nil {
		panic(fmt.Sprintf("broadcastTo: %v", err))
	}
	switch grad.DType() {
	case tensor.Float32:
		broadcastInto(grad.AsFloat32(), out.AsFloat32(), grad.Shape(), shape)
	case tensor.Float64:
		broadcastInto(grad.AsFloat64(), out.AsFloat64(), grad.Shape(), shape)
	default:
		panic(fmt.Sprintf("broadcastTo: unsupported dtype %s", grad.DType()))
	}
	return out
}

// broadcastInto walks dst in row-major order with a rolling coordinate
// counter and reads each element from the right-aligned source position.
func broadcastInto[T floatValue](src, dst []T, srcShape, dstShape tensor.Shape) {
	srcStrides := srcShape.ComputeStrides()
	offset := len(dstShape) - len(srcShape)
	coords := make([]int, len(dstShape))

	for i := range dst {
		srcIdx := 0
		for d, c := range coords {
			if sd := d - offset; sd >= 0 && srcShape[sd] > 1 {
				srcIdx += c * srcStrides[sd]
			}
		}
		dst[i] = src[srcIdx]

		for d := len(coords) - 1; d >= 0; d-- {
			coords[d]++
			if coords[d] < dstShape[d] {
				break
			}
			coords[d] = 0
		}
	}
}
