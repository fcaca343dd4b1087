package ops

import (
	"fmt"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// ChunkOp records a split into n equal parts along one axis. It is the
// package's multi-output operation: the tape gathers a gradient for every
// chunk, substituting zeros for chunks nothing flowed into, and the backward
// pass concatenates them back into one gradient for the input.
//
// The encoder/decoder pair relies on this: a two-channel displacement field
// is chunked into its x and y planes, and both planes' gradients must land
// back on the field tensor.
type ChunkOp struct {
	input   *tensor.RawTensor
	n       int
	dim     int
	outputs []*tensor.RawTensor
}

// NewChunkOp creates a chunk operation.
func NewChunkOp(input *tensor.RawTensor, n, dim int, outputs []*tensor.RawTensor) *ChunkOp {
	return &ChunkOp{input: input, n: n, dim: dim, outputs: outputs}
}

func (op *ChunkOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the first chunk. The tape detects the MultiOutputOperation
// interface before ever using this as the sole output.
func (op *ChunkOp) Output() *tensor.RawTensor {
	return op.outputs[0]
}

// Outputs returns every chunk, implementing MultiOutputOperation.
func (op *ChunkOp) Outputs() []*tensor.RawTensor {
	return op.outputs
}

// Backward exists to satisfy the Operation interface; a single gradient
// cannot drive a multi-output backward pass.
func (op *ChunkOp) Backward(_ *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	panic("chunk: multi-output op requires BackwardMulti")
}

// BackwardMulti concatenates the per-chunk gradients back together.
func (op *ChunkOp) BackwardMulti(outputGrads []*tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	if len(outputGrads) != op.n {
		panic(fmt.Sprintf("chunk: got %d gradients for %d chunks", len(outputGrads), op.n))
	}
	return []*tensor.RawTensor{backend.Cat(outputGrads, op.dim)}
}
