package ops

import (
	"fmt"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// Upsample2DOp records nearest-neighbor upsampling by an integer scale.
// Each input cell fans out to a scale x scale block in the output, so its
// gradient is the sum over that block.
type Upsample2DOp struct {
	unaryOp
	scale int
}

// NewUpsample2DOp creates an upsampling operation.
func NewUpsample2DOp(input, output *tensor.RawTensor, scale int) *Upsample2DOp {
	return &Upsample2DOp{unaryOp: unaryOp{input: input, output: output}, scale: scale}
}

// Backward sums each scale x scale output block into its source cell.
func (op *Upsample2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	shape := op.input.Shape()
	planes, H, W := shape[0]*shape[1], shape[2], shape[3]

	gradInput, err := tensor.NewRaw(shape, outputGrad.DType(), outputGrad.Device())
	if err != nil {
		panic(fmt.Sprintf("upsample2d: %v", err))
	}
	switch outputGrad.DType() {
	case tensor.Float32:
		foldUpsampled(gradInput.AsFloat32(), outputGrad.AsFloat32(), planes, H, W, op.scale)
	case tensor.Float64:
		foldUpsampled(gradInput.AsFloat64(), outputGrad.AsFloat64(), planes, H, W, op.scale)
	default:
		panic(fmt.Sprintf("upsample2d: unsupported dtype %s", outputGrad.DType()))
	}
	return []*tensor.RawTensor{gradInput}
}

// foldUpsampled accumulates the upsampled gradient back onto the H x W grid,
// plane by plane.
func foldUpsampled[T floatValue](grad, outGrad []T, planes, H, W, scale int) {
	outH, outW := H*scale, W*scale
	for p := 0; p < planes; p++ {
		inPlane := grad[p*H*W : (p+1)*H*W]
		outPlane := outGrad[p*outH*outW : (p+1)*outH*outW]
		for y := 0; y < outH; y++ {
			inRow := inPlane[(y/scale)*W : (y/scale+1)*W]
			outRow := outPlane[y*outW : (y+1)*outW]
			for x, v := range outRow {
				inRow[x/scale] += v
			}
		}
	}
}
