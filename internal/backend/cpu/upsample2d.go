package cpu

import (
	"fmt"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// Upsample2D enlarges input [N,C,H,W] to [N,C,H*scale,W*scale] using
// nearest-neighbor interpolation: out[y][x] = in[y/scale][x/scale].
func (cpu *CPUBackend) Upsample2D(input *tensor.RawTensor, scale int) *tensor.RawTensor {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("upsample2d: input must be 4D [N,C,H,W], got %dD", len(inputShape)))
	}
	if scale < 1 {
		panic(fmt.Sprintf("upsample2d: scale must be >= 1, got %d", scale))
	}

	N := inputShape[0]
	C := inputShape[1]
	H := inputShape[2]
	W := inputShape[3]
	outH := H * scale
	outW := W * scale

	output, err := tensor.NewRaw(tensor.Shape{N, C, outH, outW}, input.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("upsample2d: %v", err))
	}

	switch input.DType() {
	case tensor.Float32:
		upsample2DFloat32(output, input, N*C, H, W, scale)
	case tensor.Float64:
		upsample2DFloat64(output, input, N*C, H, W, scale)
	default:
		panic(fmt.Sprintf("upsample2d: unsupported dtype %s (only float32/float64 supported)", input.DType()))
	}

	return output
}

func upsample2DFloat32(output, input *tensor.RawTensor, planes, H, W, scale int) {
	inputData := input.AsFloat32()
	outputData := output.AsFloat32()
	outH := H * scale
	outW := W * scale

	for p := 0; p < planes; p++ {
		inPlane := inputData[p*H*W : (p+1)*H*W]
		outPlane := outputData[p*outH*outW : (p+1)*outH*outW]

		for y := 0; y < outH; y++ {
			inRow := inPlane[(y/scale)*W : (y/scale)*W+W]
			outRow := outPlane[y*outW : y*outW+outW]
			for x := 0; x < outW; x++ {
				outRow[x] = inRow[x/scale]
			}
		}
	}
}

func upsample2DFloat64(output, input *tensor.RawTensor, planes, H, W, scale int) {
	inputData := input.AsFloat64()
	outputData := output.AsFloat64()
	outH := H * scale
	outW := W * scale

	for p := 0; p < planes; p++ {
		inPlane := inputData[p*H*W : (p+1)*H*W]
		outPlane := outputData[p*outH*outW : (p+1)*outH*outW]

		for y := 0; y < outH; y++ {
			inRow := inPlane[(y/scale)*W : (y/scale)*W+W]
			outRow := outPlane[y*outW : y*outW+outW]
			for x := 0; x < outW; x++ {
				outRow[x] = inRow[x/scale]
			}
		}
	}
}
