package cpu

import (
	"fmt"

	"github.com/born-ml/cellwarp/internal/parallel"
	"github.com/born-ml/cellwarp/internal/tensor"
)

// MaxPool2D performs 2D max pooling.
//
// Each output cell is the maximum of a kernelSize x kernelSize window
// slid with the given stride. No padding, no learnable parameters.
//
// Input shape:  [batch, channels, height, width]
// Output shape: [batch, channels, out_height, out_width]
//
// with out_height = (height - kernelSize) / stride + 1 and out_width
// likewise. Channel planes are independent and split across workers.
func (cpu *CPUBackend) MaxPool2D(input *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("maxpool2d: expected 4D input [N,C,H,W], got %dD", len(inputShape)))
	}

	N := inputShape[0]
	C := inputShape[1]
	H := inputShape[2]
	W := inputShape[3]

	if kernelSize <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid kernel size %d", kernelSize))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid stride %d", stride))
	}
	if kernelSize > H || kernelSize > W {
		panic(fmt.Sprintf("maxpool2d: kernel size %d too large for input %dx%d", kernelSize, H, W))
	}

	HOut := (H-kernelSize)/stride + 1
	WOut := (W-kernelSize)/stride + 1

	if HOut <= 0 || WOut <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid output dimensions %dx%d (kernel=%d, stride=%d, input=%dx%d)",
			HOut, WOut, kernelSize, stride, H, W))
	}

	output, err := tensor.NewRaw(tensor.Shape{N, C, HOut, WOut}, input.DType(), cpu.Device())
	if err != nil {
		panic(fmt.Sprintf("maxpool2d: failed to create output: %v", err))
	}

	switch input.DType() {
	case tensor.Float32:
		maxPool2D(output.AsFloat32(), input.AsFloat32(), N*C, H, W, HOut, WOut, kernelSize, stride, cpu.par)
	case tensor.Float64:
		maxPool2D(output.AsFloat64(), input.AsFloat64(), N*C, H, W, HOut, WOut, kernelSize, stride, cpu.par)
	default:
		panic(fmt.Sprintf("maxpool2d: unsupported dtype %v", input.DType()))
	}

	return output
}

func maxPool2D[T floating](output, input []T, planes, H, W, HOut, WOut, kernelSize, stride int, par parallel.Config) {
	planeCfg := par
	planeCfg.MinChunkSize = 1
	parallel.For(planes, func(p int) {
		plane := input[p*H*W : (p+1)*H*W]
		out := output[p*HOut*WOut : (p+1)*HOut*WOut]

		for outH := 0; outH < HOut; outH++ {
			hStart := outH * stride
			for outW := 0; outW < WOut; outW++ {
				wStart := outW * stride

				// Seed from the window's own top-left cell, so no
				// sentinel value is needed.
				maxVal := plane[hStart*W+wStart]
				for kh := 0; kh < kernelSize; kh++ {
					rowStart := (hStart + kh) * W
					row := plane[rowStart : rowStart+W]
					for kw := 0; kw < kernelSize; kw++ {
						if v := row[wStart+kw]; v > maxVal {
							maxVal = v
						}
					}
				}

				out[outH*WOut+outW] = maxVal
			}
		}
	}, planeCfg)
}
