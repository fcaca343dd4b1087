package cpu

import (
	"fmt"

	"github.com/born-ml/cellwarp/internal/parallel"
	"github.com/born-ml/cellwarp/internal/tensor"
)

// convGeom carries the dimensions shared by the conv2d forward and
// backward kernels: input [N, CIn, H, W], kernel [COut, CIn, KH, KW],
// output [N, COut, HOut, WOut].
type convGeom struct {
	N, CIn, H, W    int
	COut, KH, KW    int
	HOut, WOut      int
	stride, padding int
}

// Conv2D performs 2D convolution using the im2col algorithm.
//
// Input shape: [batch, in_channels, height, width]
// Kernel shape: [out_channels, in_channels, kernel_h, kernel_w]
// Output shape: [batch, out_channels, out_h, out_w]
//
// im2col lowers every input patch into one row of a column buffer, so
// each output element becomes a dot product between a kernel row and a
// patch row. Output positions are independent and fan out across
// workers; results land directly in NCHW layout.
//
// Reference: "High Performance Convolutional Neural Networks for Document Processing"
// (Chellapilla et al., 2006).
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	inputShape := input.Shape()
	kernelShape := kernel.Shape()

	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: input must be 4D [N,C,H,W], got %dD", len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("conv2d: kernel must be 4D [C_out,C_in,K_h,K_w], got %dD", len(kernelShape)))
	}

	g := convGeom{
		N:       inputShape[0],
		CIn:     inputShape[1],
		H:       inputShape[2],
		W:       inputShape[3],
		COut:    kernelShape[0],
		KH:      kernelShape[2],
		KW:      kernelShape[3],
		stride:  stride,
		padding: padding,
	}

	if g.CIn != kernelShape[1] {
		panic(fmt.Sprintf("conv2d: input channels %d != kernel channels %d", g.CIn, kernelShape[1]))
	}

	g.HOut = (g.H+2*padding-g.KH)/stride + 1
	g.WOut = (g.W+2*padding-g.KW)/stride + 1

	if g.HOut <= 0 || g.WOut <= 0 {
		panic(fmt.Sprintf("conv2d: invalid output dimensions: out_h=%d, out_w=%d (check stride/padding)", g.HOut, g.WOut))
	}

	output, err := tensor.NewRaw(tensor.Shape{g.N, g.COut, g.HOut, g.WOut}, input.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("conv2d: failed to create output tensor: %v", err))
	}

	switch input.DType() {
	case tensor.Float32:
		conv2d(output.AsFloat32(), input.AsFloat32(), kernel.AsFloat32(), g, cpu.par)
	case tensor.Float64:
		conv2d(output.AsFloat64(), input.AsFloat64(), kernel.AsFloat64(), g, cpu.par)
	default:
		panic(fmt.Sprintf("conv2d: unsupported dtype %s", input.DType()))
	}

	return output
}

func conv2d[T floating](output, input, kernel []T, g convGeom, par parallel.Config) {
	colWidth := g.CIn * g.KH * g.KW
	hw := g.HOut * g.WOut
	colBuf := make([]T, g.N*hw*colWidth)
	im2col(colBuf, input, g, par)

	// The kernel is already a [COut, CIn*KH*KW] matrix in row-major
	// order. Row j of colBuf covers output position (n, pos) with
	// j = n*HOut*WOut + pos, so output[n, c, pos] is the dot product
	// of kernel row c with colBuf row j.
	parallel.For(g.N*hw, func(j int) {
		n := j / hw
		pos := j % hw
		patch := colBuf[j*colWidth : (j+1)*colWidth]
		outBase := n*g.COut*hw + pos
		for c := 0; c < g.COut; c++ {
			kRow := kernel[c*colWidth : (c+1)*colWidth]
			var sum T
			for k, kv := range kRow {
				sum += kv * patch[k]
			}
			output[outBase+c*hw] = sum
		}
	}, par)
}

// im2col writes one row per output position: the stride*stride-spaced
// patch under the kernel window, flattened to CIn*KH*KW values with
// zeros where the window hangs over the padded border.
func im2col[T floating](colBuf, input []T, g convGeom, par parallel.Config) {
	colWidth := g.CIn * g.KH * g.KW
	hw := g.HOut * g.WOut

	parallel.For(g.N*hw, func(j int) {
		n := j / hw
		pos := j % hw
		hStart := (pos/g.WOut)*g.stride - g.padding
		wStart := (pos%g.WOut)*g.stride - g.padding

		bufIdx := j * colWidth
		for c := 0; c < g.CIn; c++ {
			plane := input[(n*g.CIn+c)*g.H*g.W:]
			for kh := 0; kh < g.KH; kh++ {
				h := hStart + kh
				if h < 0 || h >= g.H {
					for kw := 0; kw < g.KW; kw++ {
						colBuf[bufIdx] = 0
						bufIdx++
					}
					continue
				}
				rowBase := h * g.W
				for kw := 0; kw < g.KW; kw++ {
					w := wStart + kw
					if w >= 0 && w < g.W {
						colBuf[bufIdx] = plane[rowBase+w]
					} else {
						colBuf[bufIdx] = 0
					}
					bufIdx++
				}
			}
		}
	}, par)
}
