package cpu

import (
	"fmt"

	"github.com/born-ml/cellwarp/internal/parallel"
	"github.com/born-ml/cellwarp/internal/tensor"
)

// Conv2DInputBackward computes the gradient w.r.t. the convolution input.
//
// Runs the transposed (full) convolution in gather form: every input
// cell sums the output gradients that read it during the forward pass,
//
//	inputGrad[n, cIn, h, w] = sum over (cOut, kh, kw) of
//	    grad[n, cOut, outH, outW] * kernel[cOut, cIn, kh, kw]
//
// where outH, outW are recovered from h, w by inverting the stride and
// padding arithmetic. Gathering makes each input cell an independent
// sum, so rows split across workers with no write contention.
//
// Reference: "A guide to convolution arithmetic for deep learning"
// (Dumoulin & Visin, 2016).
func (cpu *CPUBackend) Conv2DInputBackward(grad, kernel *tensor.RawTensor, inputShape tensor.Shape, stride, padding int) *tensor.RawTensor {
	kernelShape := kernel.Shape()
	gradShape := grad.Shape()

	g := convGeom{
		N:       inputShape[0],
		CIn:     inputShape[1],
		H:       inputShape[2],
		W:       inputShape[3],
		COut:    kernelShape[0],
		KH:      kernelShape[2],
		KW:      kernelShape[3],
		HOut:    gradShape[2],
		WOut:    gradShape[3],
		stride:  stride,
		padding: padding,
	}

	inputGrad, err := tensor.NewRaw(tensor.Shape{g.N, g.CIn, g.H, g.W}, grad.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("Conv2DInputBackward: failed to create gradient tensor: %v", err))
	}

	switch grad.DType() {
	case tensor.Float32:
		conv2dInputBackward(inputGrad.AsFloat32(), grad.AsFloat32(), kernel.AsFloat32(), g, cpu.par)
	case tensor.Float64:
		conv2dInputBackward(inputGrad.AsFloat64(), grad.AsFloat64(), kernel.AsFloat64(), g, cpu.par)
	default:
		panic("Conv2DInputBackward: unsupported dtype")
	}

	return inputGrad
}

func conv2dInputBackward[T floating](inputGrad, grad, kernel []T, g convGeom, par parallel.Config) {
	hwOut := g.HOut * g.WOut

	// One task per input row (n, cIn, h). Each output position that
	// touched input cell (h, w) satisfies outH*stride - padding + kh == h,
	// so outH = (h + padding - kh) / stride when that divides evenly and
	// lands inside the output. Same for the width axis.
	parallel.For(g.N*g.CIn*g.H, func(row int) {
		n := row / (g.CIn * g.H)
		rem := row % (g.CIn * g.H)
		cIn := rem / g.H
		h := rem % g.H

		gradBatch := grad[n*g.COut*hwOut : (n+1)*g.COut*hwOut]
		rowBase := (n*g.CIn+cIn)*g.H*g.W + h*g.W

		for w := 0; w < g.W; w++ {
			var sum T
			for kh := 0; kh < g.KH; kh++ {
				hNum := h + g.padding - kh
				if hNum < 0 || hNum%g.stride != 0 {
					continue
				}
				outH := hNum / g.stride
				if outH >= g.HOut {
					continue
				}
				for kw := 0; kw < g.KW; kw++ {
					wNum := w + g.padding - kw
					if wNum < 0 || wNum%g.stride != 0 {
						continue
					}
					outW := wNum / g.stride
					if outW >= g.WOut {
						continue
					}
					gradIdx := outH*g.WOut + outW
					kernelIdx := (cIn*g.KH+kh)*g.KW + kw
					for cOut := 0; cOut < g.COut; cOut++ {
						sum += gradBatch[cOut*hwOut+gradIdx] * kernel[cOut*g.CIn*g.KH*g.KW+kernelIdx]
					}
				}
			}
			inputGrad[rowBase+w] = sum
		}
	}, par)
}

// Conv2DKernelBackward computes the gradient w.r.t. the convolution kernel.
//
// Each kernel weight correlates one input tap against the output
// gradient,
//
//	kernelGrad[cOut, cIn, kh, kw] = sum over (n, outH, outW) of
//	    input[n, cIn, h, w] * grad[n, cOut, outH, outW]
//
// with h = outH*stride - padding + kh and w likewise. Channel pairs
// (cOut, cIn) are independent, so they split across workers.
func (cpu *CPUBackend) Conv2DKernelBackward(grad, input *tensor.RawTensor, kernelShape tensor.Shape, stride, padding int) *tensor.RawTensor {
	inputShape := input.Shape()
	gradShape := grad.Shape()

	g := convGeom{
		N:       inputShape[0],
		CIn:     inputShape[1],
		H:       inputShape[2],
		W:       inputShape[3],
		COut:    kernelShape[0],
		KH:      kernelShape[2],
		KW:      kernelShape[3],
		HOut:    gradShape[2],
		WOut:    gradShape[3],
		stride:  stride,
		padding: padding,
	}

	kernelGrad, err := tensor.NewRaw(tensor.Shape{g.COut, g.CIn, g.KH, g.KW}, grad.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("Conv2DKernelBackward: failed to create gradient tensor: %v", err))
	}

	switch grad.DType() {
	case tensor.Float32:
		conv2dKernelBackward(kernelGrad.AsFloat32(), grad.AsFloat32(), input.AsFloat32(), g, cpu.par)
	case tensor.Float64:
		conv2dKernelBackward(kernelGrad.AsFloat64(), grad.AsFloat64(), input.AsFloat64(), g, cpu.par)
	default:
		panic("Conv2DKernelBackward: unsupported dtype")
	}

	return kernelGrad
}

func conv2dKernelBackward[T floating](kernelGrad, grad, input []T, g convGeom, par parallel.Config) {
	hwIn := g.H * g.W
	hwOut := g.HOut * g.WOut

	// Channel pairs are few but each carries a full correlation over
	// the batch, so force one task per pair rather than letting the
	// chunk floor serialize them.
	pairCfg := par
	pairCfg.MinChunkSize = 1
	parallel.For(g.COut*g.CIn, func(pair int) {
		cOut := pair / g.CIn
		cIn := pair % g.CIn

		for kh := 0; kh < g.KH; kh++ {
			for kw := 0; kw < g.KW; kw++ {
				var sum T
				for n := 0; n < g.N; n++ {
					inputPlane := input[(n*g.CIn+cIn)*hwIn : (n*g.CIn+cIn+1)*hwIn]
					gradPlane := grad[(n*g.COut+cOut)*hwOut : (n*g.COut+cOut+1)*hwOut]
					for outH := 0; outH < g.HOut; outH++ {
						h := outH*g.stride - g.padding + kh
						if h < 0 || h >= g.H {
							continue
						}
						for outW := 0; outW < g.WOut; outW++ {
							w := outW*g.stride - g.padding + kw
							if w < 0 || w >= g.W {
								continue
							}
							sum += inputPlane[h*g.W+w] * gradPlane[outH*g.WOut+outW]
						}
					}
				}
				kernelGrad[((cOut*g.CIn+cIn)*g.KH+kh)*g.KW+kw] = sum
			}
		}
	}, pairCfg)
}
