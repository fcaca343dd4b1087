package cpu

import (
	"fmt"

	"github.com/born-ml/cellwarp/internal/parallel"
	"github.com/born-ml/cellwarp/internal/tensor"
)

// GridSample warps input [N,C,H,W] by a dense displacement field [N,2,H,W].
//
// Field channel 0 holds dy, channel 1 holds dx, both in pixels. Each output
// position samples the input at (y+dy, x+dx) with bilinear interpolation.
// Sample coordinates outside the image are clamped to the edge, so the
// operation never reads out of bounds.
//
// References:
//   - "Spatial Transformer Networks" (Jaderberg et al., 2015)
func (cpu *CPUBackend) GridSample(input, field *tensor.RawTensor) *tensor.RawTensor {
	inputShape := input.Shape()
	fieldShape := field.Shape()

	if len(inputShape) != 4 {
		panic(fmt.Sprintf("gridsample: input must be 4D [N,C,H,W], got %dD", len(inputShape)))
	}
	if len(fieldShape) != 4 || fieldShape[1] != 2 {
		panic(fmt.Sprintf("gridsample: field must be [N,2,H,W], got %v", fieldShape))
	}
	if fieldShape[0] != inputShape[0] || fieldShape[2] != inputShape[2] || fieldShape[3] != inputShape[3] {
		panic(fmt.Sprintf("gridsample: field shape %v does not match input %v", fieldShape, inputShape))
	}

	N := inputShape[0]
	C := inputShape[1]
	H := inputShape[2]
	W := inputShape[3]

	output, err := tensor.NewRaw(inputShape, input.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("gridsample: %v", err))
	}

	switch input.DType() {
	case tensor.Float32:
		gridSampleFloat32(output, input, field, N, C, H, W, cpu.par)
	case tensor.Float64:
		gridSampleFloat64(output, input, field, N, C, H, W, cpu.par)
	default:
		panic(fmt.Sprintf("gridsample: unsupported dtype %s (only float32/float64 supported)", input.DType()))
	}

	return output
}

// gridSampleFloat32 resolves the four corner weights once per output pixel
// and reuses them across channels. Rows are independent, so the outer loop
// is chunked across workers.
func gridSampleFloat32(output, input, field *tensor.RawTensor, N, C, H, W int, par parallel.Config) {
	inputData := input.AsFloat32()
	fieldData := field.AsFloat32()
	outputData := output.AsFloat32()

	parallel.For(N*H, func(row int) {
		n := row / H
		y := row % H

		fieldBase := n * 2 * H * W
		dyRow := fieldData[fieldBase+y*W : fieldBase+y*W+W]
		dxRow := fieldData[fieldBase+H*W+y*W : fieldBase+H*W+y*W+W]

		for x := 0; x < W; x++ {
			sy := clampF32(float32(y)+dyRow[x], 0, float32(H-1))
			sx := clampF32(float32(x)+dxRow[x], 0, float32(W-1))

			y0 := int(sy)
			x0 := int(sx)
			y1 := min(y0+1, H-1)
			x1 := min(x0+1, W-1)
			wy := sy - float32(y0)
			wx := sx - float32(x0)

			w00 := (1 - wy) * (1 - wx)
			w01 := (1 - wy) * wx
			w10 := wy * (1 - wx)
			w11 := wy * wx

			for c := 0; c < C; c++ {
				plane := inputData[(n*C+c)*H*W : (n*C+c+1)*H*W]
				v := w00*plane[y0*W+x0] + w01*plane[y0*W+x1] +
					w10*plane[y1*W+x0] + w11*plane[y1*W+x1]
				outputData[(n*C+c)*H*W+y*W+x] = v
			}
		}
	}, par)
}

func gridSampleFloat64(output, input, field *tensor.RawTensor, N, C, H, W int, par parallel.Config) {
	inputData := input.AsFloat64()
	fieldData := field.AsFloat64()
	outputData := output.AsFloat64()

	parallel.For(N*H, func(row int) {
		n := row / H
		y := row % H

		fieldBase := n * 2 * H * W
		dyRow := fieldData[fieldBase+y*W : fieldBase+y*W+W]
		dxRow := fieldData[fieldBase+H*W+y*W : fieldBase+H*W+y*W+W]

		for x := 0; x < W; x++ {
			sy := clampF64(float64(y)+dyRow[x], 0, float64(H-1))
			sx := clampF64(float64(x)+dxRow[x], 0, float64(W-1))

			y0 := int(sy)
			x0 := int(sx)
			y1 := min(y0+1, H-1)
			x1 := min(x0+1, W-1)
			wy := sy - float64(y0)
			wx := sx - float64(x0)

			w00 := (1 - wy) * (1 - wx)
			w01 := (1 - wy) * wx
			w10 := wy * (1 - wx)
			w11 := wy * wx

			for c := 0; c < C; c++ {
				plane := inputData[(n*C+c)*H*W : (n*C+c+1)*H*W]
				v := w00*plane[y0*W+x0] + w01*plane[y0*W+x1] +
					w10*plane[y1*W+x0] + w11*plane[y1*W+x1]
				outputData[(n*C+c)*H*W+y*W+x] = v
			}
		}
	}, par)
}

// GridSampleBackward computes gradients of GridSample with respect to both
// the sampled input and the displacement field.
//
// The input gradient scatters each output gradient to the four corner pixels
// weighted by the bilinear coefficients. The field gradient follows from the
// derivative of the interpolation weights; positions whose sample coordinate
// was clamped to the edge receive zero field gradient along that axis.
func (cpu *CPUBackend) GridSampleBackward(gradOutput, input, field *tensor.RawTensor) (gradInput, gradField *tensor.RawTensor) {
	inputShape := input.Shape()
	N := inputShape[0]
	C := inputShape[1]
	H := inputShape[2]
	W := inputShape[3]

	gradInput, err := tensor.NewRaw(inputShape, gradOutput.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("gridsample backward: %v", err))
	}
	gradField, err = tensor.NewRaw(field.Shape(), gradOutput.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("gridsample backward: %v", err))
	}

	switch gradOutput.DType() {
	case tensor.Float32:
		gridSampleBackwardFloat32(gradInput, gradField, gradOutput, input, field, N, C, H, W, cpu.par)
	case tensor.Float64:
		gridSampleBackwardFloat64(gradInput, gradField, gradOutput, input, field, N, C, H, W, cpu.par)
	default:
		panic(fmt.Sprintf("gridsample backward: unsupported dtype %s", gradOutput.DType()))
	}

	return gradInput, gradField
}

// gridSampleBackwardFloat32 parallelizes across batch samples only: corner
// scatters from adjacent rows overlap within a sample, so rows of the same
// sample must stay on one worker.
func gridSampleBackwardFloat32(gradInput, gradField, gradOutput, input, field *tensor.RawTensor, N, C, H, W int, par parallel.Config) {
	gradInputData := gradInput.AsFloat32()
	gradFieldData := gradField.AsFloat32()
	gradOutputData := gradOutput.AsFloat32()
	inputData := input.AsFloat32()
	fieldData := field.AsFloat32()

	for i := range gradInputData {
		gradInputData[i] = 0
	}
	for i := range gradFieldData {
		gradFieldData[i] = 0
	}

	batchCfg := par
	batchCfg.MinChunkSize = 1
	parallel.For(N, func(n int) {
		fieldBase := n * 2 * H * W

		for y := 0; y < H; y++ {
			dyRow := fieldData[fieldBase+y*W : fieldBase+y*W+W]
			dxRow := fieldData[fieldBase+H*W+y*W : fieldBase+H*W+y*W+W]
			gyRow := gradFieldData[fieldBase+y*W : fieldBase+y*W+W]
			gxRow := gradFieldData[fieldBase+H*W+y*W : fieldBase+H*W+y*W+W]

			for x := 0; x < W; x++ {
				rawY := float32(y) + dyRow[x]
				rawX := float32(x) + dxRow[x]
				sy := clampF32(rawY, 0, float32(H-1))
				sx := clampF32(rawX, 0, float32(W-1))

				// Clamped coordinates are constant w.r.t. the field, so
				// their field gradient along that axis is zero.
				dyActive := rawY > 0 && rawY < float32(H-1)
				dxActive := rawX > 0 && rawX < float32(W-1)

				y0 := int(sy)
				x0 := int(sx)
				y1 := min(y0+1, H-1)
				x1 := min(x0+1, W-1)
				wy := sy - float32(y0)
				wx := sx - float32(x0)

				var gy, gx float32
				for c := 0; c < C; c++ {
					planeOff := (n*C + c) * H * W
					g := gradOutputData[planeOff+y*W+x]

					gradInputData[planeOff+y0*W+x0] += g * (1 - wy) * (1 - wx)
					gradInputData[planeOff+y0*W+x1] += g * (1 - wy) * wx
					gradInputData[planeOff+y1*W+x0] += g * wy * (1 - wx)
					gradInputData[planeOff+y1*W+x1] += g * wy * wx

					i00 := inputData[planeOff+y0*W+x0]
					i01 := inputData[planeOff+y0*W+x1]
					i10 := inputData[planeOff+y1*W+x0]
					i11 := inputData[planeOff+y1*W+x1]

					gy += g * ((1-wx)*(i10-i00) + wx*(i11-i01))
					gx += g * ((1-wy)*(i01-i00) + wy*(i11-i10))
				}

				if dyActive {
					gyRow[x] = gy
				}
				if dxActive {
					gxRow[x] = gx
				}
			}
		}
	}, batchCfg)
}

func gridSampleBackwardFloat64(gradInput, gradField, gradOutput, input, field *tensor.RawTensor, N, C, H, W int, par parallel.Config) {
	gradInputData := gradInput.AsFloat64()
	gradFieldData := gradField.AsFloat64()
	gradOutputData := gradOutput.AsFloat64()
	inputData := input.AsFloat64()
	fieldData := field.AsFloat64()

	for i := range gradInputData {
		gradInputData[i] = 0
	}
	for i := range gradFieldData {
		gradFieldData[i] = 0
	}

	batchCfg := par
	batchCfg.MinChunkSize = 1
	parallel.For(N, func(n int) {
		fieldBase := n * 2 * H * W

		for y := 0; y < H; y++ {
			dyRow := fieldData[fieldBase+y*W : fieldBase+y*W+W]
			dxRow := fieldData[fieldBase+H*W+y*W : fieldBase+H*W+y*W+W]
			gyRow := gradFieldData[fieldBase+y*W : fieldBase+y*W+W]
			gxRow := gradFieldData[fieldBase+H*W+y*W : fieldBase+H*W+y*W+W]

			for x := 0; x < W; x++ {
				rawY := float64(y) + dyRow[x]
				rawX := float64(x) + dxRow[x]
				sy := clampF64(rawY, 0, float64(H-1))
				sx := clampF64(rawX, 0, float64(W-1))

				dyActive := rawY > 0 && rawY < float64(H-1)
				dxActive := rawX > 0 && rawX < float64(W-1)

				y0 := int(sy)
				x0 := int(sx)
				y1 := min(y0+1, H-1)
				x1 := min(x0+1, W-1)
				wy := sy - float64(y0)
				wx := sx - float64(x0)

				var gy, gx float64
				for c := 0; c < C; c++ {
					planeOff := (n*C + c) * H * W
					g := gradOutputData[planeOff+y*W+x]

					gradInputData[planeOff+y0*W+x0] += g * (1 - wy) * (1 - wx)
					gradInputData[planeOff+y0*W+x1] += g * (1 - wy) * wx
					gradInputData[planeOff+y1*W+x0] += g * wy * (1 - wx)
					gradInputData[planeOff+y1*W+x1] += g * wy * wx

					i00 := inputData[planeOff+y0*W+x0]
					i01 := inputData[planeOff+y0*W+x1]
					i10 := inputData[planeOff+y1*W+x0]
					i11 := inputData[planeOff+y1*W+x1]

					gy += g * ((1-wx)*(i10-i00) + wx*(i11-i01))
					gx += g * ((1-wy)*(i01-i00) + wy*(i11-i10))
				}

				if dyActive {
					gyRow[x] = gy
				}
				if dxActive {
					gxRow[x] = gx
				}
			}
		}
	}, batchCfg)
}

func clampF32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampF64(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
