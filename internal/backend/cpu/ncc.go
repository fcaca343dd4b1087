package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/cellwarp/internal/parallel"
	"github.com/born-ml/cellwarp/internal/tensor"
)

const nccEpsilon = 1e-8

// WindowedNCC computes a local normalized cross-correlation response map
// between a and b, both [N,C,H,W]. The result is [N,1,H,W]: at each spatial
// position the correlation is evaluated over a window x window neighborhood
// pooled across all channels, clipped at the image border.
//
// The response lies in [-1,1] up to the stabilizing epsilon in the
// denominator. Flat windows (zero variance) produce a response near zero.
func (cpu *CPUBackend) WindowedNCC(a, b *tensor.RawTensor, window int) *tensor.RawTensor {
	aShape := a.Shape()
	bShape := b.Shape()

	if len(aShape) != 4 {
		panic(fmt.Sprintf("windowed ncc: input must be 4D [N,C,H,W], got %dD", len(aShape)))
	}
	if !aShape.Equal(bShape) {
		panic(fmt.Sprintf("windowed ncc: shape mismatch %v vs %v", aShape, bShape))
	}
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("windowed ncc: dtype mismatch %s vs %s", a.DType(), b.DType()))
	}
	if window < 1 {
		panic(fmt.Sprintf("windowed ncc: window must be >= 1, got %d", window))
	}

	N := aShape[0]
	C := aShape[1]
	H := aShape[2]
	W := aShape[3]

	result, err := tensor.NewRaw(tensor.Shape{N, 1, H, W}, a.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("windowed ncc: %v", err))
	}

	switch a.DType() {
	case tensor.Float32:
		windowedNCCFloat32(result, a, b, N, C, H, W, window, cpu.par)
	case tensor.Float64:
		windowedNCCFloat64(result, a, b, N, C, H, W, window, cpu.par)
	default:
		panic(fmt.Sprintf("windowed ncc: unsupported dtype %s (only float32/float64 supported)", a.DType()))
	}

	return result
}

func windowedNCCFloat32(result, a, b *tensor.RawTensor, N, C, H, W, window int, par parallel.Config) {
	aData := a.AsFloat32()
	bData := b.AsFloat32()
	out := result.AsFloat32()
	half := window / 2

	parallel.For(N*H, func(row int) {
		n := row / H
		y := row % H

		y0 := max(y-half, 0)
		y1 := min(y+half, H-1)

		for x := 0; x < W; x++ {
			x0 := max(x-half, 0)
			x1 := min(x+half, W-1)
			count := float32((y1 - y0 + 1) * (x1 - x0 + 1) * C)

			var sumA, sumB float32
			for c := 0; c < C; c++ {
				plane := (n*C + c) * H * W
				for wy := y0; wy <= y1; wy++ {
					rowOff := plane + wy*W
					for wx := x0; wx <= x1; wx++ {
						sumA += aData[rowOff+wx]
						sumB += bData[rowOff+wx]
					}
				}
			}
			meanA := sumA / count
			meanB := sumB / count

			var num, varA, varB float32
			for c := 0; c < C; c++ {
				plane := (n*C + c) * H * W
				for wy := y0; wy <= y1; wy++ {
					rowOff := plane + wy*W
					for wx := x0; wx <= x1; wx++ {
						da := aData[rowOff+wx] - meanA
						db := bData[rowOff+wx] - meanB
						num += da * db
						varA += da * da
						varB += db * db
					}
				}
			}

			denom := float32(math.Sqrt(float64(varA)*float64(varB))) + nccEpsilon
			out[n*H*W+y*W+x] = num / denom
		}
	}, par)
}

func windowedNCCFloat64(result, a, b *tensor.RawTensor, N, C, H, W, window int, par parallel.Config) {
	aData := a.AsFloat64()
	bData := b.AsFloat64()
	out := result.AsFloat64()
	half := window / 2

	parallel.For(N*H, func(row int) {
		n := row / H
		y := row % H

		y0 := max(y-half, 0)
		y1 := min(y+half, H-1)

		for x := 0; x < W; x++ {
			x0 := max(x-half, 0)
			x1 := min(x+half, W-1)
			count := float64((y1 - y0 + 1) * (x1 - x0 + 1) * C)

			var sumA, sumB float64
			for c := 0; c < C; c++ {
				plane := (n*C + c) * H * W
				for wy := y0; wy <= y1; wy++ {
					rowOff := plane + wy*W
					for wx := x0; wx <= x1; wx++ {
						sumA += aData[rowOff+wx]
						sumB += bData[rowOff+wx]
					}
				}
			}
			meanA := sumA / count
			meanB := sumB / count

			var num, varA, varB float64
			for c := 0; c < C; c++ {
				plane := (n*C + c) * H * W
				for wy := y0; wy <= y1; wy++ {
					rowOff := plane + wy*W
					for wx := x0; wx <= x1; wx++ {
						da := aData[rowOff+wx] - meanA
						db := bData[rowOff+wx] - meanB
						num += da * db
						varA += da * da
						varB += db * db
					}
				}
			}

			out[n*H*W+y*W+x] = num / (math.Sqrt(varA*varB) + nccEpsilon)
		}
	}, par)
}
