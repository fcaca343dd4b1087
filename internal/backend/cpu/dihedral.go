package cpu

import (
	"fmt"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// FlipH mirrors input [N,C,H,W] along the width axis:
// out[n,c,y,x] = in[n,c,y,W-1-x].
func (cpu *CPUBackend) FlipH(x *tensor.RawTensor) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("fliph: input must be 4D [N,C,H,W], got %dD", len(shape)))
	}

	H := shape[2]
	W := shape[3]

	result, err := tensor.NewRaw(shape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("fliph: %v", err))
	}

	srcIdx := make([]int, H*W)
	for y := 0; y < H; y++ {
		for xx := 0; xx < W; xx++ {
			srcIdx[y*W+xx] = y*W + (W - 1 - xx)
		}
	}

	gatherPlanes(result, x, srcIdx, shape[0]*shape[1], H*W)
	return result
}

// Rot90 rotates input [N,C,H,W] counterclockwise by k*90 degrees.
// k is normalized modulo 4; odd k swaps the spatial dimensions.
func (cpu *CPUBackend) Rot90(x *tensor.RawTensor, k int) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("rot90: input must be 4D [N,C,H,W], got %dD", len(shape)))
	}

	k = ((k % 4) + 4) % 4
	H := shape[2]
	W := shape[3]

	outH, outW := H, W
	if k%2 == 1 {
		outH, outW = W, H
	}

	result, err := tensor.NewRaw(tensor.Shape{shape[0], shape[1], outH, outW}, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("rot90: %v", err))
	}

	srcIdx := make([]int, outH*outW)
	for y := 0; y < outH; y++ {
		for xx := 0; xx < outW; xx++ {
			var srcY, srcX int
			switch k {
			case 0:
				srcY, srcX = y, xx
			case 1:
				srcY, srcX = xx, W-1-y
			case 2:
				srcY, srcX = H-1-y, W-1-xx
			case 3:
				srcY, srcX = H-1-xx, y
			}
			srcIdx[y*outW+xx] = srcY*W + srcX
		}
	}

	gatherPlanes(result, x, srcIdx, shape[0]*shape[1], H*W)
	return result
}

// gatherPlanes fills each [H,W] plane of result by indexing the matching
// input plane through srcIdx. The spatial permutation is identical for every
// batch and channel, so it is computed once by the caller.
func gatherPlanes(result, input *tensor.RawTensor, srcIdx []int, planes, planeSize int) {
	outPlaneSize := len(srcIdx)

	switch input.DType() {
	case tensor.Float32:
		src, dst := input.AsFloat32(), result.AsFloat32()
		for p := 0; p < planes; p++ {
			in := src[p*planeSize : (p+1)*planeSize]
			out := dst[p*outPlaneSize : (p+1)*outPlaneSize]
			for i, s := range srcIdx {
				out[i] = in[s]
			}
		}
	case tensor.Float64:
		src, dst := input.AsFloat64(), result.AsFloat64()
		for p := 0; p < planes; p++ {
			in := src[p*planeSize : (p+1)*planeSize]
			out := dst[p*outPlaneSize : (p+1)*outPlaneSize]
			for i, s := range srcIdx {
				out[i] = in[s]
			}
		}
	case tensor.Int32:
		src, dst := input.AsInt32(), result.AsInt32()
		for p := 0; p < planes; p++ {
			in := src[p*planeSize : (p+1)*planeSize]
			out := dst[p*outPlaneSize : (p+1)*outPlaneSize]
			for i, s := range srcIdx {
				out[i] = in[s]
			}
		}
	case tensor.Int64:
		src, dst := input.AsInt64(), result.AsInt64()
		for p := 0; p < planes; p++ {
			in := src[p*planeSize : (p+1)*planeSize]
			out := dst[p*outPlaneSize : (p+1)*outPlaneSize]
			for i, s := range srcIdx {
				out[i] = in[s]
			}
		}
	case tensor.Uint8:
		src, dst := input.AsUint8(), result.AsUint8()
		for p := 0; p < planes; p++ {
			in := src[p*planeSize : (p+1)*planeSize]
			out := dst[p*outPlaneSize : (p+1)*outPlaneSize]
			for i, s := range srcIdx {
				out[i] = in[s]
			}
		}
	case tensor.Bool:
		src, dst := input.AsBool(), result.AsBool()
		for p := 0; p < planes; p++ {
			in := src[p*planeSize : (p+1)*planeSize]
			out := dst[p*outPlaneSize : (p+1)*outPlaneSize]
			for i, s := range srcIdx {
				out[i] = in[s]
			}
		}
	default:
		panic(fmt.Sprintf("dihedral: unsupported dtype %s", input.DType()))
	}
}
