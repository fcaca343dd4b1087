// Package tensor provides the core tensor types and operations for cellwarp.
package tensor

import (
	"fmt"
	"math"
)

// Verify that MockBackend implements Backend.
var _ Backend = (*MockBackend)(nil)

// MockBackend is a simple backend for testing.
// It implements all operations naively for correctness verification.
type MockBackend struct{}

// NewMockBackend creates a new MockBackend.
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

// Name returns the backend name.
func (m *MockBackend) Name() string {
	return "mock"
}

// Device returns the device type.
func (m *MockBackend) Device() Device {
	return CPU
}

// Add performs element-wise addition with broadcasting.
func (m *MockBackend) Add(a, b *RawTensor) *RawTensor {
	return m.elementWise(a, b, func(x, y float64) float64 { return x + y })
}

// Sub performs element-wise subtraction with broadcasting.
func (m *MockBackend) Sub(a, b *RawTensor) *RawTensor {
	return m.elementWise(a, b, func(x, y float64) float64 { return x - y })
}

// Mul performs element-wise multiplication with broadcasting.
func (m *MockBackend) Mul(a, b *RawTensor) *RawTensor {
	return m.elementWise(a, b, func(x, y float64) float64 { return x * y })
}

// Div performs element-wise division with broadcasting.
func (m *MockBackend) Div(a, b *RawTensor) *RawTensor {
	return m.elementWise(a, b, func(x, y float64) float64 { return x / y })
}

// elementWise performs element-wise operations with broadcasting.
func (m *MockBackend) elementWise(a, b *RawTensor, op func(float64, float64) float64) *RawTensor {
	// Broadcast shapes
	outShape, _, err := BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(err)
	}

	// Create output tensor
	result, err := NewRaw(outShape, a.DType(), m.Device())
	if err != nil {
		panic(err)
	}

	// Perform operation (naive implementation)
	numElements := outShape.NumElements()

	// Convert to float64 for generic processing
	aData := m.toFloat64Slice(a)
	bData := m.toFloat64Slice(b)
	resultData := make([]float64, numElements)

	for i := 0; i < numElements; i++ {
		aIdx := m.broadcastIndex(i, outShape, a.Shape())
		bIdx := m.broadcastIndex(i, outShape, b.Shape())

		resultData[i] = op(aData[aIdx], bData[bIdx])
	}

	m.fromFloat64Slice(resultData, result)
	return result
}

// Conv2D performs 2D convolution (naive implementation for testing).
func (m *MockBackend) Conv2D(input, kernel *RawTensor, stride, padding int) *RawTensor {
	inputShape := input.Shape()
	kernelShape := kernel.Shape()

	if len(inputShape) != 4 || len(kernelShape) != 4 {
		panic("Conv2D requires 4D tensors [N,C,H,W]")
	}

	N := inputShape[0]
	CIn := inputShape[1]
	H := inputShape[2]
	W := inputShape[3]
	COut := kernelShape[0]
	KH := kernelShape[2]
	KW := kernelShape[3]

	if CIn != kernelShape[1] {
		panic(fmt.Sprintf("Conv2D: input channels %d != kernel channels %d", CIn, kernelShape[1]))
	}

	HOut := (H+2*padding-KH)/stride + 1
	WOut := (W+2*padding-KW)/stride + 1

	output, err := NewRaw(Shape{N, COut, HOut, WOut}, input.DType(), m.Device())
	if err != nil {
		panic(err)
	}

	inputData := m.toFloat64Slice(input)
	kernelData := m.toFloat64Slice(kernel)
	outputData := make([]float64, output.NumElements())

	// Naive convolution (direct implementation)
	for n := 0; n < N; n++ {
		for cOut := 0; cOut < COut; cOut++ {
			for outH := 0; outH < HOut; outH++ {
				for outW := 0; outW < WOut; outW++ {
					sum := 0.0

					// Convolve over input patch
					for cIn := 0; cIn < CIn; cIn++ {
						for kh := 0; kh < KH; kh++ {
							for kw := 0; kw < KW; kw++ {
								h := outH*stride - padding + kh
								w := outW*stride - padding + kw

								// Check bounds (zero padding)
								if h >= 0 && h < H && w >= 0 && w < W {
									inputIdx := n*CIn*H*W + cIn*H*W + h*W + w
									kernelIdx := cOut*CIn*KH*KW + cIn*KH*KW + kh*KW + kw
									sum += inputData[inputIdx] * kernelData[kernelIdx]
								}
							}
						}
					}

					outputIdx := n*COut*HOut*WOut + cOut*HOut*WOut + outH*WOut + outW
					outputData[outputIdx] = sum
				}
			}
		}
	}

	m.fromFloat64Slice(outputData, output)
	return output
}

// Conv2DInputBackward computes the gradient of Conv2D with respect to its input.
func (m *MockBackend) Conv2DInputBackward(gradOutput, kernel *RawTensor, inputShape Shape, stride, padding int) *RawTensor {
	gradShape := gradOutput.Shape()
	kernelShape := kernel.Shape()

	N := gradShape[0]
	COut := gradShape[1]
	HOut := gradShape[2]
	WOut := gradShape[3]
	CIn := kernelShape[1]
	KH := kernelShape[2]
	KW := kernelShape[3]
	H := inputShape[2]
	W := inputShape[3]

	gradInput, err := NewRaw(inputShape, gradOutput.DType(), m.Device())
	if err != nil {
		panic(err)
	}

	gradData := m.toFloat64Slice(gradOutput)
	kernelData := m.toFloat64Slice(kernel)
	resultData := make([]float64, gradInput.NumElements())

	// Scatter each output gradient back to the input positions it came from.
	for n := 0; n < N; n++ {
		for cOut := 0; cOut < COut; cOut++ {
			for outH := 0; outH < HOut; outH++ {
				for outW := 0; outW < WOut; outW++ {
					g := gradData[n*COut*HOut*WOut+cOut*HOut*WOut+outH*WOut+outW]
					for cIn := 0; cIn < CIn; cIn++ {
						for kh := 0; kh < KH; kh++ {
							for kw := 0; kw < KW; kw++ {
								h := outH*stride - padding + kh
								w := outW*stride - padding + kw
								if h >= 0 && h < H && w >= 0 && w < W {
									inputIdx := n*CIn*H*W + cIn*H*W + h*W + w
									kernelIdx := cOut*CIn*KH*KW + cIn*KH*KW + kh*KW + kw
									resultData[inputIdx] += g * kernelData[kernelIdx]
								}
							}
						}
					}
				}
			}
		}
	}

	m.fromFloat64Slice(resultData, gradInput)
	return gradInput
}

// Conv2DKernelBackward computes the gradient of Conv2D with respect to its kernel.
func (m *MockBackend) Conv2DKernelBackward(gradOutput, input *RawTensor, kernelShape Shape, stride, padding int) *RawTensor {
	gradShape := gradOutput.Shape()
	inputShape := input.Shape()

	N := gradShape[0]
	COut := gradShape[1]
	HOut := gradShape[2]
	WOut := gradShape[3]
	CIn := kernelShape[1]
	KH := kernelShape[2]
	KW := kernelShape[3]
	H := inputShape[2]
	W := inputShape[3]

	gradKernel, err := NewRaw(kernelShape, gradOutput.DType(), m.Device())
	if err != nil {
		panic(err)
	}

	gradData := m.toFloat64Slice(gradOutput)
	inputData := m.toFloat64Slice(input)
	resultData := make([]float64, gradKernel.NumElements())

	for n := 0; n < N; n++ {
		for cOut := 0; cOut < COut; cOut++ {
			for outH := 0; outH < HOut; outH++ {
				for outW := 0; outW < WOut; outW++ {
					g := gradData[n*COut*HOut*WOut+cOut*HOut*WOut+outH*WOut+outW]
					for cIn := 0; cIn < CIn; cIn++ {
						for kh := 0; kh < KH; kh++ {
							for kw := 0; kw < KW; kw++ {
								h := outH*stride - padding + kh
								w := outW*stride - padding + kw
								if h >= 0 && h < H && w >= 0 && w < W {
									inputIdx := n*CIn*H*W + cIn*H*W + h*W + w
									kernelIdx := cOut*CIn*KH*KW + cIn*KH*KW + kh*KW + kw
									resultData[kernelIdx] += g * inputData[inputIdx]
								}
							}
						}
					}
				}
			}
		}
	}

	m.fromFloat64Slice(resultData, gradKernel)
	return gradKernel
}

// MaxPool2D performs 2D max pooling (naive implementation for testing).
func (m *MockBackend) MaxPool2D(input *RawTensor, kernelSize, stride int) *RawTensor {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("MaxPool2D: expected 4D input [N,C,H,W], got %dD", len(inputShape)))
	}

	N := inputShape[0]
	C := inputShape[1]
	H := inputShape[2]
	W := inputShape[3]

	// Compute output dimensions
	HOut := (H-kernelSize)/stride + 1
	WOut := (W-kernelSize)/stride + 1

	output, err := NewRaw(Shape{N, C, HOut, WOut}, input.DType(), m.Device())
	if err != nil {
		panic(err)
	}

	inputData := m.toFloat64Slice(input)
	outputData := make([]float64, output.NumElements())

	// Naive max pooling
	for n := 0; n < N; n++ {
		for c := 0; c < C; c++ {
			for outH := 0; outH < HOut; outH++ {
				for outW := 0; outW < WOut; outW++ {
					hStart := outH * stride
					wStart := outW * stride

					// Find max in pooling window
					maxVal := math.Inf(-1)
					for kh := 0; kh < kernelSize; kh++ {
						for kw := 0; kw < kernelSize; kw++ {
							h := hStart + kh
							w := wStart + kw
							inputIdx := n*C*H*W + c*H*W + h*W + w
							if inputData[inputIdx] > maxVal {
								maxVal = inputData[inputIdx]
							}
						}
					}

					outputIdx := n*C*HOut*WOut + c*HOut*WOut + outH*WOut + outW
					outputData[outputIdx] = maxVal
				}
			}
		}
	}

	m.fromFloat64Slice(outputData, output)
	return output
}

// MaxPool2DBackward routes output gradients to the input positions recorded
// in maxIndices. Positions that did not win the pooling window receive zero.
func (m *MockBackend) MaxPool2DBackward(input, gradOutput *RawTensor, maxIndices []int, _, _ int) *RawTensor {
	gradInput, err := NewRaw(input.Shape(), gradOutput.DType(), m.Device())
	if err != nil {
		panic(err)
	}

	gradData := m.toFloat64Slice(gradOutput)
	if len(maxIndices) != len(gradData) {
		panic(fmt.Sprintf("MaxPool2DBackward: maxIndices length %d != gradient length %d", len(maxIndices), len(gradData)))
	}

	resultData := make([]float64, gradInput.NumElements())
	for i, pos := range maxIndices {
		resultData[pos] += gradData[i]
	}

	m.fromFloat64Slice(resultData, gradInput)
	return gradInput
}

// Upsample2D performs nearest-neighbor upsampling by an integer scale factor.
func (m *MockBackend) Upsample2D(input *RawTensor, scale int) *RawTensor {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("Upsample2D: expected 4D input [N,C,H,W], got %dD", len(inputShape)))
	}
	if scale < 1 {
		panic(fmt.Sprintf("Upsample2D: scale must be >= 1, got %d", scale))
	}

	N := inputShape[0]
	C := inputShape[1]
	H := inputShape[2]
	W := inputShape[3]
	HOut := H * scale
	WOut := W * scale

	output, err := NewRaw(Shape{N, C, HOut, WOut}, input.DType(), m.Device())
	if err != nil {
		panic(err)
	}

	inputData := m.toFloat64Slice(input)
	outputData := make([]float64, output.NumElements())

	for n := 0; n < N; n++ {
		for c := 0; c < C; c++ {
			for y := 0; y < HOut; y++ {
				for x := 0; x < WOut; x++ {
					inputIdx := n*C*H*W + c*H*W + (y/scale)*W + (x / scale)
					outputData[n*C*HOut*WOut+c*HOut*WOut+y*WOut+x] = inputData[inputIdx]
				}
			}
		}
	}

	m.fromFloat64Slice(outputData, output)
	return output
}

// GridSample warps input by a dense displacement field using bilinear
// interpolation with clamp-to-edge boundary handling.
func (m *MockBackend) GridSample(input, field *RawTensor) *RawTensor {
	inputShape := input.Shape()
	fieldShape := field.Shape()
	if len(inputShape) != 4 || len(fieldShape) != 4 {
		panic("GridSample requires 4D tensors [N,C,H,W]")
	}
	if fieldShape[1] != 2 {
		panic(fmt.Sprintf("GridSample: field must have 2 channels (dy, dx), got %d", fieldShape[1]))
	}

	N := inputShape[0]
	C := inputShape[1]
	H := inputShape[2]
	W := inputShape[3]

	output, err := NewRaw(inputShape, input.DType(), m.Device())
	if err != nil {
		panic(err)
	}

	inputData := m.toFloat64Slice(input)
	fieldData := m.toFloat64Slice(field)
	outputData := make([]float64, output.NumElements())

	for n := 0; n < N; n++ {
		for y := 0; y < H; y++ {
			for x := 0; x < W; x++ {
				dy := fieldData[n*2*H*W+0*H*W+y*W+x]
				dx := fieldData[n*2*H*W+1*H*W+y*W+x]

				sy := clampFloat(float64(y)+dy, 0, float64(H-1))
				sx := clampFloat(float64(x)+dx, 0, float64(W-1))

				y0 := int(math.Floor(sy))
				x0 := int(math.Floor(sx))
				y1 := min(y0+1, H-1)
				x1 := min(x0+1, W-1)
				wy := sy - float64(y0)
				wx := sx - float64(x0)

				for c := 0; c < C; c++ {
					base := n*C*H*W + c*H*W
					v := (1-wy)*(1-wx)*inputData[base+y0*W+x0] +
						(1-wy)*wx*inputData[base+y0*W+x1] +
						wy*(1-wx)*inputData[base+y1*W+x0] +
						wy*wx*inputData[base+y1*W+x1]
					outputData[base+y*W+x] = v
				}
			}
		}
	}

	m.fromFloat64Slice(outputData, output)
	return output
}

// GridSampleBackward computes gradients of GridSample for both inputs.
func (m *MockBackend) GridSampleBackward(gradOutput, input, field *RawTensor) (*RawTensor, *RawTensor) {
	inputShape := input.Shape()
	N := inputShape[0]
	C := inputShape[1]
	H := inputShape[2]
	W := inputShape[3]

	gradInput, err := NewRaw(inputShape, input.DType(), m.Device())
	if err != nil {
		panic(err)
	}
	gradField, err := NewRaw(field.Shape(), field.DType(), m.Device())
	if err != nil {
		panic(err)
	}

	gradData := m.toFloat64Slice(gradOutput)
	inputData := m.toFloat64Slice(input)
	fieldData := m.toFloat64Slice(field)
	gradInputData := make([]float64, gradInput.NumElements())
	gradFieldData := make([]float64, gradField.NumElements())

	for n := 0; n < N; n++ {
		for y := 0; y < H; y++ {
			for x := 0; x < W; x++ {
				dy := fieldData[n*2*H*W+0*H*W+y*W+x]
				dx := fieldData[n*2*H*W+1*H*W+y*W+x]

				rawY := float64(y) + dy
				rawX := float64(x) + dx
				sy := clampFloat(rawY, 0, float64(H-1))
				sx := clampFloat(rawX, 0, float64(W-1))

				// Gradient through the clamp is zero outside the image.
				dyActive := rawY > 0 && rawY < float64(H-1)
				dxActive := rawX > 0 && rawX < float64(W-1)

				y0 := int(math.Floor(sy))
				x0 := int(math.Floor(sx))
				y1 := min(y0+1, H-1)
				x1 := min(x0+1, W-1)
				wy := sy - float64(y0)
				wx := sx - float64(x0)

				var gy, gx float64
				for c := 0; c < C; c++ {
					base := n*C*H*W + c*H*W
					g := gradData[base+y*W+x]

					gradInputData[base+y0*W+x0] += (1 - wy) * (1 - wx) * g
					gradInputData[base+y0*W+x1] += (1 - wy) * wx * g
					gradInputData[base+y1*W+x0] += wy * (1 - wx) * g
					gradInputData[base+y1*W+x1] += wy * wx * g

					i00 := inputData[base+y0*W+x0]
					i01 := inputData[base+y0*W+x1]
					i10 := inputData[base+y1*W+x0]
					i11 := inputData[base+y1*W+x1]

					gy += g * ((1-wx)*(i10-i00) + wx*(i11-i01))
					gx += g * ((1-wy)*(i01-i00) + wy*(i11-i10))
				}

				if dyActive {
					gradFieldData[n*2*H*W+0*H*W+y*W+x] = gy
				}
				if dxActive {
					gradFieldData[n*2*H*W+1*H*W+y*W+x] = gx
				}
			}
		}
	}

	m.fromFloat64Slice(gradInputData, gradInput)
	m.fromFloat64Slice(gradFieldData, gradField)
	return gradInput, gradField
}

// FlipH mirrors a [N,C,H,W] tensor along the width axis.
func (m *MockBackend) FlipH(x *RawTensor) *RawTensor {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("FlipH: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}

	N, C, H, W := shape[0], shape[1], shape[2], shape[3]
	result, err := NewRaw(shape, x.DType(), m.Device())
	if err != nil {
		panic(err)
	}

	src := m.toFloat64Slice(x)
	dst := make([]float64, result.NumElements())

	for n := 0; n < N; n++ {
		for c := 0; c < C; c++ {
			base := n*C*H*W + c*H*W
			for y := 0; y < H; y++ {
				for w := 0; w < W; w++ {
					dst[base+y*W+w] = src[base+y*W+(W-1-w)]
				}
			}
		}
	}

	m.fromFloat64Slice(dst, result)
	return result
}

// Rot90 rotates a [N,C,H,W] tensor by k quarter turns counter-clockwise.
func (m *MockBackend) Rot90(x *RawTensor, k int) *RawTensor {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("Rot90: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}

	k = ((k % 4) + 4) % 4
	N, C, H, W := shape[0], shape[1], shape[2], shape[3]

	outH, outW := H, W
	if k%2 == 1 {
		outH, outW = W, H
	}

	result, err := NewRaw(Shape{N, C, outH, outW}, x.DType(), m.Device())
	if err != nil {
		panic(err)
	}

	src := m.toFloat64Slice(x)
	dst := make([]float64, result.NumElements())

	for n := 0; n < N; n++ {
		for c := 0; c < C; c++ {
			srcBase := n*C*H*W + c*H*W
			dstBase := n*C*outH*outW + c*outH*outW
			for y := 0; y < outH; y++ {
				for w := 0; w < outW; w++ {
					var sy, sx int
					switch k {
					case 0:
						sy, sx = y, w
					case 1:
						sy, sx = w, W-1-y
					case 2:
						sy, sx = H-1-y, W-1-w
					case 3:
						sy, sx = H-1-w, y
					}
					dst[dstBase+y*outW+w] = src[srcBase+sy*W+sx]
				}
			}
		}
	}

	m.fromFloat64Slice(dst, result)
	return result
}

// WindowedNCC computes a windowed normalized cross-correlation response map.
func (m *MockBackend) WindowedNCC(a, b *RawTensor, window int) *RawTensor {
	shape := a.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("WindowedNCC: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	if !shape.Equal(b.Shape()) {
		panic(fmt.Sprintf("WindowedNCC: shape mismatch %v vs %v", shape, b.Shape()))
	}

	N, C, H, W := shape[0], shape[1], shape[2], shape[3]
	result, err := NewRaw(Shape{N, 1, H, W}, a.DType(), m.Device())
	if err != nil {
		panic(err)
	}

	aData := m.toFloat64Slice(a)
	bData := m.toFloat64Slice(b)
	out := make([]float64, result.NumElements())

	half := window / 2
	const eps = 1e-8

	for n := 0; n < N; n++ {
		for y := 0; y < H; y++ {
			for x := 0; x < W; x++ {
				y0, y1 := max(0, y-half), min(H-1, y+half)
				x0, x1 := max(0, x-half), min(W-1, x+half)

				var sumA, sumB float64
				count := 0
				for c := 0; c < C; c++ {
					base := n*C*H*W + c*H*W
					for wy := y0; wy <= y1; wy++ {
						for wx := x0; wx <= x1; wx++ {
							sumA += aData[base+wy*W+wx]
							sumB += bData[base+wy*W+wx]
							count++
						}
					}
				}
				meanA := sumA / float64(count)
				meanB := sumB / float64(count)

				var num, varA, varB float64
				for c := 0; c < C; c++ {
					base := n*C*H*W + c*H*W
					for wy := y0; wy <= y1; wy++ {
						for wx := x0; wx <= x1; wx++ {
							da := aData[base+wy*W+wx] - meanA
							db := bData[base+wy*W+wx] - meanB
							num += da * db
							varA += da * da
							varB += db * db
						}
					}
				}

				out[n*H*W+y*W+x] = num / (math.Sqrt(varA*varB) + eps)
			}
		}
	}

	m.fromFloat64Slice(out, result)
	return result
}

// Reshape changes tensor shape.
func (m *MockBackend) Reshape(t *RawTensor, newShape Shape) *RawTensor {
	if err := newShape.Validate(); err != nil {
		panic(err)
	}

	if t.NumElements() != newShape.NumElements() {
		panic(fmt.Sprintf("cannot reshape tensor with %d elements to shape %v (%d elements)",
			t.NumElements(), newShape, newShape.NumElements()))
	}

	result, err := NewRaw(newShape, t.DType(), m.Device())
	if err != nil {
		panic(err)
	}

	// Copy data
	copy(result.Data(), t.Data())
	return result
}

// MulScalar multiplies each element by a scalar.
func (m *MockBackend) MulScalar(x *RawTensor, scalar any) *RawTensor {
	s := scalarToFloat64(scalar)
	return m.unaryOp(x, func(v float64) float64 { return v * s })
}

// AddScalar adds a scalar to each element.
func (m *MockBackend) AddScalar(x *RawTensor, scalar any) *RawTensor {
	s := scalarToFloat64(scalar)
	return m.unaryOp(x, func(v float64) float64 { return v + s })
}

// SubScalar subtracts a scalar from each element.
func (m *MockBackend) SubScalar(x *RawTensor, scalar any) *RawTensor {
	s := scalarToFloat64(scalar)
	return m.unaryOp(x, func(v float64) float64 { return v - s })
}

// DivScalar divides each element by a scalar.
func (m *MockBackend) DivScalar(x *RawTensor, scalar any) *RawTensor {
	s := scalarToFloat64(scalar)
	return m.unaryOp(x, func(v float64) float64 { return v / s })
}

func (m *MockBackend) unaryOp(x *RawTensor, op func(float64) float64) *RawTensor {
	result, err := NewRaw(x.Shape(), x.DType(), m.Device())
	if err != nil {
		panic(err)
	}

	src := m.toFloat64Slice(x)
	dst := make([]float64, len(src))
	for i, v := range src {
		dst[i] = op(v)
	}

	m.fromFloat64Slice(dst, result)
	return result
}

// SumDim sums along the specified dimension.
func (m *MockBackend) SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor {
	return m.reduceDim(x, dim, keepDim, func(acc, v float64, first bool) float64 {
		if first {
			return v
		}
		return acc + v
	}, func(acc float64, n int) float64 { return acc })
}

// MeanDim computes the mean along the specified dimension.
func (m *MockBackend) MeanDim(x *RawTensor, dim int, keepDim bool) *RawTensor {
	return m.reduceDim(x, dim, keepDim, func(acc, v float64, first bool) float64 {
		if first {
			return v
		}
		return acc + v
	}, func(acc float64, n int) float64 { return acc / float64(n) })
}

func (m *MockBackend) reduceDim(x *RawTensor, dim int, keepDim bool, combine func(acc, v float64, first bool) float64, finish func(acc float64, n int) float64) *RawTensor {
	shape := x.Shape()
	ndim := len(shape)
	if dim < 0 {
		dim = ndim + dim
	}
	if dim < 0 || dim >= ndim {
		panic(fmt.Sprintf("reduce: dimension %d out of range for %dD tensor", dim, ndim))
	}

	var outShape Shape
	if keepDim {
		outShape = shape.Clone()
		outShape[dim] = 1
	} else {
		outShape = make(Shape, 0, ndim-1)
		for i := 0; i < ndim; i++ {
			if i != dim {
				outShape = append(outShape, shape[i])
			}
		}
	}

	result, err := NewRaw(outShape, x.DType(), m.Device())
	if err != nil {
		panic(err)
	}

	src := m.toFloat64Slice(x)
	dst := make([]float64, result.NumElements())
	seen := make([]bool, len(dst))

	strides := shape.ComputeStrides()
	keepShape := shape.Clone()
	keepShape[dim] = 1
	outStrides := keepShape.ComputeStrides()

	for i := 0; i < shape.NumElements(); i++ {
		outIdx := 0
		temp := i
		for d := 0; d < ndim; d++ {
			coord := temp / strides[d]
			temp %= strides[d]
			if d != dim {
				outIdx += coord * outStrides[d]
			}
		}
		dst[outIdx] = combine(dst[outIdx], src[i], !seen[outIdx])
		seen[outIdx] = true
	}

	for i := range dst {
		dst[i] = finish(dst[i], shape[dim])
	}

	m.fromFloat64Slice(dst, result)
	return result
}

// Cat concatenates tensors along the specified dimension.
func (m *MockBackend) Cat(tensors []*RawTensor, dim int) *RawTensor {
	if len(tensors) == 0 {
		panic("cat: at least one tensor required")
	}

	shape := tensors[0].Shape()
	ndim := len(shape)
	if dim < 0 {
		dim = ndim + dim
	}
	if dim < 0 || dim >= ndim {
		panic(fmt.Sprintf("cat: dimension %d out of range for %dD tensor", dim, ndim))
	}

	outShape := shape.Clone()
	for _, t := range tensors[1:] {
		s := t.Shape()
		if len(s) != ndim {
			panic("cat: tensors must have the same number of dimensions")
		}
		for d := 0; d < ndim; d++ {
			if d != dim && s[d] != shape[d] {
				panic(fmt.Sprintf("cat: shape mismatch at dim %d: %v vs %v", d, shape, s))
			}
		}
		outShape[dim] += s[dim]
	}

	result, err := NewRaw(outShape, tensors[0].DType(), m.Device())
	if err != nil {
		panic(err)
	}

	outer := 1
	for d := 0; d < dim; d++ {
		outer *= shape[d]
	}
	inner := 1
	for d := dim + 1; d < ndim; d++ {
		inner *= shape[d]
	}

	dst := make([]float64, result.NumElements())
	outDimSize := outShape[dim]
	offset := 0
	for _, t := range tensors {
		src := m.toFloat64Slice(t)
		tDim := t.Shape()[dim]
		for o := 0; o < outer; o++ {
			for d := 0; d < tDim; d++ {
				srcBase := (o*tDim + d) * inner
				dstBase := (o*outDimSize + offset + d) * inner
				copy(dst[dstBase:dstBase+inner], src[srcBase:srcBase+inner])
			}
		}
		offset += tDim
	}

	m.fromFloat64Slice(dst, result)
	return result
}

// Chunk splits a tensor into n equal parts along the specified dimension.
func (m *MockBackend) Chunk(x *RawTensor, n, dim int) []*RawTensor {
	shape := x.Shape()
	ndim := len(shape)
	if dim < 0 {
		dim = ndim + dim
	}
	if dim < 0 || dim >= ndim {
		panic(fmt.Sprintf("chunk: dimension %d out of range for %dD tensor", dim, ndim))
	}
	if shape[dim]%n != 0 {
		panic(fmt.Sprintf("chunk: dimension size %d not divisible by %d", shape[dim], n))
	}

	chunkSize := shape[dim] / n
	chunkShape := shape.Clone()
	chunkShape[dim] = chunkSize

	outer := 1
	for d := 0; d < dim; d++ {
		outer *= shape[d]
	}
	inner := 1
	for d := dim + 1; d < ndim; d++ {
		inner *= shape[d]
	}

	src := m.toFloat64Slice(x)
	results := make([]*RawTensor, n)

	for i := 0; i < n; i++ {
		chunk, err := NewRaw(chunkShape, x.DType(), m.Device())
		if err != nil {
			panic(err)
		}

		dst := make([]float64, chunk.NumElements())
		for o := 0; o < outer; o++ {
			for d := 0; d < chunkSize; d++ {
				srcBase := (o*shape[dim] + i*chunkSize + d) * inner
				dstBase := (o*chunkSize + d) * inner
				copy(dst[dstBase:dstBase+inner], src[srcBase:srcBase+inner])
			}
		}

		m.fromFloat64Slice(dst, chunk)
		results[i] = chunk
	}

	return results
}

// Unsqueeze adds a dimension of size 1 at the specified position.
func (m *MockBackend) Unsqueeze(x *RawTensor, dim int) *RawTensor {
	shape := x.Shape()
	ndim := len(shape)
	if dim < 0 {
		dim = ndim + 1 + dim
	}
	if dim < 0 || dim > ndim {
		panic(fmt.Sprintf("unsqueeze: dimension %d out of range", dim))
	}

	newShape := make(Shape, 0, ndim+1)
	newShape = append(newShape, shape[:dim]...)
	newShape = append(newShape, 1)
	newShape = append(newShape, shape[dim:]...)

	return m.Reshape(x, newShape)
}

// Squeeze removes a dimension of size 1 at the specified position.
func (m *MockBackend) Squeeze(x *RawTensor, dim int) *RawTensor {
	shape := x.Shape()
	ndim := len(shape)
	if dim < 0 {
		dim = ndim + dim
	}
	if dim < 0 || dim >= ndim {
		panic(fmt.Sprintf("squeeze: dimension %d out of range for %dD tensor", dim, ndim))
	}
	if shape[dim] != 1 {
		panic(fmt.Sprintf("squeeze: dimension %d has size %d, expected 1", dim, shape[dim]))
	}

	newShape := make(Shape, 0, ndim-1)
	for i := 0; i < ndim; i++ {
		if i != dim {
			newShape = append(newShape, shape[i])
		}
	}

	return m.Reshape(x, newShape)
}

// Cast converts the tensor to a different data type.
func (m *MockBackend) Cast(x *RawTensor, dtype DataType) *RawTensor {
	result, err := NewRaw(x.Shape(), dtype, m.Device())
	if err != nil {
		panic(err)
	}

	src := m.toFloat64Slice(x)
	m.fromFloat64Slice(src, result)
	return result
}

// Helper functions

func (m *MockBackend) toFloat64Slice(t *RawTensor) []float64 {
	switch t.DType() {
	case Float32:
		src := t.AsFloat32()
		dst := make([]float64, len(src))
		for i, v := range src {
			dst[i] = float64(v)
		}
		return dst
	case Float64:
		src := t.AsFloat64()
		dst := make([]float64, len(src))
		copy(dst, src)
		return dst
	case Int32:
		src := t.AsInt32()
		dst := make([]float64, len(src))
		for i, v := range src {
			dst[i] = float64(v)
		}
		return dst
	case Int64:
		src := t.AsInt64()
		dst := make([]float64, len(src))
		for i, v := range src {
			dst[i] = float64(v)
		}
		return dst
	case Uint8:
		src := t.AsUint8()
		dst := make([]float64, len(src))
		for i, v := range src {
			dst[i] = float64(v)
		}
		return dst
	case Bool:
		src := t.AsBool()
		dst := make([]float64, len(src))
		for i, v := range src {
			if v {
				dst[i] = 1
			}
		}
		return dst
	default:
		panic(fmt.Sprintf("unsupported dtype: %s", t.DType()))
	}
}

func (m *MockBackend) fromFloat64Slice(src []float64, t *RawTensor) {
	switch t.DType() {
	case Float32:
		dst := t.AsFloat32()
		for i, v := range src {
			dst[i] = float32(v)
		}
	case Float64:
		copy(t.AsFloat64(), src)
	case Int32:
		dst := t.AsInt32()
		for i, v := range src {
			dst[i] = int32(v)
		}
	case Int64:
		dst := t.AsInt64()
		for i, v := range src {
			dst[i] = int64(v)
		}
	case Uint8:
		dst := t.AsUint8()
		for i, v := range src {
			dst[i] = uint8(v)
		}
	case Bool:
		dst := t.AsBool()
		for i, v := range src {
			dst[i] = v != 0
		}
	}
}

func (m *MockBackend) broadcastIndex(flatIdx int, outShape, inShape Shape) int {
	// Convert flat index to multi-dimensional indices in output shape
	outStrides := outShape.ComputeStrides()
	indices := make([]int, len(outShape))

	temp := flatIdx
	for i := 0; i < len(outShape); i++ {
		indices[i] = temp / outStrides[i]
		temp %= outStrides[i]
	}

	// Map to input shape (accounting for broadcasting)
	inStrides := inShape.ComputeStrides()
	inIdx := 0

	offset := len(outShape) - len(inShape)
	for i := 0; i < len(inShape); i++ {
		outDimIdx := indices[offset+i]
		inDim := inShape[i]

		// If input dimension is 1, always use index 0 (broadcasting)
		if inDim == 1 {
			outDimIdx = 0
		}

		inIdx += outDimIdx * inStrides[i]
	}

	return inIdx
}

func scalarToFloat64(scalar any) float64 {
	switch s := scalar.(type) {
	case float32:
		return float64(s)
	case float64:
		return s
	case int:
		return float64(s)
	case int32:
		return float64(s)
	case int64:
		return float64(s)
	case uint8:
		return float64(s)
	default:
		panic(fmt.Sprintf("unsupported scalar type: %T", scalar))
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
