// Package autodiff adds reverse-mode automatic differentiation on top of any
// tensor backend.
//
// AutodiffBackend decorates a Backend: forward computation is delegated to
// the wrapped implementation while every differentiable operation is recorded
// on a GradientTape. Walking the tape in reverse applies the chain rule and
// yields a gradient per input tensor.
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//
//	x := tensor.FromSlice([]float32{2}, tensor.Shape{1}, backend)
//	y := x.Mul(x)
//
//	grads := autodiff.Backward(y, backend)
//	_ = grads[x.Raw()] // dy/dx = 2x = 4
//
// Gradient-free operations (thresholding, casts, orientation transforms, the
// NCC response map) forward straight to the wrapped backend without
// recording.
package autodiff

import (
	"fmt"

	"github.com/born-ml/cellwarp/internal/autodiff/ops"
	"github.com/born-ml/cellwarp/internal/tensor"
)

// floatValue constrains the element types gradients can flow through.
type floatValue interface {
	float32 | float64
}

// AutodiffBackend wraps a Backend and records operations for
// backpropagation. It satisfies tensor.Backend itself, so tensors built on
// it run every operation through the tape.
type AutodiffBackend[B tensor.Backend] struct {
	inner B
	tape  *GradientTape
}

// New wraps the given backend with gradient tracking. The tape starts out
// not recording.
func New[B tensor.Backend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for recording control and inspection.
func (ad *AutodiffBackend[B]) Tape() *GradientTape {
	return ad.tape
}

// Inner returns the wrapped backend.
func (ad *AutodiffBackend[B]) Inner() B {
	return ad.inner
}

// NoGrad runs fn with tape recording disabled and restores the previous
// recording state afterwards. Safe to nest. Validation and inference passes
// run inside NoGrad so the tape stays small during training.
func (ad *AutodiffBackend[B]) NoGrad(fn func()) {
	wasRecording := ad.tape.IsRecording()
	ad.tape.StopRecording()
	defer func() {
		if wasRecording {
			ad.tape.StartRecording()
		}
	}()
	fn()
}

// Name returns the backend name.
func (ad *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + ad.inner.Name() + ")"
}

// Device returns the compute device.
func (ad *AutodiffBackend[B]) Device() tensor.Device {
	return ad.inner.Device()
}

// Add performs element-wise addition and records the operation.
//
// Every recording wrapper pins its operands with ForceNonUnique for the
// duration of the call: a tensor on the tape must not be modified in place
// by the wrapped backend, or the graph the backward pass replays would see
// values from the wrong point in time.
func (ad *AutodiffBackend[B]) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	defer a.ForceNonUnique()()
	defer b.ForceNonUnique()()

	result := ad.inner.Add(a, b)
	if ad.tape.IsRecording() {
		ad.tape.Record(ops.NewAddOp(a, b, result))
	}
	return result
}

// Sub performs element-wise subtraction and records the operation.
func (ad *AutodiffBackend[B]) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	defer a.ForceNonUnique()()
	defer b.ForceNonUnique()()

	result := ad.inner.Sub(a, b)
	if ad.tape.IsRecording() {
		ad.tape.Record(ops.NewSubOp(a, b, result))
	}
	return result
}

// Mul performs element-wise multiplication and records the operation.
func (ad *AutodiffBackend[B]) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	defer a.ForceNonUnique()()
	defer b.ForceNonUnique()()

	result := ad.inner.Mul(a, b)
	if ad.tape.IsRecording() {
		ad.tape.Record(ops.NewMulOp(a, b, result))
	}
	return result
}

// Div performs element-wise division and records the operation.
func (ad *AutodiffBackend[B]) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	defer a.ForceNonUnique()()
	defer b.ForceNonUnique()()

	result := ad.inner.Div(a, b)
	if ad.tape.IsRecording() {
		ad.tape.Record(ops.NewDivOp(a, b, result))
	}
	return result
}

// MulScalar multiplies by a constant scalar and records the operation.
func (ad *AutodiffBackend[B]) MulScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	result := ad.inner.MulScalar(x, scalar)
	if ad.tape.IsRecording() {
		ad.tape.Record(ops.NewScaleOp(x, result, scalar))
	}
	return result
}

// DivScalar divides by a constant scalar and records the operation.
func (ad *AutodiffBackend[B]) DivScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	result := ad.inner.DivScalar(x, scalar)
	if ad.tape.IsRecording() {
		ad.tape.Record(ops.NewInverseScaleOp(x, result, scalar))
	}
	return result
}

// AddScalar adds a constant scalar and records the operation.
func (ad *AutodiffBackend[B]) AddScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	result := ad.inner.AddScalar(x, scalar)
	if ad.tape.IsRecording() {
		ad.tape.Record(ops.NewShiftOp(x, result))
	}
	return result
}

// SubScalar subtracts a constant scalar and records the operation.
func (ad *AutodiffBackend[B]) SubScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	result := ad.inner.SubScalar(x, scalar)
	if ad.tape.IsRecording() {
		ad.tape.Record(ops.NewShiftOp(x, result))
	}
	return result
}

// Reshape reshapes a tensor and records the operation. Recording matters
// even though no data moves: a parameter reshaped for broadcasting, such as
// a conv bias viewed as [1,C,1,1], must still receive its gradient in the
// original shape.
func (ad *AutodiffBackend[B]) Reshape(x *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	result := ad.inner.Reshape(x, newShape)
	if ad.tape.IsRecording() {
		ad.tape.Record(ops.NewReshapeOp(x, result))
	}
	return result
}

// Unsqueeze inserts a size-1 dimension and records the operation.
// Gradient-wise this is a reshape: same data, different shape.
func (ad *AutodiffBackend[B]) Unsqueeze(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	result := ad.inner.Unsqueeze(x, dim)
	if ad.tape.IsRecording() {
		ad.tape.Record(ops.NewReshapeOp(x, result))
	}
	return result
}

// Squeeze removes a size-1 dimension and records the operation.
// Gradient-wise this is a reshape: same data, different shape.
func (ad *AutodiffBackend[B]) Squeeze(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	result := ad.inner.Squeeze(x, dim)
	if ad.tape.IsRecording() {
		ad.tape.Record(ops.NewReshapeOp(x, result))
	}
	return result
}

// Conv2D performs 2D convolution and records the operation, so gradients
// reach both the input and the kernel.
func (ad *AutodiffBackend[B]) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	defer input.ForceNonUnique()()
	defer kernel.ForceNonUnique()()

	result := ad.inner.Conv2D(input, kernel, stride, padding)
	if ad.tape.IsRecording() {
		ad.tape.Record(ops.NewConv2DOp(input, kernel, result, stride, padding))
	}
	return result
}

// MaxPool2D performs 2D max pooling and records the operation. The op
// captures the argmax positions at record time for backward routing.
func (ad *AutodiffBackend[B]) MaxPool2D(input *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	defer input.ForceNonUnique()()

	result := ad.inner.MaxPool2D(input, kernelSize, stride)
	if ad.tape.IsRecording() {
		ad.tape.Record(ops.NewMaxPool2DOp(input, result, kernelSize, stride))
	}
	return result
}

// Upsample2D performs nearest-neighbor upsampling and records the operation.
func (ad *AutodiffBackend[B]) Upsample2D(input *tensor.RawTensor, scale int) *tensor.RawTensor {
	defer input.ForceNonUnique()()

	result := ad.inner.Upsample2D(input, scale)
	if ad.tape.IsRecording() {
		ad.tape.Record(ops.NewUpsample2DOp(input, result, scale))
	}
	return result
}

// GridSample warps input by a displacement field and records the operation.
//
// This is the differentiable core of registration training: gradients flow
// through the bilinear sampler into BOTH the warped image and the field, so
// the model producing the field can learn from image similarity losses.
func (ad *AutodiffBackend[B]) GridSample(input, field *tensor.RawTensor) *tensor.RawTensor {
	defer input.ForceNonUnique()()
	defer field.ForceNonUnique()()

	result := ad.inner.GridSample(input, field)
	if ad.tape.IsRecording() {
		ad.tape.Record(ops.NewGridSampleOp(input, field, result))
	}
	return result
}

// Cat concatenates tensors along a dimension and records the operation.
func (ad *AutodiffBackend[B]) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	for _, t := range tensors {
		defer t.ForceNonUnique()()
	}

	result := ad.inner.Cat(tensors, dim)
	if ad.tape.IsRecording() {
		// Record per-input sizes along the (normalized) concat axis so
		// the backward pass can split the gradient at the right
		// boundaries.
		normDim := dim
		if normDim < 0 {
			normDim += len(tensors[0].Shape())
		}
		sizes := make([]int, len(tensors))
		for i, t := range tensors {
			sizes[i] = t.Shape()[normDim]
		}
		ad.tape.Record(ops.NewCatOp(tensors, normDim, sizes, result))
	}
	return result
}

// Chunk splits a tensor into n parts along a dimension and records the
// operation. Chunk is multi-output: the tape collects gradients for every
// chunk, filling missing ones with zeros, before the joint backward pass.
func (ad *AutodiffBackend[B]) Chunk(x *tensor.RawTensor, n, dim int) []*tensor.RawTensor {
	defer x.ForceNonUnique()()

	results := ad.inner.Chunk(x, n, dim)
	if ad.tape.IsRecording() {
		ad.tape.Record(ops.NewChunkOp(x, n, dim, results))
	}
	return results
}

// SumDim sums along a dimension and records the operation.
func (ad *AutodiffBackend[B]) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	result := ad.inner.SumDim(x, dim, keepDim)
	if ad.tape.IsRecording() {
		ad.tape.Record(ops.NewSumDimOp(x, result, dim, keepDim))
	}
	return result
}

// MeanDim averages along a dimension and records the operation.
func (ad *AutodiffBackend[B]) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	result := ad.inner.MeanDim(x, dim, keepDim)
	if ad.tape.IsRecording() {
		ad.tape.Record(ops.NewMeanDimOp(x, result, dim, keepDim))
	}
	return result
}

// reluKernelBackend is implemented by backends with a fused ReLU kernel.
type reluKernelBackend interface {
	ReLU(x *tensor.RawTensor) *tensor.RawTensor
}

// ReLU applies the rectified linear unit and records the operation.
//
// ReLU is not part of the core Backend interface; the decorator uses the
// wrapped backend's fused kernel when it has one and computes the activation
// directly otherwise.
func (ad *AutodiffBackend[B]) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	var result *tensor.RawTensor
	if kb, ok := any(ad.inner).(reluKernelBackend); ok {
		result = kb.ReLU(x)
	} else {
		result = ad.newResult(x.Shape(), x.DType())
		switch x.DType() {
		case tensor.Float32:
			reluInto(x.AsFloat32(), result.AsFloat32())
		case tensor.Float64:
			reluInto(x.AsFloat64(), result.AsFloat64())
		default:
			panic(fmt.Sprintf("relu: unsupported dtype %s", x.DType()))
		}
	}

	if ad.tape.IsRecording() {
		ad.tape.Record(ops.NewReLUOp(x, result))
	}
	return result
}

// mseKernelBackend is implemented by backends with a fused MSE kernel.
type mseKernelBackend interface {
	MSE(a, b *tensor.RawTensor) *tensor.RawTensor
}

// MSE computes mean((a-b)^2) as a scalar and records the operation.
//
// Like ReLU this is a capability rather than a core Backend method. The
// fused form keeps training loss graphs short: one recorded op instead of a
// sub, mul and reduce chain per loss term.
func (ad *AutodiffBackend[B]) MSE(a, b *tensor.RawTensor) *tensor.RawTensor {
	defer a.ForceNonUnique()()
	defer b.ForceNonUnique()()

	var result *tensor.RawTensor
	if kb, ok := any(ad.inner).(mseKernelBackend); ok {
		result = kb.MSE(a, b)
	} else {
		if !a.Shape().Equal(b.Shape()) {
			panic(fmt.Sprintf("mse: shape mismatch %v vs %v", a.Shape(), b.Shape()))
		}
		result = ad.newResult(tensor.Shape{}, a.DType())
		switch a.DType() {
		case tensor.Float32:
			result.AsFloat32()[0] = mseScalar(a.AsFloat32(), b.AsFloat32())
		case tensor.Float64:
			result.AsFloat64()[0] = mseScalar(a.AsFloat64(), b.AsFloat64())
		default:
			panic(fmt.Sprintf("mse: unsupported dtype %s", a.DType()))
		}
	}

	if ad.tape.IsRecording() {
		ad.tape.Record(ops.NewMSEOp(a, b, result))
	}
	return result
}

// thresholdKernelBackend is implemented by backends with a fused threshold
// kernel.
type thresholdKernelBackend interface {
	Threshold(x *tensor.RawTensor, cutoff float64) *tensor.RawTensor
}

// Threshold binarizes against a cutoff: x > cutoff becomes 1, else 0.
// Not differentiated; label normalization and prediction binarization run
// outside recording.
func (ad *AutodiffBackend[B]) Threshold(x *tensor.RawTensor, cutoff float64) *tensor.RawTensor {
	if kb, ok := any(ad.inner).(thresholdKernelBackend); ok {
		return kb.Threshold(x, cutoff)
	}

	result := ad.newResult(x.Shape(), x.DType())
	switch x.DType() {
	case tensor.Float32:
		thresholdInto(x.AsFloat32(), result.AsFloat32(), float32(cutoff))
	case tensor.Float64:
		thresholdInto(x.AsFloat64(), result.AsFloat64(), cutoff)
	default:
		panic(fmt.Sprintf("threshold: unsupported dtype %s", x.DType()))
	}
	return result
}

// The operations below are gradient-free: they produce detached results
// (casts, orientation transforms, response maps) or are themselves backward
// kernels. They forward to the wrapped backend without recording.

// Cast converts dtype. Not differentiated.
func (ad *AutodiffBackend[B]) Cast(x *tensor.RawTensor, dtype tensor.DataType) *tensor.RawTensor {
	return ad.inner.Cast(x, dtype)
}

// FlipH mirrors along the width axis. Not differentiated; orientation
// matching runs outside recording.
func (ad *AutodiffBackend[B]) FlipH(x *tensor.RawTensor) *tensor.RawTensor {
	return ad.inner.FlipH(x)
}

// Rot90 rotates by quarter turns. Not differentiated.
func (ad *AutodiffBackend[B]) Rot90(x *tensor.RawTensor, k int) *tensor.RawTensor {
	return ad.inner.Rot90(x, k)
}

// WindowedNCC computes a correlation response map. Not differentiated.
func (ad *AutodiffBackend[B]) WindowedNCC(a, b *tensor.RawTensor, window int) *tensor.RawTensor {
	return ad.inner.WindowedNCC(a, b, window)
}

// Conv2DInputBackward is itself a backward kernel; it is never recorded.
func (ad *AutodiffBackend[B]) Conv2DInputBackward(gradOutput, kernel *tensor.RawTensor, inputShape tensor.Shape, stride, padding int) *tensor.RawTensor {
	return ad.inner.Conv2DInputBackward(gradOutput, kernel, inputShape, stride, padding)
}

// Conv2DKernelBackward is itself a backward kernel; it is never recorded.
func (ad *AutodiffBackend[B]) Conv2DKernelBackward(gradOutput, input *tensor.RawTensor, kernelShape tensor.Shape, stride, padding int) *tensor.RawTensor {
	return ad.inner.Conv2DKernelBackward(gradOutput, input, kernelShape, stride, padding)
}

// MaxPool2DBackward is itself a backward kernel; it is never recorded.
func (ad *AutodiffBackend[B]) MaxPool2DBackward(input, gradOutput *tensor.RawTensor, maxIndices []int, kernelSize, stride int) *tensor.RawTensor {
	return ad.inner.MaxPool2DBackward(input, gradOutput, maxIndices, kernelSize, stride)
}

// GridSampleBackward is itself a backward kernel; it is never recorded.
func (ad *AutodiffBackend[B]) GridSampleBackward(gradOutput, input, field *tensor.RawTensor) (gradInput, gradField *tensor.RawTensor) {
	return ad.inner.GridSampleBackward(gradOutput, input, field)
}

// newResult allocates a zeroed tensor for the fallback kernels.
func (ad *AutodiffBackend[B]) newResult(shape tensor.Shape, dtype tensor.DataType) *tensor.RawTensor {
	r, err := tensor.NewRaw(shape, dtype, ad.Device())
	if err != nil {
		panic(err)
	}
	return r
}

func reluInto[T floatValue](x, out []T) {
	for i, v := range x {
		if v > 0 {
			out[i] = v
		}
	}
}

func mseScalar[T floatValue](a, b []T) T {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return T(sum / float64(len(a)))
}

func thresholdInto[T floatValue](x, out []T, cutoff T) {
	for i, v := range x {
		if v > cutoff {
			out[i] = 1
		}
	}
}
