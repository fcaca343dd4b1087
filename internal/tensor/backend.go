package tensor

// Backend executes tensor operations on RawTensors. Two implementations
// exist: the CPU backend, which runs kernels in parallel across cores,
// and the autodiff decorator, which wraps another backend and records
// every call onto a gradient tape.
//
// All [N,C,H,W] operations expect float32 or float64 storage unless
// noted otherwise.
type Backend interface {
	// Element-wise arithmetic with NumPy-style broadcasting.
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Convolution and pooling over [N,C,H,W] tensors.
	Conv2D(input, kernel *RawTensor, stride, padding int) *RawTensor
	MaxPool2D(input *RawTensor, kernelSize, stride int) *RawTensor

	// Conv2D and MaxPool2D gradients. Declared on the backend so the autodiff
	// layer can route backward passes without reimplementing the kernels.
	Conv2DInputBackward(gradOutput, kernel *RawTensor, inputShape Shape, stride, padding int) *RawTensor
	Conv2DKernelBackward(gradOutput, input *RawTensor, kernelShape Shape, stride, padding int) *RawTensor
	MaxPool2DBackward(input, gradOutput *RawTensor, maxIndices []int, kernelSize, stride int) *RawTensor

	// Upsample2D performs nearest-neighbor upsampling by an integer scale
	// factor on [N,C,H,W] tensors.
	Upsample2D(input *RawTensor, scale int) *RawTensor

	// GridSample warps input [N,C,H,W] by a dense displacement field
	// [N,2,H,W] (dy, dx in pixels) using bilinear interpolation with
	// clamp-to-edge handling of out-of-bounds coordinates.
	GridSample(input, field *RawTensor) *RawTensor

	// GridSampleBackward computes gradients of GridSample with respect to
	// both the sampled input and the displacement field.
	GridSampleBackward(gradOutput, input, field *RawTensor) (gradInput, gradField *RawTensor)

	// Planar symmetry operations on [N,C,H,W] tensors.
	FlipH(x *RawTensor) *RawTensor        // mirror along the width axis
	Rot90(x *RawTensor, k int) *RawTensor // rotate k quarter turns counter-clockwise

	// WindowedNCC computes a windowed normalized cross-correlation response
	// map between two [N,C,H,W] tensors. The result is [N,1,H,W].
	WindowedNCC(a, b *RawTensor, window int) *RawTensor

	// Reshape reinterprets the storage under a new shape with the same
	// element count.
	Reshape(t *RawTensor, newShape Shape) *RawTensor

	// Broadcast arithmetic against a single untyped scalar.
	MulScalar(x *RawTensor, scalar any) *RawTensor
	AddScalar(x *RawTensor, scalar any) *RawTensor
	SubScalar(x *RawTensor, scalar any) *RawTensor
	DivScalar(x *RawTensor, scalar any) *RawTensor

	// Reductions along one dimension, optionally keeping it with size 1.
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor
	MeanDim(x *RawTensor, dim int, keepDim bool) *RawTensor

	// Layout manipulation. Negative dims count from the back.
	Cat(tensors []*RawTensor, dim int) *RawTensor
	Chunk(x *RawTensor, n, dim int) []*RawTensor
	Unsqueeze(x *RawTensor, dim int) *RawTensor
	Squeeze(x *RawTensor, dim int) *RawTensor

	// Cast converts element types, truncating on narrowing conversions.
	Cast(x *RawTensor, dtype DataType) *RawTensor

	Name() string
	Device() Device
}
