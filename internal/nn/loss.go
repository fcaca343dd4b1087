package nn

import (
	"github.com/born-ml/cellwarp/internal/tensor"
)

// mseBackend is implemented by backends with a fused MSE kernel.
//
// The autodiff decorator records the fused op on its tape, so cyclic losses
// built from several MSELoss terms stay differentiable end to end.
type mseBackend interface {
	MSE(a, b *tensor.RawTensor) *tensor.RawTensor
}

// MSELoss computes Mean Squared Error loss.
//
// Loss = mean((predictions - targets)²)
//
// This is the similarity term of cyclic registration training: the warped
// moving image against the fixed one, and the round-trip image against
// the original.
//
// Example:
//
//	mse := nn.NewMSELoss(backend)
//	warped := warper.Apply(moving, field)
//	loss := mse.Forward(warped, fixed)
type MSELoss[B tensor.Backend] struct {
	backend B
}

// NewMSELoss creates a new MSE loss function.
func NewMSELoss[B tensor.Backend](backend B) *MSELoss[B] {
	return &MSELoss[B]{
		backend: backend,
	}
}

// Forward computes the MSE loss.
//
// Loss = mean((predictions - targets)²)
//
// Parameters:
//   - predictions: Model predictions with shape [batch_size, ...]
//   - targets: Ground truth targets with same shape as predictions
//
// Returns a scalar loss tensor (empty shape).
func (m *MSELoss[B]) Forward(predictions, targets *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	// Validate shapes match
	if !predictions.Shape().Equal(targets.Shape()) {
		panic("MSELoss: predictions and targets must have the same shape")
	}

	// Fused kernel when the backend provides one
	if mb, ok := any(m.backend).(mseBackend); ok {
		return tensor.New[float32, B](mb.MSE(predictions.Raw(), targets.Raw()), m.backend)
	}

	// Composed fallback. Every step is a backend op, so the loss stays
	// differentiable on backends without the fused kernel.
	n := predictions.NumElements()
	diff := predictions.Sub(targets)
	squared := diff.Mul(diff)
	return squared.Reshape(n).SumDim(0, false).DivScalar(float32(n))
}

// Parameters returns an empty slice (loss functions have no trainable parameters).
func (m *MSELoss[B]) Parameters() []*Parameter[B] {
	return nil
}
