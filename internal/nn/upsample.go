package nn

import (
	"fmt"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// Upsample2D is a nearest-neighbor 2D upsampling layer.
//
// Each input pixel is repeated scale times along both spatial axes. The
// decoder half of the field predictors doubles spatial resolution at each
// stage to mirror the MaxPool2D stages on the encoder side. Like MaxPool2D,
// Upsample2D has no learnable parameters.
//
// Input shape:  [batch, channels, height, width]
// Output shape: [batch, channels, height*scale, width*scale]
//
// Example:
//
//	// Double spatial resolution
//	up := nn.NewUpsample2D(2, backend)
//
//	// Forward pass
//	input := tensor.Randn[float32](tensor.Shape{4, 32, 16, 16}, backend)
//	output := up.Forward(input) // [4, 32, 32, 32]
type Upsample2D[B tensor.Backend] struct {
	scale   int
	backend B
}

// NewUpsample2D creates a new nearest-neighbor upsampling layer.
//
// Parameters:
//   - scale: Integer upsampling factor (2 doubles height and width)
//   - backend: Backend for computation
func NewUpsample2D[B tensor.Backend](scale int, backend B) *Upsample2D[B] {
	if scale <= 0 {
		panic(fmt.Sprintf("upsample2d: invalid scale %d", scale))
	}

	return &Upsample2D[B]{
		scale:   scale,
		backend: backend,
	}
}

// Forward performs the forward pass.
//
// Input: [batch, channels, height, width]
// Output: [batch, channels, height*scale, width*scale].
func (u *Upsample2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if rank := len(input.Shape()); rank != 4 {
		panic(fmt.Sprintf("upsample2d: expected 4D input [N,C,H,W], got %dD", rank))
	}
	scaled := u.backend.Upsample2D(input.Raw(), u.scale)
	return tensor.New[float32, B](scaled, u.backend)
}

// Parameters returns all trainable parameters (empty for Upsample2D).
func (u *Upsample2D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{}
}

// StateDict returns an empty map (Upsample2D has no state).
func (u *Upsample2D[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict is a no-op for Upsample2D.
func (u *Upsample2D[B]) LoadStateDict(_ map[string]*tensor.RawTensor) error {
	return nil
}

// String returns a string representation of the layer.
func (u *Upsample2D[B]) String() string {
	return fmt.Sprintf("Upsample2D(scale=%d)", u.scale)
}

// Scale returns the upsampling factor.
func (u *Upsample2D[B]) Scale() int {
	return u.scale
}

// ComputeOutputSize computes output spatial dimensions for given input size.
//
// Returns: [out_height, out_width].
func (u *Upsample2D[B]) ComputeOutputSize(inputH, inputW int) [2]int {
	return [2]int{inputH * u.scale, inputW * u.scale}
}
