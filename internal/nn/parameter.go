package nn

import (
	"fmt"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// Parameter is a named trainable tensor together with its gradient slot.
// Layers expose their weights as parameters so optimizers and checkpoint
// code can walk a model without knowing its structure.
type Parameter[B tensor.Backend] struct {
	name   string
	tensor *tensor.Tensor[float32, B]
	grad   *tensor.Tensor[float32, B]
}

// NewParameter wraps an initialized tensor as a trainable parameter. The
// gradient slot stays nil until a backward pass fills it.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{name: name, tensor: t}
}

// Name returns the parameter name (e.g. "conv2d.weight").
func (p *Parameter[B]) Name() string { return p.name }

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] { return p.tensor }

// Grad returns the gradient, or nil before the first backward pass.
func (p *Parameter[B]) Grad() *tensor.Tensor[float32, B] { return p.grad }

// SetGrad stores the gradient computed for this parameter.
func (p *Parameter[B]) SetGrad(grad *tensor.Tensor[float32, B]) { p.grad = grad }

// ZeroGrad drops the stored gradient ahead of the next iteration.
func (p *Parameter[B]) ZeroGrad() { p.grad = nil }

// LoadFrom copies raw values into the parameter after checking that shape
// and dtype line up. The parameter's own storage is reused, so tensors the
// optimizer already tracks keep their identity.
func (p *Parameter[B]) LoadFrom(raw *tensor.RawTensor) error {
	want := p.tensor.Shape()
	if !raw.Shape().Equal(want) {
		return fmt.Errorf("%s: shape mismatch: expected %v, got %v", p.name, want, raw.Shape())
	}
	if raw.DType() != tensor.Float32 {
		return fmt.Errorf("%s: dtype mismatch: expected float32, got %v", p.name, raw.DType())
	}
	copy(p.tensor.Data(), raw.AsFloat32())
	return nil
}
