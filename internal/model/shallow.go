package model

import (
	"fmt"

	"github.com/born-ml/cellwarp/internal/nn"
	"github.com/born-ml/cellwarp/internal/tensor"
)

// Shallow is the three-convolution baseline predictor: conv/ReLU/conv/ReLU/
// conv at a fixed width, full spatial resolution throughout. It trains fast
// and places no divisibility constraint on input size, which makes it the
// default sanity-check model before reaching for the UNet.
//
// State dict keys are the stack indices: "0.weight", "0.bias", "2.weight",
// "2.bias", "4.weight", "4.bias".
type Shallow[B tensor.Backend] struct {
	cfg   Config
	stack *nn.Sequential[B]
}

// NewShallow creates a shallow predictor. Zero config fields take the
// defaults (6 in, 4 out, 16 filters); Depth is ignored.
func NewShallow[B tensor.Backend](cfg Config, backend B) (*Shallow[B], error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	stack := nn.NewSequential[B](
		nn.NewConv2D(cfg.InChannels, cfg.NumFilters, 3, 3, 1, 1, true, backend),
		nn.NewReLU[B](),
		nn.NewConv2D(cfg.NumFilters, cfg.NumFilters, 3, 3, 1, 1, true, backend),
		nn.NewReLU[B](),
		nn.NewConv2D(cfg.NumFilters, cfg.OutChannels, 3, 3, 1, 1, true, backend),
	)

	return &Shallow[B]{cfg: cfg, stack: stack}, nil
}

// Forward predicts the displacement field for a stacked view pair.
//
// Input: [batch, in_channels, height, width]
// Output: [batch, out_channels, height, width].
func (s *Shallow[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return s.stack.Forward(input)
}

// Parameters returns all trainable parameters.
func (s *Shallow[B]) Parameters() []*nn.Parameter[B] {
	return s.stack.Parameters()
}

// StateDict returns the stack's parameters under index-prefixed names.
func (s *Shallow[B]) StateDict() map[string]*tensor.RawTensor {
	return s.stack.StateDict()
}

// LoadStateDict restores the stack's parameters.
func (s *Shallow[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if len(stateDict) == 0 {
		return fmt.Errorf("empty state dict")
	}
	return s.stack.LoadStateDict(stateDict)
}

// InChannels returns the expected input channel count.
func (s *Shallow[B]) InChannels() int {
	return s.cfg.InChannels
}

// OutChannels returns the produced field channel count.
func (s *Shallow[B]) OutChannels() int {
	return s.cfg.OutChannels
}

// String returns a string representation of the model.
func (s *Shallow[B]) String() string {
	return fmt.Sprintf("Shallow(in_channels=%d, out_channels=%d, num_filters=%d)",
		s.cfg.InChannels, s.cfg.OutChannels, s.cfg.NumFilters)
}
