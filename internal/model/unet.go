package model

import (
	"fmt"
	"strings"

	"github.com/born-ml/cellwarp/internal/nn"
	"github.com/born-ml/cellwarp/internal/tensor"
)

// UNet predicts the displacement field with an encoder/decoder and skip
// connections.
//
// Layout for depth D and first-level width F:
//   - encoder: D conv blocks at widths F, 2F, ..., F*2^(D-1), each followed
//     by 2x2 max pooling
//   - bottleneck: one conv block at width F*2^D
//   - decoder: D conv blocks; each stage upsamples 2x (nearest), concatenates
//     the matching encoder output along channels, and convolves back down to
//     that encoder width
//   - head: 1x1 convolution to the field channels
//
// Each conv block is Conv(3x3, pad 1) / ReLU / Conv(3x3, pad 1) / ReLU, so
// spatial size only changes at the pool and upsample stages. Input spatial
// dims must be divisible by 2^D.
//
// State dict keys follow the block layout: "enc.{level}.{idx}.{param}",
// "bottleneck.{idx}.{param}", "dec.{level}.{idx}.{param}" (dec.0 is the
// deepest stage, applied first) and "head.{param}".
type UNet[B tensor.Backend] struct {
	cfg Config

	enc        []*nn.Sequential[B]
	pool       *nn.MaxPool2D[B]
	bottleneck *nn.Sequential[B]
	up         *nn.Upsample2D[B]
	dec        []*nn.Sequential[B]
	head       *nn.Conv2D[B]
}

// NewUNet creates a UNet predictor. Zero config fields take the defaults
// (6 in, 4 out, 16 filters, depth 4).
func NewUNet[B tensor.Backend](cfg Config, backend B) (*UNet[B], error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	enc := make([]*nn.Sequential[B], cfg.Depth)
	in := cfg.InChannels
	width := cfg.NumFilters
	for l := range enc {
		enc[l] = convBlock(in, width, backend)
		in = width
		width *= 2
	}

	// in is now the deepest encoder width, width twice that
	bottleneck := convBlock(in, width, backend)

	dec := make([]*nn.Sequential[B], cfg.Depth)
	carried := width // channels arriving at each decoder stage
	for l := range dec {
		skip := cfg.NumFilters << (cfg.Depth - 1 - l)
		dec[l] = convBlock(carried+skip, skip, backend)
		carried = skip
	}

	return &UNet[B]{
		cfg:        cfg,
		enc:        enc,
		pool:       nn.NewMaxPool2D(2, 2, backend),
		bottleneck: bottleneck,
		up:         nn.NewUpsample2D(2, backend),
		dec:        dec,
		head:       nn.NewConv2D(cfg.NumFilters, cfg.OutChannels, 1, 1, 1, 0, true, backend),
	}, nil
}

// convBlock is Conv(3x3, pad 1) / ReLU / Conv(3x3, pad 1) / ReLU.
func convBlock[B tensor.Backend](in, out int, backend B) *nn.Sequential[B] {
	return nn.NewSequential[B](
		nn.NewConv2D(in, out, 3, 3, 1, 1, true, backend),
		nn.NewReLU[B](),
		nn.NewConv2D(out, out, 3, 3, 1, 1, true, backend),
		nn.NewReLU[B](),
	)
}

// Forward predicts the displacement field for a stacked view pair.
//
// Input: [batch, in_channels, height, width]
// Output: [batch, out_channels, height, width].
func (u *UNet[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("unet: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	factor := 1 << u.cfg.Depth
	if shape[2]%factor != 0 || shape[3]%factor != 0 {
		panic(fmt.Sprintf("unet: spatial dims %dx%d must be divisible by %d (depth %d)",
			shape[2], shape[3], factor, u.cfg.Depth))
	}

	skips := make([]*tensor.Tensor[float32, B], len(u.enc))
	h := input
	for l, block := range u.enc {
		h = block.Forward(h)
		skips[l] = h
		h = u.pool.Forward(h)
	}

	h = u.bottleneck.Forward(h)

	for l, block := range u.dec {
		h = u.up.Forward(h)
		skip := skips[len(skips)-1-l]
		h = tensor.Cat([]*tensor.Tensor[float32, B]{h, skip}, 1)
		h = block.Forward(h)
	}

	return u.head.Forward(h)
}

// Parameters returns all trainable parameters, encoder first, head last.
func (u *UNet[B]) Parameters() []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, block := range u.enc {
		params = append(params, block.Parameters()...)
	}
	params = append(params, u.bottleneck.Parameters()...)
	for _, block := range u.dec {
		params = append(params, block.Parameters()...)
	}
	return append(params, u.head.Parameters()...)
}

// StateDict returns all parameters under block-prefixed names.
func (u *UNet[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for l, block := range u.enc {
		for name, raw := range block.StateDict() {
			stateDict[fmt.Sprintf("enc.%d.%s", l, name)] = raw
		}
	}
	for name, raw := range u.bottleneck.StateDict() {
		stateDict["bottleneck."+name] = raw
	}
	for l, block := range u.dec {
		for name, raw := range block.StateDict() {
			stateDict[fmt.Sprintf("dec.%d.%s", l, name)] = raw
		}
	}
	for name, raw := range u.head.StateDict() {
		stateDict["head."+name] = raw
	}
	return stateDict
}

// LoadStateDict restores all parameters from block-prefixed names.
// Every block must be present; shapes are validated by the layers.
func (u *UNet[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for l, block := range u.enc {
		prefix := fmt.Sprintf("enc.%d.", l)
		if err := loadBlock(block, stateDict, prefix); err != nil {
			return err
		}
	}
	if err := loadBlock(u.bottleneck, stateDict, "bottleneck."); err != nil {
		return err
	}
	for l, block := range u.dec {
		prefix := fmt.Sprintf("dec.%d.", l)
		if err := loadBlock(block, stateDict, prefix); err != nil {
			return err
		}
	}
	return loadBlock(u.head, stateDict, "head.")
}

// loadBlock delegates a prefixed slice of the state dict to a submodule.
// An empty slice means the checkpoint is missing the whole block, which
// Sequential would otherwise skip silently.
func loadBlock[B tensor.Backend](block nn.Module[B], stateDict map[string]*tensor.RawTensor, prefix string) error {
	sub := subDict(stateDict, prefix)
	if len(sub) == 0 {
		return fmt.Errorf("missing %s* entries in state dict", prefix)
	}
	if err := block.LoadStateDict(sub); err != nil {
		return fmt.Errorf("failed to load %s: %w", strings.TrimSuffix(prefix, "."), err)
	}
	return nil
}

// InChannels returns the expected input channel count.
func (u *UNet[B]) InChannels() int {
	return u.cfg.InChannels
}

// OutChannels returns the produced field channel count.
func (u *UNet[B]) OutChannels() int {
	return u.cfg.OutChannels
}

// Depth returns the number of encoder levels.
func (u *UNet[B]) Depth() int {
	return u.cfg.Depth
}

// String returns a string representation of the model.
func (u *UNet[B]) String() string {
	return fmt.Sprintf("UNet(in_channels=%d, out_channels=%d, num_filters=%d, depth=%d)",
		u.cfg.InChannels, u.cfg.OutChannels, u.cfg.NumFilters, u.cfg.Depth)
}
