// Package model bundles the warp predictor architectures and the registry
// they are selected from.
//
// A WarpPredictor maps the stacked [annotated, unannotated] views (6
// channels) to a displacement field (4 channels: forward field in channels
// 0-1, reverse field in 2-3). The registry makes the available
// architectures explicit: construction goes through Registry.New with a
// model name, and an unknown name fails fast listing the registered
// alternatives. Nothing registers itself through package init; callers
// hold the registry they build from.
package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/born-ml/cellwarp/internal/nn"
	"github.com/born-ml/cellwarp/internal/tensor"
)

// Names of the bundled predictors.
const (
	UNetName    = "unet"
	ShallowName = "shallow"
)

// ErrUnknownModel is returned when a model name has no registered builder.
var ErrUnknownModel = errors.New("unknown model")

// WarpPredictor is the module contract the registration pipeline drives.
//
// Forward takes the channel-stacked view pair and returns the displacement
// field prediction at the same spatial resolution.
type WarpPredictor[B tensor.Backend] interface {
	nn.Module[B]

	// InChannels returns the input channel count the predictor expects
	// (two stacked views).
	InChannels() int

	// OutChannels returns the field channel count the predictor produces
	// (forward + reverse displacement).
	OutChannels() int
}

// Config sizes a predictor. Zero values select the defaults.
type Config struct {
	InChannels  int // stacked input channels (default: 6)
	OutChannels int // displacement field channels (default: 4)
	NumFilters  int // width of the first encoder level (default: 16)
	Depth       int // UNet encoder levels (default: 4)
}

// withDefaults fills zero fields with the default sizing.
func (c Config) withDefaults() Config {
	if c.InChannels == 0 {
		c.InChannels = 6
	}
	if c.OutChannels == 0 {
		c.OutChannels = 4
	}
	if c.NumFilters == 0 {
		c.NumFilters = 16
	}
	if c.Depth == 0 {
		c.Depth = 4
	}
	return c
}

// validate rejects configs no predictor can be built from.
func (c Config) validate() error {
	if c.InChannels < 1 || c.OutChannels < 1 {
		return fmt.Errorf("model: invalid channels in=%d, out=%d", c.InChannels, c.OutChannels)
	}
	if c.NumFilters < 1 {
		return fmt.Errorf("model: invalid filter count %d", c.NumFilters)
	}
	if c.Depth < 1 {
		return fmt.Errorf("model: invalid depth %d", c.Depth)
	}
	return nil
}

// Builder constructs a predictor from a config.
type Builder[B tensor.Backend] func(cfg Config, backend B) (WarpPredictor[B], error)

// Registry maps model names to builders. The zero value is unusable; use
// NewRegistry, which comes with the bundled predictors registered.
type Registry[B tensor.Backend] struct {
	builders map[string]Builder[B]
	names    []string // registration order, for error listings
}

// NewRegistry creates a registry with the bundled predictors registered.
func NewRegistry[B tensor.Backend]() *Registry[B] {
	r := &Registry[B]{builders: make(map[string]Builder[B])}

	// Registering the bundled architectures cannot fail on a fresh registry.
	_ = r.Register(UNetName, func(cfg Config, backend B) (WarpPredictor[B], error) {
		return NewUNet(cfg, backend)
	})
	_ = r.Register(ShallowName, func(cfg Config, backend B) (WarpPredictor[B], error) {
		return NewShallow(cfg, backend)
	})

	return r
}

// Register adds a builder under a name.
func (r *Registry[B]) Register(name string, builder Builder[B]) error {
	if name == "" {
		return errors.New("model: empty model name")
	}
	if builder == nil {
		return fmt.Errorf("model: nil builder for %q", name)
	}
	if _, exists := r.builders[name]; exists {
		return fmt.Errorf("model: %q already registered", name)
	}

	r.builders[name] = builder
	r.names = append(r.names, name)
	return nil
}

// Names returns the registered model names in registration order.
func (r *Registry[B]) Names() []string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

// New builds the named predictor.
func (r *Registry[B]) New(name string, cfg Config, backend B) (WarpPredictor[B], error) {
	builder, ok := r.builders[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %s)",
			ErrUnknownModel, name, strings.Join(r.names, ", "))
	}
	return builder(cfg, backend)
}

// subDict extracts the state dict entries under a prefix, prefix removed.
func subDict(stateDict map[string]*tensor.RawTensor, prefix string) map[string]*tensor.RawTensor {
	sub := make(map[string]*tensor.RawTensor)
	for key, raw := range stateDict {
		if strings.HasPrefix(key, prefix) {
			sub[key[len(prefix):]] = raw
		}
	}
	return sub
}
