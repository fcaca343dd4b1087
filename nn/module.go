// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/cellwarp/internal/serialization"
	"github.com/born-ml/cellwarp/tensor"
)

// Module is the interface every network component implements, from a
// single Conv2D layer up to a full registration network.
//
// Modules compose. A deformation encoder is a Sequential of layers,
// and the Sequential is itself a Module:
//
//	model := nn.NewSequential[*cpu.CPUBackend](
//	    nn.NewConv2D(6, 16, 3, 3, 1, 1, true, backend),
//	    nn.NewReLU[*cpu.CPUBackend](),
//	    nn.NewConv2D(16, 4, 3, 3, 1, 1, true, backend),
//	)
//
// Type parameter B selects the compute backend.
type Module[B tensor.Backend] interface {
	// Forward computes the module's output for the given input.
	// Image modules expect [batch, channels, height, width].
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns the trainable parameters, including those of
	// nested modules. Parameter-free modules such as activations
	// return an empty slice.
	Parameters() []*Parameter[B]

	// StateDict exports the parameters as a name-to-tensor map for
	// serialization.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict restores parameters from a state dictionary.
	// It fails if a parameter is missing or its shape does not match.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// The internal implementations satisfy this interface structurally;
// no adapter types are needed.

// Save writes a module's state dictionary to a .cwpt file.
//
// Files are written as format v2, so corrupted weights are caught at
// load time by the data checksum.
//
//	err := nn.Save(model, "warp.cwpt", "DiffeoNet", nil)
func Save[B tensor.Backend](module Module[B], path, modelType string, metadata map[string]string) (err error) {
	writer, err := serialization.NewCellwarpWriter(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := writer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return writer.WriteStateDictV2(module.StateDict(), modelType, metadata)
}

// Load reads a .cwpt file into an already constructed module and
// returns the file's header.
//
// The module must have the same architecture the file was saved from;
// Load only fills in parameter values.
//
//	header, err := nn.Load("warp.cwpt", backend, model)
func Load[B tensor.Backend](path string, backend B, module Module[B]) (serialization.Header, error) {
	reader, err := serialization.NewCellwarpReader(path)
	if err != nil {
		return serialization.Header{}, err
	}
	defer func() {
		_ = reader.Close()
	}()

	stateDict, err := reader.ReadStateDict(backend)
	if err != nil {
		return serialization.Header{}, err
	}
	if err := module.LoadStateDict(stateDict); err != nil {
		return serialization.Header{}, err
	}
	return reader.Header(), nil
}
