// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package loader provides the public API for importing predictor weights.
//
// This package wraps the internal loader implementation and exports a clean
// public API for reading SafeTensors weight exports and canonicalizing their
// names for the bundled predictor models.
//
// Example usage:
//
//	import (
//	    "github.com/born-ml/cellwarp/backend/cpu"
//	    "github.com/born-ml/cellwarp/loader"
//	)
//
//	// Open an export with architecture auto-detection
//	model, err := loader.OpenModel("exports/predictor.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer model.Close()
//
//	// Get model information
//	fmt.Printf("Format: %s\n", model.Format())
//	fmt.Printf("Architecture: %s\n", model.Architecture())
//
//	// Load the full state dict under cellwarp names
//	backend := cpu.New()
//	stateDict, err := model.StateDict(backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
package loader

import (
	"github.com/born-ml/cellwarp/internal/loader"
)

// ModelFormat represents the weight file format.
type ModelFormat = loader.ModelFormat

// Supported weight formats.
const (
	FormatUnknown     ModelFormat = loader.FormatUnknown
	FormatSafeTensors ModelFormat = loader.FormatSafeTensors
)

// Architecture names. These match the model registry identifiers.
const (
	ArchitectureUNet    = loader.ArchitectureUNet
	ArchitectureShallow = loader.ArchitectureShallow
)

// ModelReader provides a unified interface for importing predictor weights.
// It abstracts away the underlying file format and provides consistent access
// to the exported tensors.
//
// Note: This is a type alias because the LoadTensor method signature references
// internal tensor types that cannot be abstracted without a wrapper layer.
type ModelReader = loader.ModelReader

// OpenModel opens an exported weight file and auto-detects the format.
//
// Supported formats:
//   - .safetensors (the interchange format PyTorch exports to)
//
// The function automatically detects the predictor architecture
// (unet, shallow) from the exported weight names.
//
// Example:
//
//	model, err := loader.OpenModel("exports/predictor.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer model.Close()
//
//	fmt.Printf("Format: %s\n", model.Format())              // "SafeTensors"
//	fmt.Printf("Architecture: %s\n", model.Architecture())  // "unet"
//
//	// List all tensors as exported
//	for _, name := range model.TensorNames() {
//	    fmt.Println(name)
//	}
func OpenModel(path string) (ModelReader, error) {
	return loader.OpenModel(path)
}

// WeightMapper maps externally exported weight names to cellwarp names.
// Different exports wrap and name the same predictor differently; this
// interface provides a way to normalize weight names.
type WeightMapper interface {
	// MapName converts an exported weight name to the cellwarp name.
	// An empty mapped name with a nil error means the entry should be
	// skipped.
	MapName(name string) (string, error)

	// Architecture returns the model registry name (e.g., "unet", "shallow").
	Architecture() string
}

// NewUNetMapper creates a weight mapper for UNet predictor exports.
func NewUNetMapper() WeightMapper {
	return loader.NewUNetMapper()
}

// NewShallowMapper creates a weight mapper for shallow predictor exports.
func NewShallowMapper() WeightMapper {
	return loader.NewShallowMapper()
}

// DetectArchitecture attempts to detect the predictor architecture from
// weight names. Returns "unet" or "shallow".
func DetectArchitecture(names []string) string {
	return loader.DetectArchitecture(names)
}
