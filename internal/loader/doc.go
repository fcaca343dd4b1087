// Package loader imports externally trained warp predictor weights.
//
// Registration experiments often train the predictor elsewhere first and
// bring the weights over for inference. This package reads the SafeTensors
// files such exports produce and canonicalizes the weight names so they
// load straight into a registry model:
//   - SafeTensors: the interchange format PyTorch exports to
//   - Name mapping: wrapper prefixes stripped, block aliases resolved,
//     normalization bookkeeping buffers skipped
//
// Supported predictor architectures:
//   - unet: encoder/decoder with skip connections
//   - shallow: three-layer convolutional baseline
//
// Example:
//
//	// Auto-detect architecture and load weights
//	model, err := loader.OpenModel("exports/predictor.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer model.Close()
//
//	// Load the full state dict under cellwarp names
//	stateDict, err := model.StateDict(backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = net.LoadStateDict(stateDict)
//
// Design principles:
//   - Pure Go: No CGO dependencies
//   - Lazy loading: Load tensors on-demand
//   - Names canonicalized here, shapes validated by the model on load
package loader
