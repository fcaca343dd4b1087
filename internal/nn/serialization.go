package nn

import (
	"github.com/born-ml/cellwarp/internal/serialization"
	"github.com/born-ml/cellwarp/internal/tensor"
)

// Save writes a module's state dictionary to a .cwpt file as format v2.
// The modelType string is recorded in the header so tools can identify
// the architecture without loading weights.
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

// Load reads a .cwpt file into module and returns the file's header.
// The module must already have the architecture the file was saved
// from; Load only fills in parameter values.
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
