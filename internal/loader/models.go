package loader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// ModelFormat represents the weight file format.
type ModelFormat int

// Supported weight formats.
const (
	FormatUnknown ModelFormat = iota
	FormatSafeTensors
)

// String returns the format name.
func (f ModelFormat) String() string {
	if f == FormatSafeTensors {
		return "SafeTensors"
	}
	return "Unknown"
}

// ModelReader is an opened weight export.
type ModelReader interface {
	// Close closes the underlying file.
	Close() error

	// Format returns the weight file format.
	Format() ModelFormat

	// Architecture returns the detected architecture (unet, shallow).
	Architecture() string

	// Metadata returns export metadata.
	Metadata() map[string]string

	// TensorNames returns all tensor names in the file, as exported.
	TensorNames() []string

	// LoadTensor loads a tensor by its exported name.
	LoadTensor(name string, backend tensor.Backend) (*tensor.RawTensor, error)

	// ReadTensorData reads raw tensor bytes (for custom conversion).
	ReadTensorData(name string) ([]byte, error)

	// StateDict loads every weight and returns it under its cellwarp name,
	// ready for Module.LoadStateDict. Bookkeeping buffers are skipped.
	StateDict(backend tensor.Backend) (map[string]*tensor.RawTensor, error)
}

// safeTensorsModel pairs a SafeTensorsReader with the name mapper for the
// architecture its weights describe.
type safeTensorsModel struct {
	reader       *SafeTensorsReader
	architecture string
	mapper       WeightMapper
}

func (m *safeTensorsModel) Format() ModelFormat { return FormatSafeTensors }

func (m *safeTensorsModel) Architecture() string { return m.architecture }

func (m *safeTensorsModel) Metadata() map[string]string { return m.reader.Metadata() }

func (m *safeTensorsModel) TensorNames() []string { return m.reader.TensorNames() }

func (m *safeTensorsModel) Close() error { return m.reader.Close() }

func (m *safeTensorsModel) LoadTensor(name string, backend tensor.Backend) (*tensor.RawTensor, error) {
	return m.reader.LoadTensor(name, backend)
}

func (m *safeTensorsModel) ReadTensorData(name string) ([]byte, error) {
	return m.reader.ReadTensorData(name)
}

// StateDict loads every weight under its cellwarp name. Two exported names
// canonicalizing to the same cellwarp name is an error rather than a silent
// overwrite.
func (m *safeTensorsModel) StateDict(backend tensor.Backend) (map[string]*tensor.RawTensor, error) {
	names := m.reader.TensorNames()
	stateDict := make(map[string]*tensor.RawTensor, len(names))

	for _, name := range names {
		mapped, err := m.mapper.MapName(name)
		if err != nil {
			return nil, fmt.Errorf("map weight %s: %w", name, err)
		}
		if mapped == "" {
			continue // bookkeeping buffer, not a model weight
		}
		if _, taken := stateDict[mapped]; taken {
			return nil, fmt.Errorf("weight name collision: %s also maps to %s", name, mapped)
		}

		raw, err := m.reader.LoadTensor(name, backend)
		if err != nil {
			return nil, fmt.Errorf("load weight %s: %w", name, err)
		}
		stateDict[mapped] = raw
	}

	return stateDict, nil
}

// OpenModel opens an exported weight file and auto-detects the format.
// SafeTensors is the only supported interchange format; cellwarp's own
// checkpoints use the .cwpt container instead.
//
// Example:
//
//	model, err := loader.OpenModel("exports/predictor.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer model.Close()
//
//	fmt.Printf("Format: %s\n", model.Format())
//	fmt.Printf("Architecture: %s\n", model.Architecture())
func OpenModel(path string) (ModelReader, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".safetensors":
		return openSafeTensors(path)
	default:
		return nil, fmt.Errorf("unsupported weight format %q (expected .safetensors)", ext)
	}
}

// openSafeTensors opens a SafeTensors file and picks the mapper matching the
// architecture its weight names suggest.
func openSafeTensors(path string) (ModelReader, error) {
	reader, err := NewSafeTensorsReader(path)
	if err != nil {
		return nil, err
	}

	arch := DetectArchitecture(reader.TensorNames())
	return &safeTensorsModel{
		reader:       reader,
		architecture: arch,
		mapper:       GetMapper(arch),
	}, nil
}
