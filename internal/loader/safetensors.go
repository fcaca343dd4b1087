package loader

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// A SafeTensors file is a little-endian uint64 header length, a JSON header
// describing dtype, shape and byte range per tensor, and a flat data section.
// Offsets in the header are relative to the start of the data section.

// maxHeaderBytes bounds the JSON header so a corrupt length prefix cannot
// trigger a huge allocation.
const maxHeaderBytes = 100 << 20

// SafeTensorsDType names a dtype as it appears in the JSON header.
type SafeTensorsDType string

// Dtypes understood by the reader.
const (
	SafeTensorsF16  SafeTensorsDType = "F16"
	SafeTensorsF32  SafeTensorsDType = "F32"
	SafeTensorsF64  SafeTensorsDType = "F64"
	SafeTensorsBF16 SafeTensorsDType = "BF16"
	SafeTensorsI32  SafeTensorsDType = "I32"
	SafeTensorsI64  SafeTensorsDType = "I64"
	SafeTensorsU8   SafeTensorsDType = "U8"
	SafeTensorsBool SafeTensorsDType = "BOOL"
)

// nativeDataType maps header dtypes onto tensor dtypes. Half-precision
// entries are absent on purpose: those widen to Float32 on load.
var nativeDataType = map[SafeTensorsDType]tensor.DataType{
	SafeTensorsF32:  tensor.Float32,
	SafeTensorsF64:  tensor.Float64,
	SafeTensorsI32:  tensor.Int32,
	SafeTensorsI64:  tensor.Int64,
	SafeTensorsU8:   tensor.Uint8,
	SafeTensorsBool: tensor.Bool,
}

// SafeTensorInfo is one tensor's header entry.
type SafeTensorInfo struct {
	DType       SafeTensorsDType `json:"dtype"`
	Shape       []int            `json:"shape"`
	DataOffsets [2]int64         `json:"data_offsets"` // [start, end) relative to the data section
}

// SafeTensorsReader reads tensors out of a SafeTensors file.
type SafeTensorsReader struct {
	file      *os.File
	meta      map[string]string
	tensors   map[string]SafeTensorInfo
	dataStart int64
	dataSize  int64
}

// NewSafeTensorsReader opens path and parses its header. Every tensor's byte
// range is checked against the file size up front, so later reads only fail
// on I/O errors.
func NewSafeTensorsReader(path string) (*SafeTensorsReader, error) {
	file, err := os.Open(path) //nolint:gosec // G304: weight paths come from the caller
	if err != nil {
		return nil, fmt.Errorf("open weights: %w", err)
	}

	reader, err := readSafeTensorsLayout(file)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reader, nil
}

func readSafeTensorsLayout(file *os.File) (*SafeTensorsReader, error) {
	var prefix [8]byte
	if _, err := io.ReadFull(file, prefix[:]); err != nil {
		return nil, fmt.Errorf("read header length: %w", err)
	}
	headerLen := binary.LittleEndian.Uint64(prefix[:])
	if headerLen > maxHeaderBytes {
		return nil, fmt.Errorf("header length %d exceeds the %d byte limit", headerLen, maxHeaderBytes)
	}

	headerJSON := make([]byte, headerLen)
	if _, err := io.ReadFull(file, headerJSON); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	meta, tensors, err := decodeHeader(headerJSON)
	if err != nil {
		return nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat weights: %w", err)
	}
	dataStart := int64(8) + int64(headerLen) //nolint:gosec // G115: bounded by maxHeaderBytes
	dataSize := stat.Size() - dataStart

	for name, info := range tensors {
		start, end := info.DataOffsets[0], info.DataOffsets[1]
		if start < 0 || end < start || end > dataSize {
			return nil, fmt.Errorf("tensor %s: byte range [%d, %d) outside the %d byte data section",
				name, start, end, dataSize)
		}
	}

	return &SafeTensorsReader{
		file:      file,
		meta:      meta,
		tensors:   tensors,
		dataStart: dataStart,
		dataSize:  dataSize,
	}, nil
}

// decodeHeader splits the JSON header into metadata and tensor entries. The
// header is a flat object in which "__metadata__" is the only non-tensor key.
func decodeHeader(headerJSON []byte) (map[string]string, map[string]SafeTensorInfo, error) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(headerJSON, &entries); err != nil {
		return nil, nil, fmt.Errorf("parse header: %w", err)
	}

	meta := map[string]string{}
	tensors := make(map[string]SafeTensorInfo, len(entries))
	for key, value := range entries {
		if key == "__metadata__" {
			if err := json.Unmarshal(value, &meta); err != nil {
				return nil, nil, fmt.Errorf("parse metadata: %w", err)
			}
			continue
		}
		var info SafeTensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return nil, nil, fmt.Errorf("parse tensor %s: %w", key, err)
		}
		tensors[key] = info
	}
	return meta, tensors, nil
}

// Close closes the underlying file.
func (r *SafeTensorsReader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// Metadata returns the "__metadata__" entries, or an empty map.
func (r *SafeTensorsReader) Metadata() map[string]string {
	return r.meta
}

// TensorNames returns all tensor names in sorted order.
func (r *SafeTensorsReader) TensorNames() []string {
	names := make([]string, 0, len(r.tensors))
	for name := range r.tensors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// TensorInfo returns the header entry for name.
func (r *SafeTensorsReader) TensorInfo(name string) (*SafeTensorInfo, error) {
	info, ok := r.tensors[name]
	if !ok {
		return nil, fmt.Errorf("tensor %s not found", name)
	}
	return &info, nil
}

// ReadTensorData returns the raw bytes of one tensor.
func (r *SafeTensorsReader) ReadTensorData(name string) ([]byte, error) {
	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	data := make([]byte, info.DataOffsets[1]-info.DataOffsets[0])
	if _, err := r.file.ReadAt(data, r.dataStart+info.DataOffsets[0]); err != nil {
		return nil, fmt.Errorf("read tensor %s: %w", name, err)
	}
	return data, nil
}

// LoadTensor reads one tensor into a RawTensor on the backend's device.
// F16 and BF16 payloads widen to Float32; every other dtype is kept.
func (r *SafeTensorsReader) LoadTensor(name string, backend tensor.Backend) (*tensor.RawTensor, error) {
	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	shape := tensor.Shape(info.Shape)
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("tensor %s: invalid shape: %w", name, err)
	}
	data, err := r.ReadTensorData(name)
	if err != nil {
		return nil, err
	}

	if info.DType == SafeTensorsF16 || info.DType == SafeTensorsBF16 {
		return widenHalf(name, info.DType, shape, data, backend)
	}

	dtype, ok := nativeDataType[info.DType]
	if !ok {
		return nil, fmt.Errorf("tensor %s: unsupported dtype %s", name, info.DType)
	}
	if want := shape.NumElements() * dtype.Size(); len(data) != want {
		return nil, fmt.Errorf("tensor %s: %d data bytes for shape %v (%s needs %d)",
			name, len(data), shape, dtype, want)
	}

	raw, err := tensor.NewRaw(shape, dtype, backend.Device())
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	copy(raw.Data(), data)
	return raw, nil
}
