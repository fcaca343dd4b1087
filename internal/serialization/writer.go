package serialization

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/born-ml/cellwarp/internal/tensor"
)

const cellwarpVersion = "0.1.0"

var errWriterClosed = errors.New("writer is closed")

// CellwarpWriter writes checkpoints in .cwpt format.
type CellwarpWriter struct {
	file   *os.File
	closed bool
}

// NewCellwarpWriter creates a new .cwpt file writer.
func NewCellwarpWriter(path string) (*CellwarpWriter, error) {
	//nolint:gosec // G304: the caller picks the checkpoint path
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return &CellwarpWriter{file: file}, nil
}

// WriteStateDict writes a state dictionary as format v1.
//
// The state dictionary maps parameter names to tensors. All tensors
// must be on the same device.
func (w *CellwarpWriter) WriteStateDict(stateDict map[string]*tensor.RawTensor, modelType string, metadata map[string]string) error {
	if w.closed {
		return errWriterClosed
	}
	return writeV1(w.file, stateDict, newHeader(modelType, metadata))
}

// WriteStateDictWithHeader writes a state dictionary as format v1 with
// a caller-built header, which is how checkpoint files attach their
// CheckpointMeta.
func (w *CellwarpWriter) WriteStateDictWithHeader(stateDict map[string]*tensor.RawTensor, header Header) error {
	if w.closed {
		return errWriterClosed
	}
	if header.Metadata == nil {
		header.Metadata = make(map[string]string)
	}
	return writeV1(w.file, stateDict, header)
}

// WriteStateDictV2 writes a state dictionary as format v2, which adds a
// 64-byte fixed header carrying a SHA-256 checksum over the tensor data.
func (w *CellwarpWriter) WriteStateDictV2(stateDict map[string]*tensor.RawTensor, modelType string, metadata map[string]string) error {
	if w.closed {
		return errWriterClosed
	}
	return writeV2(w.file, stateDict, newHeader(modelType, metadata))
}

// WriteStateDictWithHeaderV2 writes a state dictionary as format v2
// with a caller-built header. The writer stamps its own version and
// creation time.
func (w *CellwarpWriter) WriteStateDictWithHeaderV2(stateDict map[string]*tensor.RawTensor, header Header) error {
	if w.closed {
		return errWriterClosed
	}
	header.CellwarpVersion = cellwarpVersion
	header.CreatedAt = time.Now().UTC()
	if header.Metadata == nil {
		header.Metadata = make(map[string]string)
	}
	return writeV2(w.file, stateDict, header)
}

// Close closes the writer and the underlying file.
func (w *CellwarpWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// WriteTo streams a v1 state dictionary to an io.Writer, for buffers or
// network connections.
func WriteTo(writer io.Writer, stateDict map[string]*tensor.RawTensor, modelType string, metadata map[string]string) error {
	return writeV1(writer, stateDict, newHeader(modelType, metadata))
}

func newHeader(modelType string, metadata map[string]string) Header {
	if metadata == nil {
		metadata = make(map[string]string)
	}
	return Header{
		CellwarpVersion: cellwarpVersion,
		ModelType:       modelType,
		CreatedAt:       time.Now().UTC(),
		Metadata:        metadata,
	}
}

// layoutTensors orders the state dict by name and assigns packed data
// offsets. Sorting makes the byte layout, and with it the v2 checksum,
// reproducible across runs.
func layoutTensors(stateDict map[string]*tensor.RawTensor) ([]string, []TensorMeta) {
	order := make([]string, 0, len(stateDict))
	for name := range stateDict {
		order = append(order, name)
	}
	sort.Strings(order)

	metas := make([]TensorMeta, 0, len(order))
	var offset int64
	for _, name := range order {
		raw := stateDict[name]
		size := int64(raw.ByteSize())
		metas = append(metas, TensorMeta{
			Name:   name,
			DType:  dtypeToString(raw.DType()),
			Shape:  []int(raw.Shape()),
			Offset: offset,
			Size:   size,
		})
		offset += size
	}
	return order, metas
}

func headerFlags(h *Header) uint32 {
	var flags uint32
	if len(h.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	if h.CheckpointMeta != nil && h.CheckpointMeta.IsCheckpoint {
		flags |= FlagHasOptimizer
	}
	return flags
}

// alignPad returns zero padding that brings pos up to the next
// HeaderAlignment boundary, or nil when already aligned.
func alignPad(pos int64) []byte {
	n := alignUp(pos) - pos
	if n == 0 {
		return nil
	}
	return make([]byte, n)
}

// writeV1 streams a v1 file: 20-byte prefix (magic, version, flags,
// header size), JSON header, alignment padding, then the packed tensor
// data. Tensors stream straight from their buffers.
func writeV1(dst io.Writer, stateDict map[string]*tensor.RawTensor, header Header) error {
	order, metas := layoutTensors(stateDict)
	header.FormatVersion = FormatVersion
	header.Tensors = metas

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	if _, err := dst.Write([]byte(MagicBytes)); err != nil {
		return fmt.Errorf("failed to write magic bytes: %w", err)
	}
	if err := binary.Write(dst, binary.LittleEndian, uint32(FormatVersion)); err != nil {
		return fmt.Errorf("failed to write version: %w", err)
	}
	if err := binary.Write(dst, binary.LittleEndian, headerFlags(&header)); err != nil {
		return fmt.Errorf("failed to write flags: %w", err)
	}
	if err := binary.Write(dst, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := dst.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	prefixSize := int64(4 + 4 + 4 + 8)
	if pad := alignPad(prefixSize + int64(len(headerJSON))); pad != nil {
		if _, err := dst.Write(pad); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}

	for _, name := range order {
		if _, err := dst.Write(stateDict[name].Data()); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", name, err)
		}
	}

	return nil
}

// writeV2 buffers the packed tensor data to checksum it, then writes
// the 64-byte fixed header, JSON header, alignment padding, and data.
func writeV2(dst io.Writer, stateDict map[string]*tensor.RawTensor, header Header) error {
	order, metas := layoutTensors(stateDict)
	header.FormatVersion = FormatVersionV2
	header.Tensors = metas

	var data []byte
	for _, name := range order {
		data = append(data, stateDict[name].Data()...)
	}
	checksum := ComputeChecksum(data)

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	// Fixed prefix layout: magic 0x00, version 0x04, flags 0x08,
	// reserved 0x0C, header size 0x10, data size 0x18, checksum 0x20.
	fixed := make([]byte, FixedHeaderSizeV2)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], uint32(FormatVersionV2))
	binary.LittleEndian.PutUint32(fixed[8:12], headerFlags(&header))
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(len(data)))
	copy(fixed[ChecksumOffsetV2:ChecksumOffsetV2+ChecksumSize], checksum[:])

	if _, err := dst.Write(fixed); err != nil {
		return fmt.Errorf("failed to write fixed header: %w", err)
	}
	if _, err := dst.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header JSON: %w", err)
	}
	if pad := alignPad(int64(FixedHeaderSizeV2) + int64(len(headerJSON))); pad != nil {
		if _, err := dst.Write(pad); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}
	if _, err := dst.Write(data); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}

	return nil
}
