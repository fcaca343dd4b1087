package serialization

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/born-ml/cellwarp/internal/tensor"
)

var errReaderClosed = errors.New("reader is closed")

// CellwarpReader reads .cwpt checkpoints from disk.
//
// The header is parsed and validated when the reader opens. Tensor data
// is read on demand, one seek per tensor, so inspecting a checkpoint's
// contents never loads its weights.
type CellwarpReader struct {
	file       *os.File
	header     Header
	flags      uint32
	version    uint32
	dataOffset int64
	dataSize   int64
	checksum   [ChecksumSize]byte // v2 only
	opts       ReaderOptions
	closed     bool
}

// ReaderOptions configures validation performed on open.
type ReaderOptions struct {
	SkipChecksumValidation bool
	ValidationLevel        ValidationLevel
}

// NewCellwarpReader opens a .cwpt file with strict validation.
func NewCellwarpReader(path string) (*CellwarpReader, error) {
	return NewCellwarpReaderWithOptions(path, ReaderOptions{
		ValidationLevel: ValidationStrict,
	})
}

// NewCellwarpReaderWithOptions opens a .cwpt file with custom options.
func NewCellwarpReaderWithOptions(path string, opts ReaderOptions) (*CellwarpReader, error) {
	//nolint:gosec // G304: the caller picks the checkpoint path
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	r := &CellwarpReader{file: file, opts: opts}
	if err := r.parseHeader(); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	r.dataSize = info.Size() - r.dataOffset

	if err := ValidateHeader(&r.header, r.dataSize, opts.ValidationLevel); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return r, nil
}

func (r *CellwarpReader) parseHeader() error {
	magic := make([]byte, len(MagicBytes))
	if _, err := io.ReadFull(r.file, magic); err != nil {
		return fmt.Errorf("failed to read magic bytes: %w", err)
	}
	if string(magic) != MagicBytes {
		return ErrInvalidMagic
	}

	if err := binary.Read(r.file, binary.LittleEndian, &r.version); err != nil {
		return fmt.Errorf("failed to read version: %w", err)
	}

	switch r.version {
	case FormatVersion:
		return r.parseHeaderV1()
	case FormatVersionV2:
		return r.parseHeaderV2()
	default:
		return fmt.Errorf("%w: got %d, expected %d or %d", ErrUnsupportedVersion, r.version, FormatVersion, FormatVersionV2)
	}
}

// parseHeaderV1 reads the remaining v1 prefix fields. The file position
// is just past the version field on entry.
func (r *CellwarpReader) parseHeaderV1() error {
	if err := binary.Read(r.file, binary.LittleEndian, &r.flags); err != nil {
		return fmt.Errorf("failed to read flags: %w", err)
	}
	var headerSize uint64
	if err := binary.Read(r.file, binary.LittleEndian, &headerSize); err != nil {
		return fmt.Errorf("failed to read header size: %w", err)
	}
	return r.decodeHeaderJSON(4+4+4+8, headerSize)
}

// parseHeaderV2 re-reads the whole 64-byte fixed header from offset 0,
// then decodes the JSON header and verifies the data checksum.
func (r *CellwarpReader) parseHeaderV2() error {
	if _, err := r.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}
	fixed := make([]byte, FixedHeaderSizeV2)
	if _, err := io.ReadFull(r.file, fixed); err != nil {
		return fmt.Errorf("failed to read fixed header: %w", err)
	}

	if v := binary.LittleEndian.Uint32(fixed[4:8]); v != FormatVersionV2 {
		return fmt.Errorf("version mismatch in fixed header: got %d, expected %d", v, FormatVersionV2)
	}
	r.flags = binary.LittleEndian.Uint32(fixed[8:12])
	headerSize := binary.LittleEndian.Uint64(fixed[16:24])
	dataSize := binary.LittleEndian.Uint64(fixed[24:32])
	copy(r.checksum[:], fixed[ChecksumOffsetV2:ChecksumOffsetV2+ChecksumSize])

	if err := r.decodeHeaderJSON(FixedHeaderSizeV2, headerSize); err != nil {
		return err
	}

	if r.opts.SkipChecksumValidation {
		return nil
	}
	return r.validateDataChecksum(int64(dataSize))
}

// decodeHeaderJSON reads headerSize bytes of JSON from the current
// position into r.header and records where the aligned data section
// starts. prefixSize is the byte count of everything before the JSON.
func (r *CellwarpReader) decodeHeaderJSON(prefixSize int64, headerSize uint64) error {
	if headerSize > MaxHeaderSize {
		return ErrHeaderTooLarge
	}
	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r.file, headerBytes); err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	if err := json.Unmarshal(headerBytes, &r.header); err != nil {
		return fmt.Errorf("failed to parse header JSON: %w", err)
	}
	r.dataOffset = alignUp(prefixSize + int64(headerSize))
	return nil
}

// validateDataChecksum hashes the data section and compares it against
// the checksum recorded in the fixed header.
func (r *CellwarpReader) validateDataChecksum(dataSize int64) error {
	if _, err := r.file.Seek(r.dataOffset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to tensor data: %w", err)
	}
	data := make([]byte, dataSize)
	if _, err := io.ReadFull(r.file, data); err != nil {
		return fmt.Errorf("failed to read tensor data for checksum: %w", err)
	}
	return ValidateChecksum(ComputeChecksum(data), r.checksum)
}

// Header returns the parsed file header.
func (r *CellwarpReader) Header() Header {
	return r.header
}

// Metadata returns the custom metadata map from the header.
func (r *CellwarpReader) Metadata() map[string]string {
	return r.header.Metadata
}

// TensorNames lists the tensors in the file in header order.
func (r *CellwarpReader) TensorNames() []string {
	names := make([]string, len(r.header.Tensors))
	for i, meta := range r.header.Tensors {
		names[i] = meta.Name
	}
	return names
}

// TensorInfo returns the metadata entry for one tensor.
func (r *CellwarpReader) TensorInfo(name string) (*TensorMeta, error) {
	for _, meta := range r.header.Tensors {
		if meta.Name == name {
			return &meta, nil
		}
	}
	return nil, fmt.Errorf("tensor %s not found", name)
}

// ReadTensorData reads the raw bytes of a named tensor.
func (r *CellwarpReader) ReadTensorData(name string) ([]byte, error) {
	if r.closed {
		return nil, errReaderClosed
	}
	meta, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}

	if _, err := r.file.Seek(r.dataOffset+meta.Offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to tensor data: %w", err)
	}
	data := make([]byte, meta.Size)
	if _, err := io.ReadFull(r.file, data); err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	return data, nil
}

// LoadTensor loads a single named tensor onto the given backend.
func (r *CellwarpReader) LoadTensor(name string, backend tensor.Backend) (*tensor.RawTensor, error) {
	if r.closed {
		return nil, errReaderClosed
	}
	meta, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	data, err := r.ReadTensorData(name)
	if err != nil {
		return nil, err
	}
	return materialize(*meta, data, backend)
}

// ReadStateDict loads every tensor in the file into a state dictionary.
func (r *CellwarpReader) ReadStateDict(backend tensor.Backend) (map[string]*tensor.RawTensor, error) {
	if r.closed {
		return nil, errReaderClosed
	}

	stateDict := make(map[string]*tensor.RawTensor)
	for _, meta := range r.header.Tensors {
		raw, err := r.LoadTensor(meta.Name, backend)
		if err != nil {
			return nil, fmt.Errorf("failed to load tensor %s: %w", meta.Name, err)
		}
		stateDict[meta.Name] = raw
	}
	return stateDict, nil
}

// Close closes the reader and the underlying file.
func (r *CellwarpReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

// materialize builds a RawTensor from its file metadata and raw bytes.
func materialize(meta TensorMeta, data []byte, backend tensor.Backend) (*tensor.RawTensor, error) {
	dtype, ok := stringToDtype(meta.DType)
	if !ok {
		return nil, fmt.Errorf("unsupported dtype: %s", meta.DType)
	}
	shape := tensor.Shape(meta.Shape)
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape for tensor %s: %w", meta.Name, err)
	}
	raw, err := tensor.NewRaw(shape, dtype, backend.Device())
	if err != nil {
		return nil, fmt.Errorf("failed to create tensor: %w", err)
	}
	copy(raw.Data(), data)
	return raw, nil
}

// ReadFrom decodes a v1 stream from an io.Reader, for buffers or
// network connections. Tensors are read in header order, which matches
// the packed layout the writer produces.
func ReadFrom(reader io.Reader, backend tensor.Backend) (map[string]*tensor.RawTensor, Header, error) {
	magic := make([]byte, len(MagicBytes))
	if _, err := io.ReadFull(reader, magic); err != nil {
		return nil, Header{}, fmt.Errorf("failed to read magic bytes: %w", err)
	}
	if string(magic) != MagicBytes {
		return nil, Header{}, fmt.Errorf("invalid magic bytes: got %q, expected %q", string(magic), MagicBytes)
	}

	var version, flags uint32
	var headerSize uint64
	if err := binary.Read(reader, binary.LittleEndian, &version); err != nil {
		return nil, Header{}, fmt.Errorf("failed to read version: %w", err)
	}
	if version != FormatVersion {
		return nil, Header{}, fmt.Errorf("unsupported format version: got %d, expected %d", version, FormatVersion)
	}
	if err := binary.Read(reader, binary.LittleEndian, &flags); err != nil {
		return nil, Header{}, fmt.Errorf("failed to read flags: %w", err)
	}
	if err := binary.Read(reader, binary.LittleEndian, &headerSize); err != nil {
		return nil, Header{}, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return nil, Header{}, fmt.Errorf("invalid header size: %d (too large)", headerSize)
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(reader, headerBytes); err != nil {
		return nil, Header{}, fmt.Errorf("failed to read header: %w", err)
	}
	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, Header{}, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	// Streams cannot seek, so consume the alignment padding explicitly.
	prefixSize := int64(4+4+4+8) + int64(headerSize)
	if pad := alignUp(prefixSize) - prefixSize; pad > 0 {
		if _, err := io.CopyN(io.Discard, reader, pad); err != nil {
			return nil, Header{}, fmt.Errorf("failed to read padding: %w", err)
		}
	}

	stateDict := make(map[string]*tensor.RawTensor)
	for _, meta := range header.Tensors {
		data := make([]byte, meta.Size)
		if _, err := io.ReadFull(reader, data); err != nil {
			return nil, Header{}, fmt.Errorf("failed to read tensor %s: %w", meta.Name, err)
		}
		raw, err := materialize(meta, data, backend)
		if err != nil {
			return nil, Header{}, err
		}
		stateDict[meta.Name] = raw
	}

	return stateDict, header, nil
}
