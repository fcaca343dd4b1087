package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// MmapReader reads .cwpt files through a read-only memory mapping.
//
// Opening parses and validates the header; tensor bytes stay on disk
// until touched, paged in by the OS. That makes it the cheapest way to
// inspect or selectively load large checkpoints, and TensorData hands
// out slices straight into the mapping with no copying at all.
//
// Close unmaps the region, so zero-copy slices must not outlive the
// reader.
type MmapReader struct {
	file       *os.File
	data       []byte
	size       int64
	header     Header
	version    uint32
	flags      uint32
	dataOffset int64
	dataSize   int64
	checksum   [ChecksumSize]byte
	closed     bool
}

// NewMmapReader opens and maps a .cwpt file read-only.
func NewMmapReader(path string) (*MmapReader, error) {
	//nolint:gosec // G304: the caller picks the checkpoint path
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	data, err := mmapFile(file, stat.Size())
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}

	r := &MmapReader{
		file: file,
		data: data,
		size: stat.Size(),
	}
	if err := r.parseHeader(); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	return r, nil
}

func (r *MmapReader) parseHeader() error {
	// The v1 prefix is 20 bytes; nothing smaller can be a valid file.
	if r.size < 20 {
		return fmt.Errorf("file too small: %d bytes (minimum 20 bytes required)", r.size)
	}

	if string(r.data[0:4]) != MagicBytes {
		return ErrInvalidMagic
	}
	r.version = binary.LittleEndian.Uint32(r.data[4:8])
	r.flags = binary.LittleEndian.Uint32(r.data[8:12])

	var headerSize uint64
	var jsonOffset int64

	switch r.version {
	case FormatVersionV2:
		if r.size < FixedHeaderSizeV2 {
			return fmt.Errorf("file too small for v2: %d bytes (minimum 64 bytes required)", r.size)
		}
		headerSize = binary.LittleEndian.Uint64(r.data[16:24])
		dataSize64 := binary.LittleEndian.Uint64(r.data[24:32])
		if dataSize64 > 0x7FFFFFFFFFFFFFFF {
			return fmt.Errorf("data size too large: %d", dataSize64)
		}
		r.dataSize = int64(dataSize64)
		copy(r.checksum[:], r.data[ChecksumOffsetV2:ChecksumOffsetV2+ChecksumSize])
		jsonOffset = FixedHeaderSizeV2
	case FormatVersion:
		headerSize = binary.LittleEndian.Uint64(r.data[12:20])
		jsonOffset = 20
	default:
		return fmt.Errorf("%w: got %d, expected %d or %d", ErrUnsupportedVersion, r.version, FormatVersion, FormatVersionV2)
	}

	if headerSize > MaxHeaderSize {
		return ErrHeaderTooLarge
	}
	headerEnd := jsonOffset + int64(headerSize)
	if headerEnd > r.size {
		return fmt.Errorf("header extends beyond file: header_end=%d, file_size=%d", headerEnd, r.size)
	}

	if err := json.Unmarshal(r.data[jsonOffset:headerEnd], &r.header); err != nil {
		return fmt.Errorf("failed to parse header JSON: %w", err)
	}

	r.dataOffset = alignUp(headerEnd)
	// v1 has no recorded data size, so derive it from the file.
	if r.version == FormatVersion {
		r.dataSize = r.size - r.dataOffset
	}

	if err := ValidateHeader(&r.header, r.dataSize, ValidationStrict); err != nil {
		return fmt.Errorf("header validation failed: %w", err)
	}
	return nil
}

// Close unmaps the region and closes the file.
func (r *MmapReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if r.data != nil {
		err = munmapFile(r.data)
		r.data = nil
	}
	if closeErr := r.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// Header returns the parsed file header.
func (r *MmapReader) Header() Header {
	return r.header
}

// Version returns the container format version, 1 or 2.
func (r *MmapReader) Version() uint32 {
	return r.version
}

// Flags returns the prefix flag bits.
func (r *MmapReader) Flags() uint32 {
	return r.flags
}

// Checksum returns the recorded SHA-256 digest. All zeros for v1 files.
func (r *MmapReader) Checksum() [ChecksumSize]byte {
	return r.checksum
}

// TensorNames lists the tensors in the file in header order.
func (r *MmapReader) TensorNames() []string {
	names := make([]string, len(r.header.Tensors))
	for i, t := range r.header.Tensors {
		names[i] = t.Name
	}
	return names
}

// TensorInfo returns the metadata entry for one tensor.
func (r *MmapReader) TensorInfo(name string) (*TensorMeta, error) {
	for i := range r.header.Tensors {
		if r.header.Tensors[i].Name == name {
			return &r.header.Tensors[i], nil
		}
	}
	return nil, fmt.Errorf("tensor %q not found", name)
}

// TensorData returns a zero-copy slice into the mapped region. The
// slice is read-only and valid only until Close. Callers that need to
// mutate the bytes should use TensorDataCopy.
func (r *MmapReader) TensorData(name string) ([]byte, error) {
	if r.closed {
		return nil, errReaderClosed
	}
	meta, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}

	start := r.dataOffset + meta.Offset
	end := start + meta.Size
	if end > r.size {
		return nil, fmt.Errorf("%w: tensor %q: offset %d + size %d > file_size %d",
			ErrOutOfBounds, name, start, meta.Size, r.size)
	}
	return r.data[start:end], nil
}

// TensorDataCopy returns a private copy of a tensor's bytes.
func (r *MmapReader) TensorDataCopy(name string) ([]byte, error) {
	data, err := r.TensorData(name)
	if err != nil {
		return nil, err
	}
	result := make([]byte, len(data))
	copy(result, data)
	return result, nil
}

// LoadTensor copies a single named tensor out of the mapping onto the
// given backend.
func (r *MmapReader) LoadTensor(name string, backend tensor.Backend) (*tensor.RawTensor, error) {
	if r.closed {
		return nil, errReaderClosed
	}
	meta, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	data, err := r.TensorData(name)
	if err != nil {
		return nil, err
	}
	return materialize(*meta, data, backend)
}

// ReadStateDict loads every tensor in the file into a state dictionary.
func (r *MmapReader) ReadStateDict(backend tensor.Backend) (map[string]*tensor.RawTensor, error) {
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
