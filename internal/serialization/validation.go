package serialization

import (
	"fmt"
	"sort"
	"strings"
)

// Limits on untrusted input. Checkpoint files often come from other
// machines or other toolchains, so the header is treated as hostile
// until it passes these checks.
const (
	MaxHeaderSize    = 100 * 1024 * 1024
	MaxTensorCount   = 100_000
	MaxTensorNameLen = 4096
	MaxMetadataSize  = 10 * 1024 * 1024
)

// ValidationLevel controls how much of the header is checked on open.
type ValidationLevel int

const (
	// ValidationStrict runs every check, including the offset scan.
	ValidationStrict ValidationLevel = iota
	// ValidationNormal checks names and counts but skips the offset scan.
	ValidationNormal
	// ValidationNone disables validation. Only for trusted input.
	ValidationNone
)

// ValidateTensorOffsets checks that tensor byte ranges are non-negative,
// stay inside the data section, and do not overlap each other. A
// crafted header could otherwise alias two tensors onto the same bytes
// or read past the mapped region.
func ValidateTensorOffsets(tensors []TensorMeta, dataSize int64) error {
	if len(tensors) > MaxTensorCount {
		return &ValidationError{
			Type:    "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(tensors), MaxTensorCount),
		}
	}

	sorted := make([]TensorMeta, len(tensors))
	copy(sorted, tensors)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})

	var prev *TensorMeta
	for i := range sorted {
		t := &sorted[i]
		if t.Offset < 0 || t.Size < 0 {
			return &ValidationError{
				Type:    "negative_offset",
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset=%d, size=%d (negative values not allowed)", t.Offset, t.Size),
			}
		}
		if t.Offset+t.Size > dataSize {
			return &ValidationError{
				Type:    "out_of_bounds",
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset %d + size %d > data_size %d", t.Offset, t.Size, dataSize),
			}
		}
		if prev != nil && prev.Offset+prev.Size > t.Offset {
			return &ValidationError{
				Type:    "offset_overlap",
				Tensor:  prev.Name,
				Tensor2: t.Name,
				Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
					prev.Offset, prev.Offset+prev.Size, t.Offset, t.Offset+t.Size),
			}
		}
		prev = t
	}

	return nil
}

// ValidateTensorName rejects names that could be abused as paths if a
// caller ever maps tensor names onto the filesystem.
func ValidateTensorName(name string) error {
	if len(name) > MaxTensorNameLen {
		return &ValidationError{
			Type:    "name_too_long",
			Tensor:  name,
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen),
		}
	}

	checks := []struct {
		substr string
		reason string
	}{
		{"..", "contains '..' (path traversal attempt)"},
		{"/", "contains path separator (/ or \\)"},
		{"\\", "contains path separator (/ or \\)"},
		{"\x00", "contains null byte"},
	}
	for _, c := range checks {
		if strings.Contains(name, c.substr) {
			return &ValidationError{
				Type:    "invalid_name",
				Tensor:  name,
				Details: c.reason,
			}
		}
	}

	return nil
}

// ValidateHeader runs the header checks appropriate for the given level.
func ValidateHeader(h *Header, dataSize int64, level ValidationLevel) error {
	if level == ValidationNone {
		return nil
	}

	if len(h.Tensors) > MaxTensorCount {
		return &ValidationError{
			Type:    "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(h.Tensors), MaxTensorCount),
		}
	}

	var metaSize int
	for k, v := range h.Metadata {
		metaSize += len(k) + len(v)
	}
	if metaSize > MaxMetadataSize {
		return &ValidationError{
			Type:    "metadata_too_large",
			Details: fmt.Sprintf("got %d bytes, max %d", metaSize, MaxMetadataSize),
		}
	}

	for _, t := range h.Tensors {
		if err := ValidateTensorName(t.Name); err != nil {
			return err
		}
	}

	// The offset scan sorts all tensor ranges, so it only runs in
	// strict mode.
	if level == ValidationStrict {
		return ValidateTensorOffsets(h.Tensors, dataSize)
	}

	return nil
}
