package serialization

import (
	"time"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// Layout constants for the .cwpt container.
const (
	MagicBytes        = "CWPT"
	FormatVersion     = 1    // JSON header + packed tensor data
	FormatVersionV2   = 2    // adds a fixed header with a SHA-256 data checksum
	HeaderAlignment   = 64   // tensor data starts on a cache-line boundary
	FixedHeaderSizeV2 = 64   // v2 fixed header occupies 0x00..0x3F
	ChecksumSize      = 32   // SHA-256 digest length
	ChecksumOffsetV2  = 0x20 // digest position inside the v2 fixed header
)

// On-disk dtype names. These match the strings the Python exporter
// writes, so checkpoints round-trip between the two toolchains.
const (
	DTypeFloat32 = "float32"
	DTypeFloat64 = "float64"
	DTypeInt32   = "int32"
	DTypeInt64   = "int64"
	DTypeUint8   = "uint8"
	DTypeBool    = "bool"
)

// Prefix flag bits.
const (
	FlagCompressed   uint32 = 1 << 0
	FlagHasOptimizer uint32 = 1 << 1
	FlagHasMetadata  uint32 = 1 << 2
)

// Header is the JSON header of a .cwpt file. It carries everything
// needed to reconstruct the state dictionary: tensor names, dtypes,
// shapes, and byte ranges within the data section.
type Header struct {
	FormatVersion   int               `json:"format_version"`
	CellwarpVersion string            `json:"cellwarp_version"`
	ModelType       string            `json:"model_type"`
	CreatedAt       time.Time         `json:"created_at"`
	Tensors         []TensorMeta      `json:"tensors"`
	Metadata        map[string]string `json:"metadata"`
	CheckpointMeta  *CheckpointMeta   `json:"checkpoint,omitempty"`
}

// CheckpointMeta records training state alongside the weights, so a
// registration run can resume from the epoch it stopped at.
type CheckpointMeta struct {
	IsCheckpoint    bool           `json:"is_checkpoint"`
	Epoch           int            `json:"epoch"`
	Step            int64          `json:"step"`
	Loss            float64        `json:"loss"`
	OptimizerType   string         `json:"optimizer_type"`
	OptimizerConfig map[string]any `json:"optimizer_config"`
	TrainingMeta    map[string]any `json:"training_meta"`
}

// TensorMeta describes one tensor in the data section. Offset is
// relative to the start of the data section, not the file.
type TensorMeta struct {
	Name   string `json:"name"`
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"`
	Size   int64  `json:"size"`
}

// alignUp rounds pos up to the next HeaderAlignment boundary.
func alignUp(pos int64) int64 {
	return (pos + HeaderAlignment - 1) / HeaderAlignment * HeaderAlignment
}

func dtypeToString(dt tensor.DataType) string {
	switch dt {
	case tensor.Float32:
		return DTypeFloat32
	case tensor.Float64:
		return DTypeFloat64
	case tensor.Int32:
		return DTypeInt32
	case tensor.Int64:
		return DTypeInt64
	case tensor.Uint8:
		return DTypeUint8
	case tensor.Bool:
		return DTypeBool
	default:
		return "unknown"
	}
}

func stringToDtype(s string) (tensor.DataType, bool) {
	switch s {
	case DTypeFloat32:
		return tensor.Float32, true
	case DTypeFloat64:
		return tensor.Float64, true
	case DTypeInt32:
		return tensor.Int32, true
	case DTypeInt64:
		return tensor.Int64, true
	case DTypeUint8:
		return tensor.Uint8, true
	case DTypeBool:
		return tensor.Bool, true
	default:
		return 0, false
	}
}
