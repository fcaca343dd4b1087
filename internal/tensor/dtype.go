// Package tensor provides the tensor core shared by every cellwarp
// package: shapes, element types, the untyped RawTensor storage, and
// the generic Tensor wrapper.
package tensor

// DType constrains the element types a Tensor can carry.
type DType interface {
	~float32 | ~float64 | ~int32 | ~int64 | ~uint8 | ~bool
}

// DataType is the runtime tag for a tensor's element type.
type DataType int

const (
	Float32 DataType = iota
	Float64
	Int32
	Int64
	Uint8
	Bool
)

var dtypeInfo = [...]struct {
	name string
	size int
}{
	Float32: {"float32", 4},
	Float64: {"float64", 8},
	Int32:   {"int32", 4},
	Int64:   {"int64", 8},
	Uint8:   {"uint8", 1},
	Bool:    {"bool", 1},
}

// Size returns the element size in bytes.
func (dt DataType) Size() int {
	if dt < 0 || int(dt) >= len(dtypeInfo) {
		panic("unknown data type")
	}
	return dtypeInfo[dt].size
}

func (dt DataType) String() string {
	if dt < 0 || int(dt) >= len(dtypeInfo) {
		return "unknown"
	}
	return dtypeInfo[dt].name
}

// inferDataType maps a compile-time element type to its runtime tag.
func inferDataType[T DType](dummy T) DataType {
	switch any(dummy).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return Uint8
	case bool:
		return Bool
	default:
		panic("unsupported type")
	}
}
