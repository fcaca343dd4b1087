package cpu

import (
	"fmt"

	"github.com/born-ml/cellwarp/internal/tensor"
)

// numeric covers every dtype a Cast can move between, minus Bool which
// converts through explicit truth checks.
type numeric interface {
	~float32 | ~float64 | ~int32 | ~int64 | ~uint8
}

// Cast converts the tensor to a different data type. Same-dtype casts
// return the input untouched. Loaders lean on this to lift uint8 patch
// planes and int32 label maps into float32 for the network.
func (cpu *CPUBackend) Cast(x *tensor.RawTensor, dtype tensor.DataType) *tensor.RawTensor {
	if x.DType() == dtype {
		return x
	}

	result, err := tensor.NewRaw(x.Shape(), dtype, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("cast: %v", err))
	}

	switch x.DType() {
	case tensor.Float32:
		castFrom(result, x.AsFloat32())
	case tensor.Float64:
		castFrom(result, x.AsFloat64())
	case tensor.Int32:
		castFrom(result, x.AsInt32())
	case tensor.Int64:
		castFrom(result, x.AsInt64())
	case tensor.Uint8:
		castFrom(result, x.AsUint8())
	case tensor.Bool:
		castBool(result, x.AsBool())
	default:
		panic(fmt.Sprintf("cast: unsupported source dtype %v", x.DType()))
	}

	return result
}

// castFrom routes a numeric source into whatever dtype the result
// tensor carries. Float to integer conversion truncates toward zero.
func castFrom[S numeric](result *tensor.RawTensor, src []S) {
	switch result.DType() {
	case tensor.Float32:
		convert(result.AsFloat32(), src)
	case tensor.Float64:
		convert(result.AsFloat64(), src)
	case tensor.Int32:
		convert(result.AsInt32(), src)
	case tensor.Int64:
		convert(result.AsInt64(), src)
	case tensor.Uint8:
		convert(result.AsUint8(), src)
	case tensor.Bool:
		dst := result.AsBool()
		for i, v := range src {
			dst[i] = v != 0
		}
	default:
		panic(fmt.Sprintf("cast: unsupported target dtype %v", result.DType()))
	}
}

func convert[D, S numeric](dst []D, src []S) {
	for i, v := range src {
		dst[i] = D(v)
	}
}

// castBool writes 1 for true cells. Fresh buffers are zeroed, so false
// cells need no write.
func castBool(result *tensor.RawTensor, src []bool) {
	switch result.DType() {
	case tensor.Float32:
		boolOnes(result.AsFloat32(), src)
	case tensor.Float64:
		boolOnes(result.AsFloat64(), src)
	case tensor.Int32:
		boolOnes(result.AsInt32(), src)
	case tensor.Int64:
		boolOnes(result.AsInt64(), src)
	case tensor.Uint8:
		boolOnes(result.AsUint8(), src)
	default:
		panic(fmt.Sprintf("cast: unsupported target dtype %v", result.DType()))
	}
}

func boolOnes[D numeric](dst []D, src []bool) {
	for i, v := range src {
		if v {
			dst[i] = 1
		}
	}
}
