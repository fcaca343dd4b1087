package serialization

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/cellwarp/internal/tensor"
)

func newRawTensor(t testing.TB, backend tensor.Backend, shape tensor.Shape, dtype tensor.DataType) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, dtype, backend.Device())
	if err != nil {
		t.Fatalf("NewRaw(%v, %v): %v", shape, dtype, err)
	}
	return raw
}

func newRawFloat32(t testing.TB, backend tensor.Backend, shape tensor.Shape, vals []float32) *tensor.RawTensor {
	raw := newRawTensor(t, backend, shape, tensor.Float32)
	copy(raw.AsFloat32(), vals)
	return raw
}

// registrationDict builds a state dict shaped like a small registration
// net checkpoint, mixing the dtypes the container supports.
func registrationDict(t testing.TB, backend tensor.Backend) map[string]*tensor.RawTensor {
	t.Helper()

	loss := newRawTensor(t, backend, tensor.Shape{2}, tensor.Float64)
	copy(loss.AsFloat64(), []float64{0.125, 0.0625})

	indices := newRawTensor(t, backend, tensor.Shape{4}, tensor.Int32)
	copy(indices.AsInt32(), []int32{10, 20, 30, 40})

	step := newRawTensor(t, backend, tensor.Shape{1}, tensor.Int64)
	copy(step.AsInt64(), []int64{1200})

	return map[string]*tensor.RawTensor{
		"enc.0.0.weight": newRawFloat32(t, backend, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6}),
		"enc.0.0.bias":   newRawFloat32(t, backend, tensor.Shape{2}, []float32{0.5, -0.5}),
		"loss.history":   loss,
		"patch.indices":  indices,
		"train.step":     step,
	}
}

// writeCheckpoint writes dict to a fresh temp file and returns the path.
func writeCheckpoint(t testing.TB, dict map[string]*tensor.RawTensor, v2 bool) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ckpt.cwpt")

	writer, err := NewCellwarpWriter(path)
	if err != nil {
		t.Fatalf("NewCellwarpWriter: %v", err)
	}
	defer writer.Close()

	if v2 {
		err = writer.WriteStateDictV2(dict, "DiffeoNet", nil)
	} else {
		err = writer.WriteStateDict(dict, "DiffeoNet", nil)
	}
	if err != nil {
		t.Fatalf("write state dict: %v", err)
	}
	return path
}

// corruptLastByte flips the file's final byte, which always lands in
// the tensor data section.
func corruptLastByte(t *testing.T, path string) {
	t.Helper()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	file, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer file.Close()

	buf := make([]byte, 1)
	if _, err := file.ReadAt(buf, info.Size()-1); err != nil {
		t.Fatalf("read last byte: %v", err)
	}
	buf[0] ^= 0xFF
	if _, err := file.WriteAt(buf, info.Size()-1); err != nil {
		t.Fatalf("write last byte: %v", err)
	}
}

func sameTensor(a, b *tensor.RawTensor) bool {
	return a.Shape().Equal(b.Shape()) &&
		a.DType() == b.DType() &&
		bytes.Equal(a.Data(), b.Data())
}
