package loader

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/cellwarp/internal/backend/cpu"
	"github.com/born-ml/cellwarp/internal/tensor"
)

// writeRawSafeTensors writes a file from an explicit header object and
// payload, so tests can produce layouts createExportFile cannot, including
// malformed ones.
func writeRawSafeTensors(t *testing.T, path string, header map[string]any, payload []byte) {
	t.Helper()

	headerJSON, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}

	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer file.Close()

	if err := binary.Write(file, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		t.Fatalf("write header length: %v", err)
	}
	if _, err := file.Write(headerJSON); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if _, err := file.Write(payload); err != nil {
		t.Fatalf("write payload: %v", err)
	}
}

func TestSafeTensorsReader_ReadsExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.safetensors")
	createExportFile(t, path, []exportTensor{
		{"weight", []int{2, 3}, []float32{1, 2, 3, 4, 5, 6}},
		{"bias", []int{3}, []float32{0.25, 0.5, 0.75}},
	})

	reader, err := NewSafeTensorsReader(path)
	if err != nil {
		t.Fatalf("NewSafeTensorsReader: %v", err)
	}
	defer reader.Close()

	if got := reader.Metadata()["format"]; got != "pt" {
		t.Errorf("metadata format = %q, want pt", got)
	}

	names := reader.TensorNames()
	if len(names) != 2 || names[0] != "bias" || names[1] != "weight" {
		t.Errorf("TensorNames() = %v, want sorted [bias weight]", names)
	}

	info, err := reader.TensorInfo("weight")
	if err != nil {
		t.Fatalf("TensorInfo: %v", err)
	}
	if info.DType != SafeTensorsF32 {
		t.Errorf("weight dtype = %s, want F32", info.DType)
	}
	if len(info.Shape) != 2 || info.Shape[0] != 2 || info.Shape[1] != 3 {
		t.Errorf("weight shape = %v, want [2 3]", info.Shape)
	}

	backend := cpu.New()
	weight, err := reader.LoadTensor("weight", backend)
	if err != nil {
		t.Fatalf("LoadTensor(weight): %v", err)
	}
	if !weight.Shape().Equal(tensor.Shape{2, 3}) {
		t.Errorf("loaded shape = %v, want [2 3]", weight.Shape())
	}
	if weight.DType() != tensor.Float32 {
		t.Errorf("loaded dtype = %v, want float32", weight.DType())
	}
	for i, want := range []float32{1, 2, 3, 4, 5, 6} {
		if got := weight.AsFloat32()[i]; got != want {
			t.Errorf("weight[%d] = %v, want %v", i, got, want)
		}
	}

	bias, err := reader.LoadTensor("bias", backend)
	if err != nil {
		t.Fatalf("LoadTensor(bias): %v", err)
	}
	for i, want := range []float32{0.25, 0.5, 0.75} {
		if got := bias.AsFloat32()[i]; got != want {
			t.Errorf("bias[%d] = %v, want %v", i, got, want)
		}
	}
}

func TestSafeTensorsReader_ReadTensorData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.safetensors")
	createExportFile(t, path, []exportTensor{
		{"weight", []int{2}, []float32{1, 2}},
		{"bias", []int{1}, []float32{3}},
	})

	reader, err := NewSafeTensorsReader(path)
	if err != nil {
		t.Fatalf("NewSafeTensorsReader: %v", err)
	}
	defer reader.Close()

	// bias sits after weight's 8 bytes; ReadTensorData must honor the offset.
	data, err := reader.ReadTensorData("bias")
	if err != nil {
		t.Fatalf("ReadTensorData: %v", err)
	}
	if len(data) != 4 {
		t.Fatalf("len(data) = %d, want 4", len(data))
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(data)); got != 3 {
		t.Errorf("decoded bias = %v, want 3", got)
	}
}

func TestSafeTensorsReader_MissingTensor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.safetensors")
	createExportFile(t, path, []exportTensor{
		{"weight", []int{1}, []float32{1}},
	})

	reader, err := NewSafeTensorsReader(path)
	if err != nil {
		t.Fatalf("NewSafeTensorsReader: %v", err)
	}
	defer reader.Close()

	if _, err := reader.TensorInfo("nope"); err == nil {
		t.Error("TensorInfo on a missing tensor should fail")
	}
	if _, err := reader.LoadTensor("nope", cpu.New()); err == nil {
		t.Error("LoadTensor on a missing tensor should fail")
	}
}

func TestSafeTensorsReader_WidensHalf(t *testing.T) {
	// Three F16 values followed by two BF16 values.
	payload := make([]byte, 10)
	for i, bits := range []uint16{0x3E00, 0xC000, 0x3800} { // 1.5, -2, 0.5
		binary.LittleEndian.PutUint16(payload[2*i:], bits)
	}
	for i, bits := range []uint16{0x3FC0, 0xC000} { // 1.5, -2
		binary.LittleEndian.PutUint16(payload[6+2*i:], bits)
	}

	path := filepath.Join(t.TempDir(), "half.safetensors")
	writeRawSafeTensors(t, path, map[string]any{
		"half":  SafeTensorInfo{DType: SafeTensorsF16, Shape: []int{3}, DataOffsets: [2]int64{0, 6}},
		"brain": SafeTensorInfo{DType: SafeTensorsBF16, Shape: []int{2}, DataOffsets: [2]int64{6, 10}},
	}, payload)

	reader, err := NewSafeTensorsReader(path)
	if err != nil {
		t.Fatalf("NewSafeTensorsReader: %v", err)
	}
	defer reader.Close()

	backend := cpu.New()

	half, err := reader.LoadTensor("half", backend)
	if err != nil {
		t.Fatalf("LoadTensor(half): %v", err)
	}
	if half.DType() != tensor.Float32 {
		t.Fatalf("F16 load dtype = %v, want float32", half.DType())
	}
	for i, want := range []float32{1.5, -2, 0.5} {
		if got := half.AsFloat32()[i]; got != want {
			t.Errorf("half[%d] = %v, want %v", i, got, want)
		}
	}

	brain, err := reader.LoadTensor("brain", backend)
	if err != nil {
		t.Fatalf("LoadTensor(brain): %v", err)
	}
	if brain.DType() != tensor.Float32 {
		t.Fatalf("BF16 load dtype = %v, want float32", brain.DType())
	}
	for i, want := range []float32{1.5, -2} {
		if got := brain.AsFloat32()[i]; got != want {
			t.Errorf("brain[%d] = %v, want %v", i, got, want)
		}
	}
}

func TestF16ToF32(t *testing.T) {
	tests := []struct {
		name string
		bits uint16
		want float32
	}{
		{"Zero", 0x0000, 0},
		{"One", 0x3C00, 1},
		{"Half", 0x3800, 0.5},
		{"NegativeTwo", 0xC000, -2},
		{"LargestNormal", 0x7BFF, 65504},
		{"SmallestSubnormal", 0x0001, float32(math.Ldexp(1, -24))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f16ToF32(tt.bits); got != tt.want {
				t.Errorf("f16ToF32(%#04x) = %v, want %v", tt.bits, got, tt.want)
			}
		})
	}

	if got := f16ToF32(0x8000); got != 0 || !math.Signbit(float64(got)) {
		t.Errorf("f16ToF32(0x8000) = %v, want negative zero", got)
	}
	if got := f16ToF32(0x7C00); !math.IsInf(float64(got), 1) {
		t.Errorf("f16ToF32(0x7C00) = %v, want +Inf", got)
	}
	if got := f16ToF32(0xFC00); !math.IsInf(float64(got), -1) {
		t.Errorf("f16ToF32(0xFC00) = %v, want -Inf", got)
	}
	if got := f16ToF32(0x7E00); !math.IsNaN(float64(got)) {
		t.Errorf("f16ToF32(0x7E00) = %v, want NaN", got)
	}
}

func TestSafeTensorsReader_RejectsOversizedHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "huge.safetensors")
	prefix := make([]byte, 8)
	binary.LittleEndian.PutUint64(prefix, 1<<40)
	if err := os.WriteFile(path, prefix, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := NewSafeTensorsReader(path); err == nil {
		t.Fatal("a header length beyond the limit should be rejected")
	}
}

func TestSafeTensorsReader_RejectsTruncatedData(t *testing.T) {
	// Header promises 24 bytes but the payload carries 12; the reader must
	// reject the file at open time.
	path := filepath.Join(t.TempDir(), "truncated.safetensors")
	writeRawSafeTensors(t, path, map[string]any{
		"weight": SafeTensorInfo{DType: SafeTensorsF32, Shape: []int{2, 3}, DataOffsets: [2]int64{0, 24}},
	}, make([]byte, 12))

	if _, err := NewSafeTensorsReader(path); err == nil {
		t.Fatal("a tensor range past the end of the file should be rejected")
	}
}

func TestSafeTensorsReader_RejectsShapeMismatch(t *testing.T) {
	// The byte range is inside the file but too small for the declared shape.
	path := filepath.Join(t.TempDir(), "short.safetensors")
	writeRawSafeTensors(t, path, map[string]any{
		"weight": SafeTensorInfo{DType: SafeTensorsF32, Shape: []int{4}, DataOffsets: [2]int64{0, 8}},
	}, make([]byte, 8))

	reader, err := NewSafeTensorsReader(path)
	if err != nil {
		t.Fatalf("NewSafeTensorsReader: %v", err)
	}
	defer reader.Close()

	if _, err := reader.LoadTensor("weight", cpu.New()); err == nil {
		t.Fatal("a payload shorter than the shape requires should be rejected")
	}
}
