package serialization

import (
	"bytes"
	"errors"
	"testing"

	"github.com/born-ml/cellwarp/internal/tensor"
)

func TestWriter_SortedPackedLayout(t *testing.T) {
	backend := tensor.NewMockBackend()
	dict := registrationDict(t, backend)
	path := writeCheckpoint(t, dict, false)

	reader, err := NewCellwarpReader(path)
	if err != nil {
		t.Fatalf("NewCellwarpReader: %v", err)
	}
	defer reader.Close()

	// Tensors are laid out in name order with no gaps, so the same
	// state dict always produces the same bytes.
	var offset int64
	prev := ""
	for _, meta := range reader.Header().Tensors {
		if meta.Name <= prev {
			t.Errorf("tensor %q appears after %q, expected sorted name order", meta.Name, prev)
		}
		if meta.Offset != offset {
			t.Errorf("tensor %q at offset %d, expected packed offset %d", meta.Name, meta.Offset, offset)
		}
		offset += meta.Size
		prev = meta.Name
	}
}

func TestWriterV2_DeterministicChecksum(t *testing.T) {
	backend := tensor.NewMockBackend()
	dict := registrationDict(t, backend)

	first, err := NewMmapReader(writeCheckpoint(t, dict, true))
	if err != nil {
		t.Fatalf("NewMmapReader: %v", err)
	}
	defer first.Close()

	second, err := NewMmapReader(writeCheckpoint(t, dict, true))
	if err != nil {
		t.Fatalf("NewMmapReader: %v", err)
	}
	defer second.Close()

	if first.Checksum() != second.Checksum() {
		t.Error("writing the same state dict twice should produce the same data checksum")
	}
}

func TestWriter_Closed(t *testing.T) {
	backend := tensor.NewMockBackend()
	dict := map[string]*tensor.RawTensor{
		"warp.field": newRawFloat32(t, backend, tensor.Shape{1}, []float32{1}),
	}

	writer, err := NewCellwarpWriter(t.TempDir() + "/closed.cwpt")
	if err != nil {
		t.Fatalf("NewCellwarpWriter: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := writer.WriteStateDict(dict, "DiffeoNet", nil); !errors.Is(err, errWriterClosed) {
		t.Errorf("WriteStateDict on closed writer: got %v", err)
	}
	if err := writer.WriteStateDictV2(dict, "DiffeoNet", nil); !errors.Is(err, errWriterClosed) {
		t.Errorf("WriteStateDictV2 on closed writer: got %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got: %v", err)
	}
}

func TestStreamRoundTrip(t *testing.T) {
	backend := tensor.NewMockBackend()
	dict := registrationDict(t, backend)

	var buf bytes.Buffer
	if err := WriteTo(&buf, dict, "DiffeoNet", map[string]string{"stage": "affine"}); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	loaded, header, err := ReadFrom(&buf, backend)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}

	if header.ModelType != "DiffeoNet" {
		t.Errorf("expected model type DiffeoNet, got %s", header.ModelType)
	}
	if header.Metadata["stage"] != "affine" {
		t.Errorf("expected stage=affine in metadata, got %v", header.Metadata)
	}
	if header.FormatVersion != FormatVersion {
		t.Errorf("streams are v1, got format version %d", header.FormatVersion)
	}

	for name, raw := range dict {
		got, ok := loaded[name]
		if !ok {
			t.Errorf("tensor %s missing after stream round trip", name)
			continue
		}
		if !sameTensor(raw, got) {
			t.Errorf("tensor %s differs after stream round trip", name)
		}
	}
}

func TestReadFrom_RejectsWrongMagic(t *testing.T) {
	backend := tensor.NewMockBackend()

	buf := bytes.NewBuffer(append([]byte("NOPE"), make([]byte, 16)...))
	if _, _, err := ReadFrom(buf, backend); err == nil {
		t.Error("ReadFrom should reject a stream without the CWPT magic")
	}
}
