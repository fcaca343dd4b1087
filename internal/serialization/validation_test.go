package serialization

import (
	"errors"
	"strings"
	"testing"
)

func validationType(t *testing.T, err error) string {
	t.Helper()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	return verr.Type
}

func TestValidateTensorOffsets_PackedLayout(t *testing.T) {
	tensors := []TensorMeta{
		{Name: "enc.0.0.weight", Offset: 0, Size: 100},
		{Name: "enc.0.0.bias", Offset: 100, Size: 200},
		{Name: "warp.field", Offset: 300, Size: 150},
	}
	if err := ValidateTensorOffsets(tensors, 500); err != nil {
		t.Errorf("packed layout should validate, got: %v", err)
	}
}

func TestValidateTensorOffsets_Overlap(t *testing.T) {
	tests := []struct {
		name    string
		second  TensorMeta
		wantErr bool
	}{
		{
			name:    "FullyInsideFirst",
			second:  TensorMeta{Name: "dec.1.weight", Offset: 50, Size: 100},
			wantErr: true,
		},
		{
			name:    "OneByteIntoFirst",
			second:  TensorMeta{Name: "dec.1.weight", Offset: 99, Size: 100},
			wantErr: true,
		},
		{
			name:   "TouchingBoundary",
			second: TensorMeta{Name: "dec.1.weight", Offset: 100, Size: 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tensors := []TensorMeta{
				{Name: "dec.0.weight", Offset: 0, Size: 100},
				tt.second,
			}
			err := ValidateTensorOffsets(tensors, 200)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateTensorOffsets() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if typ := validationType(t, err); typ != "offset_overlap" {
					t.Errorf("expected offset_overlap, got %s", typ)
				}
			}
		})
	}
}

func TestValidateTensorOffsets_OutOfBounds(t *testing.T) {
	tests := []struct {
		name     string
		tensor   TensorMeta
		dataSize int64
		wantErr  bool
	}{
		{
			name:     "RunsPastDataSection",
			tensor:   TensorMeta{Name: "warp.field", Offset: 100, Size: 200},
			dataSize: 250,
			wantErr:  true,
		},
		{
			name:     "StartsPastDataSection",
			tensor:   TensorMeta{Name: "warp.field", Offset: 1000, Size: 100},
			dataSize: 500,
			wantErr:  true,
		},
		{
			name:     "FillsDataSectionExactly",
			tensor:   TensorMeta{Name: "warp.field", Offset: 0, Size: 500},
			dataSize: 500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTensorOffsets([]TensorMeta{tt.tensor}, tt.dataSize)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateTensorOffsets() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if typ := validationType(t, err); typ != "out_of_bounds" {
					t.Errorf("expected out_of_bounds, got %s", typ)
				}
			}
		})
	}
}

func TestValidateTensorOffsets_NegativeValues(t *testing.T) {
	tests := []struct {
		name   string
		tensor TensorMeta
	}{
		{"NegativeOffset", TensorMeta{Name: "enc.1.weight", Offset: -100, Size: 100}},
		{"NegativeSize", TensorMeta{Name: "enc.1.weight", Offset: 0, Size: -100}},
		{"BothNegative", TensorMeta{Name: "enc.1.weight", Offset: -100, Size: -100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTensorOffsets([]TensorMeta{tt.tensor}, 500)
			if err == nil {
				t.Fatal("expected error for negative values, got nil")
			}
			if typ := validationType(t, err); typ != "negative_offset" {
				t.Errorf("expected negative_offset, got %s", typ)
			}
		})
	}
}

func TestValidateTensorOffsets_TooManyTensors(t *testing.T) {
	tensors := make([]TensorMeta, MaxTensorCount+1)
	for i := range tensors {
		tensors[i] = TensorMeta{Name: "t", Offset: int64(i * 100), Size: 100}
	}

	err := ValidateTensorOffsets(tensors, int64(len(tensors)*100))
	if err == nil {
		t.Fatal("expected error for too many tensors, got nil")
	}
	if typ := validationType(t, err); typ != "too_many_tensors" {
		t.Errorf("expected too_many_tensors, got %s", typ)
	}
}

func TestValidateTensorName_Rejected(t *testing.T) {
	badNames := []string{
		"../../../etc/passwd",
		"..\\..\\windows\\system32",
		"weights/../secret",
		"enc/0/weight",
		"enc\\0\\weight",
		"weight\x00hidden",
		strings.Repeat("a", MaxTensorNameLen+1),
	}

	for _, name := range badNames {
		t.Run(name, func(t *testing.T) {
			err := ValidateTensorName(name)
			if err == nil {
				t.Fatalf("expected error for name %q, got nil", name)
			}
			typ := validationType(t, err)
			if typ != "invalid_name" && typ != "name_too_long" {
				t.Errorf("expected invalid_name or name_too_long, got %s", typ)
			}
		})
	}
}

func TestValidateTensorName_Accepted(t *testing.T) {
	goodNames := []string{
		"warp",
		"enc.0.0.weight",
		"time_embed_0_bias",
		"warp-field",
		"optimizer:state",
		"ENC",
		"dec_block_3",
	}

	for _, name := range goodNames {
		t.Run(name, func(t *testing.T) {
			if err := ValidateTensorName(name); err != nil {
				t.Errorf("expected name %q to validate, got: %v", name, err)
			}
		})
	}
}

func TestValidateHeader_Levels(t *testing.T) {
	overlapping := Header{
		Tensors: []TensorMeta{
			{Name: "enc.0.0.weight", Offset: 0, Size: 100},
			{Name: "enc.0.0.bias", Offset: 50, Size: 100},
		},
	}

	// Strict catches the overlap, normal skips the offset scan, and
	// none skips everything including name checks.
	if err := ValidateHeader(&overlapping, 200, ValidationStrict); err == nil {
		t.Error("strict validation should reject overlapping tensors")
	}
	if err := ValidateHeader(&overlapping, 200, ValidationNormal); err != nil {
		t.Errorf("normal validation skips the offset scan, got: %v", err)
	}

	hostile := Header{
		Tensors: []TensorMeta{
			{Name: "../../../etc/passwd", Offset: -1000, Size: -1000},
		},
	}
	if err := ValidateHeader(&hostile, 100, ValidationNone); err != nil {
		t.Errorf("ValidationNone should skip all checks, got: %v", err)
	}
	if err := ValidateHeader(&hostile, 100, ValidationNormal); err == nil {
		t.Error("normal validation should still reject traversal names")
	}
}

func TestValidateHeader_Valid(t *testing.T) {
	header := Header{
		Tensors: []TensorMeta{
			{Name: "enc.0.0.weight", Offset: 0, Size: 100},
			{Name: "enc.0.0.bias", Offset: 100, Size: 100},
		},
		Metadata: map[string]string{"source": "fixed_round3.safetensors"},
	}
	if err := ValidateHeader(&header, 200, ValidationStrict); err != nil {
		t.Errorf("valid header should pass strict validation, got: %v", err)
	}
}

func TestValidationError_Messages(t *testing.T) {
	tests := []struct {
		name string
		err  *ValidationError
		want string
	}{
		{
			name: "SingleTensor",
			err: &ValidationError{
				Type:    "out_of_bounds",
				Tensor:  "warp.field",
				Details: "offset 100 + size 200 > data_size 250",
			},
			want: `out_of_bounds: tensor "warp.field": offset 100 + size 200 > data_size 250`,
		},
		{
			name: "TensorPair",
			err: &ValidationError{
				Type:    "offset_overlap",
				Tensor:  "enc.0.0.weight",
				Tensor2: "enc.0.0.bias",
				Details: "regions [0-100] and [50-150] overlap",
			},
			want: `offset_overlap: tensors "enc.0.0.weight" and "enc.0.0.bias": regions [0-100] and [50-150] overlap`,
		},
		{
			name: "NoTensor",
			err: &ValidationError{
				Type:    "too_many_tensors",
				Details: "got 100001, max 100000",
			},
			want: "too_many_tensors: got 100001, max 100000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func FuzzValidateTensorName(f *testing.F) {
	f.Add("enc.0.0.weight")
	f.Add("../malicious")
	f.Add("path/to/tensor")
	f.Add(strings.Repeat("a", MaxTensorNameLen))
	f.Add("\x00null_byte")
	f.Add("..\\windows")

	f.Fuzz(func(_ *testing.T, name string) {
		// Must return an error or nil, never panic.
		_ = ValidateTensorName(name)
	})
}

func FuzzValidateTensorOffsets(f *testing.F) {
	f.Add(int64(0), int64(100), int64(200))
	f.Add(int64(-100), int64(50), int64(1000))
	f.Add(int64(100), int64(-50), int64(1000))

	f.Fuzz(func(_ *testing.T, offset, size, dataSize int64) {
		tensors := []TensorMeta{{Name: "warp.field", Offset: offset, Size: size}}
		_ = ValidateTensorOffsets(tensors, dataSize)
	})
}
