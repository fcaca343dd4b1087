package serialization

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
)

func TestComputeChecksum_Deterministic(t *testing.T) {
	patch := []byte("fixed patch bytes")
	if ComputeChecksum(patch) != ComputeChecksum(patch) {
		t.Error("same input must hash to the same digest")
	}
	if ComputeChecksum(patch) == ComputeChecksum([]byte("moving patch bytes")) {
		t.Error("different inputs should not collide")
	}
}

func TestComputeChecksumReader_MatchesDirect(t *testing.T) {
	data := bytes.Repeat([]byte{0x5A}, 4096)

	fromReader, err := ComputeChecksumReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ComputeChecksumReader: %v", err)
	}
	if fromReader != ComputeChecksum(data) {
		t.Error("streaming digest should match the in-memory digest")
	}
}

func TestValidateChecksum(t *testing.T) {
	sum := ComputeChecksum([]byte("warp field"))
	if err := ValidateChecksum(sum, sum); err != nil {
		t.Errorf("matching digests should validate, got: %v", err)
	}

	tampered := sum
	tampered[0] ^= 0xFF
	if err := ValidateChecksum(sum, tampered); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("expected ErrChecksumMismatch, got: %v", err)
	}
}

func TestComputeChecksum_KnownVectors(t *testing.T) {
	vectors := []struct {
		input string
		want  string
	}{
		{"", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"hello world", "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"},
	}

	for _, v := range vectors {
		sum := ComputeChecksum([]byte(v.input))
		if got := hex.EncodeToString(sum[:]); got != v.want {
			t.Errorf("sha256(%q) = %s, want %s", v.input, got, v.want)
		}
	}
}
