package tensor

import (
	"fmt"
	"testing"
)

func BenchmarkTensorCreation(b *testing.B) {
	backend := NewMockBackend()
	shape := Shape{128, 128}

	b.Run("Zeros", func(b *testing.B) {
		for b.Loop() {
			Zeros[float32](shape, backend)
		}
	})

	b.Run("Ones", func(b *testing.B) {
		for b.Loop() {
			Ones[float32](shape, backend)
		}
	})

	b.Run("Randn", func(b *testing.B) {
		for b.Loop() {
			Randn[float32](shape, backend)
		}
	})
}

func BenchmarkShapeOperations(b *testing.B) {
	lhs := Shape{128, 128}
	rhs := Shape{128, 128}

	b.Run("NumElements", func(b *testing.B) {
		for b.Loop() {
			lhs.NumElements()
		}
	})

	b.Run("ComputeStrides", func(b *testing.B) {
		for b.Loop() {
			lhs.ComputeStrides()
		}
	})

	b.Run("BroadcastShapes", func(b *testing.B) {
		for b.Loop() {
			_, _, _ = BroadcastShapes(lhs, rhs)
		}
	})

	b.Run("Validate", func(b *testing.B) {
		for b.Loop() {
			_ = lhs.Validate()
		}
	})
}

func BenchmarkElementwise(b *testing.B) {
	backend := NewMockBackend()

	for _, size := range []int{100, 1000, 10000} {
		x := Ones[float32](Shape{size}, backend)
		y := Ones[float32](Shape{size}, backend)

		b.Run(fmt.Sprintf("Add-%d", size), func(b *testing.B) {
			for b.Loop() {
				x.Add(y)
			}
		})

		b.Run(fmt.Sprintf("Mul-%d", size), func(b *testing.B) {
			for b.Loop() {
				x.Mul(y)
			}
		})
	}
}

func BenchmarkGridSample(b *testing.B) {
	backend := NewMockBackend()

	for _, size := range []int{32, 64, 128} {
		patch := Randn[float32](Shape{1, 1, size, size}, backend)
		field := Randn[float32](Shape{1, 2, size, size}, backend)

		b.Run(fmt.Sprintf("%dx%d", size, size), func(b *testing.B) {
			for b.Loop() {
				backend.GridSample(patch.Raw(), field.Raw())
			}
		})
	}
}

func BenchmarkReshape(b *testing.B) {
	backend := NewMockBackend()
	patch := Randn[float32](Shape{128, 128}, backend)

	b.Run("Flatten", func(b *testing.B) {
		for b.Loop() {
			patch.Reshape(16384)
		}
	})

	b.Run("Unflatten", func(b *testing.B) {
		flat := patch.Reshape(16384)
		for b.Loop() {
			flat.Reshape(128, 128)
		}
	})
}

func BenchmarkTensorAccess(b *testing.B) {
	backend := NewMockBackend()
	patch := Randn[float32](Shape{128, 128}, backend)

	b.Run("At", func(b *testing.B) {
		for b.Loop() {
			patch.At(64, 64)
		}
	})

	b.Run("Set", func(b *testing.B) {
		for b.Loop() {
			patch.Set(1.0, 64, 64)
		}
	})

	b.Run("Data", func(b *testing.B) {
		for b.Loop() {
			patch.Data()
		}
	})
}
