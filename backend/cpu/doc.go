// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go CPU backend for tensor operations.
//
// # Overview
//
// This package implements a CPU backend with:
//   - Pure Go implementation (no CGO)
//   - Im2col algorithm for efficient convolutions
//   - Bilinear grid sampling for dense displacement warps
//   - Float32 and Float64 support
//   - Batch processing parallelized across cores
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/cellwarp/backend/cpu"
//	    "github.com/born-ml/cellwarp/tensor"
//	    "github.com/born-ml/cellwarp/nn"
//	)
//
//	func main() {
//	    // Create CPU backend
//	    backend := cpu.New()
//
//	    // Use with tensors
//	    x := tensor.Zeros[float32](tensor.Shape{1, 3, 64, 64}, backend)
//
//	    // Use with neural networks
//	    model := nn.NewConv2D(3, 16, 3, 3, 1, 1, true, backend)
//	    output := model.Forward(x)
//	}
//
// # Performance
//
// The CPU backend is optimized for training on CPUs:
//   - Im2col-based convolutions
//   - Convolution, pooling, and grid sampling kernels fan out across
//     cores via the internal worker pool
//
// # Thread Safety
//
// The CPU backend is safe for concurrent use. Each tensor operation
// is isolated and does not share mutable state.
package cpu
