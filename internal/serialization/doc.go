// Package serialization implements the .cwpt container that cellwarp
// uses for model weights and training checkpoints, plus a safetensors
// writer for handing trained registration nets to Python pipelines.
//
// A v1 file is a 20-byte prefix (magic "CWPT", version, flags, header
// size, all little-endian), a JSON header describing every tensor, and
// the packed tensor data starting on a 64-byte boundary. Tensors are
// laid out in sorted name order. v2 swaps the prefix for a fixed
// 64-byte header that also records the data section size and a SHA-256
// digest of it, so checkpoint corruption is caught at load time rather
// than mid-training.
//
// Three readers cover the access patterns that come up in practice:
// CellwarpReader seeks per tensor, MmapReader hands out zero-copy
// slices of a memory mapping, and ReadFrom decodes a v1 stream with no
// seeking at all.
//
// Typical round trip:
//
//	writer, err := serialization.NewCellwarpWriter("warp.cwpt")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer writer.Close()
//	if err := writer.WriteStateDictV2(model.StateDict(), "DiffeoNet", nil); err != nil {
//	    log.Fatal(err)
//	}
//
//	reader, err := serialization.NewCellwarpReader("warp.cwpt")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer reader.Close()
//	stateDict, err := reader.ReadStateDict(backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	model.LoadStateDict(stateDict)
package serialization
