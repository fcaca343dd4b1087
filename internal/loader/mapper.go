package loader

import (
	"fmt"
	"strconv"
	"strings"
)

// Architecture names. These match the model registry identifiers.
const (
	ArchitectureUNet    = "unet"
	ArchitectureShallow = "shallow"
)

// WeightMapper maps externally exported weight names to cellwarp names.
type WeightMapper interface {
	// MapName converts an exported weight name to the cellwarp name.
	// An empty mapped name with a nil error means the entry carries no
	// model weight (e.g. normalization bookkeeping buffers) and should
	// be skipped.
	MapName(name string) (string, error)

	// Architecture returns the model registry name (e.g., "unet", "shallow").
	Architecture() string
}

// stripWrapperPrefix removes the wrapper prefixes PyTorch exports commonly
// carry: "module." from DataParallel and "net." from a predictor wrapper
// that holds the backbone as a single submodule.
func stripWrapperPrefix(name string) string {
	name = strings.TrimPrefix(name, "module.")
	name = strings.TrimPrefix(name, "net.")
	return name
}

// isBufferName reports whether a weight name refers to a normalization
// bookkeeping buffer rather than a trainable parameter.
func isBufferName(name string) bool {
	return strings.HasSuffix(name, "num_batches_tracked") ||
		strings.HasSuffix(name, "running_mean") ||
		strings.HasSuffix(name, "running_var")
}

// UNetMapper maps exported UNet weight names to cellwarp standard names.
//
// The canonical scheme is the one the bundled UNet produces itself:
//   - enc.{level}.{idx}.{param} for encoder blocks
//   - bottleneck.{idx}.{param}
//   - dec.{level}.{idx}.{param} for decoder blocks (dec.0 is applied first,
//     at the deepest resolution)
//   - head.{param} for the final 1x1 projection
type UNetMapper struct{}

// NewUNetMapper creates a new UNet weight mapper.
func NewUNetMapper() *UNetMapper {
	return &UNetMapper{}
}

// MapName converts exported UNet weight names to cellwarp standard names.
// Descriptive block names used by common PyTorch UNet implementations are
// resolved to the canonical scheme:
//   - inc.{rest} -> enc.0.{rest}
//   - down{N}.{rest} -> enc.{N}.{rest}
//   - mid.{rest} -> bottleneck.{rest}
//   - up{N}.{rest} -> dec.{N-1}.{rest}
//   - outc.{rest} / final.{rest} -> head.{rest}
func (m *UNetMapper) MapName(name string) (string, error) {
	name = stripWrapperPrefix(name)

	if isBufferName(name) {
		return "", nil
	}

	// Already canonical
	if strings.HasPrefix(name, "enc.") || strings.HasPrefix(name, "dec.") ||
		strings.HasPrefix(name, "bottleneck.") || strings.HasPrefix(name, "head.") {
		return name, nil
	}

	// Input block
	if strings.HasPrefix(name, "inc.") {
		return "enc.0." + strings.TrimPrefix(name, "inc."), nil
	}

	// Bottleneck
	if strings.HasPrefix(name, "mid.") {
		return "bottleneck." + strings.TrimPrefix(name, "mid."), nil
	}

	// Output projection
	if strings.HasPrefix(name, "outc.") {
		return "head." + strings.TrimPrefix(name, "outc."), nil
	}
	if strings.HasPrefix(name, "final.") {
		return "head." + strings.TrimPrefix(name, "final."), nil
	}

	// Numbered encoder/decoder blocks
	if strings.HasPrefix(name, "down") || strings.HasPrefix(name, "up") {
		return m.mapNumberedBlock(name)
	}

	return name, nil // Return original if no mapping found
}

// mapNumberedBlock maps down{N}/up{N} block names.
func (m *UNetMapper) mapNumberedBlock(name string) (string, error) {
	parts := strings.SplitN(name, ".", 2)
	if len(parts) != 2 {
		return name, nil
	}
	block, rest := parts[0], parts[1]

	if strings.HasPrefix(block, "down") {
		idx, err := strconv.Atoi(strings.TrimPrefix(block, "down"))
		if err != nil || idx < 0 {
			return name, nil
		}
		return fmt.Sprintf("enc.%d.%s", idx, rest), nil
	}

	if strings.HasPrefix(block, "up") {
		idx, err := strconv.Atoi(strings.TrimPrefix(block, "up"))
		if err != nil || idx < 1 {
			return name, nil
		}
		// up1 is the first decoder block applied, which is dec.0
		return fmt.Sprintf("dec.%d.%s", idx-1, rest), nil
	}

	return name, nil
}

// Architecture returns "unet".
func (m *UNetMapper) Architecture() string {
	return ArchitectureUNet
}

// ShallowMapper maps exported shallow predictor weight names to cellwarp
// standard names. The shallow baseline is a conv/relu/conv/relu/conv stack,
// so the canonical names are sequential indices: 0.weight, 2.bias, 4.weight.
type ShallowMapper struct{}

// NewShallowMapper creates a new shallow predictor weight mapper.
func NewShallowMapper() *ShallowMapper {
	return &ShallowMapper{}
}

// MapName converts exported shallow predictor weight names.
// Named convolutions map onto their stack positions:
//   - conv1.{param} -> 0.{param}
//   - conv2.{param} -> 2.{param}
//   - conv3.{param} -> 4.{param}
func (m *ShallowMapper) MapName(name string) (string, error) {
	name = stripWrapperPrefix(name)

	if isBufferName(name) {
		return "", nil
	}

	parts := strings.SplitN(name, ".", 2)
	if len(parts) != 2 {
		return name, nil
	}
	block, rest := parts[0], parts[1]

	if strings.HasPrefix(block, "conv") {
		idx, err := strconv.Atoi(strings.TrimPrefix(block, "conv"))
		if err != nil || idx < 1 {
			return name, nil
		}
		// ReLU sits between convolutions, so conv N lives at index 2*(N-1)
		return fmt.Sprintf("%d.%s", 2*(idx-1), rest), nil
	}

	return name, nil
}

// Architecture returns "shallow".
func (m *ShallowMapper) Architecture() string {
	return ArchitectureShallow
}

// DetectArchitecture attempts to detect the predictor architecture from
// weight names. Encoder/decoder block names indicate a UNet; anything else
// is treated as the shallow baseline.
func DetectArchitecture(names []string) string {
	for _, name := range names {
		n := stripWrapperPrefix(name)
		if strings.HasPrefix(n, "enc.") || strings.HasPrefix(n, "dec.") ||
			strings.HasPrefix(n, "bottleneck.") || strings.HasPrefix(n, "inc.") ||
			strings.HasPrefix(n, "down") || strings.HasPrefix(n, "up") {
			return ArchitectureUNet
		}
	}
	return ArchitectureShallow
}

// GetMapper returns the appropriate weight mapper for an architecture.
func GetMapper(architecture string) WeightMapper {
	switch architecture {
	case ArchitectureShallow:
		return NewShallowMapper()
	default:
		return NewUNetMapper() // UNet is the common case
	}
}
