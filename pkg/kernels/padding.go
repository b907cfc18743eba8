package kernels

import (
	"math"

	"github.com/orneryd/onnx2code/pkg/onnxir"
)

// resolvePadding returns (padTop, padLeft, padBottom, padRight) for one
// spatial Conv/MaxPool/AveragePool node. An explicit pads attribute always
// wins; otherwise auto_pad is resolved per the ONNX rule
// pad = max(0, (ceil(in/stride)-1)*stride + kernel - in), split between
// head and tail according to mode. Grounded on
// original_source/onnx2code/ops/conv.py's delegation to resolve_padding
// (whose body the retrieved source tree does not carry, so the split here
// follows the ONNX operator spec's own SAME_UPPER/SAME_LOWER wording
// directly: SAME_UPPER rounds the extra pixel to the tail, SAME_LOWER to
// the head).
func resolvePadding(node onnxir.Node, inH, inW, kh, kw, strideH, strideW int) (padTop, padLeft, padBottom, padRight int, err error) {
	if pads := node.AttrInts("pads", nil); len(pads) == 4 {
		return int(pads[0]), int(pads[1]), int(pads[2]), int(pads[3]), nil
	}

	switch autoPad := node.AttrString("auto_pad", "NOTSET"); autoPad {
	case "", "NOTSET", "VALID":
		return 0, 0, 0, 0, nil
	case "SAME_UPPER", "SAME_LOWER":
		topH, botH := splitSamePad(samePadTotal(inH, kh, strideH), autoPad)
		topW, botW := splitSamePad(samePadTotal(inW, kw, strideW), autoPad)
		return topH, topW, botH, botW, nil
	default:
		return 0, 0, 0, 0, rejectf("auto_pad: unsupported mode %q", autoPad)
	}
}

// samePadTotal computes the total padding needed along one spatial
// dimension so the output extent is ceil(in/stride), per spec §4.5.2.
func samePadTotal(in, kernel, stride int) int {
	outExtent := int(math.Ceil(float64(in) / float64(stride)))
	pad := (outExtent-1)*stride + kernel - in
	if pad < 0 {
		return 0
	}
	return pad
}

// splitSamePad divides a total padding amount between the leading (head)
// and trailing (tail) side of a dimension. SAME_UPPER puts any odd
// remainder at the tail; SAME_LOWER puts it at the head.
func splitSamePad(total int, mode string) (head, tail int) {
	if mode == "SAME_LOWER" {
		tail = total / 2
		head = total - tail
		return head, tail
	}
	head = total / 2
	tail = total - head
	return head, tail
}
