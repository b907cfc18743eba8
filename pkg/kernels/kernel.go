// Package kernels is the GEMM/convolution numerical kernel library and the
// home of every other operator implementation (spec component C6): pooling,
// softmax, elementwise, broadcast arithmetic, concat, transpose and
// identity, each exposed as one or more tagged, prioritized variants that
// plug into pkg/registry.
//
// Numerical semantics (attribute handling, rejection rules, loop shapes)
// are grounded on original_source/onnx2code/ops/*.py wherever it has a
// body to port: that reference's C-emission strategy is carried into Go
// code that builds C source text. Exceptions: the auto_pad head/tail split
// in padding.go follows the ONNX operator wording, and Sum and IdentityAsm
// have no reference body and are authored fresh. The GEMM loop-tiling parameter tuple and the
// im2col reduction are grounded on spec.md §4.5.1/§4.5.2 directly, since
// the retrieved original_source copy keeps its tiling microkernel bodies
// in separate .cpp files that weren't part of the pack.
package kernels

import (
	"fmt"

	"github.com/orneryd/onnx2code/pkg/onnxir"
	"github.com/orneryd/onnx2code/pkg/registry"
)

// CallNode is the view of a graph node + its resolved tensor records that
// every kernel Variant parses against. It satisfies registry.Node.
type CallNode struct {
	Node    onnxir.Node
	Inputs  []*onnxir.TensorRecord
	Outputs []*onnxir.TensorRecord
}

// OpType implements registry.Node.
func (c CallNode) OpType() string { return c.Node.OpType }

// Kernel is the full contract a kernel variant offers the emission driver:
// registry.Variant (Tags/Priority/Accept) plus the two outputs Accept
// leaves it ready to produce.
type Kernel interface {
	registry.Variant
	Call() onnxir.OperationCall
	Impl() (onnxir.OperationImpl, error)
}

// rejectf builds an onnxir.ErrUnsupportedConfiguration-wrapping error with
// a formatted reason, the idiom every variant's Accept uses to reject.
func rejectf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{onnxir.ErrUnsupportedConfiguration}, args...)...)
}

func asNode(n registry.Node) (CallNode, error) {
	cn, ok := n.(CallNode)
	if !ok {
		return CallNode{}, rejectf("expected kernels.CallNode, got %T", n)
	}
	return cn, nil
}
