package kernels

import (
	"fmt"
	"strings"

	"github.com/orneryd/onnx2code/pkg/onnxir"
	"github.com/orneryd/onnx2code/pkg/registry"
)

// Concat implements variadic concatenation along one axis, grounded on
// original_source/onnx2code/ops/concat.py's Concat/ConcatC.
type Concat struct {
	node    CallNode
	inputs  []*onnxir.TensorRecord
	out     *onnxir.TensorRecord
	axis    int
}

func NewConcat() registry.Variant { return &Concat{} }

func (k *Concat) Tags() []string { return []string{"c", "concat"} }
func (k *Concat) Priority() int  { return 1 }

func (k *Concat) Accept(n registry.Node) error {
	cn, err := asNode(n)
	if err != nil {
		return err
	}
	if len(cn.Inputs) < 1 || len(cn.Outputs) != 1 {
		return rejectf("Concat: expected at least one input and one output")
	}
	axisAttr, ok := cn.Node.Attr("axis")
	if !ok {
		return rejectf("Concat: missing required axis attribute")
	}
	axis := int(axisAttr.Int)
	rank := len(cn.Inputs[0].Shape)
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		return rejectf("Concat: axis out of range for rank %d", rank)
	}
	for _, in := range cn.Inputs {
		if len(in.Shape) != rank {
			return rejectf("Concat: all inputs must share rank %d", rank)
		}
	}

	k.node = cn
	k.inputs = cn.Inputs
	k.out = cn.Outputs[0]
	k.axis = axis
	return nil
}

func (k *Concat) Call() onnxir.OperationCall {
	params := make([]string, len(k.inputs))
	// Each input's own shape must be part of the signature, not just the
	// output shape/axis/count: two Concat nodes can share all three while
	// partitioning the axis differently (e.g. 2+1+3 vs 2+2+2), which
	// produces different Impl bodies and must not mangle to the same name
	// (original_source/onnx2code/ops/concat.py:24's sig_params includes
	// every input's shape for the same reason).
	inputShapes := make([]any, len(k.inputs))
	for i, in := range k.inputs {
		params[i] = fmt.Sprintf("A%d", i)
		inputShapes[i] = append([]int{}, in.Shape...)
	}
	sigParams := append([]any{append([]int{}, k.out.Shape...), k.axis, len(k.inputs)}, inputShapes...)
	return onnxir.OperationCall{
		SignatureName:   "Concat",
		SignatureParams: sigParams,
		ParamOrder:      append(params, "OUT"),
		Inputs:          k.inputs,
		Outputs:         []*onnxir.TensorRecord{k.out},
	}
}

func (k *Concat) Impl() (onnxir.OperationImpl, error) {
	outStrides := computeStrides(k.out.Shape)
	var blocks []string
	axisOffset := 0

	for idx, in := range k.inputs {
		strides := computeStrides(in.Shape)
		var loops []string
		var inOffset, outOffset string
		for d, dim := range in.Shape {
			loops = append(loops, fmt.Sprintf("for (int i%d = 0; i%d < %d; i%d++) {", d, d, dim, d))
			inOffset += fmt.Sprintf(" + i%d * %d", d, strides[d])
			if d == k.axis {
				outOffset += fmt.Sprintf(" + (i%d + %d) * %d", d, axisOffset, outStrides[d])
			} else {
				outOffset += fmt.Sprintf(" + i%d * %d", d, outStrides[d])
			}
		}
		closeBraces := strings.Repeat("}", len(loops))
		blocks = append(blocks, fmt.Sprintf(`
%s
    OUT[%s] = A%d[%s];
%s
`, strings.Join(loops, "\n"), outOffset, idx, inOffset, closeBraces))

		axisOffset += in.Shape[k.axis]
	}

	return onnxir.OperationImpl{Language: onnxir.LangC, Source: strings.Join(blocks, "\n")}, nil
}
