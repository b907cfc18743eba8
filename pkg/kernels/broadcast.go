package kernels

import (
	"fmt"

	"github.com/orneryd/onnx2code/pkg/onnxir"
	"github.com/orneryd/onnx2code/pkg/registry"
)

var broadcastSymbols = map[string]string{
	"Add": "+", "Sub": "-", "Mul": "*", "Div": "/",
}

// Broadcastable implements Add/Sub/Mul/Div between a tensor and either a
// scalar or an operand broadcastable to the output (right-aligned, so a
// lower rank is accepted), grounded on
// original_source/onnx2code/ops/broadcastable.py. The reference's general
// case walks both operand shapes with numpy's nditer(external_loop=True)
// to find maximal consecutive runs; this port reproduces the same
// structural idea directly over the output's dimensions, since Go has no
// nditer equivalent: for every dimension where b's shape entry equals the
// output's (not broadcast on that axis), the b-side index advances;
// where b's shape entry is 1, it stays fixed. The innermost loop is
// always a flat, consecutive run over whichever trailing dimensions both
// operands share, matching the "x is always consecutive" invariant the
// original asserts.
type Broadcastable struct {
	node     CallNode
	a, b, out *onnxir.TensorRecord
	symbol   string
	bScalar  bool
}

func NewBroadcastable() registry.Variant { return &Broadcastable{} }

func (k *Broadcastable) Tags() []string { return []string{"c", "broadcast"} }
func (k *Broadcastable) Priority() int  { return 1 }

func (k *Broadcastable) Accept(n registry.Node) error {
	cn, err := asNode(n)
	if err != nil {
		return err
	}
	symbol, ok := broadcastSymbols[cn.Node.OpType]
	if !ok {
		return rejectf("Broadcastable: unsupported op type %s", cn.Node.OpType)
	}
	if len(cn.Inputs) != 2 || len(cn.Outputs) != 1 {
		return rejectf("%s: expected exactly two inputs and one output", cn.Node.OpType)
	}
	a, b, out := cn.Inputs[0], cn.Inputs[1], cn.Outputs[0]
	if !shapesEqual(a.Shape, out.Shape) {
		return rejectf("%s: first operand shape %v must match output shape %v", cn.Node.OpType, a.Shape, out.Shape)
	}
	bScalar := b.Size == 1
	if !bScalar {
		if len(b.Shape) > len(out.Shape) {
			return rejectf("%s: second operand rank %d exceeds output rank %d", cn.Node.OpType, len(b.Shape), len(out.Shape))
		}
		aligned := alignShape(b.Shape, len(out.Shape))
		for i, dim := range aligned {
			if dim != 1 && dim != out.Shape[i] {
				return rejectf("%s: second operand shape %v is not broadcastable to output shape %v", cn.Node.OpType, b.Shape, out.Shape)
			}
		}
	}

	k.node = cn
	k.a, k.b, k.out = a, b, out
	k.symbol = symbol
	k.bScalar = bScalar
	return nil
}

func (k *Broadcastable) Call() onnxir.OperationCall {
	return onnxir.OperationCall{
		SignatureName:   k.node.Node.OpType,
		SignatureParams: []any{append([]int{}, k.out.Shape...), k.bScalar, append([]int{}, k.b.Shape...)},
		ParamOrder:      []string{"A", "B", "OUT"},
		Inputs:          []*onnxir.TensorRecord{k.a, k.b},
		Outputs:         []*onnxir.TensorRecord{k.out},
	}
}

func (k *Broadcastable) Impl() (onnxir.OperationImpl, error) {
	size := product(k.out.Shape)

	if k.bScalar {
		source := fmt.Sprintf(`
for (int i = 0; i < %d; i++) {
    OUT[i] = A[i] %s B[0];
}
`, size, k.symbol)
		return onnxir.OperationImpl{Language: onnxir.LangC, Source: source}, nil
	}

	outShape := k.out.Shape
	// Right-align b's shape to the output's rank (numpy broadcasting
	// semantics, spec §8 scenario 4): a lower-rank operand is treated as
	// though padded with leading size-1 dimensions. Strides are computed
	// directly on the padded shape too, since a leading size-1 dimension
	// never changes the stride of the dimensions that follow it.
	bShape := alignShape(k.b.Shape, len(outShape))
	outStrides := computeStrides(outShape)
	bStrides := computeStrides(bShape)

	// Find the longest trailing run of dimensions where b is not
	// broadcast (its extent equals the output's); that run becomes the
	// innermost consecutive loop, matching the original's "x and y both
	// consecutive" fast path.
	run := 0
	for i := len(outShape) - 1; i >= 0; i-- {
		if bShape[i] != outShape[i] {
			break
		}
		run++
	}
	outerDims := len(outShape) - run
	runSize := 1
	for i := outerDims; i < len(outShape); i++ {
		runSize *= outShape[i]
	}

	var outerLoops []string
	var outOffset, bOffset string
	for i := 0; i < outerDims; i++ {
		outerLoops = append(outerLoops, fmt.Sprintf("for (int i%d = 0; i%d < %d; i%d++) {", i, i, outShape[i], i))
		outOffset += fmt.Sprintf(" + i%d * %d", i, outStrides[i])
		if bShape[i] == outShape[i] {
			bOffset += fmt.Sprintf(" + i%d * %d", i, bStrides[i])
		}
	}
	closeBraces := ""
	for range outerLoops {
		closeBraces += "}"
	}
	joinedLoops := ""
	for _, l := range outerLoops {
		joinedLoops += l + "\n"
	}
	if outOffset == "" {
		outOffset = "0"
	}
	if bOffset == "" {
		bOffset = "0"
	}

	source := fmt.Sprintf(`
%s
    int out_base = %s;
    int b_base = %s;
    for (int i = 0; i < %d; i++) {
        OUT[out_base + i] = A[out_base + i] %s B[b_base + i];
    }
%s
`, joinedLoops, outOffset, bOffset, runSize, k.symbol, closeBraces)

	return onnxir.OperationImpl{Language: onnxir.LangC, Source: source}, nil
}

// alignShape right-pads shape on the left with size-1 dimensions until
// it has rank entries, the same right-alignment numpy's broadcasting
// rules use. shape is returned unmodified when it already has rank (or
// more) dimensions.
func alignShape(shape []int, rank int) []int {
	if len(shape) >= rank {
		return shape
	}
	aligned := make([]int, rank)
	pad := rank - len(shape)
	for i := 0; i < pad; i++ {
		aligned[i] = 1
	}
	copy(aligned[pad:], shape)
	return aligned
}
