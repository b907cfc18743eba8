package kernels

import (
	"fmt"
	"strings"

	"github.com/orneryd/onnx2code/pkg/onnxir"
	"github.com/orneryd/onnx2code/pkg/registry"
)

// Transpose implements arbitrary-permutation transpose, grounded on
// original_source/onnx2code/ops/transpose.py's Transpose/TransposeC.
type Transpose struct {
	node      CallNode
	x, out    *onnxir.TensorRecord
	perm      []int
}

func NewTranspose() registry.Variant { return &Transpose{} }

func (k *Transpose) Tags() []string { return []string{"c", "transpose"} }
func (k *Transpose) Priority() int  { return 1 }

func (k *Transpose) Accept(n registry.Node) error {
	cn, err := asNode(n)
	if err != nil {
		return err
	}
	if len(cn.Inputs) != 1 || len(cn.Outputs) != 1 {
		return rejectf("Transpose: expected exactly one input and one output")
	}
	x, out := cn.Inputs[0], cn.Outputs[0]
	if x.Size != out.Size {
		return rejectf("Transpose: input size %d must equal output size %d", x.Size, out.Size)
	}

	rank := len(x.Shape)
	permAttr := cn.Node.AttrInts("perm", nil)
	perm := make([]int, rank)
	if len(permAttr) == rank {
		for i, p := range permAttr {
			perm[i] = int(p)
		}
	} else {
		for i := range perm {
			perm[i] = rank - 1 - i
		}
	}

	k.node = cn
	k.x, k.out = x, out
	k.perm = perm
	return nil
}

func (k *Transpose) Call() onnxir.OperationCall {
	return onnxir.OperationCall{
		SignatureName:   "Transpose",
		SignatureParams: []any{append([]int{}, k.x.Shape...), append([]int{}, k.perm...)},
		ParamOrder:      []string{"X", "OUT"},
		Inputs:          []*onnxir.TensorRecord{k.x},
		Outputs:         []*onnxir.TensorRecord{k.out},
	}
}

func (k *Transpose) Impl() (onnxir.OperationImpl, error) {
	outShape := k.out.Shape
	inStrides := computeStrides(k.x.Shape)
	outStrides := computeStrides(outShape)

	var loops []string
	var outOffset, inOffset string
	for d, dim := range outShape {
		loops = append(loops, fmt.Sprintf("for (int i%d = 0; i%d < %d; i%d++) {", d, d, dim, d))
		outOffset += fmt.Sprintf(" + i%d * %d", d, outStrides[d])
		inOffset += fmt.Sprintf(" + i%d * %d", d, inStrides[k.perm[d]])
	}
	closeBraces := strings.Repeat("}", len(loops))

	source := fmt.Sprintf(`
%s
    OUT[%s] = X[%s];
%s
`, strings.Join(loops, "\n"), outOffset, inOffset, closeBraces)

	return onnxir.OperationImpl{Language: onnxir.LangC, Source: source}, nil
}
