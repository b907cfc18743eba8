package kernels

import (
	"fmt"
	"strings"

	"github.com/orneryd/onnx2code/pkg/onnxir"
	"github.com/orneryd/onnx2code/pkg/registry"
)

// Softmax implements the three-pass (max, exp-and-sum, divide) softmax
// along one axis, grounded on original_source/onnx2code/ops/softmax.py.
type Softmax struct {
	node CallNode
	x, out *onnxir.TensorRecord
	axis   int
	shape  []int
}

func NewSoftmax() registry.Variant { return &Softmax{} }

func (k *Softmax) Tags() []string { return []string{"c", "softmax"} }
func (k *Softmax) Priority() int  { return 1 }

func (k *Softmax) Accept(n registry.Node) error {
	cn, err := asNode(n)
	if err != nil {
		return err
	}
	if len(cn.Inputs) != 1 || len(cn.Outputs) != 1 {
		return rejectf("Softmax: expected exactly one input and one output")
	}
	x := cn.Inputs[0]
	axis := int(cn.Node.AttrInt("axis", -1))
	if axis < 0 {
		axis += len(x.Shape)
	}
	if axis < 0 || axis >= len(x.Shape) {
		return rejectf("Softmax: axis out of range for shape %v", x.Shape)
	}
	if !shapesEqual(x.Shape, cn.Outputs[0].Shape) {
		return rejectf("Softmax: output shape must match input shape")
	}
	k.node = cn
	k.x = x
	k.out = cn.Outputs[0]
	k.axis = axis
	k.shape = x.Shape
	return nil
}

func (k *Softmax) Call() onnxir.OperationCall {
	return onnxir.OperationCall{
		SignatureName:   "Softmax",
		SignatureParams: []any{append([]int{}, k.shape...), k.axis},
		ParamOrder:      []string{"X", "OUT"},
		Inputs:          []*onnxir.TensorRecord{k.x},
		Outputs:         []*onnxir.TensorRecord{k.out},
	}
}

func (k *Softmax) Impl() (onnxir.OperationImpl, error) {
	shape := k.shape
	strides := computeStrides(shape)
	axisLen := shape[k.axis]
	axisStride := strides[k.axis]

	var outerLoops, outerIdx []string
	for i, dim := range shape {
		if i == k.axis {
			continue
		}
		outerLoops = append(outerLoops, fmt.Sprintf("for (int i%d = 0; i%d < %d; i%d++) {", i, i, dim, i))
		outerIdx = append(outerIdx, fmt.Sprintf("i%d * %d", i, strides[i]))
	}
	base := strings.Join(outerIdx, " + ")
	if base == "" {
		base = "0"
	}
	closeBraces := strings.Repeat("}", len(outerLoops))

	source := fmt.Sprintf(`
%s
    int base = %s;
    float max_val = X[base];
    for (int a = 1; a < %d; a++) {
        float v = X[base + a * %d];
        if (v > max_val) max_val = v;
    }
    float sum = 0.0f;
    for (int a = 0; a < %d; a++) {
        float v = expf(X[base + a * %d] - max_val);
        OUT[base + a * %d] = v;
        sum += v;
    }
    for (int a = 0; a < %d; a++) {
        OUT[base + a * %d] /= sum;
    }
%s
`,
		strings.Join(outerLoops, "\n"),
		base,
		axisLen, axisStride,
		axisLen, axisStride, axisStride,
		axisLen, axisStride,
		closeBraces)

	return onnxir.OperationImpl{Language: onnxir.LangC, Source: source}, nil
}
