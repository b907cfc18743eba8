package kernels

import (
	"fmt"

	"github.com/orneryd/onnx2code/pkg/onnxir"
	"github.com/orneryd/onnx2code/pkg/registry"
)

// poolingShape parses MaxPool/AveragePool, grounded on
// original_source/onnx2code/ops/pooling.py. count_include_pad != 0 is
// rejected outright (the original never implements the padded-average
// variant either), per the decision recorded in DESIGN.md.
type poolingShape struct {
	node CallNode
	x, out *onnxir.TensorRecord

	average bool

	c, inH, inW, outH, outW int
	kh, kw                  int
	strideH, strideW        int
	padTop, padLeft         int
}

func parsePoolingShape(n registry.Node) (poolingShape, error) {
	cn, err := asNode(n)
	if err != nil {
		return poolingShape{}, err
	}
	if len(cn.Inputs) != 1 || len(cn.Outputs) != 1 {
		return poolingShape{}, rejectf("Pooling: expected exactly one input and one output")
	}

	average := cn.Node.OpType == "AveragePool"
	if cn.Node.AttrInt("count_include_pad", 0) != 0 {
		return poolingShape{}, rejectf("Pooling: count_include_pad != 0 not supported")
	}

	x := cn.Inputs[0]
	out := cn.Outputs[0]
	if len(x.Shape) != 4 {
		return poolingShape{}, rejectf("Pooling: expected rank-4 input, got %v", x.Shape)
	}

	kernelShape := cn.Node.AttrInts("kernel_shape", nil)
	if len(kernelShape) != 2 {
		return poolingShape{}, rejectf("Pooling: kernel_shape must have 2 entries")
	}
	strides := cn.Node.AttrInts("strides", []int64{1, 1})
	if len(strides) != 2 {
		return poolingShape{}, rejectf("Pooling: expected 2-D strides")
	}

	inH, inW := x.Shape[2], x.Shape[3]
	kh, kw := int(kernelShape[0]), int(kernelShape[1])
	padTop, padLeft, padBottom, padRight, err := resolvePadding(cn.Node, inH, inW, kh, kw, int(strides[0]), int(strides[1]))
	if err != nil {
		return poolingShape{}, err
	}

	shape := poolingShape{
		node:      cn,
		x:         x,
		out:       out,
		average:   average,
		c:         x.Shape[1],
		inH:       inH,
		inW:       inW,
		kh:        kh,
		kw:        kw,
		strideH:   int(strides[0]),
		strideW:   int(strides[1]),
		padTop:    padTop,
		padLeft:   padLeft,
	}
	shape.outH = (shape.inH+padTop+padBottom-shape.kh)/shape.strideH + 1
	shape.outW = (shape.inW+padLeft+padRight-shape.kw)/shape.strideW + 1

	if len(out.Shape) != 4 || out.Shape[1] != shape.c || out.Shape[2] != shape.outH || out.Shape[3] != shape.outW {
		return poolingShape{}, rejectf("Pooling: output shape %v inconsistent with computed (%d,%d,%d,%d)", out.Shape, shape.c, shape.c, shape.outH, shape.outW)
	}
	return shape, nil
}

func (s poolingShape) call() onnxir.OperationCall {
	name := "MaxPool"
	if s.average {
		name = "AveragePool"
	}
	return onnxir.OperationCall{
		SignatureName:   name,
		SignatureParams: []any{s.c, s.inH, s.inW, s.outH, s.outW, s.kh, s.kw, s.strideH, s.strideW, s.padTop, s.padLeft},
		ParamOrder:      []string{"X", "OUT"},
		Inputs:          []*onnxir.TensorRecord{s.x},
		Outputs:         []*onnxir.TensorRecord{s.out},
	}
}

// Pooling implements MaxPool and AveragePool with the single C
// nested-loop body from original_source's PoolingC, branching only on the
// accumulator seed and the final divide.
type Pooling struct {
	shape poolingShape
}

func NewPooling() registry.Variant { return &Pooling{} }

func (k *Pooling) Tags() []string { return []string{"c", "pooling"} }
func (k *Pooling) Priority() int  { return 1 }

func (k *Pooling) Accept(n registry.Node) error {
	shape, err := parsePoolingShape(n)
	if err != nil {
		return err
	}
	k.shape = shape
	return nil
}

func (k *Pooling) Call() onnxir.OperationCall { return k.shape.call() }

func (k *Pooling) Impl() (onnxir.OperationImpl, error) {
	s := k.shape

	accumulate := "if (v > acc) acc = v;"
	seed := "-INFINITY"
	finalize := ""
	if s.average {
		accumulate = "acc += v; count++;"
		seed = "0.0f"
		finalize = "acc /= (float) count;"
	}

	countDecl := ""
	if s.average {
		countDecl = "int count = 0;"
	}

	source := fmt.Sprintf(`
for (int c = 0; c < %d; c++) {
    for (int h = 0; h < %d; h++) {
        for (int w = 0; w < %d; w++) {
            float acc = %s;
            %s
            for (int kh = 0; kh < %d; kh++) {
                int ih = h * %d - %d + kh;
                if (ih < 0 || ih >= %d) continue;
                for (int kw = 0; kw < %d; kw++) {
                    int iw = w * %d - %d + kw;
                    if (iw < 0 || iw >= %d) continue;
                    float v = X[c * %d + ih * %d + iw];
                    %s
                }
            }
            %s
            OUT[c * %d + h * %d + w] = acc;
        }
    }
}
`,
		s.c, s.outH, s.outW, seed, countDecl,
		s.kh, s.strideH, s.padTop, s.inH,
		s.kw, s.strideW, s.padLeft, s.inW,
		s.inH*s.inW, s.inW,
		accumulate,
		finalize,
		s.outH*s.outW, s.outW)

	return onnxir.OperationImpl{Language: onnxir.LangC, Source: source}, nil
}
