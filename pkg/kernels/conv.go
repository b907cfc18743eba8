package kernels

import (
	"fmt"

	"github.com/orneryd/onnx2code/pkg/onnxir"
	"github.com/orneryd/onnx2code/pkg/registry"
)

// convShape parses a Conv node, grounded on
// original_source/onnx2code/ops/conv.py's Conv.asserts()/parse().
// Input layout is NCHW, weight layout is (outC, inC, kh, kw).
type convShape struct {
	node CallNode

	x, w, bias, out *onnxir.TensorRecord
	hasBias         bool

	inC, inH, inW     int
	outC, outH, outW  int
	kh, kw            int
	strideH, strideW  int
	padTop, padLeft   int
	padBottom, padRight int
}

func parseConvShape(n registry.Node) (convShape, error) {
	cn, err := asNode(n)
	if err != nil {
		return convShape{}, err
	}
	if len(cn.Inputs) != 2 && len(cn.Inputs) != 3 {
		return convShape{}, rejectf("Conv: expected 2 or 3 inputs, got %d", len(cn.Inputs))
	}
	if len(cn.Outputs) != 1 {
		return convShape{}, rejectf("Conv: expected one output")
	}

	x := cn.Inputs[0]
	w := cn.Inputs[1]
	out := cn.Outputs[0]

	if len(x.Shape) != 4 || len(w.Shape) != 4 {
		return convShape{}, rejectf("Conv: expected rank-4 input/weight, got x=%v w=%v", x.Shape, w.Shape)
	}

	strides := cn.Node.AttrInts("strides", []int64{1, 1})
	if len(strides) != 2 {
		return convShape{}, rejectf("Conv: only 2-D strides supported, got %v", strides)
	}
	dilations := cn.Node.AttrInts("dilations", []int64{1, 1})
	if dilations[0] != 1 || dilations[1] != 1 {
		return convShape{}, rejectf("Conv: dilation != 1 not supported")
	}
	if cn.Node.AttrInt("group", 1) != 1 {
		return convShape{}, rejectf("Conv: grouped convolution not supported")
	}

	inH, inW := x.Shape[2], x.Shape[3]
	kh, kw := w.Shape[2], w.Shape[3]
	padTop, padLeft, padBottom, padRight, err := resolvePadding(cn.Node, inH, inW, kh, kw, int(strides[0]), int(strides[1]))
	if err != nil {
		return convShape{}, err
	}

	shape := convShape{
		node:      cn,
		x:         x,
		w:         w,
		out:       out,
		hasBias:   len(cn.Inputs) == 3,
		inC:       x.Shape[1],
		inH:       inH,
		inW:       inW,
		outC:      w.Shape[0],
		kh:        kh,
		kw:        kw,
		strideH:   int(strides[0]),
		strideW:   int(strides[1]),
		padTop:    padTop,
		padLeft:   padLeft,
		padBottom: padBottom,
		padRight:  padRight,
	}
	if shape.hasBias {
		shape.bias = cn.Inputs[2]
	}
	shape.outH = (shape.inH+shape.padTop+shape.padBottom-shape.kh)/shape.strideH + 1
	shape.outW = (shape.inW+shape.padLeft+shape.padRight-shape.kw)/shape.strideW + 1

	if len(out.Shape) != 4 || out.Shape[1] != shape.outC || out.Shape[2] != shape.outH || out.Shape[3] != shape.outW {
		return convShape{}, rejectf("Conv: output shape %v inconsistent with computed (%d,%d,%d,%d)", out.Shape, shape.outC, shape.outH, shape.outW)
	}
	return shape, nil
}

func (s convShape) call(paramOrder []string) onnxir.OperationCall {
	inputs := []*onnxir.TensorRecord{s.x, s.w}
	if s.hasBias {
		inputs = append(inputs, s.bias)
	}
	return onnxir.OperationCall{
		SignatureName:   "Conv",
		SignatureParams: []any{s.inC, s.inH, s.inW, s.outC, s.outH, s.outW, s.kh, s.kw, s.strideH, s.strideW, s.padTop, s.padLeft, s.hasBias},
		ParamOrder:      paramOrder,
		Inputs:          inputs,
		Outputs:         []*onnxir.TensorRecord{s.out},
	}
}

// ConvNaive is the direct 6-nested-loop convolution, grounded on
// original_source/onnx2code/ops/conv.py's ConvC variant.
type ConvNaive struct {
	shape convShape
}

func NewConvNaive() registry.Variant { return &ConvNaive{} }

func (k *ConvNaive) Tags() []string { return []string{"c", "conv-naive"} }
func (k *ConvNaive) Priority() int  { return 2 }

func (k *ConvNaive) Accept(n registry.Node) error {
	shape, err := parseConvShape(n)
	if err != nil {
		return err
	}
	k.shape = shape
	return nil
}

func (k *ConvNaive) Call() onnxir.OperationCall {
	params := []string{"X", "W"}
	if k.shape.hasBias {
		params = append(params, "B")
	}
	return k.shape.call(append(params, "OUT"))
}

func (k *ConvNaive) Impl() (onnxir.OperationImpl, error) {
	s := k.shape
	biasSeed := "0.0f"
	if s.hasBias {
		biasSeed = "B[f]"
	}

	source := fmt.Sprintf(`
for (int f = 0; f < %d; f++) {
    for (int h = 0; h < %d; h++) {
        for (int w = 0; w < %d; w++) {
            float acc = %s;
            for (int cc = 0; cc < %d; cc++) {
                for (int hh = 0; hh < %d; hh++) {
                    int ih = h * %d - %d + hh;
                    if (ih < 0 || ih >= %d) continue;
                    for (int ww = 0; ww < %d; ww++) {
                        int iw = w * %d - %d + ww;
                        if (iw < 0 || iw >= %d) continue;
                        acc += X[cc * %d + ih * %d + iw] * W[f * %d + cc * %d + hh * %d + ww];
                    }
                }
            }
            OUT[f * %d + h * %d + w] = acc;
        }
    }
}
`,
		s.outC, s.outH, s.outW, biasSeed,
		s.inC, s.kh, s.strideH, s.padTop, s.inH,
		s.kw, s.strideW, s.padLeft, s.inW,
		s.inH*s.inW, s.inW,
		s.inC*s.kh*s.kw, s.kh*s.kw, s.kw,
		s.outH*s.outW, s.outW)

	return onnxir.OperationImpl{Language: onnxir.LangC, Source: source}, nil
}

// ConvIm2col lowers convolution to an im2col unrolled-patch matrix
// followed by a GEMM, per spec §4.5.2. Scratch for the unrolled patch
// matrix is sized per-node from the graph (outH*outW rows by
// inC*kh*kw columns) rather than a static worst case, per spec §9's
// suggested improvement over a single shared upper-bound buffer.
type ConvIm2col struct {
	shape convShape
}

func NewConvIm2col() registry.Variant { return &ConvIm2col{} }

func (k *ConvIm2col) Tags() []string { return []string{"c", "im2col"} }
func (k *ConvIm2col) Priority() int  { return 1 }

func (k *ConvIm2col) Accept(n registry.Node) error {
	shape, err := parseConvShape(n)
	if err != nil {
		return err
	}
	if shape.hasBias {
		return rejectf("im2col: bias not yet supported, falls back to conv-naive")
	}
	k.shape = shape
	return nil
}

func (k *ConvIm2col) Call() onnxir.OperationCall {
	return k.shape.call([]string{"X", "W", "OUT"})
}

func (k *ConvIm2col) Impl() (onnxir.OperationImpl, error) {
	s := k.shape
	rows := s.outH * s.outW
	cols := s.inC * s.kh * s.kw

	source := fmt.Sprintf(`
{
    float patches[%d * %d];
    int row = 0;
    for (int h = 0; h < %d; h++) {
        for (int w = 0; w < %d; w++) {
            int col = 0;
            for (int cc = 0; cc < %d; cc++) {
                for (int hh = 0; hh < %d; hh++) {
                    int ih = h * %d - %d + hh;
                    for (int ww = 0; ww < %d; ww++) {
                        int iw = w * %d - %d + ww;
                        float v = 0.0f;
                        if (ih >= 0 && ih < %d && iw >= 0 && iw < %d) {
                            v = X[cc * %d + ih * %d + iw];
                        }
                        patches[row * %d + col] = v;
                        col++;
                    }
                }
            }
            row++;
        }
    }
    for (int f = 0; f < %d; f++) {
        for (int r = 0; r < %d; r++) {
            float sum = 0;
            for (int c = 0; c < %d; c++) {
                sum += patches[r * %d + c] * W[f * %d + c];
            }
            OUT[f * %d + r] = sum;
        }
    }
}
`,
		rows, cols,
		s.outH, s.outW,
		s.inC, s.kh, s.strideH, s.padTop,
		s.kw, s.strideW, s.padLeft,
		s.inH, s.inW, s.inH*s.inW, s.inW,
		cols,
		s.outC, rows, cols, cols, cols,
		rows)

	return onnxir.OperationImpl{Language: onnxir.LangC, Source: source}, nil
}
