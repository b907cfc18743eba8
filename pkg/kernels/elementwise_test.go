package kernels

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/onnx2code/pkg/onnxir"
)

func unaryNode(opType string, attrs ...onnxir.Attribute) CallNode {
	return CallNode{
		Node:    onnxir.Node{OpType: opType, Attribute: attrs},
		Inputs:  []*onnxir.TensorRecord{tensor("X", []int{4})},
		Outputs: []*onnxir.TensorRecord{tensor("OUT", []int{4})},
	}
}

func TestElementwise_relu(t *testing.T) {
	k := &Elementwise{}
	require.NoError(t, k.Accept(unaryNode("Relu")))
	impl, err := k.Impl()
	require.NoError(t, err)
	assert.Contains(t, impl.Source, "A0[i] > 0 ? A0[i] : 0")
}

func TestElementwise_sigmoid(t *testing.T) {
	k := &Elementwise{}
	require.NoError(t, k.Accept(unaryNode("Sigmoid")))
	impl, err := k.Impl()
	require.NoError(t, err)
	assert.Contains(t, impl.Source, "1.0f / (1.0f + expf(-A0[i]))")
}

func TestElementwise_clipUsesAttributeBounds(t *testing.T) {
	n := unaryNode("Clip",
		onnxir.Attribute{Name: "min", Kind: onnxir.AttrFloat, Float: 0},
		onnxir.Attribute{Name: "max", Kind: onnxir.AttrFloat, Float: 6},
	)
	k := &Elementwise{}
	require.NoError(t, k.Accept(n))
	impl, err := k.Impl()
	require.NoError(t, err)
	assert.Contains(t, impl.Source, "A0[i] < 0f")
	assert.Contains(t, impl.Source, "6f")
}

func TestElementwise_sumAccumulatesAllInputs(t *testing.T) {
	n := CallNode{
		Node: onnxir.Node{OpType: "Sum"},
		Inputs: []*onnxir.TensorRecord{
			tensor("X0", []int{4}), tensor("X1", []int{4}), tensor("X2", []int{4}),
		},
		Outputs: []*onnxir.TensorRecord{tensor("OUT", []int{4})},
	}
	k := &Elementwise{}
	require.NoError(t, k.Accept(n))
	impl, err := k.Impl()
	require.NoError(t, err)
	assert.Contains(t, impl.Source, "A0[i] + A1[i] + A2[i]")
}

func TestElementwise_rejectsMismatchedShape(t *testing.T) {
	n := unaryNode("Relu")
	n.Outputs[0].Shape = []int{5}
	k := &Elementwise{}
	err := k.Accept(n)
	require.Error(t, err)
	assert.True(t, errors.Is(err, onnxir.ErrUnsupportedConfiguration))
}
