package kernels

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/onnx2code/pkg/onnxir"
)

func poolNode(opType string, attrs ...onnxir.Attribute) CallNode {
	base := []onnxir.Attribute{
		{Name: "kernel_shape", Kind: onnxir.AttrInts, Ints: []int64{2, 2}},
		{Name: "strides", Kind: onnxir.AttrInts, Ints: []int64{2, 2}},
	}
	return CallNode{
		Node:    onnxir.Node{OpType: opType, Attribute: append(base, attrs...)},
		Inputs:  []*onnxir.TensorRecord{tensor("X", []int{1, 3, 8, 8})},
		Outputs: []*onnxir.TensorRecord{tensor("OUT", []int{1, 3, 4, 4})},
	}
}

func TestPooling_maxPoolSeedsNegativeInfinity(t *testing.T) {
	k := &Pooling{}
	require.NoError(t, k.Accept(poolNode("MaxPool")))

	impl, err := k.Impl()
	require.NoError(t, err)
	assert.Contains(t, impl.Source, "float acc = -INFINITY;")
	assert.Contains(t, impl.Source, "if (v > acc) acc = v;")
}

func TestPooling_averagePoolDividesByCount(t *testing.T) {
	k := &Pooling{}
	require.NoError(t, k.Accept(poolNode("AveragePool")))

	impl, err := k.Impl()
	require.NoError(t, err)
	assert.Contains(t, impl.Source, "float acc = 0.0f;")
	assert.Contains(t, impl.Source, "acc /= (float) count;")
}

func TestPooling_rejectsCountIncludePad(t *testing.T) {
	n := poolNode("AveragePool", onnxir.Attribute{Name: "count_include_pad", Kind: onnxir.AttrInt, Int: 1})
	k := &Pooling{}
	err := k.Accept(n)
	require.Error(t, err)
	assert.True(t, errors.Is(err, onnxir.ErrUnsupportedConfiguration))
}

func TestPooling_resolvesSameUpperAutoPad(t *testing.T) {
	n := CallNode{
		Node: onnxir.Node{OpType: "MaxPool", Attribute: []onnxir.Attribute{
			{Name: "kernel_shape", Kind: onnxir.AttrInts, Ints: []int64{2, 2}},
			{Name: "strides", Kind: onnxir.AttrInts, Ints: []int64{1, 1}},
			{Name: "auto_pad", Kind: onnxir.AttrString, Str: "SAME_UPPER"},
		}},
		Inputs:  []*onnxir.TensorRecord{tensor("X", []int{1, 3, 8, 8})},
		Outputs: []*onnxir.TensorRecord{tensor("OUT", []int{1, 3, 8, 8})},
	}
	k := &Pooling{}
	require.NoError(t, k.Accept(n))
	assert.Equal(t, 0, k.shape.padTop)
}
