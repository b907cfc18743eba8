package kernels

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/onnx2code/pkg/onnxir"
)

func TestConcat_axisOffsetAccumulates(t *testing.T) {
	n := CallNode{
		Node: onnxir.Node{OpType: "Concat", Attribute: []onnxir.Attribute{
			{Name: "axis", Kind: onnxir.AttrInt, Int: 1},
		}},
		Inputs: []*onnxir.TensorRecord{
			tensor("A0", []int{2, 3}),
			tensor("A1", []int{2, 2}),
		},
		Outputs: []*onnxir.TensorRecord{tensor("OUT", []int{2, 5})},
	}
	k := &Concat{}
	require.NoError(t, k.Accept(n))

	impl, err := k.Impl()
	require.NoError(t, err)
	assert.Contains(t, impl.Source, "(i1 + 0) * 1")
	assert.Contains(t, impl.Source, "(i1 + 3) * 1")
}

func TestConcat_signatureDistinguishesPartitioning(t *testing.T) {
	split211 := CallNode{
		Node: onnxir.Node{OpType: "Concat", Attribute: []onnxir.Attribute{
			{Name: "axis", Kind: onnxir.AttrInt, Int: 1},
		}},
		Inputs: []*onnxir.TensorRecord{
			tensor("A0", []int{2, 2}),
			tensor("A1", []int{2, 1}),
			tensor("A2", []int{2, 3}),
		},
		Outputs: []*onnxir.TensorRecord{tensor("OUT", []int{2, 6})},
	}
	split222 := CallNode{
		Node: onnxir.Node{OpType: "Concat", Attribute: []onnxir.Attribute{
			{Name: "axis", Kind: onnxir.AttrInt, Int: 1},
		}},
		Inputs: []*onnxir.TensorRecord{
			tensor("A0", []int{2, 2}),
			tensor("A1", []int{2, 2}),
			tensor("A2", []int{2, 2}),
		},
		Outputs: []*onnxir.TensorRecord{tensor("OUT", []int{2, 6})},
	}
	k1, k2 := &Concat{}, &Concat{}
	require.NoError(t, k1.Accept(split211))
	require.NoError(t, k2.Accept(split222))

	assert.NotEqual(t, k1.Call().MangledName(), k2.Call().MangledName())
}

func TestConcat_rejectsMissingAxis(t *testing.T) {
	n := CallNode{
		Node:    onnxir.Node{OpType: "Concat"},
		Inputs:  []*onnxir.TensorRecord{tensor("A0", []int{2, 3})},
		Outputs: []*onnxir.TensorRecord{tensor("OUT", []int{2, 3})},
	}
	k := &Concat{}
	err := k.Accept(n)
	require.Error(t, err)
	assert.True(t, errors.Is(err, onnxir.ErrUnsupportedConfiguration))
}

func TestTranspose_defaultPermReverses(t *testing.T) {
	n := CallNode{
		Node:    onnxir.Node{OpType: "Transpose"},
		Inputs:  []*onnxir.TensorRecord{tensor("X", []int{2, 3})},
		Outputs: []*onnxir.TensorRecord{tensor("OUT", []int{3, 2})},
	}
	k := &Transpose{}
	require.NoError(t, k.Accept(n))
	assert.Equal(t, []int{1, 0}, k.perm)

	impl, err := k.Impl()
	require.NoError(t, err)
	assert.Contains(t, impl.Source, "OUT[ + i0 * 2 + i1 * 1] = X[ + i0 * 1 + i1 * 3];")
}

func TestTranspose_explicitPerm(t *testing.T) {
	n := CallNode{
		Node: onnxir.Node{OpType: "Transpose", Attribute: []onnxir.Attribute{
			{Name: "perm", Kind: onnxir.AttrInts, Ints: []int64{0, 2, 1}},
		}},
		Inputs:  []*onnxir.TensorRecord{tensor("X", []int{2, 3, 4})},
		Outputs: []*onnxir.TensorRecord{tensor("OUT", []int{2, 4, 3})},
	}
	k := &Transpose{}
	require.NoError(t, k.Accept(n))
	assert.Equal(t, []int{0, 2, 1}, k.perm)
}

func TestIdentityC_rejectsSizeMismatch(t *testing.T) {
	n := CallNode{
		Node:    onnxir.Node{OpType: "Identity"},
		Inputs:  []*onnxir.TensorRecord{tensor("X", []int{4})},
		Outputs: []*onnxir.TensorRecord{tensor("OUT", []int{5})},
	}
	k := &IdentityC{}
	err := k.Accept(n)
	require.Error(t, err)
}

func TestIdentityC_emitsMemcpy(t *testing.T) {
	n := CallNode{
		Node:    onnxir.Node{OpType: "Identity"},
		Inputs:  []*onnxir.TensorRecord{tensor("X", []int{4})},
		Outputs: []*onnxir.TensorRecord{tensor("OUT", []int{4})},
	}
	k := &IdentityC{}
	require.NoError(t, k.Accept(n))
	impl, err := k.Impl()
	require.NoError(t, err)
	assert.Contains(t, impl.Source, "memcpy(OUT, X, 4 * sizeof(float));")
}

func TestIdentityAsm_usesSysVRegisters(t *testing.T) {
	n := CallNode{
		Node:    onnxir.Node{OpType: "Identity"},
		Inputs:  []*onnxir.TensorRecord{tensor("X", []int{4})},
		Outputs: []*onnxir.TensorRecord{tensor("OUT", []int{4})},
	}
	k := &IdentityAsm{}
	require.NoError(t, k.Accept(n))
	impl, err := k.Impl()
	require.NoError(t, err)
	require.Len(t, impl.AsmAuxFunctions, 1)
	assert.Contains(t, impl.AsmAuxFunctions[0].Body, "rdi = X, rsi = OUT")
	assert.Contains(t, impl.AsmAuxFunctions[0].Body, "cmp rcx, 4")
}
