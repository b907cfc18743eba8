package catalogue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/onnx2code/pkg/onnxir"
)

func TestBuild_ordersAndClassifies(t *testing.T) {
	g := &onnxir.Graph{
		Inputs:  []onnxir.ValueInfo{{Name: "x", Shape: []int{1, 3}, DType: "float32"}},
		Outputs: []onnxir.ValueInfo{{Name: "y", Shape: []int{1, 3}, DType: "float32"}},
		ValueInfo: []onnxir.ValueInfo{
			{Name: "mid", Shape: []int{1, 3}, DType: "float32"},
		},
		Initializer: []onnxir.Initializer{
			{Name: "w", Shape: []int{3, 3}, DType: "float32", Float32Data: make([]float32, 9)},
		},
	}

	cat, err := Build(g)
	require.NoError(t, err)
	require.Equal(t, 4, cat.Len())

	x := cat.MustGet("x")
	assert.Equal(t, onnxir.TagInput, x.Tag)
	assert.Equal(t, "T0", x.Variable)

	y := cat.MustGet("y")
	assert.Equal(t, onnxir.TagOutput, y.Tag)
	assert.Equal(t, "T1", y.Variable)

	mid := cat.MustGet("mid")
	assert.Equal(t, onnxir.TagIntermediate, mid.Tag)
	assert.Equal(t, 3, mid.Size)

	w := cat.MustGet("w")
	assert.Equal(t, onnxir.TagWeight, w.Tag)
	assert.True(t, w.Exportable)
	assert.Equal(t, 9, w.Size)
}

func TestBuild_scalarSizeIsOne(t *testing.T) {
	g := &onnxir.Graph{
		Inputs: []onnxir.ValueInfo{{Name: "s", Shape: nil, DType: "float32"}},
	}
	cat, err := Build(g)
	require.NoError(t, err)
	assert.Equal(t, 1, cat.MustGet("s").Size)
}

func TestBuild_inputShadowedByInitializerIsSkipped(t *testing.T) {
	g := &onnxir.Graph{
		Inputs: []onnxir.ValueInfo{{Name: "w", Shape: []int{2}, DType: "float32"}},
		Initializer: []onnxir.Initializer{
			{Name: "w", Shape: []int{2}, DType: "float32", Float32Data: []float32{1, 2}},
		},
	}
	cat, err := Build(g)
	require.NoError(t, err)
	require.Equal(t, 1, cat.Len())
	assert.Equal(t, onnxir.TagWeight, cat.MustGet("w").Tag)
}

func TestBuild_constantNodeReclassifiesValueInfo(t *testing.T) {
	g := &onnxir.Graph{
		ValueInfo: []onnxir.ValueInfo{{Name: "c", Shape: []int{2}, DType: "float32"}},
		Node: []onnxir.Node{
			{
				OpType: "Constant",
				Output: []string{"c"},
				Attribute: []onnxir.Attribute{
					{Name: "value", Kind: onnxir.AttrFloats, Floats: []float32{1, 2}},
				},
			},
		},
	}
	cat, err := Build(g)
	require.NoError(t, err)
	c := cat.MustGet("c")
	assert.Equal(t, onnxir.TagWeight, c.Tag)
	assert.Equal(t, []float32{1, 2}, c.Data)
}
