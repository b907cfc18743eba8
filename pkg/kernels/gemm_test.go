package kernels

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/onnx2code/pkg/onnxir"
)

func tensor(name string, shape []int) *onnxir.TensorRecord {
	return &onnxir.TensorRecord{Name: name, Shape: shape, Size: product(shape), Variable: name}
}

func gemmNode(opType string, attrs ...onnxir.Attribute) CallNode {
	return CallNode{
		Node:    onnxir.Node{OpType: opType, Attribute: attrs},
		Inputs:  []*onnxir.TensorRecord{tensor("A", []int{2, 3}), tensor("B", []int{3, 4})},
		Outputs: []*onnxir.TensorRecord{tensor("OUT", []int{2, 4})},
	}
}

func TestGemmNaive_acceptsAndEmits(t *testing.T) {
	k := &GemmNaive{}
	require.NoError(t, k.Accept(gemmNode("MatMul")))

	call := k.Call()
	assert.Equal(t, []string{"A", "B", "OUT"}, call.ParamOrder)

	impl, err := k.Impl()
	require.NoError(t, err)
	assert.Contains(t, impl.Source, "for (int row = 0; row < 2; row++)")
	assert.Contains(t, impl.Source, "sum += A[row * 3 + i] * B[i * 4 + col];")
}

func TestGemmNaive_rejectsTransA(t *testing.T) {
	k := &GemmNaive{}
	err := k.Accept(gemmNode("Gemm", onnxir.Attribute{Name: "transA", Kind: onnxir.AttrInt, Int: 1}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, onnxir.ErrUnsupportedConfiguration))
}

func TestGemmNaive_withBias(t *testing.T) {
	n := gemmNode("Gemm")
	n.Inputs = append(n.Inputs, tensor("C", []int{2, 4}))
	k := &GemmNaive{}
	require.NoError(t, k.Accept(n))

	impl, err := k.Impl()
	require.NoError(t, err)
	assert.Contains(t, impl.Source, "+ C[row * 4 + col]")
}

func TestGemmLoopTiling_rejectsBias(t *testing.T) {
	n := gemmNode("Gemm")
	n.Inputs = append(n.Inputs, tensor("C", []int{2, 4}))
	k := &GemmLoopTiling{params: DefaultTilingParams()}
	err := k.Accept(n)
	require.Error(t, err)
	assert.True(t, errors.Is(err, onnxir.ErrUnsupportedConfiguration))
}

func TestGemmLoopTiling_emitsTemplateInstantiation(t *testing.T) {
	k := &GemmLoopTiling{params: DefaultTilingParams()}
	require.NoError(t, k.Accept(gemmNode("MatMul")))

	impl, err := k.Impl()
	require.NoError(t, err)
	assert.Contains(t, impl.Source, "gemm<2,3,4,")
	assert.Contains(t, impl.Source, "(A, B, OUT);")
}

func TestTilingParams_validate(t *testing.T) {
	p := DefaultTilingParams()
	assert.NoError(t, p.Validate())

	bad := p
	bad.NR = 7
	assert.Error(t, bad.Validate())
}

type fakeGenerator struct {
	stdout string
	err    error
}

func (f fakeGenerator) Generate(args []string) (string, error) { return f.stdout, f.err }

func TestGemmLibxsmm_filtersBannerAndSwapsOperands(t *testing.T) {
	k := &GemmLibxsmm{runner: fakeGenerator{stdout: "libxsmm_num_total_flops = 42\nvoid kernel_body() {}\n"}}
	require.NoError(t, k.Accept(gemmNode("MatMul")))

	impl, err := k.Impl()
	require.NoError(t, err)
	require.Len(t, impl.CppAuxFunctions, 1)
	assert.NotContains(t, impl.CppAuxFunctions[0].Body, "libxsmm_num_total_flops")
	assert.Contains(t, impl.CppAuxFunctions[0].Body, "void kernel_body()")
	assert.Contains(t, impl.Source, "(B, A, OUT);")
}

func TestGemmLibxsmm_toolFailureIsUnsupportedConfiguration(t *testing.T) {
	k := &GemmLibxsmm{runner: fakeGenerator{err: errors.New("permission denied")}}
	require.NoError(t, k.Accept(gemmNode("MatMul")))

	_, err := k.Impl()
	require.Error(t, err)
	assert.True(t, errors.Is(err, onnxir.ErrToolInvocation))
}

func TestGemmLibxsmm_emptyOutputIsToolInvocationError(t *testing.T) {
	k := &GemmLibxsmm{runner: fakeGenerator{stdout: "libxsmm_num_total_flops = 1\n\n"}}
	require.NoError(t, k.Accept(gemmNode("MatMul")))

	_, err := k.Impl()
	require.Error(t, err)
	assert.True(t, errors.Is(err, onnxir.ErrToolInvocation))
}

func TestNearestPow2Ceil(t *testing.T) {
	assert.Equal(t, 1, nearestPow2Ceil(1))
	assert.Equal(t, 4, nearestPow2Ceil(3))
	assert.Equal(t, 8, nearestPow2Ceil(8))
	assert.Equal(t, 16, nearestPow2Ceil(9))
}
