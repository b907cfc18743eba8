package kernels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/onnx2code/pkg/registry"
)

func TestRegisterAll_coversEveryOperator(t *testing.T) {
	r := registry.New()
	RegisterAll(r, Options{})

	for _, op := range []string{
		"Gemm", "MatMul", "Conv", "MaxPool", "AveragePool", "Softmax",
		"Relu", "Tanh", "Sigmoid", "Clip", "Sum",
		"Add", "Sub", "Mul", "Div", "Concat", "Transpose", "Identity",
	} {
		assert.True(t, r.Has(op), "expected %s to be registered", op)
	}
}

func TestRegisterAll_gemmPrefersCOverLibxsmmWhenAsked(t *testing.T) {
	r := registry.New()
	RegisterAll(r, Options{GeneratorRunner: fakeGenerator{stdout: "x"}})

	factories, ok := r.Lookup("Gemm", []string{"c", "asm"})
	require.True(t, ok)
	require.NotEmpty(t, factories)
	assert.Contains(t, factories[0]().Tags(), "c")
}

func TestRegisterAll_defaultsTilingWhenZeroValue(t *testing.T) {
	r := registry.New()
	RegisterAll(r, Options{})

	factories, ok := r.Lookup("Gemm", []string{"loop-tiling"})
	require.True(t, ok)
	require.NotEmpty(t, factories)

	v := factories[0]().(*GemmLoopTiling)
	assert.Equal(t, DefaultTilingParams(), v.params)
}
