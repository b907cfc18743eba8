package simplify

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/onnx2code/pkg/onnxir"
)

type fakeSimplifier struct {
	out []byte
	err error
}

func (f fakeSimplifier) Simplify(string) ([]byte, error) { return f.out, f.err }

const sampleGraphJSON = `{
  "Name": "g",
  "Inputs": [{"Name": "X", "Shape": [0, 3], "DType": "float32"}],
  "Outputs": [{"Name": "Y", "Shape": [2, 3], "DType": "float32"}],
  "Node": []
}`

func TestLoad_prefersSidecarOverSimplifier(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.onnx")
	require.NoError(t, os.WriteFile(modelPath, []byte("not json at all"), 0o644))
	require.NoError(t, os.WriteFile(sidecarPath(modelPath), []byte(sampleGraphJSON), 0o644))

	g, err := Load(modelPath, fakeSimplifier{err: errors.New("should not be called")})
	require.NoError(t, err)
	assert.Equal(t, "g", g.Name)
	assert.Equal(t, []int{1, 3}, g.Inputs[0].Shape)
}

func TestLoad_fallsBackToExternalSimplifier(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.onnx")
	require.NoError(t, os.WriteFile(modelPath, []byte("binary proto bytes"), 0o644))

	g, err := Load(modelPath, fakeSimplifier{out: []byte(sampleGraphJSON)})
	require.NoError(t, err)
	assert.Equal(t, "g", g.Name)
}

func TestLoad_fallsBackToRawModelWhenSimplifierUnavailable(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.onnx")
	require.NoError(t, os.WriteFile(modelPath, []byte(sampleGraphJSON), 0o644))

	g, err := Load(modelPath, fakeSimplifier{err: errors.New("not found")})
	require.NoError(t, err)
	assert.Equal(t, "g", g.Name)
}

func TestLoad_errorsWhenNothingParses(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.onnx")
	require.NoError(t, os.WriteFile(modelPath, []byte("definitely not json"), 0o644))

	_, err := Load(modelPath, fakeSimplifier{err: errors.New("not found")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, onnxir.ErrModelIngestion))
}

func TestResolveDynamicDims_fixesNonPositiveDims(t *testing.T) {
	g := &onnxir.Graph{
		Inputs:      []onnxir.ValueInfo{{Name: "X", Shape: []int{0, -1, 4}}},
		Initializer: []onnxir.Initializer{{Name: "W", Shape: []int{0, 2}}},
	}
	resolveDynamicDims(g)
	assert.Equal(t, []int{1, 1, 4}, g.Inputs[0].Shape)
	assert.Equal(t, []int{1, 2}, g.Initializer[0].Shape)
}

func TestValidateDtypes_rejectsNonFloat32Input(t *testing.T) {
	g := &onnxir.Graph{Inputs: []onnxir.ValueInfo{{Name: "X", DType: "int64"}}}
	err := ValidateDtypes(g)
	require.Error(t, err)
	assert.True(t, errors.Is(err, onnxir.ErrUnsupportedConfiguration))
}

func TestValidateDtypes_acceptsFloat32(t *testing.T) {
	g := &onnxir.Graph{Inputs: []onnxir.ValueInfo{{Name: "X", DType: "float32"}}}
	assert.NoError(t, ValidateDtypes(g))
}
