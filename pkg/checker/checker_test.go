package checker

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/onnx2code/pkg/codegen"
	"github.com/orneryd/onnx2code/pkg/onnxir"
)

func sampleArtifacts() *codegen.Artifacts {
	return &codegen.Artifacts{
		CSource:     []byte("int main(){return 0;}"),
		Header:      []byte("// header"),
		AsmSource:   []byte("; asm"),
		Weights:     []byte{},
		InputsSize:  4,
		OutputsSize: 4,
	}
}

type identityReference struct{}

func (identityReference) Infer(inputs []float32) ([]float32, error) {
	return inputs, nil
}

type erroringReference struct{}

func (erroringReference) Infer(inputs []float32) ([]float32, error) {
	return nil, errors.New("reference unavailable")
}

func TestNewScratch_createsUniqueDirectories(t *testing.T) {
	base := t.TempDir()
	s1, err := NewScratch(base)
	require.NoError(t, err)
	s2, err := NewScratch(base)
	require.NoError(t, err)

	assert.NotEqual(t, s1.Dir, s2.Dir)

	info, err := os.Stat(s1.Dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, s1.Cleanup())
	_, err = os.Stat(s1.Dir)
	assert.True(t, os.IsNotExist(err))
}

func TestBuild_stagesArtifactsAndInvokesToolchain(t *testing.T) {
	base := t.TempDir()
	scratch, err := NewScratch(base)
	require.NoError(t, err)

	var assembleArgs, compileArgs []string
	tc := Toolchain{
		Assemble: func(args []string) error {
			assembleArgs = args
			return nil
		},
		Compile: func(args []string) error {
			compileArgs = args
			return nil
		},
	}

	executable, err := Build(scratch, sampleArtifacts(), tc)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(scratch.Dir, "checker"), executable)
	assert.Contains(t, assembleArgs, filepath.Join(scratch.Dir, "model.asm"))
	assert.Contains(t, compileArgs, filepath.Join(scratch.Dir, "model.c"))

	for _, f := range []string{"model.c", "model.h", "model.asm", "weights.bin"} {
		_, statErr := os.Stat(filepath.Join(scratch.Dir, f))
		assert.NoError(t, statErr)
	}
}

func TestBuild_surfacesAssembleFailure(t *testing.T) {
	base := t.TempDir()
	scratch, err := NewScratch(base)
	require.NoError(t, err)

	tc := Toolchain{
		Assemble: func(args []string) error { return errors.New("nasm: syntax error") },
		Compile:  func(args []string) error { return nil },
	}

	_, err = Build(scratch, sampleArtifacts(), tc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, onnxir.ErrToolInvocation))
}

func TestRun_succeedsWhenOutputsMatch(t *testing.T) {
	invoke := func(executable string, inputs []float32, outputsSize int) ([]float32, error) {
		return inputs, nil
	}

	code, err := Run("exe", sampleArtifacts(), identityReference{}, invoke, 5, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, ExitSuccess, code)
}

func TestRun_returnsCorrectnessMismatchExitCode(t *testing.T) {
	invoke := func(executable string, inputs []float32, outputsSize int) ([]float32, error) {
		out := make([]float32, len(inputs))
		for i, v := range inputs {
			out[i] = v + 1.0
		}
		return out, nil
	}

	code, err := Run("exe", sampleArtifacts(), identityReference{}, invoke, 1, rand.New(rand.NewSource(1)))
	require.Error(t, err)
	assert.Equal(t, ExitCorrectnessMismatch, code)
	assert.True(t, errors.Is(err, onnxir.ErrCorrectnessMismatch))
}

func TestRun_returnsLoadFailureExitCodeWhenReferenceErrors(t *testing.T) {
	invoke := func(executable string, inputs []float32, outputsSize int) ([]float32, error) {
		return inputs, nil
	}

	code, err := Run("exe", sampleArtifacts(), erroringReference{}, invoke, 1, rand.New(rand.NewSource(1)))
	require.Error(t, err)
	assert.Equal(t, ExitLoadFailure, code)
}

func TestRun_returnsGenerationFailureExitCodeWhenInvokeErrors(t *testing.T) {
	invoke := func(executable string, inputs []float32, outputsSize int) ([]float32, error) {
		return nil, errors.New("segfault")
	}

	code, err := Run("exe", sampleArtifacts(), identityReference{}, invoke, 1, rand.New(rand.NewSource(1)))
	require.Error(t, err)
	assert.Equal(t, ExitGenerationFailure, code)
}

func TestDumpSamples_writesBothFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dump")
	require.NoError(t, DumpSamples(dir, []float32{1, 2}, []float32{3, 4}))

	for _, f := range []string{"sample_inputs.bin", "sample_outputs.bin"} {
		info, err := os.Stat(filepath.Join(dir, f))
		require.NoError(t, err)
		assert.Equal(t, int64(8), info.Size())
	}
}
