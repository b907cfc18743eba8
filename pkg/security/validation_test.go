package security

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/onnx2code/pkg/onnxir"
)

func TestValidateDtype(t *testing.T) {
	assert.NoError(t, ValidateDtype("float32"))

	err := ValidateDtype("int64")
	require.Error(t, err)
	assert.True(t, errors.Is(err, onnxir.ErrSecurityViolation))
}

func TestValidateModelPath_acceptsSmallRegularFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "model.onnx")
	require.NoError(t, os.WriteFile(p, make([]byte, 16), 0o600))

	assert.NoError(t, ValidateModelPath(p))
}

func TestValidateModelPath_rejectsMissingFile(t *testing.T) {
	err := ValidateModelPath(filepath.Join(t.TempDir(), "missing.onnx"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, onnxir.ErrSecurityViolation))
}

func TestValidateModelPath_rejectsDirectory(t *testing.T) {
	err := ValidateModelPath(t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, onnxir.ErrSecurityViolation))
}

func TestValidateWeightsSize(t *testing.T) {
	assert.NoError(t, ValidateWeightsSize(1024))

	err := ValidateWeightsSize(MaxWeightsSizeBytes + 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, onnxir.ErrSecurityViolation))
}

func TestContainedOutputPath_acceptsPlainName(t *testing.T) {
	dir := t.TempDir()
	p, err := ContainedOutputPath(dir, "model.c")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "model.c"), p)
}

func TestContainedOutputPath_rejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	_, err := ContainedOutputPath(dir, "../escaped.c")
	require.Error(t, err)
	assert.True(t, errors.Is(err, onnxir.ErrSecurityViolation))
}

func TestContainedOutputPath_rejectsAbsoluteName(t *testing.T) {
	dir := t.TempDir()
	_, err := ContainedOutputPath(dir, "/etc/passwd")
	require.Error(t, err)
	assert.True(t, errors.Is(err, onnxir.ErrSecurityViolation))
}

func TestEnsureOutputDir_createsMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, EnsureOutputDir(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestEnsureOutputDir_rejectsExistingNonDirectory(t *testing.T) {
	parent := t.TempDir()
	p := filepath.Join(parent, "out")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))

	err := EnsureOutputDir(p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, onnxir.ErrSecurityViolation))
}
