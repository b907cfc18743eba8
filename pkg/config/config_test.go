package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/onnx2code/pkg/kernels"
)

func TestLoad_blankPathReturnsDefaults(t *testing.T) {
	params, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, kernels.DefaultTilingParams(), params)
}

func TestLoad_appliesPartialOverrides(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	require.NoError(t, os.WriteFile(p, []byte("tiling:\n  mc: 128\n  nr: 16\n"), 0o600))

	params, err := Load(p)
	require.NoError(t, err)

	defaults := kernels.DefaultTilingParams()
	assert.Equal(t, 128, params.MC)
	assert.Equal(t, 16, params.NR)
	assert.Equal(t, defaults.NC, params.NC)
	assert.Equal(t, defaults.KC, params.KC)
	assert.Equal(t, defaults.MR, params.MR)
}

func TestLoad_rejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_rejectsInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(p, []byte("tiling: [unterminated"), 0o600))

	_, err := Load(p)
	assert.Error(t, err)
}

func TestLoad_rejectsOverrideThatFailsValidation(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	require.NoError(t, os.WriteFile(p, []byte("tiling:\n  nr: 3\n"), 0o600))

	_, err := Load(p)
	assert.Error(t, err)
}
