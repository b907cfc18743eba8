// Package security validates the two untrusted boundaries this
// compiler crosses: the model file a caller points it at, and the
// output directory it is told to write four artifacts into. Grounded
// on the teacher's own pkg/security package (path/size/format
// validation guarding externally supplied input before it reaches the
// rest of the system), adapted from HTTP request validation to
// filesystem-path and model-file validation and folded into the
// closed sentinel error taxonomy (spec §7) instead of the teacher's
// bare fmt.Errorf sentinels.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/orneryd/onnx2code/pkg/onnxir"
)

const (
	// MaxModelSizeBytes bounds the input model file this compiler will
	// read into memory before simplification.
	MaxModelSizeBytes = 512 * 1024 * 1024
	// MaxWeightsSizeBytes bounds the packed weights blob this compiler
	// will emit.
	MaxWeightsSizeBytes = 2 * 1024 * 1024 * 1024
)

// allowedDtypes is the closed set of tensor element types ValidateDtype
// accepts (spec §2: "float32 only"). The compile pipeline does not call
// ValidateDtype: input dtypes are checked by simplify.ValidateDtypes, and
// non-float32 weights are marked non-exportable by the catalogue.
var allowedDtypes = map[string]bool{
	"float32": true,
}

// ValidateDtype rejects any tensor element type outside the allow-list.
func ValidateDtype(dtype string) error {
	if !allowedDtypes[dtype] {
		return fmt.Errorf("%w: dtype %q is not in the allow-list (float32 only)", onnxir.ErrSecurityViolation, dtype)
	}
	return nil
}

// ValidateModelPath checks that modelPath names a regular file within
// MaxModelSizeBytes, resolving symlinks first so a symlink cannot be
// used to point at an oversized or special file.
func ValidateModelPath(modelPath string) error {
	info, err := os.Stat(modelPath)
	if err != nil {
		return fmt.Errorf("%w: stat model path %q: %v", onnxir.ErrSecurityViolation, modelPath, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: model path %q is not a regular file", onnxir.ErrSecurityViolation, modelPath)
	}
	if info.Size() > MaxModelSizeBytes {
		return fmt.Errorf("%w: model file %q is %d bytes, exceeds ceiling of %d", onnxir.ErrSecurityViolation, modelPath, info.Size(), MaxModelSizeBytes)
	}
	return nil
}

// ValidateWeightsSize checks a packed weights blob's size before it is
// written to disk.
func ValidateWeightsSize(n int) error {
	if n > MaxWeightsSizeBytes {
		return fmt.Errorf("%w: weights blob is %d bytes, exceeds ceiling of %d", onnxir.ErrSecurityViolation, n, MaxWeightsSizeBytes)
	}
	return nil
}

// ContainedOutputPath resolves name against outDir and verifies the
// result is still lexically inside outDir, rejecting any `..` segment
// (or absolute override) that would let an artifact name escape the
// output directory spec.md §6 confines all four compiled artifacts to.
func ContainedOutputPath(outDir, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: artifact name %q must be relative", onnxir.ErrSecurityViolation, name)
	}
	cleanOutDir, err := filepath.Abs(outDir)
	if err != nil {
		return "", fmt.Errorf("%w: resolving output directory %q: %v", onnxir.ErrSecurityViolation, outDir, err)
	}
	joined := filepath.Join(cleanOutDir, name)
	rel, err := filepath.Rel(cleanOutDir, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: artifact name %q escapes output directory %q", onnxir.ErrSecurityViolation, name, outDir)
	}
	return joined, nil
}

// EnsureOutputDir creates outDir (and any missing parents) with
// owner-only permissions, failing closed if a non-directory already
// occupies that path.
func EnsureOutputDir(outDir string) error {
	info, err := os.Stat(outDir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%w: output path %q exists and is not a directory", onnxir.ErrSecurityViolation, outDir)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("%w: stat output directory %q: %v", onnxir.ErrSecurityViolation, outDir, err)
	}
	if err := os.MkdirAll(outDir, 0o700); err != nil {
		return fmt.Errorf("%w: creating output directory %q: %v", onnxir.ErrSecurityViolation, outDir, err)
	}
	return nil
}
