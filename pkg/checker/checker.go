// Package checker implements the `--checks N` correctness harness
// (spec §6/§8): it hands the four compiled artifacts to an external
// toolchain (NASM assembler, a C/C++ compiler), boots the resulting
// executable, drives it over a shared-memory segment with N random
// inputs, and diffs its output against a reference runtime within atol
// 1e-5. Grounded on original_source/onnx2code/service.py's
// compile-then-boot-subprocess shape and checker.py's
// generate-random-inputs-and-allclose loop, rewritten with the
// injected-runner testability pattern pkg/kernels and pkg/simplify
// already use for their own external collaborators.
//
// Each run gets a uuid-named scratch directory (google/uuid, a teacher
// dependency with no prior home in the pack) so concurrent `--checks`
// invocations against the same output directory never collide.
package checker

import (
	"bytes"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/orneryd/onnx2code/pkg/codegen"
	"github.com/orneryd/onnx2code/pkg/onnxir"
)

// Exit codes spec §6 assigns to `onnx2code compile --checks N`.
const (
	ExitSuccess             = 0
	ExitLoadFailure         = 1
	ExitGenerationFailure   = 2
	ExitCorrectnessMismatch = 3
)

// Tolerance is the elementwise absolute tolerance spec §8 fixes for
// comparing compiled output against the reference runtime.
const Tolerance = 1e-5

// Toolchain abstracts invoking the external assembler and compiler, and
// running the resulting executable over a shared-memory segment.
// ExternalToolchain.Build fills Assemble and Compile with real external
// runs and leaves Invoke nil, so the caller supplies it; tests substitute
// fakes so no process is ever spawned.
type Toolchain struct {
	Assemble RunnerFunc
	Compile  RunnerFunc
	Invoke   InvokeFunc
}

// RunnerFunc shells out to one external build step (nasm, a C/C++
// compiler) given its args, returning combined output on failure.
type RunnerFunc func(args []string) error

// InvokeFunc runs the compiled executable at binaryPath against one
// packed input buffer, returning the packed output buffer it writes
// back over the shared segment.
type InvokeFunc func(binaryPath string, inputs []float32, outputsSize int) ([]float32, error)

// ReferenceRunner computes the reference runtime's output for the same
// packed input buffer, so Run never needs to know how that reference
// is implemented (ONNX Runtime, a Python subprocess, a recorded trace).
type ReferenceRunner interface {
	Infer(inputs []float32) ([]float32, error)
}

// Scratch is the per-run working directory an invocation of Run uses to
// stage the compiled artifacts and the resulting executable.
type Scratch struct {
	Dir string
}

// NewScratch creates a uuid-named scratch directory under baseDir.
func NewScratch(baseDir string) (*Scratch, error) {
	dir := filepath.Join(baseDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: creating scratch directory %s: %v", onnxir.ErrToolInvocation, dir, err)
	}
	return &Scratch{Dir: dir}, nil
}

// Cleanup removes the scratch directory and everything under it. Left
// in place (not called) when ONNX2CODE_DEBUG=1, so callers gate it on
// featureflags.DebugEnabled() themselves rather than this package
// reaching into an environment variable it does not otherwise depend
// on.
func (s *Scratch) Cleanup() error {
	return os.RemoveAll(s.Dir)
}

// stageArtifacts writes the four compiled artifacts to well-known
// filenames inside the scratch directory, mirroring
// original_source/onnx2code/service.py's temp_dir layout.
func stageArtifacts(dir string, artifacts *codegen.Artifacts) (cSource, header, asmSource, weights string, err error) {
	cSource = filepath.Join(dir, "model.c")
	header = filepath.Join(dir, "model.h")
	asmSource = filepath.Join(dir, "model.asm")
	weights = filepath.Join(dir, "weights.bin")

	for path, data := range map[string][]byte{
		cSource:   artifacts.CSource,
		header:    artifacts.Header,
		asmSource: artifacts.AsmSource,
		weights:   artifacts.Weights,
	} {
		if writeErr := os.WriteFile(path, data, 0o600); writeErr != nil {
			return "", "", "", "", fmt.Errorf("%w: staging %s: %v", onnxir.ErrToolInvocation, path, writeErr)
		}
	}
	return cSource, header, asmSource, weights, nil
}

// Build assembles and compiles the staged artifacts into a runnable
// executable, returning its path.
func Build(scratch *Scratch, artifacts *codegen.Artifacts, tc Toolchain) (string, error) {
	_, _, asmSource, _, err := stageArtifacts(scratch.Dir, artifacts)
	if err != nil {
		return "", err
	}

	asmObject := filepath.Join(scratch.Dir, "model.o")
	if err := tc.Assemble([]string{"-f", "elf64", asmSource, "-o", asmObject, "-g"}); err != nil {
		return "", fmt.Errorf("%w: assembling %s: %v", onnxir.ErrToolInvocation, asmSource, err)
	}

	executable := filepath.Join(scratch.Dir, "checker")
	cSource := filepath.Join(scratch.Dir, "model.c")
	if err := tc.Compile([]string{"-m64", asmObject, cSource, "-o", executable, "-O0", "-g"}); err != nil {
		return "", fmt.Errorf("%w: compiling %s: %v", onnxir.ErrToolInvocation, cSource, err)
	}
	return executable, nil
}

// Run executes n random-input correctness checks against ref, returning
// the spec §6 exit code the CLI should propagate.
func Run(executable string, artifacts *codegen.Artifacts, ref ReferenceRunner, invoke InvokeFunc, n int, rng *rand.Rand) (int, error) {
	for i := 0; i < n; i++ {
		inputs := randomInputs(rng, artifacts.InputsSize)

		got, err := invoke(executable, inputs, artifacts.OutputsSize)
		if err != nil {
			return ExitGenerationFailure, fmt.Errorf("%w: running compiled module: %v", onnxir.ErrToolInvocation, err)
		}

		want, err := ref.Infer(inputs)
		if err != nil {
			return ExitLoadFailure, fmt.Errorf("%w: running reference runtime: %v", onnxir.ErrToolInvocation, err)
		}

		if !allClose(got, want, Tolerance) {
			return ExitCorrectnessMismatch, fmt.Errorf("%w: output mismatch on check %d of %d", onnxir.ErrCorrectnessMismatch, i+1, n)
		}
	}
	return ExitSuccess, nil
}

func randomInputs(rng *rand.Rand, size int) []float32 {
	inputs := make([]float32, size)
	for i := range inputs {
		inputs[i] = rng.Float32()*2 - 1
	}
	return inputs
}

func allClose(a, b []float32, atol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(float64(a[i])-float64(b[i])) > atol {
			return false
		}
	}
	return true
}

// DumpSamples persists the failing input/output pair under dir (spec
// §7: "samples optionally dumped under ONNX2CODE_DEBUG"), mirroring
// checker.py's sample_inputs.bin/sample_outputs.bin convention.
func DumpSamples(dir string, inputs, outputs []float32) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: creating debug dump directory %s: %v", onnxir.ErrToolInvocation, dir, err)
	}
	if err := writeFloat32File(filepath.Join(dir, "sample_inputs.bin"), inputs); err != nil {
		return err
	}
	return writeFloat32File(filepath.Join(dir, "sample_outputs.bin"), outputs)
}

func writeFloat32File(path string, data []float32) error {
	var buf bytes.Buffer
	for _, f := range data {
		bits := math.Float32bits(f)
		buf.WriteByte(byte(bits))
		buf.WriteByte(byte(bits >> 8))
		buf.WriteByte(byte(bits >> 16))
		buf.WriteByte(byte(bits >> 24))
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("%w: writing %s: %v", onnxir.ErrToolInvocation, path, err)
	}
	return nil
}
