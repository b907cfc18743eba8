package kernels

import (
	"bytes"
	"fmt"
	"math"
	"os/exec"
	"strings"

	"github.com/orneryd/onnx2code/pkg/onnxir"
	"github.com/orneryd/onnx2code/pkg/registry"
)

// gemmShape holds the parsed Gemm/MatMul configuration common to every
// GEMM variant. Problem shape is C = A·B (+ bias), A ∈ R^{N×M},
// B ∈ R^{M×K} (or its transpose), row-major — the naming follows
// original_source/onnx2code/ops/gemm.py exactly (N is A's row count, M the
// shared inner dimension, K the output column count) to keep the ported
// loop bodies byte-for-byte recognizable.
type gemmShape struct {
	node CallNode

	hasBias bool
	transB  bool

	n, m, k int

	a, b, bias, out *onnxir.TensorRecord
}

func parseGemmShape(n registry.Node) (gemmShape, error) {
	cn, err := asNode(n)
	if err != nil {
		return gemmShape{}, err
	}

	if len(cn.Inputs) != 2 && len(cn.Inputs) != 3 {
		return gemmShape{}, rejectf("Gemm/MatMul: expected two or three inputs, got %d", len(cn.Inputs))
	}
	if len(cn.Outputs) != 1 {
		return gemmShape{}, rejectf("Gemm/MatMul: expected one output")
	}

	transA := cn.Node.AttrInt("transA", 0) != 0
	transB := cn.Node.AttrInt("transB", 0) != 0
	alpha := cn.Node.AttrFloat("alpha", 1.0)
	beta := cn.Node.AttrFloat("beta", 1.0)

	if transA {
		return gemmShape{}, rejectf("Gemm: transA not supported")
	}
	if alpha != 1.0 {
		return gemmShape{}, rejectf("Gemm: alpha != 1 not supported")
	}
	if beta != 1.0 {
		return gemmShape{}, rejectf("Gemm: beta != 1 not supported")
	}

	a := cn.Inputs[0]
	b := cn.Inputs[1]
	out := cn.Outputs[0]

	n1 := a.Shape[0]
	var m, k int
	if transB {
		m = b.Shape[1]
		k = b.Shape[0]
	} else {
		m = b.Shape[0]
		k = b.Shape[1]
	}

	if len(out.Shape) != 2 || out.Shape[0] != n1 || out.Shape[1] != k {
		return gemmShape{}, rejectf("Gemm: output shape %v inconsistent with A=%v B=%v", out.Shape, a.Shape, b.Shape)
	}

	shape := gemmShape{
		node:    cn,
		hasBias: len(cn.Inputs) == 3,
		transB:  transB,
		n:       n1,
		m:       m,
		k:       k,
		a:       a,
		b:       b,
		out:     out,
	}
	if shape.hasBias {
		shape.bias = cn.Inputs[2]
	}
	return shape, nil
}

func (g gemmShape) call(paramOrder []string) onnxir.OperationCall {
	inputs := []*onnxir.TensorRecord{g.a, g.b}
	if g.hasBias {
		inputs = append(inputs, g.bias)
	}
	return onnxir.OperationCall{
		SignatureName:   "GEMM",
		SignatureParams: []any{g.hasBias, g.n, g.m, g.k, g.transB},
		ParamOrder:      paramOrder,
		Inputs:          inputs,
		Outputs:         []*onnxir.TensorRecord{g.out},
	}
}

// --- gemm-naive -------------------------------------------------------

// GemmNaive is the triple-loop reference GEMM, grounded on
// original_source/onnx2code/ops/gemm.py's GEMMC variant.
type GemmNaive struct {
	shape gemmShape
}

func NewGemmNaive() registry.Variant { return &GemmNaive{} }

func (k *GemmNaive) Tags() []string { return []string{"c", "gemm-naive"} }
func (k *GemmNaive) Priority() int  { return 2 }

func (k *GemmNaive) Accept(n registry.Node) error {
	shape, err := parseGemmShape(n)
	if err != nil {
		return err
	}
	k.shape = shape
	return nil
}

func (k *GemmNaive) Call() onnxir.OperationCall {
	params := []string{"A", "B"}
	if k.shape.hasBias {
		params = append(params, "C")
	}
	return k.shape.call(append(params, "OUT"))
}

func (k *GemmNaive) Impl() (onnxir.OperationImpl, error) {
	n, m, kk := k.shape.n, k.shape.m, k.shape.k

	indexB := fmt.Sprintf("i * %d + col", kk)
	if k.shape.transB {
		indexB = fmt.Sprintf("col * %d + i", m)
	}

	biasTerm := ""
	if k.shape.hasBias {
		biasTerm = fmt.Sprintf(" + C[row * %d + col]", kk)
	}

	source := fmt.Sprintf(`
for (int row = 0; row < %d; row++) {
    for (int col = 0; col < %d; col++) {
        float sum = 0;
        for (int i = 0; i < %d; i++) {
            sum += A[row * %d + i] * B[%s];
        }
        OUT[row * %d + col] = sum%s;
    }
}
`, n, kk, m, m, indexB, kk, biasTerm)

	return onnxir.OperationImpl{Language: onnxir.LangC, Source: source}, nil
}

// --- loop-tiling --------------------------------------------------------

// TilingParams is the configurable blocking tuple described in spec
// §4.5.1. Defaults mirror original_source's gemm_tiling/GEMM.py.
type TilingParams struct {
	NC, KC, MC, MR, NR, MV, NU int
}

// DefaultTilingParams returns spec.md's default tuple.
func DefaultTilingParams() TilingParams {
	return TilingParams{NC: 4096, KC: 256, MC: 256, MR: 4, NR: 8, MV: 4, NU: 4}
}

// Validate checks the constraints spec §4.5.1 lists: nr%nu=0, mr%mv=0,
// nc%nr=0, mc%mr=0, kc<=K (K is checked by the caller, which knows it).
func (p TilingParams) Validate() error {
	switch {
	case p.NR%p.NU != 0:
		return rejectf("loop-tiling: nr=%d not divisible by nu=%d", p.NR, p.NU)
	case p.MR%p.MV != 0:
		return rejectf("loop-tiling: mr=%d not divisible by mv=%d", p.MR, p.MV)
	case p.NC%p.NR != 0:
		return rejectf("loop-tiling: nc=%d not divisible by nr=%d", p.NC, p.NR)
	case p.MC%p.MR != 0:
		return rejectf("loop-tiling: mc=%d not divisible by mr=%d", p.MC, p.MR)
	}
	return nil
}

// GemmLoopTiling is the cache-blocked, register-microkernel GEMM (spec
// §4.5.1). hasBias is rejected, matching original_source's GEMMLoopTiling.
type GemmLoopTiling struct {
	shape  gemmShape
	params TilingParams
}

// NewGemmLoopTiling returns a factory for the loop-tiling variant using
// params (callers typically pass kernels.DefaultTilingParams(), optionally
// overridden by pkg/config).
func NewGemmLoopTiling(params TilingParams) registry.Factory {
	return func() registry.Variant { return &GemmLoopTiling{params: params} }
}

func (k *GemmLoopTiling) Tags() []string { return []string{"c", "loop-tiling"} }
func (k *GemmLoopTiling) Priority() int  { return 1 }

func (k *GemmLoopTiling) Accept(n registry.Node) error {
	shape, err := parseGemmShape(n)
	if err != nil {
		return err
	}
	if shape.hasBias {
		return rejectf("loop-tiling: bias (C operand) not supported")
	}
	k.shape = shape
	return nil
}

func (k *GemmLoopTiling) Call() onnxir.OperationCall {
	return k.shape.call([]string{"A", "B", "OUT"})
}

// nearestPow2Ceil mirrors gemm_tiling/GEMM.py's `2 ** ceil(log2(n))`.
func nearestPow2Ceil(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << int(math.Ceil(math.Log2(float64(n))))
}

func (k *GemmLoopTiling) Impl() (onnxir.OperationImpl, error) {
	p := k.params
	if err := p.Validate(); err != nil {
		return onnxir.OperationImpl{}, err
	}

	n, m, kk := k.shape.n, k.shape.m, k.shape.k
	nc := p.NC
	if pow2 := nearestPow2Ceil(kk); pow2 < nc {
		nc = pow2
	}
	kc := p.KC
	if kc > m {
		kc = m
	}
	mc := p.MC
	if mc > n {
		mc = n
	}

	templateArgs := fmt.Sprintf("%d,%d,%d,%d,%d,%d,%d,%d,%d,%d", n, m, kk, nc, kc, mc, p.MR, p.NR, p.MV, p.NU)
	call := fmt.Sprintf("gemm<%s>(A, B, OUT);\n", templateArgs)

	return onnxir.OperationImpl{
		Language:        onnxir.LangC,
		Source:          call,
		CppAuxFunctions: []AuxFunction(nil),
		ExternalFiles:   []string{"runtime/gemm_tiling.hpp"},
	}, nil
}

// AuxFunction re-exports onnxir.AuxFunction so kernel files that only need
// the aux-function shape don't have to import onnxir just for this alias.
type AuxFunction = onnxir.AuxFunction

// --- libxsmm / asm externally generated microkernel ----------------------

// GeneratorRunner abstracts invoking the external libxsmm microkernel
// generator, so tests can substitute a fake without spawning a real
// process. ExternalGeneratorRunner (below) is the production
// implementation.
type GeneratorRunner interface {
	Generate(args []string) (stdout string, err error)
}

// ExternalGeneratorRunner shells out to the libxsmm_gemm_generator binary
// found on PATH, synchronously, inheriting the parent's working directory
// (spec §5) and capturing its stdout entirely before returning.
type ExternalGeneratorRunner struct {
	// BinaryPath overrides the PATH lookup; defaults to
	// "libxsmm_gemm_generator" when empty.
	BinaryPath string
}

func (r ExternalGeneratorRunner) Generate(args []string) (string, error) {
	bin := r.BinaryPath
	if bin == "" {
		bin = "libxsmm_gemm_generator"
	}
	cmd := exec.Command(bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: libxsmm generator: %v: %s", onnxir.ErrToolInvocation, err, stderr.String())
	}
	if stderr.Len() != 0 {
		return "", fmt.Errorf("%w: libxsmm generator: %s", onnxir.ErrToolInvocation, stderr.String())
	}
	return stdout.String(), nil
}

// GemmLibxsmm is the externally-generated microkernel variant (spec
// §4.5.1): the microkernel body is produced by invoking libxsmm_gemm_generator
// at compile time, filtered of its "libxsmm_num_total_flops" banner line,
// and inlined as a C++ auxiliary function. Because libxsmm uses
// column-major layout, operands are swapped at the call site so that the
// row-major A·B call corresponds to a transposed generator invocation.
type GemmLibxsmm struct {
	shape  gemmShape
	runner GeneratorRunner
}

// NewGemmLibxsmm returns a factory using runner to invoke the generator.
func NewGemmLibxsmm(runner GeneratorRunner) registry.Factory {
	return func() registry.Variant { return &GemmLibxsmm{runner: runner} }
}

func (k *GemmLibxsmm) Tags() []string { return []string{"asm", "libxsmm"} }
func (k *GemmLibxsmm) Priority() int  { return 0 }

func (k *GemmLibxsmm) Accept(n registry.Node) error {
	shape, err := parseGemmShape(n)
	if err != nil {
		return err
	}
	k.shape = shape
	return nil
}

func (k *GemmLibxsmm) Call() onnxir.OperationCall {
	params := []string{"A", "B"}
	if k.shape.hasBias {
		params = append(params, "C")
	}
	return k.shape.call(append(params, "OUT"))
}

func (k *GemmLibxsmm) Impl() (onnxir.OperationImpl, error) {
	n, m, kk := k.shape.n, k.shape.m, k.shape.k
	fnName := fmt.Sprintf("libxsmm_GEMM_%d_%d_%d", n, m, kk)

	args := []string{
		"dense", "/dev/stdout", fnName,
		fmt.Sprintf("%d", kk), fmt.Sprintf("%d", n), fmt.Sprintf("%d", m),
		fmt.Sprintf("%d", kk), fmt.Sprintf("%d", m), fmt.Sprintf("%d", kk),
		"1", "0", "0", "0", "hsw", "nopf", "SP",
	}

	stdout, err := k.runner.Generate(args)
	if err != nil {
		return onnxir.OperationImpl{}, fmt.Errorf("%w: %w: libxsmm generator: %v", onnxir.ErrUnsupportedConfiguration, onnxir.ErrToolInvocation, err)
	}

	var kept []string
	for _, line := range strings.Split(stdout, "\n") {
		if line == "" || strings.HasPrefix(line, "libxsmm_num_total_flops") {
			continue
		}
		kept = append(kept, line)
	}
	auxSource := strings.Join(kept, "\n")
	if auxSource == "" {
		return onnxir.OperationImpl{}, fmt.Errorf("%w: libxsmm generator produced no output", onnxir.ErrToolInvocation)
	}

	source := fmt.Sprintf("%s(B, A, OUT);\n", fnName)
	if k.shape.hasBias {
		source += fmt.Sprintf("for (int i = 0; i < %d; i++) { OUT[i] += C[i]; }\n", n*kk)
	}

	return onnxir.OperationImpl{
		Language: onnxir.LangC,
		Source:   source,
		CppAuxFunctions: []AuxFunction{
			{Signature: fmt.Sprintf("void %s(const float*, const float*, float*)", fnName), Body: auxSource},
		},
	}, nil
}
