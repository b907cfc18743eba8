package kernels

import "github.com/orneryd/onnx2code/pkg/registry"

// Options configures the handful of kernel variants that need runtime
// collaborators or tunable parameters instead of being pure constructors.
type Options struct {
	// Tiling overrides the loop-tiling GEMM's blocking tuple. Zero value
	// means DefaultTilingParams().
	Tiling TilingParams
	// GeneratorRunner invokes the external libxsmm microkernel generator.
	// Defaults to ExternalGeneratorRunner{} (a real subprocess call).
	GeneratorRunner GeneratorRunner
}

// RegisterAll wires every kernel variant in this package into r, under
// the operator type names and tags spec.md's kernel library names. This
// is the single place that knows the full operator->variant mapping; C4
// (pkg/emitter) only ever talks to the resulting Registry.
func RegisterAll(r *registry.Registry, opts Options) {
	tiling := opts.Tiling
	if (tiling == TilingParams{}) {
		tiling = DefaultTilingParams()
	}
	runner := opts.GeneratorRunner
	if runner == nil {
		runner = ExternalGeneratorRunner{}
	}

	gemmOps := []string{"Gemm", "MatMul"}
	r.Register(gemmOps, []string{"c", "gemm-naive"}, 2, NewGemmNaive)
	r.Register(gemmOps, []string{"c", "loop-tiling"}, 1, NewGemmLoopTiling(tiling))
	r.Register(gemmOps, []string{"asm", "libxsmm"}, 0, NewGemmLibxsmm(runner))

	convOps := []string{"Conv"}
	r.Register(convOps, []string{"c", "conv-naive"}, 2, NewConvNaive)
	r.Register(convOps, []string{"c", "im2col"}, 1, NewConvIm2col)

	r.Register([]string{"MaxPool", "AveragePool"}, []string{"c", "pooling"}, 1, NewPooling)
	r.Register([]string{"Softmax"}, []string{"c", "softmax"}, 1, NewSoftmax)
	r.Register([]string{"Relu", "Tanh", "Sigmoid", "Clip", "Sum"}, []string{"c", "elementwise"}, 1, NewElementwise)
	r.Register([]string{"Add", "Sub", "Mul", "Div"}, []string{"c", "broadcast"}, 1, NewBroadcastable)
	r.Register([]string{"Concat"}, []string{"c", "concat"}, 1, NewConcat)
	r.Register([]string{"Transpose"}, []string{"c", "transpose"}, 1, NewTranspose)

	r.Register([]string{"Identity"}, []string{"c", "identity"}, 1, NewIdentityC)
	r.Register([]string{"Identity"}, []string{"asm", "identity-asm"}, 0, NewIdentityAsm)
}
