// Package compile wires together the seven compilation stages
// (pkg/simplify through pkg/codegen) plus the compile cache into the
// single entry point both `onnx2code compile` and `onnx2code verify`
// drive. Grounded on original_source/onnx2code/generator.py's
// Generator.generate(), the one function that calls every stage in
// sequence, rewritten as the orchestration layer the teacher keeps
// thin and the packages it calls do the real work (the same shape as
// pkg/cypher's executor delegating to pkg/storage).
package compile

import (
	"encoding/json"
	"fmt"

	"github.com/orneryd/onnx2code/pkg/catalogue"
	"github.com/orneryd/onnx2code/pkg/codegen"
	"github.com/orneryd/onnx2code/pkg/compilecache"
	"github.com/orneryd/onnx2code/pkg/emitter"
	"github.com/orneryd/onnx2code/pkg/kernels"
	"github.com/orneryd/onnx2code/pkg/onnxir"
	"github.com/orneryd/onnx2code/pkg/planner"
	"github.com/orneryd/onnx2code/pkg/registry"
	"github.com/orneryd/onnx2code/pkg/security"
	"github.com/orneryd/onnx2code/pkg/simplify"
)

// Options controls one compilation run.
type Options struct {
	Variations []string
	Tiling     kernels.TilingParams
	Simplifier simplify.SimplifierRunner
	Generator  kernels.GeneratorRunner
	Cache      *compilecache.Cache
}

// Run loads modelPath, simplifies and validates it, runs it through the
// catalogue, registry, emission driver, buffer planner and source
// assembler, and returns the four compiled artifacts. A compile-cache
// hit short-circuits everything after simplification.
func Run(modelPath string, opts Options) (*codegen.Artifacts, error) {
	if err := security.ValidateModelPath(modelPath); err != nil {
		return nil, err
	}

	g, err := simplify.Load(modelPath, opts.Simplifier)
	if err != nil {
		return nil, err
	}
	if err := simplify.ValidateDtypes(g); err != nil {
		return nil, err
	}

	graphJSON, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding simplified graph for cache key: %v", onnxir.ErrInternalInvariant, err)
	}

	if opts.Cache != nil {
		key := compilecache.Key(graphJSON, opts.Variations)
		if entry, ok, err := opts.Cache.Get(key); err == nil && ok {
			return &codegen.Artifacts{
				CSource:     entry.CSource,
				Header:      entry.Header,
				AsmSource:   entry.AsmSource,
				Weights:     entry.Weights,
				InputsSize:  entry.InputsSize,
				OutputsSize: entry.OutputsSize,
			}, nil
		}
	}

	cat, err := catalogue.Build(g)
	if err != nil {
		return nil, err
	}

	reg := registry.New()
	kernels.RegisterAll(reg, kernels.Options{Tiling: opts.Tiling, GeneratorRunner: opts.Generator})

	result, err := emitter.Emit(g, cat, reg, opts.Variations)
	if err != nil {
		return nil, err
	}

	calls := make([]onnxir.OperationCall, len(result.Ops))
	for i, op := range result.Ops {
		calls[i] = op.Call
	}
	layout := planner.Plan(planner.BuildRecords(cat, calls))

	artifacts, err := codegen.Assemble(g, cat, result, layout)
	if err != nil {
		return nil, err
	}

	if err := security.ValidateWeightsSize(len(artifacts.Weights)); err != nil {
		return nil, err
	}

	if opts.Cache != nil {
		key := compilecache.Key(graphJSON, opts.Variations)
		_ = opts.Cache.Put(key, compilecache.Entry{
			CSource:     artifacts.CSource,
			Header:      artifacts.Header,
			AsmSource:   artifacts.AsmSource,
			Weights:     artifacts.Weights,
			InputsSize:  artifacts.InputsSize,
			OutputsSize: artifacts.OutputsSize,
		})
	}

	return artifacts, nil
}
