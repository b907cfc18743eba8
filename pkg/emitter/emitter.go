// Package emitter implements the emission driver (spec component C4): it
// walks a graph's nodes in declared order, welds the no-op reshape-family
// operators directly onto the tensor catalogue, and for every other node
// asks pkg/registry for candidate kernel variants until one accepts.
//
// The walk itself is a direct generalization of the teacher's
// pkg/gpu.Accelerator fallback chain (try each backend in priority order,
// keep the first that initializes) from "backend" to "kernel variant",
// now driven per-node instead of once at process startup.
package emitter

import (
	"fmt"

	"github.com/orneryd/onnx2code/pkg/kernels"
	"github.com/orneryd/onnx2code/pkg/onnxir"
	"github.com/orneryd/onnx2code/pkg/registry"
)

// weldedOpTypes are the no-op operators the driver resolves by aliasing a
// tensor variable rather than emitting any code (spec §4.3 point 1).
var weldedOpTypes = map[string]bool{
	"Reshape": true, "Squeeze": true, "Unsqueeze": true,
	"Flatten": true, "Dropout": true, "BatchNormalization": true,
}

// EmittedOp pairs one node's call-site with the key of the OperationImpl
// it shares (see Result.Impls).
type EmittedOp struct {
	Node     onnxir.Node
	Call     onnxir.OperationCall
	ImplKey  string
}

// Result is the complete output of one Emit pass: every non-welded node's
// call, plus the deduplicated set of function bodies those calls invoke.
type Result struct {
	Ops   []EmittedOp
	Impls map[string]onnxir.OperationImpl
	// ImplOrder lists each unique impl's key in first-seen order, so
	// consumers (pkg/codegen) can emit function bodies deterministically
	// without depending on Go's unordered map iteration.
	ImplOrder []string
	// ImplNames maps an impl's key to the mangled function name every
	// call sharing that impl was verified to agree on (spec §4.3 point
	// 3).
	ImplNames map[string]string
}

// fallbackTags are always appended to the caller's variant preference, so
// every node resolves to *something* runnable even when a requested
// optimized variant doesn't exist for it.
var fallbackTags = []string{"c", "asm"}

func buildPreferredTags(variations []string) []string {
	seen := make(map[string]bool, len(variations)+len(fallbackTags))
	out := make([]string, 0, len(variations)+len(fallbackTags))
	for _, t := range append(append([]string{}, variations...), fallbackTags...) {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Emit walks g's nodes in declared order against cat, welding the no-op
// reshape family and otherwise resolving each node to the first kernel
// variant in reg that accepts it, preferring variations (spec §4.3).
//
// Returns onnxir.ErrUnknownOperator if an operator type has no
// registration at all, or the first variant's rejection reason
// (wrapping onnxir.ErrUnsupportedConfiguration) if every registered
// variant rejects the node.
func Emit(g *onnxir.Graph, cat *onnxir.Catalogue, reg *registry.Registry, variations []string) (*Result, error) {
	preferred := buildPreferredTags(variations)

	result := &Result{Impls: make(map[string]onnxir.OperationImpl), ImplNames: make(map[string]string)}
	implNames := result.ImplNames

	for _, node := range g.Node {
		if weldedOpTypes[node.OpType] {
			if len(node.Input) < 1 || len(node.Output) != 1 {
				return nil, fmt.Errorf("%w: %s node %q must have a data input and exactly one output", onnxir.ErrInternalInvariant, node.OpType, node.Name)
			}
			cat.Weld(node.Input[0], node.Output[0])
			continue
		}

		if !reg.Has(node.OpType) {
			return nil, fmt.Errorf("%w: %q (node %q)", onnxir.ErrUnknownOperator, node.OpType, node.Name)
		}

		factories, ok := reg.Lookup(node.OpType, preferred)
		if !ok {
			return nil, fmt.Errorf("%w: %q (node %q)", onnxir.ErrUnknownOperator, node.OpType, node.Name)
		}

		callNode, err := buildCallNode(node, cat)
		if err != nil {
			return nil, err
		}

		var firstErr error
		accepted := false
		for _, factory := range factories {
			variant := factory()
			if err := variant.Accept(callNode); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}

			kernel, ok := variant.(kernels.Kernel)
			if !ok {
				return nil, fmt.Errorf("%w: variant for %q does not implement kernels.Kernel", onnxir.ErrInternalInvariant, node.OpType)
			}

			call := kernel.Call()
			impl, err := kernel.Impl()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}

			key := impl.Key()
			name := call.MangledName()
			if existing, ok := implNames[key]; ok && existing != name {
				return nil, fmt.Errorf("%w: value-equal implementations for %q mangled to different names %q and %q",
					onnxir.ErrInternalInvariant, node.OpType, existing, name)
			}
			implNames[key] = name
			if _, exists := result.Impls[key]; !exists {
				result.ImplOrder = append(result.ImplOrder, key)
			}
			result.Impls[key] = impl
			result.Ops = append(result.Ops, EmittedOp{Node: node, Call: call, ImplKey: key})
			accepted = true
			break
		}

		if !accepted {
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: no registered variant tag matched for %q", onnxir.ErrUnsupportedConfiguration, node.OpType)
			}
			return nil, fmt.Errorf("node %q (%s): %w", node.Name, node.OpType, firstErr)
		}
	}

	return result, nil
}

func buildCallNode(node onnxir.Node, cat *onnxir.Catalogue) (kernels.CallNode, error) {
	inputs := make([]*onnxir.TensorRecord, len(node.Input))
	for i, name := range node.Input {
		t, ok := cat.Get(name)
		if !ok {
			return kernels.CallNode{}, fmt.Errorf("%w: node %q references unknown tensor %q", onnxir.ErrInternalInvariant, node.Name, name)
		}
		inputs[i] = cat.Resolve(t.Name)
	}

	outputs := make([]*onnxir.TensorRecord, len(node.Output))
	for i, name := range node.Output {
		t, ok := cat.Get(name)
		if !ok {
			return kernels.CallNode{}, fmt.Errorf("%w: node %q references unknown tensor %q", onnxir.ErrInternalInvariant, node.Name, name)
		}
		outputs[i] = t
	}

	return kernels.CallNode{Node: node, Inputs: inputs, Outputs: outputs}, nil
}
