// Package registry implements the operator registry (spec component C3): a
// process-wide, write-once table mapping ONNX operator type names to an
// ordered list of variant implementations, each tagged and prioritized.
//
// The shape of this package is a direct generalization of two patterns in
// the teacher codebase: pkg/gpu.Accelerator's backend-selection chain
// (initBackend tries Metal, then OpenCL, then CUDA, then Vulkan, taking the
// first one that initializes) becomes Lookup's priority-ordered candidate
// list; pkg/heimdall's plugin registry (named, typed entries registered
// once at startup, looked up by capability) becomes the per-op-type variant
// table itself. Where the teacher selects a GPU *device*, this package
// selects a code-emission *variant* — the table is populated once by
// construction of each operator's variant descriptors and is immutable
// thereafter (spec §5), so no lock discipline is needed past construction.
package registry

import (
	"fmt"
	"sort"
)

// Node is the minimal view of a graph node a Variant needs to decide
// whether it accepts it and, if so, to parse its own configuration.
// Concrete kernels (pkg/kernels) implement Variant against
// *onnxir.Node-derived inputs; Registry itself stays independent of
// pkg/onnxir to avoid an import cycle with pkg/emitter.
type Node interface {
	OpType() string
}

// Variant is one interchangeable implementation of an operator (spec §9).
// Accept inspects the node (and, through the concrete receiver, whatever
// shape/attribute context it closed over at construction) and returns a
// non-nil error — wrapping onnxir.ErrUnsupportedConfiguration — if this
// variant cannot emit code for it.
type Variant interface {
	// Tags lists the variant tags this implementation advertises (e.g.
	// "c", "asm", "gemm-naive", "loop-tiling", "libxsmm", "im2col").
	Tags() []string
	// Priority orders variants within a shared tag; lower is preferred.
	Priority() int
	// Accept reports whether this variant can emit code for node, given
	// node's already-parsed inputs/attributes. Returning an error means
	// "reject" — the driver tries the next candidate.
	Accept(node Node) error
}

// Factory constructs a fresh Variant instance bound to one registration.
// Variants are stateful per-node (they memoize parsed shapes/attributes),
// so the registry stores factories, not instances.
type Factory func() Variant

type registration struct {
	factory  Factory
	tags     map[string]bool
	priority int
}

// Registry is the operator type -> variant-factory table.
type Registry struct {
	byOpType map[string][]registration
}

// New returns an empty registry. compile.Run builds one per compilation
// and fills it with kernels.RegisterAll; tests use New for an isolated
// table.
func New() *Registry {
	return &Registry{byOpType: make(map[string][]registration)}
}

// Register adds a variant factory for every op type in opTypes. tags and
// priority annotate every node this factory produces (a Factory must
// return Variants whose Tags()/Priority() agree with what Register was
// called with — the registry trusts this rather than re-deriving it, since
// Accept requires a constructed instance it can't cheaply build twice per
// candidate).
func (r *Registry) Register(opTypes []string, tags []string, priority int, factory Factory) {
	tagSet := make(map[string]bool, len(tags))
	for _, t := range tags {
		tagSet[t] = true
	}
	reg := registration{factory: factory, tags: tagSet, priority: priority}
	for _, op := range opTypes {
		r.byOpType[op] = append(r.byOpType[op], reg)
	}
}

// Lookup returns, in preference order, the factories for opType whose
// variant tags intersect preferredTags, stably sorted by priority (spec
// §4.2). The driver's fallback tags "c" and "asm" are expected to already
// be appended to preferredTags by the caller (pkg/emitter) — Lookup itself
// does no implicit fallback so it stays a pure function of its arguments.
//
// Returns (nil, false) if opType has no registrations at all —
// the unknown-operator case (spec §7), distinct from "registered but no
// tag matched", which returns an empty, non-nil slice.
func (r *Registry) Lookup(opType string, preferredTags []string) ([]Factory, bool) {
	regs, ok := r.byOpType[opType]
	if !ok {
		return nil, false
	}

	type candidate struct {
		reg      registration
		rank     int // index of first matching preferred tag
	}

	seen := make(map[*registration]bool)
	var candidates []candidate
	for i := range regs {
		reg := regs[i]
		rank := -1
		for ti, tag := range preferredTags {
			if reg.tags[tag] {
				rank = ti
				break
			}
		}
		if rank == -1 {
			continue
		}
		if seen[&reg] {
			continue
		}
		seen[&reg] = true
		candidates = append(candidates, candidate{reg: reg, rank: rank})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].rank != candidates[j].rank {
			return candidates[i].rank < candidates[j].rank
		}
		return candidates[i].reg.priority < candidates[j].reg.priority
	})

	out := make([]Factory, len(candidates))
	for i, c := range candidates {
		out[i] = c.reg.factory
	}
	return out, true
}

// Has reports whether opType has at least one registration, regardless of
// tags.
func (r *Registry) Has(opType string) bool {
	_, ok := r.byOpType[opType]
	return ok
}

func (r *Registry) String() string {
	return fmt.Sprintf("registry(%d op types)", len(r.byOpType))
}
