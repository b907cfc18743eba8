package onnxir

import "fmt"

// Tag classifies a TensorRecord's role in the graph.
type Tag int

const (
	TagInput Tag = iota
	TagOutput
	TagWeight
	TagIntermediate
	TagWelded
)

func (t Tag) String() string {
	switch t {
	case TagInput:
		return "input"
	case TagOutput:
		return "output"
	case TagWeight:
		return "weight"
	case TagIntermediate:
		return "intermediate"
	case TagWelded:
		return "welded"
	default:
		return "unknown"
	}
}

// TensorRecord is one catalogued tensor. See spec §3 for the field-level
// contract; Variable/PointsTo implement the welding union-find described in
// §9 — Resolve() follows PointsTo with path compression to the
// representative tensor whose Variable is authoritative.
type TensorRecord struct {
	Name string
	Shape []int
	Size  int
	Tag   Tag

	// Data holds the float32 content when Tag == TagWeight and the
	// source dtype was float32; nil otherwise (non-float32 weights are
	// catalogued, for completeness of accession-index numbering, but
	// excluded from the packed weights blob and from codegen references).
	Data []float32
	// Exportable is true iff Data is non-nil — i.e. this weight actually
	// contributes a float32 declaration and a slice of weights.bin.
	Exportable bool

	Variable string

	// PointsTo is non-empty when this tensor has been welded to another;
	// it names the producer tensor this one was welded onto. Empty for
	// un-welded tensors and for the representative of a welded chain.
	PointsTo string
}

// Catalogue is the ordered set of all tensors in a graph, keyed by name,
// plus the insertion order needed for deterministic iteration (weights.bin
// packing order, inference() declaration order).
type Catalogue struct {
	byName map[string]*TensorRecord
	order  []string
}

// NewCatalogue returns an empty catalogue.
func NewCatalogue() *Catalogue {
	return &Catalogue{byName: make(map[string]*TensorRecord)}
}

// Add inserts a new tensor record. It is a caller error (panics) to add the
// same name twice — the catalogue's one-record-per-name invariant is
// established entirely by pkg/catalogue at ingestion time.
func (c *Catalogue) Add(t *TensorRecord) {
	if _, exists := c.byName[t.Name]; exists {
		panic(fmt.Sprintf("onnx2code: duplicate tensor name %q", t.Name))
	}
	c.byName[t.Name] = t
	c.order = append(c.order, t.Name)
}

// Get returns the tensor record for name, or (nil, false).
func (c *Catalogue) Get(name string) (*TensorRecord, bool) {
	t, ok := c.byName[name]
	return t, ok
}

// MustGet returns the tensor record for name, panicking (internal
// invariant violation — every node input/output must be catalogued) if
// absent.
func (c *Catalogue) MustGet(name string) *TensorRecord {
	t, ok := c.byName[name]
	if !ok {
		panic(fmt.Sprintf("onnx2code: tensor %q not in catalogue", name))
	}
	return t
}

// Len returns the number of catalogued tensors.
func (c *Catalogue) Len() int { return len(c.order) }

// Ordered returns every tensor record in catalogue (insertion) order —
// declared inputs, then outputs, then intermediates, then initializers.
func (c *Catalogue) Ordered() []*TensorRecord {
	out := make([]*TensorRecord, len(c.order))
	for i, name := range c.order {
		out[i] = c.byName[name]
	}
	return out
}

// Weld declares that the tensor named to shares a backing buffer with the
// tensor named from. Idempotent under chaining: welding A→B then B→C is
// equivalent to welding A→C directly, because PointsTo always names the
// original producer, never an intermediate link, once resolved through
// Resolve.
func (c *Catalogue) Weld(from, to string) {
	fromTensor := c.MustGet(from)
	toTensor := c.MustGet(to)

	root := c.Resolve(fromTensor.Name)
	toTensor.Variable = root.Variable
	toTensor.PointsTo = root.Name

	if toTensor.Tag != TagOutput {
		toTensor.Tag = TagWelded
	}
}

// Resolve follows PointsTo to the representative tensor (the one that is
// not itself welded onto anything else), with path compression so that
// repeated resolution of the same chain is O(1) amortised.
func (c *Catalogue) Resolve(name string) *TensorRecord {
	t := c.MustGet(name)
	if t.PointsTo == "" {
		return t
	}

	root := c.Resolve(t.PointsTo)
	t.PointsTo = root.Name
	t.Variable = root.Variable
	return root
}

// WeldedToOutput reports whether the tensor named name shares a welded
// chain with some tensor tagged TagOutput. Per spec §4.3/§4.4 a
// welded-to-output tensor is excluded from buffer planning and bound
// directly to the output buffer.
//
// Welding only records a pointer from consumer to producer (§9), so
// detecting the reverse relationship — "is some output welded onto me" —
// requires scanning every catalogued tensor and comparing resolved roots;
// a reverse map would make this O(1) if it mattered for compile-time
// performance at the graph sizes this compiler targets.
func (c *Catalogue) WeldedToOutput(name string) bool {
	root := c.Resolve(name)
	if root.Tag == TagOutput {
		return true
	}
	for _, t := range c.order {
		candidate := c.byName[t]
		if candidate.Tag == TagOutput && c.Resolve(candidate.Name) == root {
			return true
		}
	}
	return false
}
