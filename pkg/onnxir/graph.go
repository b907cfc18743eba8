package onnxir

// Graph is the simplified, shape-fixed exchange format that pkg/simplify
// hands to the rest of the pipeline. It mirrors the handful of ONNX graph
// concepts the compiler actually needs — nodes, value-infos, initializers —
// and is deliberately not a full protobuf decode: producing one is an
// external collaborator's job (see pkg/simplify).
type Graph struct {
	Name        string
	Inputs      []ValueInfo
	Outputs     []ValueInfo
	ValueInfo   []ValueInfo
	Initializer []Initializer
	Node        []Node
}

// ValueInfo is a named, shaped tensor slot in the graph: a declared input,
// output, or intermediate value-info entry.
type ValueInfo struct {
	Name  string
	Shape []int
	// DType is the ONNX element type name ("float32", "int64", ...).
	// Dtypes other than "float32" are tolerated at ingestion (so graphs with
	// int64 Shape/Gather plumbing still load) but excluded from codegen.
	DType string
}

// Initializer is a constant tensor embedded in the graph (a weight).
type Initializer struct {
	Name  string
	Shape []int
	DType string
	// Float32Data holds the tensor's content when DType == "float32"; nil
	// otherwise. Reshape-flattened, row-major, matching Shape.
	Float32Data []float32
}

// Attribute is a single named node attribute. Exactly one of the typed
// fields is meaningful, selected by Kind.
type Attribute struct {
	Name  string
	Kind  AttributeKind
	Int   int64
	Float float32
	Ints  []int64
	Floats []float32
	Str   string
}

// AttributeKind discriminates the Attribute union.
type AttributeKind int

const (
	AttrInt AttributeKind = iota
	AttrFloat
	AttrInts
	AttrFloats
	AttrString
)

// Node is one operator invocation in the graph, in declared (topological)
// order.
type Node struct {
	OpType     string
	Name       string
	Input      []string
	Output     []string
	Attribute  []Attribute
}

// Attr looks up a node attribute by name, returning (attr, true) if present.
func (n Node) Attr(name string) (Attribute, bool) {
	for _, a := range n.Attribute {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// AttrInt returns an integer attribute, or def if absent.
func (n Node) AttrInt(name string, def int64) int64 {
	if a, ok := n.Attr(name); ok && a.Kind == AttrInt {
		return a.Int
	}
	return def
}

// AttrFloat returns a float attribute, or def if absent.
func (n Node) AttrFloat(name string, def float32) float32 {
	if a, ok := n.Attr(name); ok && a.Kind == AttrFloat {
		return a.Float
	}
	return def
}

// AttrInts returns an integer-list attribute, or def if absent.
func (n Node) AttrInts(name string, def []int64) []int64 {
	if a, ok := n.Attr(name); ok && a.Kind == AttrInts {
		return a.Ints
	}
	return def
}

// AttrString returns a string attribute, or def if absent.
func (n Node) AttrString(name string, def string) string {
	if a, ok := n.Attr(name); ok && a.Kind == AttrString {
		return a.Str
	}
	return def
}
