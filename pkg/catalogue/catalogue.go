// Package catalogue implements the tensor catalogue (spec component C2):
// it ingests every named tensor in a simplified graph — declared inputs,
// declared outputs, intermediate value-infos, and initializers, in that
// order — classifies each one, and synthesizes the "T<i>" variable names the
// rest of the pipeline refers to tensors by.
//
// The ingestion order and classification rules are grounded on
// original_source/onnx2code/tensor.py's parse_tensors, reworked into the
// ordered, mutation-friendly catalogue of pkg/onnxir.TensorRecord that the
// emission driver welds in place — the same "build an ordered table once,
// iterate it deterministically forever after" shape as the teacher's
// pkg/storage/schema.go SchemaManager.
package catalogue

import (
	"fmt"

	"github.com/orneryd/onnx2code/pkg/onnxir"
)

// Build ingests a simplified graph and returns its tensor catalogue.
//
// Contract (spec §4.1): for every graph tensor name there is exactly one
// record; size is the product of shape, with an empty shape (scalar)
// sizing to 1.
func Build(g *onnxir.Graph) (*onnxir.Catalogue, error) {
	cat := onnxir.NewCatalogue()

	initializerNames := make(map[string]bool, len(g.Initializer))
	for _, init := range g.Initializer {
		initializerNames[init.Name] = true
	}

	accession := 0
	nextVariable := func() string {
		v := fmt.Sprintf("T%d", accession)
		accession++
		return v
	}

	// Declared inputs, excluding those shadowed by an initializer (a
	// graph may declare an initializer for what is nominally an input —
	// ONNX convention for "optional input with a default").
	for _, vi := range g.Inputs {
		if initializerNames[vi.Name] {
			continue
		}
		cat.Add(newRecord(vi, onnxir.TagInput, nextVariable()))
	}

	// Declared outputs.
	for _, vi := range g.Outputs {
		cat.Add(newRecord(vi, onnxir.TagOutput, nextVariable()))
	}

	// Intermediate value-infos.
	for _, vi := range g.ValueInfo {
		cat.Add(newRecord(vi, onnxir.TagIntermediate, nextVariable()))
	}

	// Initializers (weights).
	for _, init := range g.Initializer {
		size := 1
		for _, d := range init.Shape {
			size *= d
		}
		rec := &onnxir.TensorRecord{
			Name:       init.Name,
			Shape:      init.Shape,
			Size:       size,
			Tag:        onnxir.TagWeight,
			Variable:   nextVariable(),
			Data:       init.Float32Data,
			Exportable: init.DType == "float32",
		}
		cat.Add(rec)
	}

	// Constant nodes whose output is one of the catalogued value-infos
	// carry their payload as an attribute rather than an initializer;
	// reclassify that tensor as a weight and attach its data.
	for _, node := range g.Node {
		if node.OpType != "Constant" || len(node.Output) != 1 {
			continue
		}
		name := node.Output[0]
		rec, ok := cat.Get(name)
		if !ok {
			continue
		}
		data, dtype := constantPayload(node)
		rec.Tag = onnxir.TagWeight
		rec.Data = data
		rec.Exportable = dtype == "float32"
	}

	return cat, nil
}

func newRecord(vi onnxir.ValueInfo, tag onnxir.Tag, variable string) *onnxir.TensorRecord {
	size := 1
	for _, d := range vi.Shape {
		size *= d
	}
	return &onnxir.TensorRecord{
		Name:     vi.Name,
		Shape:    vi.Shape,
		Size:     size,
		Tag:      tag,
		Variable: variable,
	}
}

// constantPayload extracts the float32 payload (if any) of a Constant
// node's "value" attribute. Non-float32 (or missing) values return
// (nil, "unsupported"); the caller uses the dtype only to mark the weight
// non-exportable, so such constants never reach the packed weights blob
// (spec §3).
func constantPayload(node onnxir.Node) ([]float32, string) {
	attr, ok := node.Attr("value")
	if !ok || attr.Kind != onnxir.AttrFloats {
		return nil, "unsupported"
	}
	return attr.Floats, "float32"
}
