// Package codegen implements the source assembler (spec component C7):
// it takes the catalogue, the emission driver's result, and the buffer
// planner's layout, and renders the four final artifacts — model.c,
// model.h, model.asm and weights.bin — in the exact section order spec
// §4.6 fixes, so that two runs over the same graph yield byte-identical
// output (determinism is load-bearing: it is what makes the
// compile-cache content-addressable).
package codegen

import (
	"bytes"
	"fmt"
	"math"

	"github.com/orneryd/onnx2code/pkg/emitter"
	"github.com/orneryd/onnx2code/pkg/onnxir"
	"github.com/orneryd/onnx2code/pkg/planner"
)

// sysvRegisters is the SysV AMD64 parameter-register order every
// assembly operator implementation's comment block documents itself
// against (spec §4.6 point 2, §6).
var sysvRegisters = []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}

// Artifacts holds the four outputs spec §6 defines.
type Artifacts struct {
	CSource   []byte
	Header    []byte
	AsmSource []byte
	Weights   []byte

	InputsSize  int
	OutputsSize int
}

// Assemble renders the final artifacts for one compiled graph.
func Assemble(g *onnxir.Graph, cat *onnxir.Catalogue, result *emitter.Result, layout planner.Layout) (*Artifacts, error) {
	var c bytes.Buffer
	var asm bytes.Buffer

	writeCHeaders(&c)
	c.WriteString("\n")

	asmOpNames := asmOperatorNames(result)

	asmAuxNames := writeAsmAuxExternDecls(&c, result, asmOpNames)
	writeExternalFiles(&c, result)
	writeCppAuxFunctions(&c, result)
	writeAsmOperatorExternDecls(&c, result, asmAuxNames)
	writeCOperatorBodies(&c, result)

	if layout.ArenaSize > 0 {
		fmt.Fprintf(&c, "static float __onnx2code_arena[%d];\n\n", layout.ArenaSize)
	}

	inputsSize, outputsSize, err := writeInference(&c, cat, result, layout)
	if err != nil {
		return nil, err
	}

	writeAsmAuxBodies(&asm, result, asmOpNames)
	writeAsmOperatorBodies(&asm, result)

	weights := packWeights(cat)

	header := renderHeader()

	return &Artifacts{
		CSource:     c.Bytes(),
		Header:      []byte(header),
		AsmSource:   asm.Bytes(),
		Weights:     weights,
		InputsSize:  inputsSize,
		OutputsSize: outputsSize,
	}, nil
}

func writeCHeaders(c *bytes.Buffer) {
	c.WriteString("#include <math.h>\n")
	c.WriteString("#include <string.h>\n")
	c.WriteString("#include \"model.h\"\n\n")
	c.WriteString("#ifndef ONNX2CODE_MIN\n#define ONNX2CODE_MIN(a, b) ((a) < (b) ? (a) : (b))\n#endif\n")
	c.WriteString("#ifndef ONNX2CODE_MAX\n#define ONNX2CODE_MAX(a, b) ((a) > (b) ? (a) : (b))\n#endif\n")
}

// asmOperatorNames returns the mangled names of every asm-language
// operator impl actually invoked from a call site. These get their
// typed prototype from writeAsmOperatorExternDecls and their body from
// writeAsmOperatorBodies; writeAsmAuxExternDecls/writeAsmAuxBodies must
// not also touch them, or the same NASM global symbol is emitted twice
// and the `inference` body's typed call site is shadowed by a
// `void(void)` prototype.
func asmOperatorNames(result *emitter.Result) map[string]bool {
	names := make(map[string]bool)
	for _, op := range result.Ops {
		if result.Impls[op.ImplKey].Language == onnxir.LangAsm {
			names[op.Call.MangledName()] = true
		}
	}
	return names
}

// writeAsmAuxExternDecls declares every assembly auxiliary function
// that is not itself an operator's call target ("extern void
// <name>(...);") so the C translation unit can call into model.asm.
// Returns the set of names declared, for writeAsmOperatorExternDecls to
// avoid re-declaring shared ones.
func writeAsmAuxExternDecls(c *bytes.Buffer, result *emitter.Result, asmOpNames map[string]bool) map[string]bool {
	declared := make(map[string]bool)
	for _, key := range result.ImplOrder {
		impl := result.Impls[key]
		if impl.Language != onnxir.LangAsm {
			continue
		}
		name := result.ImplNames[key]
		if asmOpNames[name] || declared[name] {
			continue
		}
		declared[name] = true
		fmt.Fprintf(c, "extern void %s(void);\n", name)
	}
	if len(declared) > 0 {
		c.WriteString("\n")
	}
	return declared
}

// writeExternalFiles emits a preprocessor #include directive for every
// referenced external source file (unique, insertion order) — spec §4.6
// point 3. The included files' contents are supplied at the downstream
// build step (an external collaborator, spec §1/§6); this translation
// unit only references them.
func writeExternalFiles(c *bytes.Buffer, result *emitter.Result) {
	seen := make(map[string]bool)
	var files []string
	for _, key := range result.ImplOrder {
		for _, f := range result.Impls[key].ExternalFiles {
			if seen[f] {
				continue
			}
			seen[f] = true
			files = append(files, f)
		}
	}
	for _, f := range files {
		fmt.Fprintf(c, "#include \"%s\"\n", f)
	}
	if len(files) > 0 {
		c.WriteString("\n")
	}
}

func writeCppAuxFunctions(c *bytes.Buffer, result *emitter.Result) {
	seen := make(map[string]bool)
	for _, key := range result.ImplOrder {
		for _, aux := range result.Impls[key].CppAuxFunctions {
			id := aux.Signature + "\x00" + aux.Body
			if seen[id] {
				continue
			}
			seen[id] = true
			fmt.Fprintf(c, "%s {\n%s\n}\n\n", aux.Signature, aux.Body)
		}
	}
}

func writeAsmOperatorExternDecls(c *bytes.Buffer, result *emitter.Result, declared map[string]bool) {
	wrote := false
	for _, op := range result.Ops {
		if result.Impls[op.ImplKey].Language != onnxir.LangAsm {
			continue
		}
		name := op.Call.MangledName()
		if declared[name] {
			continue
		}
		declared[name] = true
		fmt.Fprintf(c, "extern %s;\n", op.Call.Signature())
		wrote = true
	}
	if wrote {
		c.WriteString("\n")
	}
}

func writeCOperatorBodies(c *bytes.Buffer, result *emitter.Result) {
	for _, key := range result.ImplOrder {
		impl := result.Impls[key]
		if impl.Language != onnxir.LangC {
			continue
		}
		name := result.ImplNames[key]
		sig := signatureForImplName(result, key, name)
		fmt.Fprintf(c, "%s {\n%s\n}\n\n", sig, impl.Source)
	}
}

// signatureForImplName finds any call sharing implKey to reconstruct its
// C signature string (every such call was verified by the emission
// driver to share the same mangled name).
func signatureForImplName(result *emitter.Result, implKey, name string) string {
	for _, op := range result.Ops {
		if op.ImplKey == implKey {
			return op.Call.Signature()
		}
	}
	return fmt.Sprintf("void %s(void)", name)
}

func writeInference(c *bytes.Buffer, cat *onnxir.Catalogue, result *emitter.Result, layout planner.Layout) (inputsSize, outputsSize int, err error) {
	c.WriteString("void inference(const float* weights, const float* inputs, float* outputs) {\n")

	inputOffset, outputOffset, weightOffset := 0, 0, 0
	for _, t := range cat.Ordered() {
		switch t.Tag {
		case onnxir.TagInput:
			fmt.Fprintf(c, "    const float* %s = inputs + %d;\n", t.Variable, inputOffset)
			inputOffset += t.Size
		case onnxir.TagOutput:
			fmt.Fprintf(c, "    float* %s = outputs + %d;\n", t.Variable, outputOffset)
			outputOffset += t.Size
		case onnxir.TagWeight:
			if !t.Exportable {
				continue
			}
			fmt.Fprintf(c, "    const float* %s = weights + %d;\n", t.Variable, weightOffset)
			weightOffset += t.Size
		case onnxir.TagIntermediate:
			if cat.WeldedToOutput(t.Name) {
				continue
			}
			offset, ok := layout.Offsets[t.Name]
			if !ok {
				return 0, 0, fmt.Errorf("%w: intermediate tensor %q has no buffer offset", onnxir.ErrInternalInvariant, t.Name)
			}
			fmt.Fprintf(c, "    float* %s = __onnx2code_arena + %d;\n", t.Variable, offset)
		case onnxir.TagWelded:
			// Aliased: its Variable already names the representative
			// tensor's pointer, declared above (or about to be).
		}
	}

	c.WriteString("\n")
	for _, op := range result.Ops {
		fmt.Fprintf(c, "    %s;\n", op.Call.Invocation())
	}
	c.WriteString("}\n")

	return inputOffset, outputOffset, nil
}

func renderHeader() string {
	return "#ifndef ONNX2CODE_MODEL_H\n" +
		"#define ONNX2CODE_MODEL_H\n\n" +
		"#ifdef __cplusplus\nextern \"C\" {\n#endif\n\n" +
		"extern void inference(const float* weights, const float* inputs, float* outputs);\n\n" +
		"#ifdef __cplusplus\n}\n#endif\n\n" +
		"#endif\n"
}

// writeAsmAuxBodies emits only genuine shared assembly auxiliaries —
// impls whose mangled name is not itself an operator call target (see
// asmOperatorNames). Operator bodies are emitted once, by
// writeAsmOperatorBodies, keyed off the call site's own mangled name.
func writeAsmAuxBodies(asm *bytes.Buffer, result *emitter.Result, asmOpNames map[string]bool) {
	seen := make(map[string]bool)
	for _, key := range result.ImplOrder {
		impl := result.Impls[key]
		if impl.Language != onnxir.LangAsm {
			continue
		}
		name := result.ImplNames[key]
		if asmOpNames[name] || seen[name] {
			continue
		}
		seen[name] = true
		for _, aux := range impl.AsmAuxFunctions {
			fmt.Fprintf(asm, "global %s\n%s:\n%s\n", name, name, aux.Body)
		}
	}
}

func writeAsmOperatorBodies(asm *bytes.Buffer, result *emitter.Result) {
	written := make(map[string]bool)
	for _, op := range result.Ops {
		impl := result.Impls[op.ImplKey]
		if impl.Language != onnxir.LangAsm {
			continue
		}
		name := op.Call.MangledName()
		if written[name] {
			continue
		}
		written[name] = true

		asm.WriteString("; parameter -> register mapping (SysV AMD64):\n")
		for i, p := range op.Call.ParamOrder {
			if i >= len(sysvRegisters) {
				break
			}
			fmt.Fprintf(asm, ";   %s -> %s\n", p, sysvRegisters[i])
		}
		fmt.Fprintf(asm, "global %s\n%s:\n", name, name)
		for _, aux := range impl.AsmAuxFunctions {
			asm.WriteString(aux.Body)
			asm.WriteString("\n")
		}
	}
}

// packWeights concatenates, in catalogue order, every exportable
// (float32) weight tensor's data — spec §6's weights.bin contract.
func packWeights(cat *onnxir.Catalogue) []byte {
	var data []float32
	for _, t := range cat.Ordered() {
		if t.Tag != onnxir.TagWeight || !t.Exportable {
			continue
		}
		data = append(data, t.Data...)
	}
	buf := make([]byte, len(data)*4)
	for i, f := range data {
		putFloat32LE(buf[i*4:], f)
	}
	return buf
}

func putFloat32LE(b []byte, f float32) {
	bits := math.Float32bits(f)
	b[0] = byte(bits)
	b[1] = byte(bits >> 8)
	b[2] = byte(bits >> 16)
	b[3] = byte(bits >> 24)
}
