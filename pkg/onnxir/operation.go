package onnxir

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
)

// Language distinguishes an OperationImpl's source language.
type Language int

const (
	LangC Language = iota
	LangAsm
)

// AuxFunction is a companion function an OperationImpl depends on: either a
// C/C++ helper (e.g. a templated GEMM microkernel) or an assembly helper
// (signature + body pair), referenced by the impl's primary source.
type AuxFunction struct {
	Signature string
	Body      string
}

// OperationImpl is one unique emitted function body (spec §3). Two nodes
// whose OperationImpl compare equal by value share a single function
// definition — see Key(), which is the dedup identity.
type OperationImpl struct {
	Language Language
	Source   string

	CppAuxFunctions []AuxFunction
	AsmAuxFunctions []AuxFunction

	// ExternalFiles are verbatim external source files to inline into the
	// final translation unit, referenced by path, deduplicated and
	// inserted in first-seen order by the assembler.
	ExternalFiles []string
}

// Key returns a stable identity for value-equality deduplication: two
// OperationImpls with the same Key are, by construction, interchangeable.
func (impl OperationImpl) Key() string {
	h := sha1.New()
	fmt.Fprintf(h, "lang=%d\n", impl.Language)
	fmt.Fprint(h, impl.Source, "\n")
	for _, a := range impl.CppAuxFunctions {
		fmt.Fprint(h, "cpp:", a.Signature, a.Body, "\n")
	}
	for _, a := range impl.AsmAuxFunctions {
		fmt.Fprint(h, "asm:", a.Signature, a.Body, "\n")
	}
	files := append([]string(nil), impl.ExternalFiles...)
	sort.Strings(files)
	for _, f := range files {
		fmt.Fprint(h, "file:", f, "\n")
	}
	return hex.EncodeToString(h.Sum(nil))
}

// OperationCall is one emitted node invocation (spec §3). SignatureName and
// SignatureParams together form the deterministic mangled function name
// (see MangledName) so that identical parameter tuples deduplicate to the
// same call site.
type OperationCall struct {
	SignatureName   string
	SignatureParams []any

	// ParamOrder names the call's formal parameters in declaration order
	// (e.g. ["A", "B", "OUT"]) — used by the assembler to both render the
	// C function signature and, for assembly bodies, document the SysV
	// register each parameter lands in.
	ParamOrder []string

	Inputs  []*TensorRecord
	Outputs []*TensorRecord
}

// MangledName deterministically derives a C-safe function name from
// SignatureName and SignatureParams: two calls with identical
// (SignatureName, SignatureParams) always mangle to the same name (spec §8,
// "name stability"), and distinct parameter tuples (almost) always mangle
// to distinct names — collisions are broken by a short content hash, never
// by accession order, so the result is a pure function of the inputs.
func (c OperationCall) MangledName() string {
	h := sha1.New()
	fmt.Fprint(h, c.SignatureName)
	for _, p := range c.SignatureParams {
		fmt.Fprintf(h, "|%v", p)
	}
	sum := hex.EncodeToString(h.Sum(nil))[:10]
	return fmt.Sprintf("%s_%s", c.SignatureName, sum)
}

// Signature renders the C function signature for this call, e.g.
// "void Conv_a1b2c3d4e5(const float* X, const float* W, float* Y)".
func (c OperationCall) Signature() string {
	params := make([]string, len(c.ParamOrder))
	outputSet := make(map[string]bool, len(c.Outputs))
	for _, o := range c.Outputs {
		outputSet[paramNameFor(o, c)] = true
	}
	for i, name := range c.ParamOrder {
		qualifier := "const float* "
		if isOutputParam(name, c) {
			qualifier = "float* "
		}
		params[i] = qualifier + name
	}
	return fmt.Sprintf("void %s(%s)", c.MangledName(), join(params, ", "))
}

// isOutputParam reports whether the formal parameter name corresponds to
// one of the call's declared outputs. The convention (matching the
// kernel library, §4.5) is that output formals are named distinctly from
// input formals (e.g. "OUT", "Y" for the *last* operand); concretely,
// the output formal names are exactly the trailing len(Outputs) entries of
// ParamOrder.
func isOutputParam(name string, c OperationCall) bool {
	n := len(c.ParamOrder)
	k := len(c.Outputs)
	if k > n {
		return false
	}
	for _, p := range c.ParamOrder[n-k:] {
		if p == name {
			return true
		}
	}
	return false
}

func paramNameFor(t *TensorRecord, c OperationCall) string { return t.Variable }

func join(ss []string, sep string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += sep
		}
		out += s
	}
	return out
}

// Invocation renders the call expression, e.g. "Conv_a1b2c3d4e5(X, W, Y)",
// without the trailing semicolon (the assembler adds it).
func (c OperationCall) Invocation() string {
	args := make([]string, len(c.Inputs)+len(c.Outputs))
	i := 0
	for _, in := range c.Inputs {
		args[i] = in.Variable
		i++
	}
	for _, out := range c.Outputs {
		args[i] = out.Variable
		i++
	}
	return fmt.Sprintf("%s(%s)", c.MangledName(), join(args, ", "))
}

// UsageRecord captures an intermediate tensor's call-index live range for
// the buffer planner (spec §3/§4.4).
type UsageRecord struct {
	TensorName string
	FirstOp    int
	LastOp     int
	Size       int
}
