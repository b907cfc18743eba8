// Package simplify implements the graph loader and simplifier adapter
// (spec component C1). Wire-proto decoding and graph simplification are
// external collaborators (spec §6/§1): this package never parses ONNX
// protobuf bytes itself. It instead obtains the already-simplified graph
// one of two ways — reading a pre-simplified JSON sidecar next to the
// model file, or invoking an external simplifier process and parsing its
// JSON stdout — and on failure of either, falls back to treating the
// input file itself as already-simplified JSON, logging a warning rather
// than failing outright (spec §7: simplifier failure is non-fatal).
package simplify

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/orneryd/onnx2code/pkg/onnxir"
)

// wireGraph is the on-disk JSON shape emitted by the external simplifier
// (and accepted as a sidecar or raw fallback input). Field names match
// onnxir.Graph/Node/ValueInfo/Initializer/Attribute directly so
// json.Unmarshal needs no intermediate translation layer.
type wireGraph = onnxir.Graph

// SimplifierRunner abstracts invoking the external graph simplifier so
// tests can substitute a fake without spawning a real process.
// ExternalSimplifierRunner (below) is the production implementation.
type SimplifierRunner interface {
	Simplify(modelPath string) (stdout []byte, err error)
}

// ExternalSimplifierRunner shells out to a simplifier binary found on
// PATH (default "onnx2code-simplify"), passing modelPath as its sole
// argument and treating its stdout as the simplified graph's JSON
// encoding.
type ExternalSimplifierRunner struct {
	// BinaryPath overrides the PATH lookup; defaults to
	// "onnx2code-simplify" when empty.
	BinaryPath string
}

func (r ExternalSimplifierRunner) Simplify(modelPath string) ([]byte, error) {
	bin := r.BinaryPath
	if bin == "" {
		bin = "onnx2code-simplify"
	}
	cmd := exec.Command(bin, modelPath)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: external simplifier: %v", onnxir.ErrToolInvocation, err)
	}
	return out, nil
}

// sidecarPath returns the conventional sidecar location for modelPath:
// "<model>.simplified.json" alongside the model file.
func sidecarPath(modelPath string) string {
	ext := filepath.Ext(modelPath)
	base := strings.TrimSuffix(modelPath, ext)
	return base + ".simplified.json"
}

// Load resolves modelPath to a fully simplified onnxir.Graph (spec §6:
// inputs must be float32 and every shape must resolve to positive
// integers). Resolution order:
//  1. a sidecar JSON file, if present;
//  2. the external simplifier process, via runner;
//  3. modelPath itself, parsed directly as simplified-graph JSON — the
//     non-fatal fallback spec §7 requires, logged as a warning.
//
// Whichever source succeeds, every dynamic dimension (recorded as 0 or
// negative in the wire format) is resolved to 1 before returning.
func Load(modelPath string, runner SimplifierRunner) (*onnxir.Graph, error) {
	if runner == nil {
		runner = ExternalSimplifierRunner{}
	}

	if data, err := os.ReadFile(sidecarPath(modelPath)); err == nil {
		g, perr := parse(data)
		if perr == nil {
			resolveDynamicDims(g)
			return g, nil
		}
		log.Printf("onnx2code: sidecar %s present but unparseable, falling back: %v", sidecarPath(modelPath), perr)
	}

	if data, err := runner.Simplify(modelPath); err == nil {
		g, perr := parse(data)
		if perr == nil {
			resolveDynamicDims(g)
			return g, nil
		}
		log.Printf("onnx2code: external simplifier output unparseable, falling back: %v", perr)
	} else {
		log.Printf("onnx2code: external simplifier unavailable, falling back to raw graph: %v", err)
	}

	data, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", onnxir.ErrModelIngestion, modelPath, err)
	}
	g, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not a simplified graph and no simplifier was available: %v", onnxir.ErrModelIngestion, modelPath, err)
	}
	resolveDynamicDims(g)
	return g, nil
}

func parse(data []byte) (*onnxir.Graph, error) {
	var g wireGraph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// resolveDynamicDims fixes every non-positive shape dimension to 1 (spec
// §3/§6: "all dynamic dimensions resolved to 1"), across inputs,
// outputs, value-infos and initializers.
func resolveDynamicDims(g *onnxir.Graph) {
	fix := func(shape []int) {
		for i, d := range shape {
			if d <= 0 {
				shape[i] = 1
			}
		}
	}
	for i := range g.Inputs {
		fix(g.Inputs[i].Shape)
	}
	for i := range g.Outputs {
		fix(g.Outputs[i].Shape)
	}
	for i := range g.ValueInfo {
		fix(g.ValueInfo[i].Shape)
	}
	for i := range g.Initializer {
		fix(g.Initializer[i].Shape)
	}
}

// ValidateDtypes enforces spec §6's input contract: every declared input
// must be float32. Other dtypes elsewhere in the graph (e.g. int64 shape
// plumbing) are tolerated by the catalogue but inputs are not, since
// the emitted inference() signature has no way to express mixed input
// dtypes.
func ValidateDtypes(g *onnxir.Graph) error {
	for _, in := range g.Inputs {
		if in.DType != "float32" {
			return fmt.Errorf("%w: input %q has dtype %q, only float32 inputs are supported", onnxir.ErrUnsupportedConfiguration, in.Name, in.DType)
		}
	}
	return nil
}
