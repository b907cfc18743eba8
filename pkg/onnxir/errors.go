// Package onnxir defines the in-memory graph representation and data model
// shared by every stage of the onnx2code compilation pipeline: the raw graph
// IR produced by an external simplifier, the tensor catalogue, and the
// operation call/impl records produced during emission.
//
// The package intentionally owns the compiler's error taxonomy too, since
// every later stage (registry, emitter, planner, codegen) needs to raise and
// recognize the same small set of failure kinds.
package onnxir

import "errors"

// Error kinds, one per row of the error taxonomy. Each is wrapped with
// fmt.Errorf("...: %w", ...) at the layer that detects it so that
// errors.Is(err, onnxir.ErrUnsupportedConfiguration) keeps working through
// any number of wrapping layers.
var (
	// ErrUnsupportedConfiguration is raised by an operator variant that
	// cannot handle the inputs it was given (wrong dtype, transposed A,
	// group != 1, etc). The driver catches this and tries the next
	// candidate variant; if none accept, it surfaces the first reason.
	ErrUnsupportedConfiguration = errors.New("onnx2code: unsupported operator configuration")

	// ErrUnknownOperator is raised when the registry has no entry at all
	// for a node's op type. Fatal.
	ErrUnknownOperator = errors.New("onnx2code: unknown operator type")

	// ErrModelIngestion is raised when the external simplifier rejects the
	// graph. Non-fatal: callers fall back to the raw, unsimplified graph
	// and log a warning.
	ErrModelIngestion = errors.New("onnx2code: model ingestion failed")

	// ErrToolInvocation is raised when an external collaborator process
	// (the libxsmm generator, the assembler, the C compiler) is missing
	// or exits non-zero. Callers that can treat this as an unsupported
	// variant do so; others propagate it.
	ErrToolInvocation = errors.New("onnx2code: external tool invocation failed")

	// ErrCorrectnessMismatch is raised by the checker when compiled output
	// deviates from the reference runtime beyond tolerance. Fatal in
	// --checks mode.
	ErrCorrectnessMismatch = errors.New("onnx2code: correctness check failed")

	// ErrInternalInvariant indicates a compiler bug: impl-dedup name
	// mismatch, a missing shape, a negative offset. Always fatal.
	ErrInternalInvariant = errors.New("onnx2code: internal invariant violated")

	// ErrSecurityViolation is raised when a requested path escapes its
	// required containment directory, a model or weights file exceeds its
	// size ceiling, or a dtype outside the allow-list is encountered.
	// Always fatal; never downgraded to a fallback.
	ErrSecurityViolation = errors.New("onnx2code: security policy violation")
)
