package checker

import (
	"bytes"
	"fmt"
	"os/exec"

	"github.com/orneryd/onnx2code/pkg/onnxir"
)

// ExternalToolchain shells out to nasm and a C/C++ compiler found on
// PATH, synchronously, exactly as original_source/onnx2code/service.py's
// _compile does.
type ExternalToolchain struct {
	// AssemblerPath overrides the PATH lookup for the assembler;
	// defaults to "nasm".
	AssemblerPath string
	// CompilerPath overrides the PATH lookup for the C/C++ compiler;
	// defaults to "cc".
	CompilerPath string
}

// Build returns a Toolchain whose Assemble and Compile fields invoke the
// configured external binaries.
func (e ExternalToolchain) Build() Toolchain {
	assembler := e.AssemblerPath
	if assembler == "" {
		assembler = "nasm"
	}
	compiler := e.CompilerPath
	if compiler == "" {
		compiler = "cc"
	}
	return Toolchain{
		Assemble: runExternal(assembler),
		Compile:  runExternal(compiler),
	}
}

func runExternal(bin string) RunnerFunc {
	return func(args []string) error {
		cmd := exec.Command(bin, args...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("%w: %s: %v: %s", onnxir.ErrToolInvocation, bin, err, stderr.String())
		}
		return nil
	}
}
