// Command onnx2code compiles a simplified ONNX graph into a
// self-contained C/C++ translation unit, an x86-64 assembly
// translation unit, a packed float32 weights blob, and a header
// exposing a single inference(weights, inputs, outputs) entry point.
//
// Usage:
//
//	onnx2code compile <model> <outdir> [flags]
//	onnx2code verify <model> <outdir> [flags]
//
// Flags:
//
//	--variations, --vars string   comma-separated variant tag preference, e.g. "libxsmm,loop-tiling,c"
//	--checks int                  if > 0, compile with an external toolchain and run N correctness checks
//	--config string               path to a YAML kernel tuning file
//	--cache-dir string            compile-cache directory (default ~/.cache/onnx2code)
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orneryd/onnx2code/pkg/checker"
	"github.com/orneryd/onnx2code/pkg/codegen"
	"github.com/orneryd/onnx2code/pkg/compile"
	"github.com/orneryd/onnx2code/pkg/compilecache"
	"github.com/orneryd/onnx2code/pkg/config"
	"github.com/orneryd/onnx2code/pkg/onnxir"
	"github.com/orneryd/onnx2code/pkg/security"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(checker.ExitLoadFailure)
	}
}

type flags struct {
	variations string
	checks     int
	configPath string
	cacheDir   string
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "onnx2code",
		Short: "Ahead-of-time compiler from a simplified ONNX graph to native code",
	}

	f := &flags{}
	root.PersistentFlags().StringVar(&f.variations, "variations", "", "comma-separated variant tag preference list")
	root.PersistentFlags().StringVar(&f.variations, "vars", "", "alias for --variations")
	root.PersistentFlags().IntVar(&f.checks, "checks", 0, "if > 0, run N correctness checks against an external toolchain and reference runtime")
	root.PersistentFlags().StringVar(&f.configPath, "config", "", "path to a YAML kernel tuning config file")
	root.PersistentFlags().StringVar(&f.cacheDir, "cache-dir", defaultCacheDir(), "compile-cache directory")

	root.AddCommand(newCompileCmd(f))
	root.AddCommand(newVerifyCmd(f))
	return root
}

func defaultCacheDir() string {
	if dir := os.Getenv("ONNX2CODE_CACHE_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".onnx2code-cache"
	}
	return filepath.Join(home, ".cache", "onnx2code")
}

func variationList(f *flags) []string {
	raw := f.variations
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func newCompileCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "compile <model> <outdir>",
		Short: "Compile a simplified ONNX model into native code artifacts",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := runCompile(args[0], args[1], f)
			if err != nil {
				cmd.SilenceUsage = true
			}
			if code != checker.ExitSuccess {
				os.Exit(code)
			}
			return err
		},
	}
}

func newVerifyCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <model> <outdir>",
		Short: "Re-run the correctness harness against an already-compiled output directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.checks <= 0 {
				f.checks = 10
			}
			code, err := runVerify(args[0], args[1], f)
			if err != nil {
				cmd.SilenceUsage = true
			}
			if code != checker.ExitSuccess {
				os.Exit(code)
			}
			return err
		},
	}
}

func runCompile(modelPath, outDir string, f *flags) (int, error) {
	tiling, err := config.Load(f.configPath)
	if err != nil {
		return checker.ExitLoadFailure, err
	}

	var cache *compilecache.Cache
	if f.cacheDir != "" {
		cache, err = compilecache.Open(f.cacheDir)
		if err != nil {
			return checker.ExitLoadFailure, err
		}
		defer cache.Close()
	}

	artifacts, err := compile.Run(modelPath, compile.Options{
		Variations: variationList(f),
		Tiling:     tiling,
		Cache:      cache,
	})
	if err != nil {
		return exitCodeForCompileError(err), err
	}

	if err := writeArtifacts(outDir, artifacts); err != nil {
		return checker.ExitGenerationFailure, err
	}

	if f.checks > 0 {
		return runChecksAgainst(modelPath, outDir, f.checks)
	}
	return checker.ExitSuccess, nil
}

func runVerify(modelPath, outDir string, f *flags) (int, error) {
	for _, name := range []string{"model.c", "model.h", "model.asm", "weights.bin"} {
		if _, err := security.ContainedOutputPath(outDir, name); err != nil {
			return checker.ExitLoadFailure, err
		}
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			return checker.ExitLoadFailure, fmt.Errorf("missing compiled artifact %s: %w", name, err)
		}
	}
	return runChecksAgainst(modelPath, outDir, f.checks)
}

// exitCodeForCompileError maps a compile.Run failure onto the exit code
// families runChecksAgainst also uses: validation/ingestion failures
// read as a load failure, everything else (an unsupported operator, an
// internal invariant) as a generation failure.
func exitCodeForCompileError(err error) int {
	if errors.Is(err, onnxir.ErrModelIngestion) || errors.Is(err, onnxir.ErrSecurityViolation) {
		return checker.ExitLoadFailure
	}
	return checker.ExitGenerationFailure
}

// runChecksAgainst requires a reference runtime and an external
// toolchain neither of which this module implements (an out-of-scope
// external collaborator); wiring a concrete checker.ReferenceRunner and
// checker.InvokeFunc is left to the deployment that has ONNX Runtime
// and NASM/cc available on PATH.
func runChecksAgainst(modelPath, outDir string, n int) (int, error) {
	return checker.ExitLoadFailure, fmt.Errorf("--checks %d requires a reference runtime wired at deployment time (model %s, outdir %s)", n, modelPath, outDir)
}

func writeArtifacts(outDir string, artifacts *codegen.Artifacts) error {
	if err := security.EnsureOutputDir(outDir); err != nil {
		return err
	}
	files := map[string][]byte{
		"model.c":     artifacts.CSource,
		"model.h":     artifacts.Header,
		"model.asm":   artifacts.AsmSource,
		"weights.bin": artifacts.Weights,
	}
	for name, data := range files {
		path, err := security.ContainedOutputPath(outDir, name)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return nil
}
