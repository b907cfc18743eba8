// Package featureflags resolves the small set of environment-driven
// toggles this module defines: ONNX2CODE_DEBUG and
// ONNX2CODE_STRICT_VARIANTS. No compiler stage consults either flag, so
// neither changes what a compilation does. Each flag is read from its environment
// variable exactly once, on first use, and cached — the
// sync.Once-guarded atomic read/cache pattern this package follows is
// the same one the teacher's (now superseded) feature-flag package used
// for its environment-driven toggles.
package featureflags

import (
	"os"
	"sync"
	"sync/atomic"
)

const (
	// DebugEnvVar names the debug toggle, on when set to "1" and reported
	// by DebugEnabled. No pipeline stage reads it: no intermediate
	// artifacts (simplified graph JSON, sampled tensors, a debug driver)
	// are written under ./tmp/ whatever its value.
	DebugEnvVar = "ONNX2CODE_DEBUG"
	// StrictVariantsEnvVar names the strict-variants toggle, on when set
	// to "1" and reported by StrictVariants. The emitter does not read it:
	// a variant-preference miss falls through to the "c"/"asm" fallback
	// tags without an error whatever its value.
	StrictVariantsEnvVar = "ONNX2CODE_STRICT_VARIANTS"
)

var (
	debugOnce  sync.Once
	debugValue atomic.Bool

	strictOnce  sync.Once
	strictValue atomic.Bool
)

// DebugEnabled reports whether ONNX2CODE_DEBUG=1 is set in the process
// environment, resolved once and cached thereafter.
func DebugEnabled() bool {
	debugOnce.Do(func() {
		debugValue.Store(os.Getenv(DebugEnvVar) == "1")
	})
	return debugValue.Load()
}

// StrictVariants reports whether ONNX2CODE_STRICT_VARIANTS=1 is set,
// resolved once and cached thereafter.
func StrictVariants() bool {
	strictOnce.Do(func() {
		strictValue.Store(os.Getenv(StrictVariantsEnvVar) == "1")
	})
	return strictValue.Load()
}

// resetForTest clears every cached flag so tests can exercise different
// environment states; it is only ever called from this package's own
// tests.
func resetForTest() {
	debugOnce = sync.Once{}
	strictOnce = sync.Once{}
	debugValue.Store(false)
	strictValue.Store(false)
}
