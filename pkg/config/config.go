// Package config resolves the optional YAML file of kernel tuning
// parameters the `--config` flag points at (SPEC_FULL.md §6), producing
// a kernels.TilingParams that overrides kernels.DefaultTilingParams()
// field by field. Grounded on spec.md's tiling tuple (§4.4/§6) and on
// gopkg.in/yaml.v3, a teacher go.mod dependency with no prior home in
// the pack; this is its first real job.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/orneryd/onnx2code/pkg/kernels"
)

// TilingOverrides mirrors kernels.TilingParams, but every field is a
// pointer so an absent key in the YAML file leaves the corresponding
// default untouched rather than zeroing it out.
type TilingOverrides struct {
	NC *int `yaml:"nc"`
	KC *int `yaml:"kc"`
	MC *int `yaml:"mc"`
	MR *int `yaml:"mr"`
	NR *int `yaml:"nr"`
	MV *int `yaml:"mv"`
	NU *int `yaml:"nu"`
}

// File is the top-level shape of a kernel tuning config file.
type File struct {
	Tiling TilingOverrides `yaml:"tiling"`
}

// Load reads path (if non-empty) and applies any overrides it declares
// on top of kernels.DefaultTilingParams(), validating the result. A
// blank path returns the defaults unmodified.
func Load(path string) (kernels.TilingParams, error) {
	params := kernels.DefaultTilingParams()
	if path == "" {
		return params, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return kernels.TilingParams{}, fmt.Errorf("reading kernel tuning config %q: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return kernels.TilingParams{}, fmt.Errorf("parsing kernel tuning config %q: %w", path, err)
	}

	applyOverrides(&params, f.Tiling)

	if err := params.Validate(); err != nil {
		return kernels.TilingParams{}, fmt.Errorf("kernel tuning config %q: %w", path, err)
	}
	return params, nil
}

func applyOverrides(params *kernels.TilingParams, o TilingOverrides) {
	if o.NC != nil {
		params.NC = *o.NC
	}
	if o.KC != nil {
		params.KC = *o.KC
	}
	if o.MC != nil {
		params.MC = *o.MC
	}
	if o.MR != nil {
		params.MR = *o.MR
	}
	if o.NR != nil {
		params.NR = *o.NR
	}
	if o.MV != nil {
		params.MV = *o.MV
	}
	if o.NU != nil {
		params.NU = *o.NU
	}
}
