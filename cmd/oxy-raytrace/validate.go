package main

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-raytrace/engine/scene"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/stage"
	"github.com/urfave/cli"
)

// ValidateKernels assembles the kernels for each requested preset and runs them through the
// WGSL validator. Every preset is checked when none is named.
func ValidateKernels(ctx *cli.Context) error {
	presets := scene.Presets()
	if ctx.NArg() > 0 {
		presets = presets[:0:0]
		for _, name := range ctx.Args() {
			p, err := scene.ParsePreset(name)
			if err != nil {
				return err
			}
			presets = append(presets, p)
		}
	}

	failed := 0
	for _, p := range presets {
		if err := validatePreset(p, ctx.Uint64("seed")); err != nil {
			log.Errorf("%s: %v", p, err)
			failed++
			continue
		}
		log.Infof("%s: ok", p)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d presets failed validation", failed, len(presets))
	}
	return nil
}

func validatePreset(p scene.Preset, seed uint64) error {
	d, err := scene.Build(p, seed)
	if err != nil {
		return err
	}
	src, err := scene.Compile(d)
	if err != nil {
		return err
	}
	kernels, err := stage.Kernels(src, stage.WithValidation(true))
	if err != nil {
		return err
	}
	for _, k := range kernels {
		log.Debugf("%s: %s entry %s, workgroup %v", p, k.Key(), k.EntryPoint(), k.WorkgroupSize())
	}
	return nil
}
