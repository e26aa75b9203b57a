package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/Carmen-Shannon/oxy-raytrace/engine/scene"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// ListScenes prints a table of the presets and what they contain.
func ListScenes(ctx *cli.Context) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Preset", "Materials", "Spheres", "Quads", "Lights"})
	for _, p := range scene.Presets() {
		d, err := scene.Build(p, ctx.Uint64("seed"))
		if err != nil {
			return err
		}
		s := d.Stats()
		table.Append([]string{
			p.String(),
			strconv.Itoa(s.Materials),
			strconv.Itoa(s.Spheres),
			strconv.Itoa(s.Quads),
			strconv.Itoa(s.Lights),
		})
	}
	table.Render()
	return nil
}

// CompileScene prints the WGSL block the trace kernel is specialised with.
func CompileScene(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("missing preset argument")
	}
	p, err := scene.ParsePreset(ctx.Args().First())
	if err != nil {
		return err
	}
	d, err := scene.Build(p, ctx.Uint64("seed"))
	if err != nil {
		return err
	}
	src, err := scene.Compile(d)
	if err != nil {
		return err
	}

	out := ctx.String("out")
	if out == "" {
		_, err = fmt.Fprint(os.Stdout, src)
		return err
	}
	if err := os.WriteFile(out, []byte(src), 0o644); err != nil {
		return err
	}
	log.Infof("wrote %s (%d bytes)", out, len(src))
	return nil
}
