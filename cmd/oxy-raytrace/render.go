package main

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-raytrace/engine"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/params"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/scene"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/window"
	"github.com/urfave/cli"
)

var seedFlag = cli.Uint64Flag{
	Name:  "seed",
	Value: 1,
	Usage: "seed for the randomised presets",
}

var renderFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "scene, s",
		Value: scene.PresetDefault.String(),
		Usage: "scene preset, see the scenes command",
	},
	seedFlag,
	cli.IntFlag{
		Name:  "width",
		Value: 1280,
		Usage: "image and window width",
	},
	cli.IntFlag{
		Name:  "height",
		Value: 720,
		Usage: "image and window height",
	},
	cli.IntFlag{
		Name:  "spp",
		Value: 4,
		Usage: "samples per pixel traced each frame",
	},
	cli.IntFlag{
		Name:  "max-samples",
		Value: 10000,
		Usage: "stop tracing after this many frames of samples, 0 for no limit",
	},
	cli.Float64Flag{
		Name:  "exposure",
		Value: 1,
		Usage: "initial tonemap exposure",
	},
	cli.StringFlag{
		Name:  "curve",
		Value: params.CurveACES.String(),
		Usage: "initial tonemap curve: clamp, reinhard, aces or uncharted2",
	},
	cli.BoolFlag{
		Name:  "vsync",
		Usage: "wait for vertical blank when presenting",
	},
	cli.BoolFlag{
		Name:  "software",
		Usage: "request a fallback (CPU) adapter",
	},
	cli.BoolFlag{
		Name:  "profiling, p",
		Usage: "time each pass with GPU timestamps and print a summary on exit",
	},
	cli.IntFlag{
		Name:  "max-readback",
		Value: 4,
		Usage: "timestamp readback buffers in flight before frames are skipped",
	},
	cli.StringFlag{
		Name:  "noise",
		Usage: "image used as the per-pixel seed texture instead of generated noise",
	},
	cli.IntFlag{
		Name:  "noise-size",
		Value: 256,
		Usage: "edge of the seed texture in pixels",
	},
	cli.StringFlag{
		Name:  "snapshot, o",
		Usage: "save the final image to this .png or .webp file on exit",
	},
	cli.BoolFlag{
		Name:  "validate",
		Usage: "validate kernels before creating pipelines",
	},
}

// Render opens a window and runs the engine until it is closed.
func Render(ctx *cli.Context) error {
	preset, err := scene.ParsePreset(ctx.String("scene"))
	if err != nil {
		return err
	}
	curve, err := params.ParseTonemapCurve(ctx.String("curve"))
	if err != nil {
		return err
	}
	width, height := ctx.Int("width"), ctx.Int("height")
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", width, height)
	}
	if ctx.Int("max-samples") < 0 || ctx.Int("spp") <= 0 {
		return fmt.Errorf("spp must be positive and max-samples non-negative")
	}

	p := params.DefaultRenderParameters()
	p.TextureWidth = uint32(width)
	p.TextureHeight = uint32(height)
	p.SamplesPerPixel = uint32(ctx.Int("spp"))
	p.MaxSampleCount = uint32(ctx.Int("max-samples"))
	p.Exposure = float32(ctx.Float64("exposure"))
	p.Curve = curve

	win := window.NewWindow(
		window.WithTitle("oxy-raytrace | "+preset.String()),
		window.WithSize(width, height),
		window.WithSizeLimits(64, 64, 0, 0),
	)
	mode := renderer.PresentModeUncapped
	if ctx.Bool("vsync") {
		mode = renderer.PresentModeVSync
	}
	profiling := ctx.Bool("profiling")
	r := renderer.NewRenderer(renderer.BackendTypeWGPU, win,
		renderer.WithPresentMode(mode),
		renderer.WithTimestamps(profiling),
		renderer.WithForceSoftwareRenderer(ctx.Bool("software")),
	)

	eng := engine.NewEngine(
		engine.WithWindow(win),
		engine.WithRenderer(r),
		engine.WithScene(preset),
		engine.WithSeed(ctx.Uint64("seed")),
		engine.WithParameters(p),
		engine.WithProfiling(profiling),
		engine.WithMaxReadbackBuffers(ctx.Int("max-readback")),
		engine.WithNoise(ctx.String("noise"), uint32(ctx.Int("noise-size"))),
		engine.WithSnapshot(ctx.String("snapshot")),
		engine.WithValidation(ctx.Bool("validate")),
	)
	log.Debugf("starting %s, seed %d", preset, ctx.Uint64("seed"))
	return eng.Run()
}
