package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "oxy-raytrace"
	app.Usage = "progressive path tracing on the GPU"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "one of debug, info, warning, error",
		},
	}
	app.Before = setupLogging
	app.Commands = []cli.Command{
		{
			Name:  "render",
			Usage: "open a window and progressively render a scene",
			Description: `
Trace the selected preset into an accumulation buffer, one batch of samples per
frame, until the sample budget is reached. WASD/QE move the camera, dragging
with a mouse button rotates it, 1-4 pick the tonemap curve and +/- change the
exposure. Any camera change restarts accumulation.`,
			Flags:  renderFlags,
			Action: Render,
		},
		{
			Name:   "scenes",
			Usage:  "list the built-in scene presets",
			Flags:  []cli.Flag{seedFlag},
			Action: ListScenes,
		},
		{
			Name:      "compile",
			Usage:     "print the WGSL constant block generated for a scene",
			ArgsUsage: "preset",
			Flags: []cli.Flag{
				seedFlag,
				cli.StringFlag{
					Name:  "out, o",
					Usage: "write the block to this file instead of stdout",
				},
			},
			Action: CompileScene,
		},
		{
			Name:      "validate",
			Usage:     "assemble and validate every kernel for one or all presets",
			ArgsUsage: "[preset ...]",
			Flags:     []cli.Flag{seedFlag},
			Action:    ValidateKernels,
		},
	}
	return app
}
